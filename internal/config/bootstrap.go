package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnsureUserConfig returns <dataDir>/config.yml, creating it from
// defaultPath on first start. When defaultPath is missing too, the built-in
// defaults are written instead.
func EnsureUserConfig(dataDir string, defaultPath string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	userPath := filepath.Join(dataDir, "config.yml")

	_, err := os.Stat(userPath)
	if err == nil {
		return userPath, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	src, err := os.Open(defaultPath)
	if errors.Is(err, os.ErrNotExist) {
		var cfg Config
		ApplyDefaults(&cfg)
		b, err := yaml.Marshal(&cfg)
		if err != nil {
			return "", err
		}
		return userPath, os.WriteFile(userPath, b, 0o644)
	}
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(userPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return userPath, nil
}

// Resolve is the startup sequence shared by every command: .env, user
// config bootstrap, sites overlay, env overrides.
func Resolve(configPath, envPath string) (Config, error) {
	if err := LoadDotEnv(envPath); err != nil {
		return Config{}, err
	}
	cfg, err := Load(configPath)
	if err != nil {
		return Config{}, err
	}
	if err := OverlaySites(&cfg, filepath.Join(filepath.Dir(configPath), "sites.yml")); err != nil {
		return Config{}, err
	}
	ApplyEnv(&cfg)
	return cfg, nil
}
