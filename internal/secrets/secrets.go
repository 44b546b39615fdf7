package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"jobrelay-engine/internal/config"
)

const (
	// "Service" groups the app's secrets in the OS keychain.
	KeyringService = "jobrelay"

	AccountTelegram = "telegram:bot_token"
	AccountOpenAI   = "openai:api_key"
)

var ErrNotFound = errors.New("secret not found (set it in keychain or via env)")

// Accounts lists the keychain entries the engine knows about.
var Accounts = []string{AccountTelegram, AccountOpenAI}

func Get(account string) (string, error) {
	v, err := keyring.Get(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) || (err == nil && strings.TrimSpace(v) == "") {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring get %s: %w", account, err)
	}
	return v, nil
}

func Set(account, value string) error {
	if !known(account) {
		return fmt.Errorf("unknown secret %q (want one of %s)", account, strings.Join(Accounts, ", "))
	}
	if strings.TrimSpace(value) == "" {
		return errors.New("secret value is empty")
	}
	return keyring.Set(KeyringService, account, value)
}

func Delete(account string) error {
	if !known(account) {
		return fmt.Errorf("unknown secret %q", account)
	}
	err := keyring.Delete(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Fill resolves secrets that env did not provide from the keychain.
// A keychain that is unavailable (headless servers) is not an error.
func Fill(cfg *config.Config) {
	if strings.TrimSpace(cfg.Secrets.TelegramToken) == "" {
		if v, err := Get(AccountTelegram); err == nil {
			cfg.Secrets.TelegramToken = v
		}
	}
	if strings.TrimSpace(cfg.Secrets.OpenAIKey) == "" {
		if v, err := Get(AccountOpenAI); err == nil {
			cfg.Secrets.OpenAIKey = v
		}
	}
}

func known(account string) bool {
	for _, a := range Accounts {
		if a == account {
			return true
		}
	}
	return false
}
