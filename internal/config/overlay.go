package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"jobrelay-engine/internal/scrape/types"
)

type SitesFile struct {
	Sites []types.SiteProfile `yaml:"sites"`
}

// OverlaySites merges site profiles from a separate file. Entries replace
// same-named sites from the main config; new names are appended.
func OverlaySites(cfg *Config, sitesPath string) error {
	b, err := os.ReadFile(sitesPath)
	if err != nil {
		// Missing sites file should not kill startup
		return nil
	}

	var sf SitesFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return err
	}

	idx := map[string]int{}
	for i, s := range cfg.Sites {
		idx[s.Name] = i
	}
	for _, s := range sf.Sites {
		if i, ok := idx[s.Name]; ok {
			cfg.Sites[i] = s
			continue
		}
		idx[s.Name] = len(cfg.Sites)
		cfg.Sites = append(cfg.Sites, s)
	}
	return nil
}
