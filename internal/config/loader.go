package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigPath returns the default configuration file path:
// ~/.cc-gateway/config.yaml, mirroring crystaldolphin's ConfigPath.
func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cc-gateway/config.yaml"
	}
	return filepath.Join(home, ".cc-gateway", "config.yaml")
}

// Load reads and parses the config file at path. If path is empty,
// ConfigPath() is used. A missing file or a parse failure both fall
// back to DefaultConfig() rather than failing startup, matching
// crystaldolphin's Load semantics; a parse failure additionally
// prints a warning so a broken file is not silently mistaken for "no
// config given".
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Decode into a raw map first so a legacy key can be migrated
	// before the typed bind, same two-pass shape as crystaldolphin's
	// loader.go.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		fmt.Printf("Warning: failed to parse config %s: %v\n", path, err)
		fmt.Println("Using default configuration.")
		cfg := DefaultConfig()
		return &cfg, nil
	}
	migrateConfig(raw)

	migrated, err := yaml.Marshal(raw)
	if err != nil {
		cfg := DefaultConfig()
		return &cfg, nil
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(migrated, &cfg); err != nil {
		fmt.Printf("Warning: failed to bind config %s: %v\n", path, err)
		fmt.Println("Using default configuration.")
		cfg2 := DefaultConfig()
		return &cfg2, nil
	}
	return &cfg, nil
}

// Save writes cfg to path as indented YAML. If path is empty,
// ConfigPath() is used.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// migrateConfig renames a provider field from its pre-release spelling
// ("apiBase") to the current one ("baseUrl"), the same one-shot
// rename pattern as crystaldolphin's tools.exec migration.
func migrateConfig(data map[string]interface{}) {
	providers, _ := data["providers"].([]interface{})
	for _, raw := range providers {
		p, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if val, ok := p["apiBase"]; ok {
			if _, already := p["baseUrl"]; !already {
				p["baseUrl"] = val
			}
			delete(p, "apiBase")
		}
	}
}
