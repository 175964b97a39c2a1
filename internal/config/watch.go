package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// readFile parses the config file without env overrides or defaults so that
// Save writes back only what the file already held.
func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// AddWatchDirectory maps dir to kbID in the config file at path. An existing
// entry for dir is re-pointed at kbID.
func AddWatchDirectory(path, dir, kbID string) error {
	if dir == "" || kbID == "" {
		return fmt.Errorf("watch directory and knowledge base id are required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	cfg, err := readFile(path)
	if err != nil {
		return err
	}
	configDir := filepath.Dir(path)
	for i, d := range cfg.Watch.Directories {
		if filepath.Clean(expandPath(d.Path, configDir)) == abs {
			cfg.Watch.Directories[i].KnowledgeBaseID = kbID
			return Save(path, cfg)
		}
	}
	cfg.Watch.Directories = append(cfg.Watch.Directories, WatchDirectory{Path: abs, KnowledgeBaseID: kbID})
	return Save(path, cfg)
}

// RemoveWatchDirectory drops dir from the config file at path and reports
// whether it was present.
func RemoveWatchDirectory(path, dir string) (bool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", dir, err)
	}
	cfg, err := readFile(path)
	if err != nil {
		return false, err
	}
	configDir := filepath.Dir(path)
	kept := cfg.Watch.Directories[:0]
	removed := false
	for _, d := range cfg.Watch.Directories {
		if filepath.Clean(expandPath(d.Path, configDir)) == abs {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	if !removed {
		return false, nil
	}
	cfg.Watch.Directories = kept
	return true, Save(path, cfg)
}
