package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override the config file.
const (
	EnvDebug        = "TCMKB_DEBUG"
	EnvDriver       = "TCMKB_DB_DRIVER"
	EnvDatabaseURL  = "TCMKB_DATABASE_URL"
	EnvDatabasePath = "TCMKB_DATABASE_PATH"
	EnvUploadDir    = "TCMKB_UPLOAD_DIR"
	EnvHost         = "TCMKB_HOST"
	EnvPort         = "TCMKB_PORT"
	EnvOpenAIKey    = "OPENAI_API_KEY"
)

// LoadDotEnv loads variables from the given .env files (or ./.env when none are
// given) without overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overrides cfg fields from the environment. Unset or empty variables
// leave the file value in place.
func ApplyEnv(cfg *Config) {
	if v, ok := lookup(EnvDebug); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v, ok := lookup(EnvDriver); ok {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := lookup(EnvDatabaseURL); ok {
		cfg.Storage.PostgresDSN = v
		if cfg.Storage.Driver == "" {
			cfg.Storage.Driver = DriverPostgres
		}
	}
	if v, ok := lookup(EnvDatabasePath); ok {
		cfg.Storage.DatabasePath = v
	}
	if v, ok := lookup(EnvUploadDir); ok {
		cfg.Storage.UploadDir = v
	}
	if v, ok := lookup(EnvHost); ok {
		cfg.Server.Host = v
	}
	if v, ok := lookup(EnvPort); ok {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v, ok := lookup(EnvOpenAIKey); ok {
		for i := range cfg.Embedding.Models {
			m := &cfg.Embedding.Models[i]
			if m.Type == EmbedderOpenAI && m.APIKey == "" {
				m.APIKey = v
			}
		}
	}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
