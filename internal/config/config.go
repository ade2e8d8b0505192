package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EnvAddr           = "MESSENGER_ADDR"
	EnvDatabaseDSN    = "MESSENGER_DATABASE_DSN"
	EnvUploadDir      = "MESSENGER_UPLOAD_DIR"
	EnvAllowedOrigins = "MESSENGER_ALLOWED_ORIGINS"
)

type Config struct {
	ServerAddr string `yaml:"addr"`
	// DatabaseDSN selects Postgres when set; otherwise state is kept in memory.
	DatabaseDSN     string   `yaml:"database_dsn"`
	UploadDir       string   `yaml:"upload_dir"`
	UploadURLPrefix string   `yaml:"upload_url_prefix"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	HistoryLimit    int      `yaml:"history_limit"`
	ChatOrder       string   `yaml:"chat_order"`
	EventRate       float64  `yaml:"event_rate"`
	EventBurst      int      `yaml:"event_burst"`
}

func Default() *Config {
	return &Config{
		ServerAddr:      ":8000",
		UploadDir:       "uploads",
		UploadURLPrefix: "/uploads",
		HistoryLimit:    100,
		ChatOrder:       "first_contact",
		EventRate:       20,
		EventBurst:      40,
	}
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decode config %q: %w", path, err)
	}

	return nil
}

// ApplyEnv overrides c with any MESSENGER_* variables that are set.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvAddr); ok {
		c.ServerAddr = v
	}
	if v, ok := os.LookupEnv(EnvDatabaseDSN); ok {
		c.DatabaseDSN = v
	}
	if v, ok := os.LookupEnv(EnvUploadDir); ok {
		c.UploadDir = v
	}
	if v, ok := os.LookupEnv(EnvAllowedOrigins); ok {
		c.AllowedOrigins = SplitList(v)
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, errors.New("server address cannot be empty"))
	}
	if c.UploadDir == "" {
		errs = append(errs, errors.New("upload directory cannot be empty"))
	}
	if !strings.HasPrefix(c.UploadURLPrefix, "/") {
		errs = append(errs, fmt.Errorf("upload url prefix %q must start with /", c.UploadURLPrefix))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, errors.New("history limit must be positive"))
	}
	if c.EventRate <= 0 || c.EventBurst <= 0 {
		errs = append(errs, errors.New("event rate and burst must be positive"))
	}
	switch c.ChatOrder {
	case "first_contact", "recency":
	default:
		errs = append(errs, fmt.Errorf("unknown chat order %q", c.ChatOrder))
	}

	return errors.Join(errs...)
}

// SplitList splits a comma-separated list, dropping blank entries.
func SplitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}
