package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	core "github.com/PaulFidika/subkit/core"
	"github.com/PaulFidika/subkit/jobs"
	jwtkit "github.com/PaulFidika/subkit/jwt"
	migrations "github.com/PaulFidika/subkit/migrations/postgres"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	BackendMemory = "memory"
	BackendRemote = "remote"
)

// StoreConfig points the remote backend at a store API.
type StoreConfig struct {
	URL      string `mapstructure:"url"`
	IssuerID string `mapstructure:"issuer_id"`
	KeyID    string `mapstructure:"key_id"`
	BundleID string `mapstructure:"bundle_id"`
	// KeyFile is the .p8 private key used to sign API tokens.
	KeyFile string `mapstructure:"key_file"`
}

// Config is read from SUBKIT_* env vars, an optional config file and flags.
type Config struct {
	Listen    string `mapstructure:"listen"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Backend    string      `mapstructure:"backend"`
	ProductIDs []string    `mapstructure:"product_ids"`
	ManageURL  string      `mapstructure:"manage_url"`
	Store      StoreConfig `mapstructure:"store"`

	RedisURL       string `mapstructure:"redis_url"`
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	PostgresSchema string `mapstructure:"postgres_schema"`

	RefreshSpec        string `mapstructure:"refresh_spec"`
	NotificationSecret string `mapstructure:"notification_secret"`

	// Production refuses generated status-token keys.
	Production   bool   `mapstructure:"production"`
	KeysPath     string `mapstructure:"keys_path"`
	StatusIssuer string `mapstructure:"status_issuer"`
}

var defaults = map[string]any{
	"listen":              ":8080",
	"log_level":           "info",
	"log_format":          "text",
	"backend":             BackendMemory,
	"product_ids":         []string{core.DefaultProductID},
	"manage_url":          core.DefaultManageURL,
	"store.url":           "",
	"store.issuer_id":     "",
	"store.key_id":        "",
	"store.bundle_id":     "",
	"store.key_file":      "",
	"redis_url":           "",
	"postgres_dsn":        "",
	"postgres_schema":     "subkit",
	"refresh_spec":        jobs.DefaultRefreshSpec,
	"notification_secret": "",
	"production":          false,
	"keys_path":           jwtkit.DefaultKeysPath,
	"status_issuer":       "subkit",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SUBKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

func loadConfig(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRemote:
		if c.Store.URL == "" || c.Store.IssuerID == "" || c.Store.KeyID == "" || c.Store.KeyFile == "" {
			return errors.New("remote backend needs store.url, store.issuer_id, store.key_id and store.key_file")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Production && c.NotificationSecret == "" {
		return errors.New("notification_secret is required in production")
	}
	if _, err := migrations.NormalizeSchema(c.PostgresSchema); err != nil {
		return err
	}
	return nil
}

func newLogger(cfg Config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(lvl)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
