package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	// FileName : base name of the migration configuration, any extension viper understands
	FileName  = "migration"
	EnvPrefix = "DBMIGRATE"
)

// Config : configuration for the job
type Config[S any, T any] struct {
	Root     string `json:"-" mapstructure:"-"`
	History  string `json:"history" mapstructure:"history"`
	Progress string `json:"progress" mapstructure:"progress" validate:"oneof=log bar"`
	Source   S      `json:"source" mapstructure:"source"`
	Target   T      `json:"target" mapstructure:"target"`
}

// Endpoint : one database connection of the migration
type Endpoint struct {
	Driver   string `json:"driver" mapstructure:"driver" validate:"required,oneof=mysql pgx sqlserver oracle snowflake sqlite3"`
	DSN      string `json:"dsn" mapstructure:"dsn" validate:"required"`
	Schema   string `json:"schema" mapstructure:"schema"`
	Quotes   bool   `json:"quotes" mapstructure:"quotes"`
	QueryLog bool   `json:"query_log" mapstructure:"query_log"`
}

// Section : source or target settings that know their own defaults and rules
type Section interface {
	Validate(v *validator.Validate) error
}

// Defaults : registers default values under a key prefix
type Defaults func(v *viper.Viper, prefix string)

// EndpointDefaults : defaults shared by every endpoint section
func EndpointDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".quotes", true)
	v.SetDefault(prefix+".query_log", false)
}

// ErrNotFound : the root holds no migration file
var ErrNotFound = errors.New("migration configuration not found")

// Load : reads migration.{yaml,json,properties} from root, DBMIGRATE_ prefixed
// environment variables and an optional .env file override the file values
func Load[S any, T any, PS interface {
	*S
	Section
}, PT interface {
	*T
	Section
}](fs afero.Fs, root string, source Defaults, target Defaults) (*Config[S, T], error) {
	envFile := filepath.Join(root, ".env")
	if ok, _ := afero.Exists(fs, envFile); ok {
		f, err := fs.Open(envFile)
		if err != nil {
			return nil, err
		}
		env, err := godotenv.Parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s : %w", envFile, err)
		}
		if err := setEnv(env); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigName(FileName)
	v.AddConfigPath(root)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("history", "")
	v.SetDefault("progress", "log")
	source(v, "source")
	target(v, "target")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("%w in %s", ErrNotFound, root)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config[S, T]{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Root = root
	if cfg.History != "" && !filepath.IsAbs(cfg.History) {
		cfg.History = filepath.Join(root, cfg.History)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration : %w", err)
	}
	if err := PS(&cfg.Source).Validate(validate); err != nil {
		return nil, fmt.Errorf("invalid source configuration : %w", err)
	}
	if err := PT(&cfg.Target).Validate(validate); err != nil {
		return nil, fmt.Errorf("invalid target configuration : %w", err)
	}
	return cfg, nil
}
