package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultAPIBaseURL       = "http://localhost:8080/api"
	DefaultRequestTimeout   = 15 * time.Second
	DefaultAutoSaveInterval = 30 * time.Second
	DefaultDebounceDelay    = 300 * time.Millisecond
	DefaultBridgePort       = 8090
	DefaultLogLevel         = "info"
	DefaultTheme            = "catppuccin"
	DefaultDataDirName      = ".rxflow"
	DefaultDatabaseName     = "rxflow.db"

	// EnvPrefix is prepended to every environment override, e.g. RXFLOW_API_BASE_URL
	EnvPrefix = "RXFLOW"
)

// Config holds all application configuration
type Config struct {
	// Backend
	APIBaseURL     string        `mapstructure:"api_base_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`

	// Authoring workflow
	AutoSaveEnabled  bool          `mapstructure:"autosave_enabled"`
	AutoSaveInterval time.Duration `mapstructure:"autosave_interval" validate:"gte=1s"`
	DebounceDelay    time.Duration `mapstructure:"debounce_delay" validate:"gte=0"`
	Strict           bool          `mapstructure:"strict"`

	// Paths
	DataDir      string `mapstructure:"data_dir" validate:"required"`
	DatabasePath string `mapstructure:"database_path"`

	// UI and logging
	LogLevel string `mapstructure:"log_level" validate:"oneof=trace debug info warn warning error"`
	Theme    string `mapstructure:"theme" validate:"oneof=catppuccin dracula nord"`

	// Local session bridge
	BridgeEnabled      bool     `mapstructure:"bridge_enabled"`
	BridgePort         int      `mapstructure:"bridge_port" validate:"min=1,max=65535"`
	BridgeAPIKey       string   `mapstructure:"bridge_api_key"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// Feature flags
	WatchEnabled   bool   `mapstructure:"watch_enabled"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	NotifyEnabled  bool   `mapstructure:"notify_enabled"`
	SoundEnabled   bool   `mapstructure:"sound_enabled"`
	ActiveProfile  string `mapstructure:"active_profile"`
}

// DefaultDataDir returns ~/.rxflow, or ./.rxflow when the home directory is unknown
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDirName
	}
	return filepath.Join(home, DefaultDataDirName)
}

// New creates a new Config with default values
func New() *Config {
	dataDir := DefaultDataDir()

	return &Config{
		APIBaseURL:       DefaultAPIBaseURL,
		RequestTimeout:   DefaultRequestTimeout,
		AutoSaveEnabled:  true,
		AutoSaveInterval: DefaultAutoSaveInterval,
		DebounceDelay:    DefaultDebounceDelay,
		DataDir:          dataDir,
		DatabasePath:     filepath.Join(dataDir, DefaultDatabaseName),
		LogLevel:         DefaultLogLevel,
		Theme:            DefaultTheme,
		BridgePort:       DefaultBridgePort,
		CORSAllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
	}
}

// Load reads configuration from defaults, then the YAML file at path (or
// config.yaml in the default data directory when path is empty and the
// file exists), then RXFLOW_* environment variables. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, New())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultDataDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// A relocated data dir moves the database with it unless set explicitly
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, DefaultDatabaseName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply even
// without a config file
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api_base_url", cfg.APIBaseURL)
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("autosave_enabled", cfg.AutoSaveEnabled)
	v.SetDefault("autosave_interval", cfg.AutoSaveInterval)
	v.SetDefault("debounce_delay", cfg.DebounceDelay)
	v.SetDefault("strict", cfg.Strict)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("database_path", "")
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("theme", cfg.Theme)
	v.SetDefault("bridge_enabled", cfg.BridgeEnabled)
	v.SetDefault("bridge_port", cfg.BridgePort)
	v.SetDefault("bridge_api_key", cfg.BridgeAPIKey)
	v.SetDefault("cors_allowed_origins", cfg.CORSAllowedOrigins)
	v.SetDefault("watch_enabled", cfg.WatchEnabled)
	v.SetDefault("tracing_enabled", cfg.TracingEnabled)
	v.SetDefault("notify_enabled", cfg.NotifyEnabled)
	v.SetDefault("sound_enabled", cfg.SoundEnabled)
	v.SetDefault("active_profile", cfg.ActiveProfile)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ProfileDir returns the directory holding backend profiles
func (c *Config) ProfileDir() string {
	return filepath.Join(c.DataDir, "profiles")
}

// BridgeAddr returns the listen address of the local session bridge
func (c *Config) BridgeAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.BridgePort)
}

// EnsureDataDir creates the data directory if it does not exist
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
