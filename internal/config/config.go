package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/spectrai/internal/utils"
	"github.com/menta2k/spectrai/pkg/types"
)

// EnvPrefix is prepended to environment overrides, e.g. SPECTRAI_DETECTION_BACKEND
const EnvPrefix = "SPECTRAI"

// Config holds the application configuration
type Config struct {
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Display   DisplayConfig   `mapstructure:"display" yaml:"display"`
	Detection DetectionConfig `mapstructure:"detection" yaml:"detection"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// SessionConfig controls how a project folder is opened and navigated
type SessionConfig struct {
	AutoSave      bool          `mapstructure:"auto_save" yaml:"auto_save"`
	StrictPairing bool          `mapstructure:"strict_pairing" yaml:"strict_pairing"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl" validate:"min=0"`
}

// DisplayConfig is the viewport previews are fitted into
type DisplayConfig struct {
	Width   int  `mapstructure:"width" yaml:"width" validate:"min=1,max=16384"`
	Height  int  `mapstructure:"height" yaml:"height" validate:"min=1,max=16384"`
	Stretch bool `mapstructure:"stretch" yaml:"stretch"`
	// Background fills the letterbox bands, as #rgb or #rrggbb
	Background string `mapstructure:"background" yaml:"background" validate:"omitempty,hexcolor"`
}

// DetectionConfig selects and configures the detector backend
type DetectionConfig struct {
	Backend string        `mapstructure:"backend" yaml:"backend" validate:"oneof=yolo ollama llamacpp"`
	URL     string        `mapstructure:"url" yaml:"url" validate:"omitempty,url"`
	Model   string        `mapstructure:"model" yaml:"model"`
	Command []string      `mapstructure:"command" yaml:"command"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=0"`
	// Env holds extra KEY=VALUE pairs for the predictor process
	Env []string `mapstructure:"env" yaml:"env,omitempty" validate:"dive,contains=="`
}

// OutputConfig holds configuration for rendered previews
type OutputConfig struct {
	Format   string `mapstructure:"format" yaml:"format" validate:"oneof=png jpg jpeg webp"`
	Quality  int    `mapstructure:"quality" yaml:"quality" validate:"min=1,max=100"`
	Lossless bool   `mapstructure:"lossless" yaml:"lossless"`
	Dir      string `mapstructure:"dir" yaml:"dir"`
}

// LoggingConfig mirrors logging.Options
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" validate:"min=0"`
	NoColors   bool   `mapstructure:"no_colors" yaml:"no_colors"`
	Caller     bool   `mapstructure:"caller" yaml:"caller"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			AutoSave:      false,
			StrictPairing: true,
			CacheTTL:      5 * time.Minute,
		},
		Display: DisplayConfig{
			Width:      1280,
			Height:     720,
			Stretch:    false,
			Background: "#000000",
		},
		Detection: DetectionConfig{
			Backend: "yolo",
			Command: []string{"python3", "predict.py", "{model}", "{image}"},
			Timeout: 2 * time.Minute,
		},
		Output: OutputConfig{
			Format:  "png",
			Quality: 92,
			Dir:     "./previews",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// NewViper returns a viper instance seeded with the defaults and wired for
// SPECTRAI_ environment overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("session.auto_save", c.Session.AutoSave)
	v.SetDefault("session.strict_pairing", c.Session.StrictPairing)
	v.SetDefault("session.cache_ttl", c.Session.CacheTTL)

	v.SetDefault("display.width", c.Display.Width)
	v.SetDefault("display.height", c.Display.Height)
	v.SetDefault("display.stretch", c.Display.Stretch)
	v.SetDefault("display.background", c.Display.Background)

	v.SetDefault("detection.backend", c.Detection.Backend)
	v.SetDefault("detection.url", c.Detection.URL)
	v.SetDefault("detection.model", c.Detection.Model)
	v.SetDefault("detection.command", c.Detection.Command)
	v.SetDefault("detection.timeout", c.Detection.Timeout)

	v.SetDefault("output.format", c.Output.Format)
	v.SetDefault("output.quality", c.Output.Quality)
	v.SetDefault("output.lossless", c.Output.Lossless)
	v.SetDefault("output.dir", c.Output.Dir)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file", c.Logging.File)
	v.SetDefault("logging.max_size_mb", c.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", c.Logging.MaxAgeDays)
	v.SetDefault("logging.no_colors", c.Logging.NoColors)
	v.SetDefault("logging.caller", c.Logging.Caller)
}

// LoadFromFile loads configuration from a YAML or JSON file, chosen by
// extension. An empty filename yields the defaults plus environment overrides.
func LoadFromFile(filename string) (*Config, error) {
	return Load(NewViper(), filename)
}

// Load reads filename (if set) into v and decodes the result. Callers that
// bind command-line flags to v get those overrides too.
func Load(v *viper.Viper, filename string) (*Config, error) {
	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveToFile saves configuration as YAML
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := utils.WriteFileAtomic(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", types.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", strings.ToLower(fe.Namespace()), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("%w: invalid config: %s", types.ErrValidation, strings.Join(msgs, "; "))
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the process
// environment. Files that do not exist are skipped; existing variables win.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if utils.FileExists(p) {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./spectrai.config.yaml"
	}
	return filepath.Join(home, ".config", "spectrai", "config.yaml")
}
