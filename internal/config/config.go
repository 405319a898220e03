// ABOUTME: Configuration loading and parsing for imagegen
// ABOUTME: Supports YAML or TOML files with environment variable expansion, defaults and validation

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gookit/validate"
	"gopkg.in/yaml.v3"
)

// APIKeyEnv is read when service.api_key is empty.
const APIKeyEnv = "OPENAI_API_KEY"

// Config represents the complete imagegen configuration
type Config struct {
	Service   ServiceConfig   `yaml:"service" toml:"service"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Variation VariationConfig `yaml:"variation" toml:"variation"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServiceConfig holds the image service connection settings
type ServiceConfig struct {
	BaseURL      string `yaml:"base_url" toml:"base_url" validate:"required|fullUrl"`
	APIKey       string `yaml:"api_key" toml:"api_key"`
	Organization string `yaml:"organization,omitempty" toml:"organization"`
	Model        string `yaml:"model" toml:"model" validate:"required"`
	Size         string `yaml:"size" toml:"size" validate:"required|in:256x256,512x512,1024x1024,1024x1536,1536x1024,1024x1792,1792x1024,auto"`

	Timeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for YAML/TOML unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// DatabaseConfig holds gallery database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" validate:"required"`
}

// CacheConfig holds thumbnail cache configuration
type CacheConfig struct {
	Enabled     bool `yaml:"enabled" toml:"enabled"`
	SizeMB      int  `yaml:"size_mb" toml:"size_mb" validate:"min:1"`
	ThumbnailPx int  `yaml:"thumbnail_px" toml:"thumbnail_px" validate:"min:16|max:1024"`

	// TTL bounds how long a thumbnail stays cached. Zero keeps entries until
	// they are evicted or invalidated.
	TTL    time.Duration `yaml:"-" toml:"-"`
	TTLRaw string        `yaml:"ttl" toml:"ttl"`
}

// VariationConfig holds variation behavior
type VariationConfig struct {
	// AcceptPolicy is "create" (save as a new image) or "replace" (overwrite
	// the source image's bytes).
	AcceptPolicy string `yaml:"accept_policy" toml:"accept_policy" validate:"in:create,replace"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"in:debug,info,warn,error"`
	Format string `yaml:"format" toml:"format" validate:"in:text,json"`
}

// MetricsConfig holds metrics textfile configuration
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Textfile string `yaml:"textfile" toml:"textfile"`
}

// Default returns the configuration used when no file exists. The gallery
// database lives in dataDir.
func Default(dataDir string) *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "dall-e-2",
			Size:       "1024x1024",
			Timeout:    2 * time.Minute,
			TimeoutRaw: "2m",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(dataDir, "gallery.db"),
		},
		Cache: CacheConfig{
			Enabled:     true,
			SizeMB:      128,
			ThumbnailPx: 128,
			TTL:         time.Hour,
			TTLRaw:      "1h",
		},
		Variation: VariationConfig{
			AcceptPolicy: "create",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Textfile: filepath.Join(dataDir, "imagegen.prom"),
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config layered over Default(dataDir). Files ending in .toml are parsed as
// TOML, anything else as YAML. Environment variables in the format
// ${VAR_NAME} are expanded. Duration strings are parsed into time.Duration
// values.
func Load(path, dataDir string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default(dataDir)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return finish(cfg)
}

// LoadOrDefault loads path, or returns Default(dataDir) when path does not
// exist. found reports whether a file was read.
func LoadOrDefault(path, dataDir string) (cfg *Config, found bool, err error) {
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		cfg, err = finish(Default(dataDir))
		return cfg, false, err
	}
	cfg, err = Load(path, dataDir)
	return cfg, true, err
}

func finish(cfg *Config) (*Config, error) {
	if cfg.Service.APIKey == "" {
		cfg.Service.APIKey = os.Getenv(APIKeyEnv)
	}
	cfg.Variation.AcceptPolicy = strings.ToLower(strings.TrimSpace(cfg.Variation.AcceptPolicy))
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks every section against its validate tags, then the
// cross-field rules tags cannot express.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	sections := []struct {
		name  string
		value any
	}{
		{"service", &c.Service},
		{"database", &c.Database},
		{"cache", &c.Cache},
		{"variation", &c.Variation},
		{"logging", &c.Logging},
		{"metrics", &c.Metrics},
	}
	for _, s := range sections {
		v := validate.Struct(s.value)
		if !v.Validate() {
			return fmt.Errorf("%s: %w", s.name, v.Errors.OneError())
		}
	}

	if c.Service.Timeout <= 0 {
		return fmt.Errorf("service.timeout must be positive")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return fmt.Errorf("metrics.textfile is required when metrics are enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Service.TimeoutRaw != "" {
		cfg.Service.Timeout, err = time.ParseDuration(cfg.Service.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Service.TimeoutRaw, err)
		}
	}

	if cfg.Cache.TTLRaw != "" {
		cfg.Cache.TTL, err = time.ParseDuration(cfg.Cache.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing cache ttl %q: %w", cfg.Cache.TTLRaw, err)
		}
	}

	return nil
}

// WriteDefault writes a commented starter config to path. It refuses to
// overwrite an existing file.
func WriteDefault(path, dataDir string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	cfg := Default(dataDir)
	cfg.Service.APIKey = "${" + APIKeyEnv + "}"

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	header := "# imagegen configuration\n# Values like ${VAR} are read from the environment.\n\n"
	if err := os.WriteFile(path, append([]byte(header), body...), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
