package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/copystructure"
	gotoml "github.com/pelletier/go-toml"

	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/params"
	"github.com/panbanda/auger/pkg/rules"
)

// Config holds all configuration options for auger.
type Config struct {
	// Analysis settings
	Analysis AnalysisConfig `koanf:"analysis" toml:"analysis"`

	// Compiled modules to analyze
	Modules ModulesConfig `koanf:"modules" toml:"modules"`

	// Project settings file
	Settings SettingsConfig `koanf:"settings" toml:"settings"`

	// Extra descriptor databases
	Descriptors DescriptorsConfig `koanf:"descriptors" toml:"descriptors"`

	// Diagnostic parameter overrides, one layer per platform
	Params []params.Layer `koanf:"params" toml:"params"`

	// Severity overrides
	Rules []rules.Rule `koanf:"rules" toml:"rules"`

	// Cache settings
	Cache CacheConfig `koanf:"cache" toml:"cache"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output"`
}

// AnalysisConfig controls what an audit targets.
type AnalysisConfig struct {
	Platform           string   `koanf:"platform" toml:"platform"`
	SupportedPlatforms []string `koanf:"supported_platforms" toml:"supported_platforms"`
	RuntimeVersion     string   `koanf:"runtime_version" toml:"runtime_version"`
	Categories         []string `koanf:"categories" toml:"categories"`
	Parallel           bool     `koanf:"parallel" toml:"parallel"`
	CallDepth          int      `koanf:"call_depth" toml:"call_depth"`
}

// ModulesConfig selects compiled modules.
type ModulesConfig struct {
	Paths   []string `koanf:"paths" toml:"paths"`
	Include []string `koanf:"include" toml:"include"`
	Exclude []string `koanf:"exclude" toml:"exclude"`
}

// SettingsConfig points at the project settings file.
type SettingsConfig struct {
	Path string `koanf:"path" toml:"path"`
}

// DescriptorsConfig lists additional YAML descriptor databases.
type DescriptorsConfig struct {
	Files []string `koanf:"files" toml:"files"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled"`
	Dir     string `koanf:"dir" toml:"dir"`
	TTL     int    `koanf:"ttl" toml:"ttl"` // TTL in hours
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format" toml:"format"` // text, json, markdown, toon
	Color   bool   `koanf:"color" toml:"color"`
	Verbose bool   `koanf:"verbose" toml:"verbose"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			SupportedPlatforms: []string{
				string(models.PlatformWindows),
				string(models.PlatformMacOS),
				string(models.PlatformLinux),
				string(models.PlatformAndroid),
				string(models.PlatformIOS),
				string(models.PlatformWebGL),
			},
			CallDepth: 10,
		},
		Modules: ModulesConfig{
			Include: []string{"**/*.bcm"},
			Exclude: []string{"**/obj/**", "**/.auger/**"},
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".auger/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Format:  "text",
			Color:   true,
			Verbose: false,
		},
	}
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	// Determine parser based on extension
	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Params {
		cfg.Params[i].Platform = models.ParsePlatform(string(cfg.Params[i].Platform))
	}
	return cfg, nil
}

// configNames are searched, in order, in each of searchDirs.
var (
	configNames = []string{
		"auger.toml",
		"auger.yaml",
		"auger.yml",
		"auger.json",
		".auger.toml",
		".auger.yaml",
		".auger.yml",
		".auger.json",
	}
	searchDirs = []string{".", ".auger"}
)

// Find returns the first config file in the standard locations, or "".
func Find() string {
	for _, dir := range searchDirs {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// LoadOrDefault tries to load config from standard locations or returns defaults.
func LoadOrDefault() *Config {
	if path := Find(); path != "" {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	return DefaultConfig()
}

// LoadResult is a loaded config and the file it came from. Source is empty
// when defaults were used.
type LoadResult struct {
	Config *Config
	Source string
}

// LoadOption configures LoadConfig.
type LoadOption func(*loadOptions)

type loadOptions struct {
	path string
}

// WithPath loads the given file instead of searching.
func WithPath(path string) LoadOption {
	return func(o *loadOptions) {
		o.path = path
	}
}

// LoadConfig loads and validates configuration. Unlike LoadOrDefault it
// reports errors in the file it finds.
func LoadConfig(opts ...LoadOption) (*LoadResult, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	path := o.path
	if path == "" {
		path = Find()
	}
	if path == "" {
		return &LoadResult{Config: DefaultConfig()}, nil
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if err := cfg.Validate(nil); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &LoadResult{Config: cfg, Source: path}, nil
}

// Clone returns a deep copy, so a session can modify its configuration
// without affecting the caller's.
func (c *Config) Clone() *Config {
	v, err := copystructure.Copy(c)
	if err != nil {
		// Config holds only plain data; copying cannot fail.
		panic(fmt.Sprintf("config: copy failed: %v", err))
	}
	return v.(*Config)
}

// Marshal encodes the config as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return gotoml.Marshal(*c)
}

// Save writes the config as TOML.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Platform returns the configured target platform.
func (c *Config) Platform() models.Platform {
	return models.ParsePlatform(c.Analysis.Platform)
}

// SupportedPlatforms returns the parsed supported platforms. Unknown names
// are skipped; Validate reports them.
func (c *Config) SupportedPlatforms() []models.Platform {
	var out []models.Platform
	for _, s := range c.Analysis.SupportedPlatforms {
		if p := models.ParsePlatform(s); p.IsKnown() {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns the configured categories; empty means all.
func (c *Config) Categories() []models.Category {
	out := make([]models.Category, 0, len(c.Analysis.Categories))
	for _, s := range c.Analysis.Categories {
		out = append(out, models.Category(s))
	}
	return out
}

// Validate reports every invalid value. When catalog is non-nil, rule ids
// must name registered descriptors; unknown ids carry suggestions.
func (c *Config) Validate(catalog *descriptor.Catalog) error {
	var errs []error
	if !c.Platform().IsKnown() {
		errs = append(errs, fmt.Errorf("analysis.platform: unknown platform %q", c.Analysis.Platform))
	}
	for _, s := range c.Analysis.SupportedPlatforms {
		if !models.ParsePlatform(s).IsKnown() {
			errs = append(errs, fmt.Errorf("analysis.supported_platforms: unknown platform %q", s))
		}
	}
	if c.Analysis.CallDepth < 0 {
		errs = append(errs, fmt.Errorf("analysis.call_depth must not be negative, got %d", c.Analysis.CallDepth))
	}
	for _, l := range c.Params {
		if !models.ParsePlatform(string(l.Platform)).IsKnown() {
			errs = append(errs, fmt.Errorf("params: unknown platform %q", l.Platform))
		}
	}
	for i, r := range c.Rules {
		if _, err := models.ParseSeverity(string(r.Severity)); err != nil {
			errs = append(errs, fmt.Errorf("rules[%d]: %w", i, err))
		}
		if catalog == nil {
			continue
		}
		if _, err := catalog.Lookup(r.ID); err != nil {
			errs = append(errs, fmt.Errorf("rules[%d]: %w", i, err))
		}
	}
	switch c.Output.Format {
	case "", "text", "json", "markdown", "toon":
	default:
		errs = append(errs, fmt.Errorf("output.format: unknown format %q", c.Output.Format))
	}
	return errors.Join(errs...)
}
