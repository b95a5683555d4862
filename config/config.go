// Package config - Typed service configuration loaded with viper from file, environment and defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvr-ai/go-waste/classifier"
	"github.com/nvr-ai/go-waste/inference"
	"github.com/nvr-ai/go-waste/inference/onnx"
	"github.com/nvr-ai/go-waste/labels"
	"github.com/nvr-ai/go-waste/waste"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WASTEBIN_SERVER_ADDR.
const EnvPrefix = "WASTEBIN"

// FileName is the config file name searched for when no path is given.
const FileName = "wastebin"

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig             `mapstructure:"server" yaml:"server"`
	Logging    LoggingConfig            `mapstructure:"logging" yaml:"logging"`
	Taxonomy   TaxonomyConfig           `mapstructure:"taxonomy" yaml:"taxonomy"`
	Classifier classifier.Config        `mapstructure:"classifier" yaml:"classifier"`
	Cascade    classifier.CascadeConfig `mapstructure:"cascade" yaml:"cascade"`
	Models     []inference.ModelConfig  `mapstructure:"models" yaml:"models"`
	Profiler   ProfilerConfig           `mapstructure:"profiler" yaml:"profiler"`
	History    HistoryConfig            `mapstructure:"history" yaml:"history"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// MaxUploadBytes bounds request bodies.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TaxonomyConfig selects a built-in schema, or declares a custom one.
type TaxonomyConfig struct {
	Version string `mapstructure:"version" yaml:"version"`
	// Custom replaces the built-in schema when it declares categories.
	Custom waste.Schema `mapstructure:"custom" yaml:"custom"`
}

// Build returns the configured taxonomy.
func (t TaxonomyConfig) Build() (*waste.Taxonomy, error) {
	if len(t.Custom.Categories) > 0 {
		return waste.NewTaxonomy(t.Custom)
	}
	s, err := waste.BuiltinSchema(t.Version)
	if err != nil {
		return nil, err
	}
	return waste.NewTaxonomy(s)
}

// ProfilerConfig configures operation timing.
type ProfilerConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	ReportInterval time.Duration `mapstructure:"report_interval" yaml:"report_interval"`
	MaxSamples     int           `mapstructure:"max_samples" yaml:"max_samples"`
}

// HistoryConfig configures the SQLite classification log.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// DefaultModels declares the single COCO detector of the default detector mode.
func DefaultModels() []inference.ModelConfig {
	return []inference.ModelConfig{
		{Name: "detector", Backend: inference.BackendONNXDetector, Path: "models/yolov8n.onnx"},
	}
}

// SetDefaults registers a default for every scalar key so that environment overrides resolve.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(20<<20))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("taxonomy.version", waste.DefaultSchema)

	c := classifier.DefaultConfig()
	v.SetDefault("classifier.mode", string(c.Mode))
	v.SetDefault("classifier.model", c.Model)
	v.SetDefault("classifier.table", c.Table)
	v.SetDefault("classifier.threshold", c.Threshold)
	v.SetDefault("classifier.nms_iou", c.NMSIoU)
	v.SetDefault("classifier.label_confidence", c.LabelConfidence)

	v.SetDefault("cascade.entry", classifier.DefaultCascade().Entry)

	v.SetDefault("profiler.enabled", true)
	v.SetDefault("profiler.report_interval", time.Minute)
	v.SetDefault("profiler.max_samples", 600)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "wastebin.db")
}

// New returns a viper instance with defaults, the WASTEBIN environment and the config search path.
//
// Arguments:
//   - path: Explicit config file. Empty searches ./wastebin.yaml and $HOME/.config/wastebin/.
//
// Returns:
//   - *viper.Viper: The instance. Nothing is read yet.
func New(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", FileName))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file if one exists and decodes the result.
//
// Arguments:
//   - path: Explicit config file, or empty to search.
//
// Returns:
//   - Config: The validated configuration.
//   - error: If an explicit or found file cannot be read or the configuration is invalid.
func Load(path string) (Config, error) {
	v := New(path)
	if err := ReadFile(v, path != ""); err != nil {
		return Config{}, err
	}
	return Decode(v)
}

// ReadFile reads the config file of v. A missing file is only an error when it was named explicitly.
func ReadFile(v *viper.Viper, explicit bool) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return errors.Wrap(err, "reading config")
		}
	}
	return nil
}

// Decode unmarshals a prepared viper instance, fills list defaults and validates.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}

	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels()
	}
	if len(cfg.Cascade.Stages) == 0 {
		cfg.Cascade = classifier.DefaultCascade()
	}
	for i := range cfg.Models {
		cfg.Models[i].Path = ExpandPath(cfg.Models[i].Path)
		cfg.Models[i].SharedLibPath = ExpandPath(cfg.Models[i].SharedLibPath)
	}
	cfg.History.Path = ExpandPath(cfg.History.Path)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values that would fail at startup or at request time.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("config: server.max_upload_bytes must be positive")
	}

	if c.History.Enabled && c.History.Path == "" {
		return errors.New("config: history.path is required when history is enabled")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("config: invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return errors.Errorf("config: invalid log format %q", c.Logging.Format)
	}

	tax, err := c.Taxonomy.Build()
	if err != nil {
		return errors.Wrap(err, "config: taxonomy")
	}

	if err := c.Classifier.Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	if c.Classifier.Mode == classifier.ModeCascade {
		if _, err := classifier.BuildCascade(c.Cascade, tax); err != nil {
			return errors.Wrap(err, "config")
		}
	} else if _, err := labels.Load(tax, c.Classifier.LabelTable(), c.Classifier.Labels); err != nil {
		return errors.Wrap(err, "config: classifier")
	}

	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.Name == "" {
			return errors.New("config: model without a name")
		}
		if seen[m.Name] {
			return errors.Errorf("config: duplicate model %q", m.Name)
		}
		seen[m.Name] = true
		if !m.Backend.Valid() {
			return errors.Errorf("config: model %q: unknown backend %q", m.Name, m.Backend)
		}
		if !onnx.Provider(m.Provider).Valid() {
			return errors.Errorf("config: model %q: unknown execution provider %q", m.Name, m.Provider)
		}
	}

	return nil
}

// ModelNames returns the model names the configured strategy will ask for.
func (c Config) ModelNames() []string {
	if c.Classifier.Mode != classifier.ModeCascade {
		return []string{c.Classifier.Model}
	}
	names := make([]string, 0, len(c.Cascade.Stages))
	seen := map[string]bool{}
	for _, s := range c.Cascade.Stages {
		if !seen[s.Model] {
			seen[s.Model] = true
			names = append(names, s.Model)
		}
	}
	return names
}

// ExpandPath expands a leading ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}
