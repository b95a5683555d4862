package config

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/go-waste/classifier"
	"github.com/nvr-ai/go-waste/detection"
	"github.com/nvr-ai/go-waste/images"
	"github.com/nvr-ai/go-waste/inference"
	"github.com/nvr-ai/go-waste/labels"
	"github.com/nvr-ai/go-waste/waste"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wastebin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Decode(New(filepath.Join(t.TempDir(), "missing.yaml")))
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, waste.DefaultSchema, cfg.Taxonomy.Version)
	assert.Equal(t, classifier.ModeDetector, cfg.Classifier.Mode)
	assert.InDelta(t, 0.25, cfg.Classifier.Threshold, 1e-6)
	assert.Equal(t, DefaultModels(), cfg.Models)
	assert.Equal(t, "general", cfg.Cascade.Entry)
	assert.Len(t, cfg.Cascade.Stages, 3)
	assert.True(t, cfg.Profiler.Enabled)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "wastebin.db", cfg.History.Path)
	assert.Equal(t, []string{"detector"}, cfg.ModelNames())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  cors_origins: ["https://bin.example.org"]
logging:
  level: debug
  format: json
taxonomy:
  version: v3
classifier:
  mode: cascade
cascade:
  entry: general
  stages:
    - name: general
      model: general
      threshold: 0.2
      routes:
        e-waste: {stage: ewaste}
        organic: {category: compost}
        non-organic: {category: non-organic}
    - name: ewaste
      model: ewaste
      table: ewaste
      fallback: {category: fallback}
models:
  - name: general
    backend: onnx-classifier
    path: /models/general.onnx
    classes: [e-waste, non-organic, organic]
  - name: ewaste
    backend: remote
    url: http://localhost:9000/predict
    timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://bin.example.org"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, classifier.ModeCascade, cfg.Classifier.Mode)
	require.Len(t, cfg.Cascade.Stages, 2)
	assert.InDelta(t, 0.2, cfg.Cascade.Stages[0].Threshold, 1e-6)
	assert.Equal(t, "ewaste", cfg.Cascade.Stages[0].Routes["e-waste"].Stage)
	require.NotNil(t, cfg.Cascade.Stages[1].Fallback)
	require.Len(t, cfg.Models, 2)
	assert.Equal(t, inference.BackendRemote, cfg.Models[1].Backend)
	assert.Equal(t, 5*time.Second, cfg.Models[1].Timeout)
	assert.Equal(t, []string{"e-waste", "non-organic", "organic"}, cfg.Models[0].Classes)
	assert.Equal(t, []string{"general", "ewaste"}, cfg.ModelNames())

	tax, err := cfg.Taxonomy.Build()
	require.NoError(t, err)
	assert.Equal(t, waste.Other, tax.Fallback())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("WASTEBIN_SERVER_ADDR", ":7000")
	t.Setenv("WASTEBIN_CLASSIFIER_THRESHOLD", "0.4")
	t.Setenv("WASTEBIN_LOGGING_LEVEL", "warn")
	t.Setenv("WASTEBIN_HISTORY_ENABLED", "true")

	cfg, err := Decode(New(filepath.Join(t.TempDir(), "none.yaml")))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.InDelta(t, 0.4, cfg.Classifier.Threshold, 1e-6)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.History.Enabled)
}

func TestLabelModeUsesLLMTable(t *testing.T) {
	t.Setenv("WASTEBIN_CLASSIFIER_MODE", "label")
	t.Setenv("WASTEBIN_CLASSIFIER_MODEL", "llm")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Classifier.Table)
	assert.Equal(t, labels.TableLLM, cfg.Classifier.LabelTable())

	tax, err := cfg.Taxonomy.Build()
	require.NoError(t, err)
	reg := inference.NewRegistry()
	reg.Register("llm", inference.InferencerFunc(func(context.Context, *images.Image) ([]detection.Candidate, error) {
		return []detection.Candidate{{Label: "COMPOST", Confidence: 1}}, nil
	}))
	engine, err := classifier.New(classifier.Options{Config: cfg.Classifier, Taxonomy: tax, Models: reg})
	require.NoError(t, err)

	res := engine.Classify(context.Background(), images.FromImage(image.NewRGBA(image.Rect(0, 0, 4, 4))))
	require.Nil(t, res.Error)
	require.NotNil(t, res.Category)
	assert.Equal(t, waste.Compost, *res.Category)
}

func TestClassifierTableDefaults(t *testing.T) {
	tests := []struct {
		name string
		cfg  classifier.Config
		want string
	}{
		{"detector", classifier.Config{Mode: classifier.ModeDetector}, labels.TableCOCO},
		{"label", classifier.Config{Mode: classifier.ModeLabel}, labels.TableLLM},
		{"explicit", classifier.Config{Mode: classifier.ModeLabel, Table: labels.TableCOCO}, labels.TableCOCO},
		{"none", classifier.Config{Mode: classifier.ModeDetector, Table: labels.TableNone}, labels.TableNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.LabelTable())
		})
	}
}

func TestCustomTaxonomy(t *testing.T) {
	path := writeConfig(t, `
taxonomy:
  custom:
    version: plant-b
    fallback: residual
    categories:
      - {name: glass, recyclable: true}
      - {name: paper, recyclable: true}
      - {name: residual, recyclable: false}
classifier:
  mode: label
  model: llm
  table: ""
  labels:
    GLASS: glass
    PAPER: paper
models:
  - name: llm
    backend: llm
    api_key: test
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	tax, err := cfg.Taxonomy.Build()
	require.NoError(t, err)
	assert.Equal(t, "plant-b", tax.Version())
	assert.Equal(t, waste.Category("residual"), tax.Fallback())
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Decode(New(filepath.Join(t.TempDir(), "none.yaml")))
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]func(*Config){
		"log level":       func(c *Config) { c.Logging.Level = "trace" },
		"log format":      func(c *Config) { c.Logging.Format = "xml" },
		"addr":            func(c *Config) { c.Server.Addr = "" },
		"upload limit":    func(c *Config) { c.Server.MaxUploadBytes = 0 },
		"schema":          func(c *Config) { c.Taxonomy.Version = "v9" },
		"mode":            func(c *Config) { c.Classifier.Mode = "vote" },
		"threshold":       func(c *Config) { c.Classifier.Threshold = 1 },
		"table target":    func(c *Config) { c.Classifier.Labels = map[string]string{"bottle": "glass"} },
		"backend":         func(c *Config) { c.Models[0].Backend = "tflite" },
		"duplicate model": func(c *Config) { c.Models = append(c.Models, c.Models[0]) },
		"unnamed model":   func(c *Config) { c.Models[0].Name = "" },
		"provider":        func(c *Config) { c.Models[0].Provider = "tpu" },
		"history path": func(c *Config) {
			c.History.Enabled = true
			c.History.Path = ""
		},
		"cascade": func(c *Config) {
			c.Classifier.Mode = classifier.ModeCascade
			c.Cascade.Entry = "missing"
		},
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("MODEL_DIR", "/opt/models")
	assert.Equal(t, "/opt/models/yolo.onnx", ExpandPath("$MODEL_DIR/yolo.onnx"))
	assert.Equal(t, "", ExpandPath(""))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "models", "a.onnx"), ExpandPath("~/models/a.onnx"))
}
