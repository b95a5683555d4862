package inference

import (
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/nvr-ai/go-waste/inference/llm"
	"github.com/nvr-ai/go-waste/inference/onnx"
	"github.com/nvr-ai/go-waste/inference/remote"
	"github.com/pkg/errors"
)

// Registry holds the loaded models by name. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Inferencer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Inferencer)}
}

// Register adds or replaces a model.
func (r *Registry) Register(name string, m Inferencer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = m
}

// Get returns the model registered under name.
//
// Returns:
//   - Inferencer: The model.
//   - error: ErrModelUnavailable when nothing is registered under name.
func (r *Registry) Get(name string) (Inferencer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	if !ok {
		return nil, errors.Wrapf(ErrModelUnavailable, "no model named %q", name)
	}
	return m, nil
}

// Names returns the registered model names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every model that holds resources and empties the registry.
//
// Returns:
//   - error: The first close error, after all models were closed.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for name, m := range r.models {
		if c, ok := m.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = errors.Wrapf(err, "close model %q", name)
			}
		}
	}
	r.models = make(map[string]Inferencer)
	return first
}

// NewInferencer creates a model instance based on the configured backend.
//
// Arguments:
//   - cfg: The model declaration.
//
// Returns:
//   - Inferencer: The ready model.
//   - error: If the backend is unsupported or the model cannot be loaded.
func NewInferencer(cfg ModelConfig) (Inferencer, error) {
	switch cfg.Backend {
	case BackendONNXDetector:
		m, err := onnx.NewDetector(cfg.onnxConfig())
		if err != nil {
			return nil, err
		}
		return m, nil
	case BackendONNXClassifier:
		m, err := onnx.NewClassifier(cfg.onnxConfig())
		if err != nil {
			return nil, err
		}
		return m, nil
	case BackendRemote:
		m, err := remote.New(remote.Config{
			URL:          cfg.URL,
			Timeout:      cfg.Timeout,
			Headers:      cfg.Headers,
			MaxImageSide: cfg.MaxImageSide,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case BackendLLM:
		m, err := llm.New(llm.Config{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			BaseURL:      cfg.URL,
			Temperature:  cfg.Temperature,
			Timeout:      cfg.Timeout,
			MaxImageSide: cfg.MaxImageSide,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, errors.Errorf("unsupported backend %q for model %q", cfg.Backend, cfg.Name)
	}
}

func (cfg ModelConfig) onnxConfig() onnx.Config {
	return onnx.Config{
		ModelPath:      cfg.Path,
		SharedLibPath:  cfg.SharedLibPath,
		InputName:      cfg.InputName,
		OutputName:     cfg.OutputName,
		InputWidth:     cfg.InputWidth,
		InputHeight:    cfg.InputHeight,
		Classes:        cfg.Classes,
		MinScore:       cfg.MinScore,
		TopK:           cfg.TopK,
		IntraOpThreads: cfg.Threads,
		Provider:       onnx.Provider(cfg.Provider),
		Device:         cfg.Device,
	}
}

// Factory builds one model. NewInferencer is the production factory.
type Factory func(cfg ModelConfig) (Inferencer, error)

// Load builds every configured model into a new registry.
//
// A model that fails to load is logged and left unregistered, so lookups for it report
// ErrModelUnavailable at request time instead of preventing startup.
//
// Arguments:
//   - cfgs: The model declarations.
//   - factory: Builds one model. Nil uses NewInferencer.
//   - logger: Receives load results.
//
// Returns:
//   - *Registry: The registry with every model that loaded.
func Load(cfgs []ModelConfig, factory Factory, logger *slog.Logger) *Registry {
	if factory == nil {
		factory = NewInferencer
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := NewRegistry()
	for _, cfg := range cfgs {
		m, err := factory(cfg)
		if err != nil {
			logger.Warn("model unavailable", "model", cfg.Name, "backend", cfg.Backend, "error", err)
			continue
		}
		r.Register(cfg.Name, m)
		logger.Info("model loaded", "model", cfg.Name, "backend", cfg.Backend)
	}
	return r
}
