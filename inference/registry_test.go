package inference

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/nvr-ai/go-waste/detection"
	"github.com/nvr-ai/go-waste/images"
	"github.com/nvr-ai/go-waste/inference/llm"
	"github.com/nvr-ai/go-waste/inference/remote"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closingModel struct {
	closed bool
	err    error
}

func (m *closingModel) Infer(context.Context, *images.Image) ([]detection.Candidate, error) {
	return nil, nil
}

func (m *closingModel) Close() error {
	m.closed = true
	return m.err
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("general")
	assert.True(t, errors.Is(err, ErrModelUnavailable))

	fixed := InferencerFunc(func(context.Context, *images.Image) ([]detection.Candidate, error) {
		return []detection.Candidate{{Label: "bottle", Confidence: 0.9}}, nil
	})
	r.Register("general", fixed)
	r.Register("ewaste", fixed)

	m, err := r.Get("general")
	require.NoError(t, err)
	out, err := m.Infer(context.Background(), &images.Image{})
	require.NoError(t, err)
	assert.Equal(t, "bottle", out[0].Label)

	assert.Equal(t, []string{"ewaste", "general"}, r.Names())
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry()
	ok := &closingModel{}
	failing := &closingModel{err: errors.New("boom")}
	r.Register("a", ok)
	r.Register("b", failing)
	r.Register("c", InferencerFunc(func(context.Context, *images.Image) ([]detection.Candidate, error) { return nil, nil }))

	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
	assert.Empty(t, r.Names())
}

func TestNewInferencer(t *testing.T) {
	m, err := NewInferencer(ModelConfig{Name: "svc", Backend: BackendRemote, URL: "http://localhost:9000/predict"})
	require.NoError(t, err)
	assert.IsType(t, &remote.Client{}, m)

	m, err = NewInferencer(ModelConfig{Name: "gpt", Backend: BackendLLM, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &llm.Client{}, m)

	m, err = NewInferencer(ModelConfig{Name: "gpt", Backend: BackendLLM})
	assert.Error(t, err)
	assert.Nil(t, m)

	_, err = NewInferencer(ModelConfig{Name: "x", Backend: "tensorflow"})
	assert.Error(t, err)
}

func TestLoadSkipsFailingModels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	factory := func(cfg ModelConfig) (Inferencer, error) {
		if cfg.Name == "broken" {
			return nil, errors.New("file not found")
		}
		return &closingModel{}, nil
	}

	r := Load([]ModelConfig{
		{Name: "general", Backend: BackendONNXClassifier},
		{Name: "broken", Backend: BackendONNXDetector},
	}, factory, logger)

	assert.Equal(t, []string{"general"}, r.Names())
	_, err := r.Get("broken")
	assert.True(t, errors.Is(err, ErrModelUnavailable))
	assert.Contains(t, buf.String(), "model unavailable")
	assert.Contains(t, buf.String(), "model=broken")
}

func TestBackendValid(t *testing.T) {
	for _, b := range Backends {
		assert.True(t, b.Valid())
	}
	assert.False(t, Backend("tflite").Valid())
}
