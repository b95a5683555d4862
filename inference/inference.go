// Package inference - Model backends behind a single Infer capability, addressed by name.
package inference

import (
	"context"
	"time"

	"github.com/nvr-ai/go-waste/detection"
	"github.com/nvr-ai/go-waste/images"
	"github.com/pkg/errors"
)

// ErrModelUnavailable is returned when a named model is not registered or not ready.
var ErrModelUnavailable = errors.New("model unavailable")

// Inferencer produces raw candidates for an image.
type Inferencer interface {
	Infer(ctx context.Context, img *images.Image) ([]detection.Candidate, error)
}

// InferencerFunc adapts a function to the Inferencer interface.
type InferencerFunc func(ctx context.Context, img *images.Image) ([]detection.Candidate, error)

// Infer calls f.
func (f InferencerFunc) Infer(ctx context.Context, img *images.Image) ([]detection.Candidate, error) {
	return f(ctx, img)
}

// Backend names a model implementation.
type Backend string

const (
	// BackendONNXDetector is a YOLOv8 object detector run in-process.
	BackendONNXDetector Backend = "onnx-detector"
	// BackendONNXClassifier is a whole-image classifier run in-process.
	BackendONNXClassifier Backend = "onnx-classifier"
	// BackendRemote posts images to an external model service.
	BackendRemote Backend = "remote"
	// BackendLLM asks a vision chat model for one label.
	BackendLLM Backend = "llm"
)

// Backends lists every supported backend.
var Backends = []Backend{BackendONNXDetector, BackendONNXClassifier, BackendRemote, BackendLLM}

// Valid reports whether b is a supported backend.
func (b Backend) Valid() bool {
	for _, known := range Backends {
		if b == known {
			return true
		}
	}
	return false
}

// ModelConfig declares one named model.
type ModelConfig struct {
	// Name addresses the model from the classifier and cascade configuration.
	Name string `mapstructure:"name" yaml:"name" json:"name"`
	// Backend selects the implementation.
	Backend Backend `mapstructure:"backend" yaml:"backend" json:"backend"`

	// Path is the model file for ONNX backends.
	Path string `mapstructure:"path" yaml:"path" json:"path"`
	// SharedLibPath overrides the onnxruntime library location.
	SharedLibPath string `mapstructure:"shared_lib_path" yaml:"shared_lib_path" json:"shared_lib_path"`
	// InputName and OutputName override the graph tensor names.
	InputName  string `mapstructure:"input_name" yaml:"input_name" json:"input_name"`
	OutputName string `mapstructure:"output_name" yaml:"output_name" json:"output_name"`
	// InputWidth and InputHeight override the model input size.
	InputWidth  int `mapstructure:"input_width" yaml:"input_width" json:"input_width"`
	InputHeight int `mapstructure:"input_height" yaml:"input_height" json:"input_height"`
	// Classes lists output class names in model order. Detectors default to COCO.
	Classes []string `mapstructure:"classes" yaml:"classes" json:"classes"`
	// MinScore drops raw candidates at or below this score inside the backend.
	MinScore float32 `mapstructure:"min_score" yaml:"min_score" json:"min_score"`
	// TopK bounds classifier output.
	TopK int `mapstructure:"top_k" yaml:"top_k" json:"top_k"`
	// Threads sets the intra-op thread pool size for ONNX backends.
	Threads int `mapstructure:"threads" yaml:"threads" json:"threads"`
	// Provider selects the ONNX execution provider: cpu, cuda, coreml or openvino.
	Provider string `mapstructure:"provider" yaml:"provider" json:"provider"`
	// Device is the provider device, e.g. a CUDA device id.
	Device string `mapstructure:"device" yaml:"device" json:"device"`

	// URL is the remote service endpoint or the LLM API base URL.
	URL string `mapstructure:"url" yaml:"url" json:"url"`
	// Headers are sent with every remote request.
	Headers map[string]string `mapstructure:"headers" yaml:"headers" json:"headers"`
	// APIKey authenticates LLM requests.
	APIKey string `mapstructure:"api_key" yaml:"api_key" json:"-"`
	// Model is the LLM model name.
	Model string `mapstructure:"model" yaml:"model" json:"model"`
	// Temperature is the LLM sampling temperature. Unset uses the client default.
	Temperature *float64 `mapstructure:"temperature" yaml:"temperature,omitempty" json:"temperature,omitempty"`
	// Timeout bounds one remote or LLM request.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	// MaxImageSide downscales images before a remote or LLM request.
	MaxImageSide int `mapstructure:"max_image_side" yaml:"max_image_side" json:"max_image_side"`
}
