// Package onnx - ONNX Runtime backed object detector and image classifier.
package onnx

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// SharedLibEnv overrides the shared library location.
const SharedLibEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// ErrRuntimeUnavailable is returned when the ONNX Runtime library cannot be loaded.
var ErrRuntimeUnavailable = errors.New("onnx runtime unavailable")

var (
	initOnce sync.Once
	initErr  error
)

// SharedLibPath returns the path to the shared library for the current platform.
//
// Arguments:
//   - configured: An explicit path. Wins over the environment and the platform default.
//
// Returns:
//   - string: The path to the shared library.
func SharedLibPath(configured string) string {
	if configured != "" {
		return configured
	}
	if p := os.Getenv(SharedLibEnv); p != "" {
		return p
	}

	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
}

// initEnvironment loads the shared library once per process. Later calls return the first result.
func initEnvironment(libPath string) error {
	initOnce.Do(func() {
		if _, err := os.Stat(libPath); err != nil {
			initErr = errors.Wrapf(ErrRuntimeUnavailable, "library not found at %s: %v", libPath, err)
			return
		}
		if ort.IsInitialized() {
			return
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			initErr = errors.Wrapf(ErrRuntimeUnavailable, "initialize environment: %v", err)
		}
	})
	return initErr
}

// session owns a native session and its preallocated tensors.
type session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// newSession allocates fixed-shape tensors and binds them to the model.
func newSession(cfg Config, inputShape, outputShape ort.Shape) (*session, error) {
	if err := initEnvironment(SharedLibPath(cfg.SharedLibPath)); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model file %s", cfg.ModelPath)
	}

	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		_ = input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	if err := configureOptions(options, cfg); err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, err
	}

	s, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, errors.Wrapf(err, "create session for %s", cfg.ModelPath)
	}

	return &session{session: s, input: input, output: output}, nil
}

// Close releases the native resources.
func (s *session) Close() error {
	var first error
	if s.session != nil {
		first = s.session.Destroy()
		s.session = nil
	}
	if s.input != nil {
		if err := s.input.Destroy(); err != nil && first == nil {
			first = err
		}
		s.input = nil
	}
	if s.output != nil {
		if err := s.output.Destroy(); err != nil && first == nil {
			first = err
		}
		s.output = nil
	}
	return first
}
