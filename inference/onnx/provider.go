package onnx

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Provider selects the ONNX Runtime execution provider.
type Provider string

const (
	// ProviderCPU runs on the default CPU provider.
	ProviderCPU Provider = "cpu"
	// ProviderCUDA runs on an NVIDIA GPU.
	ProviderCUDA Provider = "cuda"
	// ProviderCoreML runs on Apple silicon through CoreML.
	ProviderCoreML Provider = "coreml"
	// ProviderOpenVINO runs on Intel CPUs and GPUs through OpenVINO.
	ProviderOpenVINO Provider = "openvino"
)

// Providers lists every supported execution provider.
var Providers = []Provider{ProviderCPU, ProviderCUDA, ProviderCoreML, ProviderOpenVINO}

// Valid reports whether p is a supported provider. Empty means CPU.
func (p Provider) Valid() bool {
	if p == "" {
		return true
	}
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// configureOptions applies threading, graph optimization and the execution provider.
//
// Arguments:
//   - options: Session options to update.
//   - cfg: The model configuration.
//
// Returns:
//   - error: If the provider is unknown or not available in the loaded runtime.
func configureOptions(options *ort.SessionOptions, cfg Config) error {
	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return errors.Wrap(err, "set intra-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return errors.Wrap(err, "set graph optimization level")
	}

	switch cfg.Provider {
	case "", ProviderCPU:
		return nil
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return errors.Wrap(err, "enable CoreML")
		}
	case ProviderOpenVINO:
		device := cfg.Device
		if device == "" {
			device = "CPU"
		}
		if err := options.AppendExecutionProviderOpenVINO(map[string]string{"device_type": device}); err != nil {
			return errors.Wrap(err, "enable OpenVINO")
		}
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "create CUDA options")
		}
		defer cuda.Destroy()

		device := cfg.Device
		if device == "" {
			device = "0"
		}
		if _, err := strconv.Atoi(device); err != nil {
			return errors.Errorf("CUDA device %q is not a device id", device)
		}
		if err := cuda.Update(map[string]string{"device_id": device}); err != nil {
			return errors.Wrap(err, "configure CUDA")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "enable CUDA")
		}
	default:
		return errors.Errorf("unknown execution provider %q", cfg.Provider)
	}
	return nil
}
