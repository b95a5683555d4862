package onnx

import (
	"github.com/nvr-ai/go-waste/labels"
)

// Config describes one ONNX model and how to feed it.
type Config struct {
	// ModelPath is the .onnx file.
	ModelPath string
	// SharedLibPath overrides the onnxruntime shared library location.
	SharedLibPath string
	// InputName and OutputName are the graph tensor names.
	InputName  string
	OutputName string
	// InputWidth and InputHeight are the model input dimensions.
	InputWidth  int
	InputHeight int
	// Classes lists the output class names in model order.
	Classes []string
	// Mean and Std normalize each RGB channel after scaling to [0, 1].
	Mean [3]float32
	Std  [3]float32
	// MinScore drops raw candidates at or below this score before they leave the backend.
	MinScore float32
	// TopK bounds the candidates a classifier returns.
	TopK int
	// IntraOpThreads sets the runtime's intra-op thread pool size. 0 uses the runtime default.
	IntraOpThreads int
	// Provider selects the execution provider. Empty runs on CPU.
	Provider Provider
	// Device is the provider device: a CUDA device id or an OpenVINO device type.
	Device string
}

// DetectorDefaults returns a configuration for a COCO trained YOLOv8 export.
//
// Returns:
//   - Config: Input "images" at 640x640, output "output0", the 80 COCO classes.
func DetectorDefaults() Config {
	return Config{
		InputName:   "images",
		OutputName:  "output0",
		InputWidth:  640,
		InputHeight: 640,
		Classes:     labels.COCOClasses,
		Std:         [3]float32{1, 1, 1},
		MinScore:    0.1,
	}
}

// ClassifierDefaults returns a configuration for an ImageNet style classifier.
//
// Returns:
//   - Config: Input "input" at 224x224 with ImageNet normalization, output "output".
func ClassifierDefaults() Config {
	return Config{
		InputName:   "input",
		OutputName:  "output",
		InputWidth:  224,
		InputHeight: 224,
		Mean:        [3]float32{0.485, 0.456, 0.406},
		Std:         [3]float32{0.229, 0.224, 0.225},
		TopK:        5,
	}
}

// withDefaults fills zero fields of c from d.
func (c Config) withDefaults(d Config) Config {
	if c.InputName == "" {
		c.InputName = d.InputName
	}
	if c.OutputName == "" {
		c.OutputName = d.OutputName
	}
	if c.InputWidth <= 0 {
		c.InputWidth = d.InputWidth
	}
	if c.InputHeight <= 0 {
		c.InputHeight = d.InputHeight
	}
	if len(c.Classes) == 0 {
		c.Classes = d.Classes
	}
	if c.Std == ([3]float32{}) {
		c.Mean, c.Std = d.Mean, d.Std
	}
	if c.MinScore <= 0 {
		c.MinScore = d.MinScore
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	return c
}
