package onnx

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-waste/labels"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestAnchorCount(t *testing.T) {
	assert.Equal(t, 8400, AnchorCount(640, 640))
	assert.Equal(t, 2100, AnchorCount(320, 320))
}

func TestFillTensor(t *testing.T) {
	img := solidImage(8, 4, color.RGBA{R: 255, G: 0, B: 51, A: 255})
	dst := make([]float32, 3*4*4)

	err := FillTensor(img, dst, 4, 4, [3]float32{}, [3]float32{1, 1, 1})
	require.NoError(t, err)

	for i := 0; i < 16; i++ {
		assert.InDelta(t, 1.0, dst[i], 0.01)
		assert.InDelta(t, 0.0, dst[16+i], 0.01)
		assert.InDelta(t, 0.2, dst[32+i], 0.01)
	}
}

func TestFillTensorNormalizes(t *testing.T) {
	img := solidImage(2, 2, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	dst := make([]float32, 12)

	require.NoError(t, FillTensor(img, dst, 2, 2, [3]float32{0.5, 0.5, 0.5}, [3]float32{0.5, 0.5, 0.5}))
	for _, v := range dst {
		assert.InDelta(t, 1.0, v, 0.001)
	}
}

func TestFillTensorTooSmall(t *testing.T) {
	err := FillTensor(solidImage(2, 2, color.White), make([]float32, 5), 2, 2, [3]float32{}, [3]float32{1, 1, 1})
	assert.Error(t, err)
}

func TestDecodeYOLOv8(t *testing.T) {
	classes := []string{"bottle", "banana"}
	const anchors = 3
	output := make([]float32, (4+len(classes))*anchors)
	set := func(row, idx int, v float32) { output[row*anchors+idx] = v }

	// Anchor 0: bottle 0.9, box centred at (320, 320) size 64x32.
	set(0, 0, 320)
	set(1, 0, 320)
	set(2, 0, 64)
	set(3, 0, 32)
	set(4, 0, 0.9)
	set(5, 0, 0.2)
	// Anchor 1: banana 0.05, below min score.
	set(5, 1, 0.05)
	// Anchor 2: banana 0.6 at the top left corner, partly outside the image.
	set(0, 2, 0)
	set(1, 2, 0)
	set(2, 2, 20)
	set(3, 2, 20)
	set(5, 2, 0.6)

	out := DecodeYOLOv8(output, classes, anchors, 640, 640, 1280, 320, 0.1)
	require.Len(t, out, 2)

	assert.Equal(t, "bottle", out[0].Label)
	assert.InDelta(t, 0.9, out[0].Confidence, 1e-6)
	require.NotNil(t, out[0].Box)
	assert.InDelta(t, 576, out[0].Box.X1, 1e-3)
	assert.InDelta(t, 704, out[0].Box.X2, 1e-3)
	assert.InDelta(t, 152, out[0].Box.Y1, 1e-3)
	assert.InDelta(t, 168, out[0].Box.Y2, 1e-3)

	assert.Equal(t, "banana", out[1].Label)
	assert.Equal(t, float32(0), out[1].Box.X1)
	assert.Equal(t, float32(0), out[1].Box.Y1)
}

func TestDecodeYOLOv8ShortOutput(t *testing.T) {
	assert.Empty(t, DecodeYOLOv8(make([]float32, 3), []string{"a"}, 8400, 640, 640, 640, 640, 0.1))
}

func TestSoftmax(t *testing.T) {
	probs := Softmax([]float32{1, 2, 3, 1000})

	var sum float32
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.InDelta(t, 1.0, probs[3], 1e-5)
	assert.Greater(t, probs[2], probs[1])
	assert.Empty(t, Softmax(nil))
}

func TestTopK(t *testing.T) {
	classes := []string{"battery", "keyboard", "laptop", "cable"}
	out := TopK([]float32{0.1, 0.5, 0.3, 0.1}, classes, 2, 0)

	require.Len(t, out, 2)
	assert.Equal(t, "keyboard", out[0].Label)
	assert.Equal(t, "laptop", out[1].Label)
	assert.Nil(t, out[0].Box)

	out = TopK([]float32{0.1, 0.5, 0.3, 0.1}, classes, 0, 0.2)
	assert.Len(t, out, 2)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{ModelPath: "m.onnx"}.withDefaults(DetectorDefaults())
	assert.Equal(t, "images", cfg.InputName)
	assert.Equal(t, 640, cfg.InputWidth)
	assert.Equal(t, labels.COCOClasses, cfg.Classes)
	assert.Equal(t, [3]float32{1, 1, 1}, cfg.Std)

	cfg = Config{Classes: []string{"a"}, InputWidth: 128}.withDefaults(ClassifierDefaults())
	assert.Equal(t, 128, cfg.InputWidth)
	assert.Equal(t, 224, cfg.InputHeight)
	assert.Equal(t, []string{"a"}, cfg.Classes)
	assert.Equal(t, 5, cfg.TopK)
}

func TestSharedLibPath(t *testing.T) {
	assert.Equal(t, "/opt/ort.so", SharedLibPath("/opt/ort.so"))

	t.Setenv(SharedLibEnv, "/env/ort.so")
	assert.Equal(t, "/env/ort.so", SharedLibPath(""))
}

func TestNewDetectorWithoutRuntime(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "libonnxruntime.so")
	_, err := os.Stat(missing)
	require.True(t, os.IsNotExist(err))

	_, err = NewDetector(Config{ModelPath: "yolov8n.onnx", SharedLibPath: missing})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRuntimeUnavailable), "got %v", err)
}

func TestProviderValid(t *testing.T) {
	for _, p := range Providers {
		assert.True(t, p.Valid(), p)
	}
	assert.True(t, Provider("").Valid())
	assert.False(t, Provider("tpu").Valid())
}
