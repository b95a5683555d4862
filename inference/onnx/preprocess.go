package onnx

import (
	"image"

	"fortio.org/safecast"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// FillTensor resizes img and writes it into dst as normalized CHW RGB floats.
//
// Arguments:
//   - img: The source image.
//   - dst: The tensor backing slice, at least 3*width*height long.
//   - width, height: The model input size.
//   - mean, std: Per-channel normalization applied after scaling to [0, 1].
//
// Returns:
//   - error: If dst is too small.
func FillTensor(img image.Image, dst []float32, width, height int, mean, std [3]float32) error {
	channelSize := width * height
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination tensor only holds %d floats, needs %d", len(dst), channelSize*3)
	}
	for c := range std {
		if std[c] == 0 {
			std[c] = 1
		}
	}

	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		w, err := safecast.Conv[uint](width)
		if err != nil {
			return errors.Wrap(err, "input width")
		}
		h, err := safecast.Conv[uint](height)
		if err != nil {
			return errors.Wrap(err, "input height")
		}
		img = resize.Resize(w, h, img, resize.Bilinear)
		b = img.Bounds()
	}

	i := 0
	for y := b.Min.Y; y < b.Min.Y+height; y++ {
		for x := b.Min.X; x < b.Min.X+width; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			red[i] = (float32(r>>8)/255.0 - mean[0]) / std[0]
			green[i] = (float32(g>>8)/255.0 - mean[1]) / std[1]
			blue[i] = (float32(bl>>8)/255.0 - mean[2]) / std[2]
			i++
		}
	}
	return nil
}
