package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"fortio.org/safecast"
	"github.com/chai2010/webp"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// EncodeQuality is the lossy quality used for JPEG and WebP re-encoding.
const EncodeQuality = 90

// Encode encodes pixels in the given format. GIF is written as PNG.
//
// Arguments:
//   - img: The pixels.
//   - format: The target format.
//
// Returns:
//   - []byte: The encoded bytes.
//   - ImageFormat: The format actually written.
//   - error: Error if encoding fails.
func Encode(img image.Image, format ImageFormat) ([]byte, ImageFormat, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: EncodeQuality})
	case FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: EncodeQuality})
	default:
		format = FormatPNG
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, "", errors.Wrapf(err, "encode %s", format)
	}
	return buf.Bytes(), format, nil
}

// Bytes returns the encoded form of an image: the original bytes when present, PNG otherwise.
func Bytes(img *Image) ([]byte, ImageFormat, error) {
	if img == nil {
		return nil, "", errors.Wrap(ErrInvalidImage, "no image")
	}
	if len(img.Data) > 0 && img.Format != "" {
		return img.Data, img.Format, nil
	}
	if img.Decoded() == nil {
		return nil, "", errors.Wrap(ErrInvalidImage, "image has no data")
	}
	return Encode(img.Decoded(), FormatPNG)
}

// Downscale shrinks an image so that neither side exceeds maxSide, keeping the aspect ratio.
//
// Images already within bounds are returned unchanged. A downscaled image is re-encoded in its
// original format, so Data and Decoded stay consistent.
//
// Arguments:
//   - img: The image.
//   - maxSide: The largest allowed width or height. Zero or less disables the limit.
//
// Returns:
//   - *Image: The image within bounds.
//   - error: ErrInvalidImage if img carries no pixels, or an encoding error.
func Downscale(img *Image, maxSide int) (*Image, error) {
	if img == nil || img.Decoded() == nil {
		return nil, errors.Wrap(ErrInvalidImage, "no image")
	}
	if maxSide <= 0 || (img.Width <= maxSide && img.Height <= maxSide) {
		return img, nil
	}

	side, err := safecast.Conv[uint](maxSide)
	if err != nil {
		return nil, errors.Wrap(err, "max side")
	}
	small := resize.Thumbnail(side, side, img.Decoded(), resize.Bilinear)
	data, format, err := Encode(small, img.Format)
	if err != nil {
		return nil, err
	}

	b := small.Bounds()
	return &Image{
		Format:  format,
		Data:    data,
		Width:   b.Dx(),
		Height:  b.Dy(),
		decoded: small,
	}, nil
}
