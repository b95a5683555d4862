// Package images - Decoding of uploaded waste images.
package images

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// MaxPixels bounds the decoded size of an image to keep a hostile upload from exhausting memory.
const MaxPixels = 64 << 20

// ErrInvalidImage is returned when a payload cannot be decoded into an image.
var ErrInvalidImage = errors.New("invalid image")

// Image represents a decoded input image with metadata.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`

	decoded image.Image
}

// Decoded returns the pixel data.
func (i *Image) Decoded() image.Image {
	return i.decoded
}

// FromImage wraps already decoded pixels. Data stays empty.
func FromImage(img image.Image) *Image {
	b := img.Bounds()
	return &Image{Width: b.Dx(), Height: b.Dy(), decoded: img}
}

// Decode decodes raw image bytes.
//
// Arguments:
//   - data: JPEG, PNG, GIF or WebP encoded bytes.
//
// Returns:
//   - *Image: The decoded image. Data holds the original bytes.
//   - error: ErrInvalidImage wrapped with the cause.
func Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrInvalidImage, "image data is empty")
	}

	format, ok := Sniff(data)
	if !ok {
		return nil, errors.Wrap(ErrInvalidImage, "unsupported or unrecognized image format")
	}

	var (
		cfg image.Config
		img image.Image
		err error
	)
	if format == FormatWebP {
		cfg, err = webp.DecodeConfig(bytes.NewReader(data))
	} else {
		cfg, _, err = image.DecodeConfig(bytes.NewReader(data))
	}
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidImage, "read %s header: %v", format, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Wrapf(ErrInvalidImage, "invalid image dimensions: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, errors.Wrapf(ErrInvalidImage, "image too large: %dx%d", cfg.Width, cfg.Height)
	}

	if format == FormatWebP {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidImage, "decode %s: %v", format, err)
	}

	return &Image{
		Format:  format,
		Data:    data,
		Width:   cfg.Width,
		Height:  cfg.Height,
		decoded: img,
	}, nil
}

// DecodeBase64 decodes a base64 payload, optionally carrying a data URL prefix
// such as "data:image/png;base64,".
//
// Arguments:
//   - payload: The base64 text.
//
// Returns:
//   - *Image: The decoded image.
//   - error: ErrInvalidImage wrapped with the cause.
func DecodeBase64(payload string) (*Image, error) {
	payload = strings.TrimSpace(payload)
	if i := strings.Index(payload, "base64,"); i >= 0 {
		payload = payload[i+len("base64,"):]
	}
	if payload == "" {
		return nil, errors.Wrap(ErrInvalidImage, "image data is empty")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Browsers and some clients send unpadded or URL-safe alphabets.
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			data, rawErr = base64.RawURLEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if rawErr != nil {
			return nil, errors.Wrapf(ErrInvalidImage, "decode base64: %v", err)
		}
	}

	return Decode(data)
}
