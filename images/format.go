package images

import (
	"bytes"
	"net/http"
)

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatGIF is the GIF image format.
	FormatGIF ImageFormat = "gif"
)

var riffWebP = []byte("WEBP")

// Sniff guesses the format of encoded image bytes from their signature.
//
// Arguments:
//   - data: The encoded image.
//
// Returns:
//   - ImageFormat: The detected format.
//   - bool: False when the bytes are not one of the supported formats.
func Sniff(data []byte) (ImageFormat, bool) {
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], riffWebP) {
		return FormatWebP, true
	}

	switch http.DetectContentType(data) {
	case "image/jpeg":
		return FormatJPEG, true
	case "image/png":
		return FormatPNG, true
	case "image/gif":
		return FormatGIF, true
	case "image/webp":
		return FormatWebP, true
	}
	return "", false
}
