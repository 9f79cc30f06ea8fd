package browser

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DetectFormat inspects the image bytes and returns FormatJPEG or FormatPNG.
func DetectFormat(data []byte) (string, error) {
	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("image/jpeg"):
		return FormatJPEG, nil
	case mtype.Is("image/png"):
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("%w: detected %s", ErrUnsupportedFormat, mtype.String())
	}
}

// NormalizeFormat maps user supplied format names onto FormatJPEG or FormatPNG.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
