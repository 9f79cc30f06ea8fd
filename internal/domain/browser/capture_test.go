package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	format, err := DetectFormat(jpeg)
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, format)

	format, err = DetectFormat(png)
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, format)

	_, err = DetectFormat([]byte("<html></html>"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNormalizeFormat(t *testing.T) {
	tests := map[string]string{
		"":     FormatJPEG,
		"jpg":  FormatJPEG,
		"JPEG": FormatJPEG,
		"png":  FormatPNG,
	}
	for in, want := range tests {
		got, err := NormalizeFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := NormalizeFormat("webp")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLaunchOptionsDefaults(t *testing.T) {
	opts := LaunchOptions{Format: "jpg", Quality: 500}.withDefaults()
	assert.Equal(t, 1280, opts.Width)
	assert.Equal(t, 720, opts.Height)
	assert.Equal(t, FormatJPEG, opts.Format)
	assert.Equal(t, 70, opts.Quality)
	assert.Positive(t, opts.ActionTimeout)
}
