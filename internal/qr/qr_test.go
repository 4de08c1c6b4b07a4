package qr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderScanRoundTrip(t *testing.T) {
	token := "eJzLSM3JyVcozy/KSVEEABxJBD4=" // arbitrary token-shaped text

	img, err := Render(token)
	require.NoError(t, err)
	require.NotEmpty(t, img)

	scanned, err := Scan(img)
	require.NoError(t, err)
	assert.Equal(t, token, scanned)
}

func TestRenderScanRoundTripLongToken(t *testing.T) {
	// around the size of a real relay token for a generic transaction
	token := strings.Repeat("AbCdEfGh0123+/=", 80)

	img, err := Render(token)
	require.NoError(t, err)

	scanned, err := Scan(img)
	require.NoError(t, err)
	assert.Equal(t, token, scanned)
}

func TestRenderCapacityExceeded(t *testing.T) {
	// QR version 40 tops out under 3000 bytes even at low error correction
	token := strings.Repeat("x", 5000)

	_, err := Render(token)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestScanBlankImage(t *testing.T) {
	blank := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			blank.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, blank))

	_, err := Scan(buf.Bytes())
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestScanNotAnImage(t *testing.T) {
	_, err := Scan([]byte("definitely not pixels"))
	assert.ErrorIs(t, err, ErrCodeNotFound)
}
