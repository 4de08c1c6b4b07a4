// Package qr carries relay tokens across the visual channel: rendering a
// token as a scannable image and recovering one from a photographed image.
package qr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	zxqrcode "github.com/makiuchi-d/gozxing/qrcode"
	qrgen "github.com/skip2/go-qrcode"
)

var (
	// ErrCapacityExceeded means the token does not fit any supported
	// error-correction level; there is no silent-truncation fallback.
	ErrCapacityExceeded = errors.New("transaction too large to fit in a QR code")
	// ErrCodeNotFound is the normal bad-photo outcome, not a fault.
	ErrCodeNotFound = errors.New("no QR code found in the image")
	ErrCodeAmbiguous = errors.New("QR code could not be decoded")
)

// renderSize matches the dashboard rendering; large enough to re-scan from a
// recompressed messenger photo.
const renderSize = 400

// Render encodes a token as a QR PNG. Tokens are comparatively large, so
// medium error correction is preferred and low is the fallback before giving
// up; the library grows the code version automatically within a level.
func Render(token string) ([]byte, error) {
	code, err := qrgen.New(token, qrgen.Medium)
	if err != nil {
		code, err = qrgen.New(token, qrgen.Low)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCapacityExceeded, err)
		}
	}
	return code.PNG(renderSize)
}

// Scan locates and decodes a QR code in a raster image (PNG or JPEG of any
// resolution). An image without a readable code yields ErrCodeNotFound.
func Scan(img []byte) (string, error) {
	m, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCodeNotFound, err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(m)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCodeNotFound, err)
	}

	reader := zxqrcode.NewQRCodeReader()
	result, err := reader.Decode(bmp, map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	})
	if err != nil {
		if _, ok := err.(gozxing.NotFoundException); ok {
			return "", ErrCodeNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrCodeAmbiguous, err)
	}

	return result.GetText(), nil
}
