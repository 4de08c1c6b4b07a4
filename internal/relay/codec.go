// Package relay implements the offline transaction relay core: the token
// codec, the structural validator and the summary extractor. Everything here
// is pure and safe to call concurrently.
package relay

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"

	"pulsepay/internal/models"
)

var (
	ErrMalformedToken       = errors.New("token is not valid base64")
	ErrDecompressionFailure = errors.New("token decompression failed")
	ErrParseFailure         = errors.New("token does not contain valid transaction data")
	ErrSchemaMismatch       = errors.New("token is missing transaction or authenticator")
)

// Encode serializes a payload into the text token carried by the QR channel:
// canonical JSON, deflated, then base64. Integers travel as decimal strings
// and binary fields as explicit byte arrays, so the round trip is exact.
func Encode(payload *models.RelayPayload) (string, error) {
	if payload == nil || payload.Transaction == nil || payload.Authenticator == nil {
		return "", ErrSchemaMismatch
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode is the exact inverse of Encode. It rejects corrupt tokens with a
// stage-specific error but never judges semantics; a well-formed transfer
// with a zero amount decodes fine and is the validator's business.
func Decode(token string) (*models.RelayPayload, error) {
	compressed, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		// accept tokens whose padding was stripped in transit
		compressed, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(token, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailure, err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailure, err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailure, err)
	}

	var payload models.RelayPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	if payload.Transaction == nil || payload.Authenticator == nil {
		return nil, ErrSchemaMismatch
	}

	return &payload, nil
}
