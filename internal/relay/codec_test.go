package relay

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsepay/internal/models"
)

func samplePayload() *models.RelayPayload {
	return &models.RelayPayload{
		Transaction: &models.UnsignedTransaction{
			Sender:         "0x1a2b3c",
			SequenceNumber: 42,
			Payload: &models.TransactionPayload{
				Function: models.TransferFunctionID,
				Arguments: []models.Argument{
					models.AddressArgument("0xdef"),
					models.U64Argument(250_000_000),
				},
			},
			MaxGasAmount:        200_000,
			GasUnitPrice:        100,
			ExpirationTimestamp: 1_700_000_000,
			ChainID:             2,
		},
		Authenticator: &models.Authenticator{
			Scheme:    models.SchemeEd25519,
			PublicKey: make(models.ByteSeq, 32),
			Signature: make(models.ByteSeq, 64),
		},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	payload := samplePayload()

	token, err := Encode(payload)
	require.NoError(t, err)

	decoded, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestCodecRoundTripMaxU64(t *testing.T) {
	payload := samplePayload()
	payload.Transaction.SequenceNumber = math.MaxUint64
	payload.Transaction.Payload.Arguments[1] = models.U64Argument(math.MaxUint64)

	token, err := Encode(payload)
	require.NoError(t, err)

	decoded, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, models.Uint64Str(math.MaxUint64), decoded.Transaction.SequenceNumber)
	assert.Equal(t, "18446744073709551615", decoded.Transaction.Payload.Arguments[1].Uint.String())
}

func TestCodecRoundTripU128(t *testing.T) {
	payload := samplePayload()
	v, ok := new(big.Int).SetString("340282366920938463463374607431768211455", 10)
	require.True(t, ok)
	payload.Transaction.Payload.Arguments = append(payload.Transaction.Payload.Arguments, models.U128Argument(v))

	token, err := Encode(payload)
	require.NoError(t, err)

	decoded, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, v.String(), decoded.Transaction.Payload.Arguments[2].Uint.String())
}

func TestCodecRoundTripBytesArgument(t *testing.T) {
	payload := samplePayload()
	payload.Transaction.Payload.Function = "0x7::market::place_order"
	payload.Transaction.Payload.Arguments = []models.Argument{
		models.BytesArgument([]byte{0, 1, 2, 254, 255}),
	}

	token, err := Encode(payload)
	require.NoError(t, err)

	decoded, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, models.ByteSeq{0, 1, 2, 254, 255}, decoded.Transaction.Payload.Arguments[0].Bytes)
}

func TestCodecRoundTripOpaqueAuthenticator(t *testing.T) {
	payload := samplePayload()
	payload.Authenticator = &models.Authenticator{
		Scheme: "multi_agent",
		Raw:    json.RawMessage(`{"signers":["0x1","0x2"],"proof":[1,2,3]}`),
	}

	token, err := Encode(payload)
	require.NoError(t, err)

	decoded, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "multi_agent", decoded.Authenticator.Scheme)
	assert.JSONEq(t, string(payload.Authenticator.Raw), string(decoded.Authenticator.Raw))
}

// Decoding the same token repeatedly yields the same payload; decoding has
// no hidden state.
func TestDecodeIdempotent(t *testing.T) {
	token, err := Encode(samplePayload())
	require.NoError(t, err)

	first, err := Decode(token)
	require.NoError(t, err)
	second, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// and re-encoding a decoded payload round-trips again
	token2, err := Encode(first)
	require.NoError(t, err)
	third, err := Decode(token2)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestEncodeDeterministic(t *testing.T) {
	payload := samplePayload()

	first, err := Encode(payload)
	require.NoError(t, err)
	second, err := Encode(payload)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEncodeNilHalves(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	payload := samplePayload()
	payload.Authenticator = nil
	_, err = Encode(payload)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	payload = samplePayload()
	payload.Transaction = nil
	_, err = Encode(payload)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestDecodeMalformedToken(t *testing.T) {
	_, err := Decode("not&&&base64!!!")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestDecodeNotCompressed(t *testing.T) {
	// valid base64 of bytes that are not a zlib stream
	_, err := Decode("aGVsbG8gd29ybGQ=")
	assert.ErrorIs(t, err, ErrDecompressionFailure)
}

func TestDecodeNotJSON(t *testing.T) {
	token := compressToToken(t, []byte("this was never json"))
	_, err := Decode(token)
	assert.ErrorIs(t, err, ErrParseFailure)
}

func TestDecodeSchemaMismatch(t *testing.T) {
	// hand-build a token whose json lacks the authenticator half
	payload := samplePayload()
	payload.Authenticator = nil
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	token := compressToToken(t, raw)

	_, err = Decode(token)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

// Truncation must surface an error from the failure set, never a silently
// different payload.
func TestDecodeTruncatedNeverSilent(t *testing.T) {
	token, err := Encode(samplePayload())
	require.NoError(t, err)

	for cut := 1; cut < len(token); cut += 3 {
		truncated := token[:len(token)-cut]
		decoded, err := Decode(truncated)
		if err == nil {
			t.Fatalf("truncated token (cut %d) decoded without error: %+v", cut, decoded)
		}
		ok := errors.Is(err, ErrMalformedToken) ||
			errors.Is(err, ErrDecompressionFailure) ||
			errors.Is(err, ErrParseFailure) ||
			errors.Is(err, ErrSchemaMismatch)
		assert.True(t, ok, "unexpected error for cut %d: %v", cut, err)
	}
}

func TestDecodeAcceptsStrippedPadding(t *testing.T) {
	token, err := Encode(samplePayload())
	require.NoError(t, err)

	stripped := token
	for len(stripped) > 0 && stripped[len(stripped)-1] == '=' {
		stripped = stripped[:len(stripped)-1]
	}

	decoded, err := Decode(stripped)
	require.NoError(t, err)
	assert.Equal(t, samplePayload(), decoded)
}

func compressToToken(t *testing.T, raw []byte) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
