package chain

import (
	"context"
	"testing"

	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/aptos-labs/aptos-go-sdk/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsepay/internal/models"
)

func relayedTransaction() *models.UnsignedTransaction {
	return &models.UnsignedTransaction{
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
	}
}

func TestRawTransactionUsesRelayedFieldsVerbatim(t *testing.T) {
	rawTxn, err := rawTransaction(relayedTransaction())
	require.NoError(t, err)

	assert.Equal(t, uint64(42), rawTxn.SequenceNumber)
	assert.Equal(t, uint64(200_000), rawTxn.MaxGasAmount)
	assert.Equal(t, uint64(100), rawTxn.GasUnitPrice)
	assert.Equal(t, uint64(1_700_000_000), rawTxn.ExpirationTimestampSeconds)
	assert.Equal(t, uint8(2), rawTxn.ChainId)
}

func TestRawTransactionMissingPayload(t *testing.T) {
	txn := relayedTransaction()
	txn.Payload = nil
	_, err := rawTransaction(txn)
	assert.Error(t, err)
}

func TestEntryFunctionParsesFunctionID(t *testing.T) {
	entry, err := entryFunction(relayedTransaction().Payload)
	require.NoError(t, err)

	assert.Equal(t, "aptos_account", entry.Module.Name)
	assert.Equal(t, "transfer", entry.Function)
	require.Len(t, entry.Args, 2)

	amountBytes, err := bcs.SerializeU64(250_000_000)
	require.NoError(t, err)
	assert.Equal(t, amountBytes, entry.Args[1])
}

func TestEntryFunctionRejectsBadFunctionID(t *testing.T) {
	_, err := entryFunction(&models.TransactionPayload{Function: "transfer"})
	assert.Error(t, err)

	_, err = entryFunction(&models.TransactionPayload{Function: "0x1::a::b::c"})
	assert.Error(t, err)
}

func TestBcsArgumentBytes(t *testing.T) {
	b, err := bcsArgument(models.BytesArgument([]byte{1, 2, 3}))
	require.NoError(t, err)

	ser := &bcs.Serializer{}
	ser.WriteBytes([]byte{1, 2, 3})
	assert.Equal(t, ser.ToBytes(), b)
}

func TestBcsArgumentInvalid(t *testing.T) {
	_, err := bcsArgument(models.Argument{Kind: models.ArgU64})
	assert.Error(t, err)

	_, err = bcsArgument(models.Argument{Kind: "u256"})
	assert.Error(t, err)
}

// An expired deadline during submission must classify as a broadcast
// timeout, never as "network unavailable": the latter tells the user the
// transaction was not broadcast, which cannot be known at that point.
func TestSubmitExpiredContextIsBroadcastTimeout(t *testing.T) {
	client, err := NewAptosClient("localnet")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	payload := &models.RelayPayload{
		Transaction: relayedTransaction(),
		Authenticator: &models.Authenticator{
			Scheme:    models.SchemeEd25519,
			PublicKey: make(models.ByteSeq, 32),
			Signature: make(models.ByteSeq, 64),
		},
	}

	_, err = client.Submit(ctx, payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBroadcastTimeout)
	assert.NotErrorIs(t, err, ErrNetworkUnavailable)
}

func TestAccountAuthenticatorEd25519(t *testing.T) {
	auth, err := accountAuthenticator(&models.Authenticator{
		Scheme:    models.SchemeEd25519,
		PublicKey: make(models.ByteSeq, 32),
		Signature: make(models.ByteSeq, 64),
	})
	require.NoError(t, err)
	assert.Equal(t, crypto.AccountAuthenticatorEd25519, auth.Variant)
}

func TestAccountAuthenticatorUnsupportedScheme(t *testing.T) {
	_, err := accountAuthenticator(&models.Authenticator{
		Scheme: "multi_agent",
	})
	assert.ErrorIs(t, err, ErrSubmissionRejected)
}
