// Package chain talks to the blockchain network. The rest of the system only
// sees the Client interface; network errors are surfaced verbatim in the
// wrapped detail, never reinterpreted.
package chain

import (
	"context"
	"errors"

	"pulsepay/internal/models"
)

var (
	ErrSubmissionRejected = errors.New("transaction rejected by the network")
	// ErrBroadcastTimeout means the deadline expired while the broadcast was
	// in flight: the node may or may not have accepted it, so the outcome is
	// unknown and a blind resend is unsafe.
	ErrBroadcastTimeout = errors.New("timed out broadcasting transaction")
	// ErrFinalityTimeout is the other "unknown outcome" case: the broadcast
	// went out but confirmation did not arrive in time.
	ErrFinalityTimeout    = errors.New("timed out waiting for transaction finality")
	ErrNetworkUnavailable = errors.New("blockchain network unavailable")
)

type SubmitResult struct {
	Hash string
}

type FinalityResult struct {
	Hash     string
	Success  bool
	VMStatus string
}

type Client interface {
	// BuildTransfer assembles an unsigned native transfer ready for wallet
	// signing, with gas and sequence number filled in by the network.
	BuildTransfer(ctx context.Context, sender, recipient string, amountOctas uint64) (*models.UnsignedTransaction, error)
	// Submit reconstructs the signed transaction from a relayed payload and
	// broadcasts it. The payload bytes are submitted exactly as signed.
	Submit(ctx context.Context, payload *models.RelayPayload) (*SubmitResult, error)
	// AwaitFinality blocks until the transaction outcome is confirmed or the
	// context expires (ErrFinalityTimeout).
	AwaitFinality(ctx context.Context, hash string) (*FinalityResult, error)
	// ResolveOutcome is the non-blocking probe used to settle unknown
	// outcomes later; (nil, nil) means still not visible on chain.
	ResolveOutcome(ctx context.Context, hash string) (*FinalityResult, error)
	// GetBalance returns the native coin balance in octas.
	GetBalance(ctx context.Context, address string) (uint64, error)
}
