package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsepay/internal/chain"
	"pulsepay/internal/models"
	"pulsepay/internal/qr"
	"pulsepay/internal/relay"
)

type fakeChain struct {
	submitted   *models.RelayPayload
	submitErr   error
	finality    *chain.FinalityResult
	finalityErr error
}

func (f *fakeChain) BuildTransfer(ctx context.Context, sender, recipient string, amountOctas uint64) (*models.UnsignedTransaction, error) {
	return &models.UnsignedTransaction{
		Sender: sender,
		Payload: &models.TransactionPayload{
			Function: models.TransferFunctionID,
			Arguments: []models.Argument{
				models.AddressArgument(recipient),
				models.U64Argument(amountOctas),
			},
		},
	}, nil
}

func (f *fakeChain) Submit(ctx context.Context, payload *models.RelayPayload) (*chain.SubmitResult, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = payload
	return &chain.SubmitResult{Hash: "0xabc123"}, nil
}

func (f *fakeChain) AwaitFinality(ctx context.Context, hash string) (*chain.FinalityResult, error) {
	if f.finalityErr != nil {
		return nil, f.finalityErr
	}
	return f.finality, nil
}

func (f *fakeChain) ResolveOutcome(ctx context.Context, hash string) (*chain.FinalityResult, error) {
	return f.finality, nil
}

func (f *fakeChain) GetBalance(ctx context.Context, address string) (uint64, error) {
	return 0, nil
}

func newTestRelay(chainClient chain.Client) *ServiceRelay {
	return &ServiceRelay{
		chain:         chainClient,
		sessions:      NewMemorySessionStore(),
		approvalTTL:   defaultApprovalTTL,
		submitTimeout: time.Second,
	}
}

func stagedImage(t *testing.T) []byte {
	t.Helper()
	payload := &models.RelayPayload{
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

	token, err := relay.Encode(payload)
	require.NoError(t, err)
	img, err := qr.Render(token)
	require.NoError(t, err)
	return img
}

func TestHandleImageStagesApproval(t *testing.T) {
	service := newTestRelay(&fakeChain{})
	ctx := context.Background()

	session, err := service.HandleImage(ctx, 7, stagedImage(t))
	require.NoError(t, err)

	assert.Equal(t, models.StateAwaitingApproval, session.State)
	assert.NotEmpty(t, session.ApprovalID)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, string(models.SummaryTransfer), session.Summary.Kind)
	assert.Equal(t, "0xdef", session.Summary.Recipient)
	assert.Equal(t, "2.5", session.Summary.Amount)
	assert.Equal(t, "250000000", session.Summary.AmountOctas)

	stored, err := service.Pending(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, session.ApprovalID, stored.ApprovalID)
}

func TestHandleImageUnreadablePhoto(t *testing.T) {
	service := newTestRelay(&fakeChain{})

	session, err := service.HandleImage(context.Background(), 7, []byte("not an image"))
	require.ErrorIs(t, err, qr.ErrCodeNotFound)
	// scan failure keeps the session out of a terminal state for a retry
	require.NotNil(t, session)
	assert.Equal(t, models.StateAwaitingImage, session.State)
}

func TestApproveSuccess(t *testing.T) {
	fake := &fakeChain{
		finality: &chain.FinalityResult{Hash: "0xabc123", Success: true, VMStatus: "Executed successfully"},
	}
	service := newTestRelay(fake)
	ctx := context.Background()

	session, err := service.HandleImage(ctx, 7, stagedImage(t))
	require.NoError(t, err)

	outcome, err := service.Approve(ctx, 7, session.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, outcome.State)
	assert.Equal(t, "0xabc123", outcome.Hash)
	assert.False(t, outcome.Unknown)

	// what went out is what was staged
	require.NotNil(t, fake.submitted)
	assert.Equal(t, "0x1a2b3c", fake.submitted.Transaction.Sender)

	// session is gone, so a repeated tap finds nothing to approve
	_, err = service.Approve(ctx, 7, session.ApprovalID)
	assert.ErrorIs(t, err, ErrNoPendingApproval)
}

func TestApproveExecutionFailure(t *testing.T) {
	fake := &fakeChain{
		finality: &chain.FinalityResult{Hash: "0xabc123", Success: false, VMStatus: "Move abort"},
	}
	service := newTestRelay(fake)
	ctx := context.Background()

	session, err := service.HandleImage(ctx, 7, stagedImage(t))
	require.NoError(t, err)

	outcome, err := service.Approve(ctx, 7, session.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, outcome.State)
	assert.Equal(t, "Move abort", outcome.VMStatus)
}

func TestApproveStaleApprovalID(t *testing.T) {
	service := newTestRelay(&fakeChain{})
	ctx := context.Background()

	_, err := service.HandleImage(ctx, 7, stagedImage(t))
	require.NoError(t, err)

	_, err = service.Approve(ctx, 7, "some-old-approval-id")
	assert.ErrorIs(t, err, ErrStaleApproval)
}

func TestApproveNothingStaged(t *testing.T) {
	service := newTestRelay(&fakeChain{})

	_, err := service.Approve(context.Background(), 7, "anything")
	assert.ErrorIs(t, err, ErrNoPendingApproval)
}

func TestApproveSubmissionRejected(t *testing.T) {
	fake := &fakeChain{submitErr: chain.ErrSubmissionRejected}
	service := newTestRelay(fake)
	ctx := context.Background()

	session, err := service.HandleImage(ctx, 7, stagedImage(t))
	require.NoError(t, err)

	outcome, err := service.Approve(ctx, 7, session.ApprovalID)
	require.ErrorIs(t, err, chain.ErrSubmissionRejected)
	assert.Equal(t, models.StateFailed, outcome.State)

	// rejection consumes the staged session
	stored, err := service.Pending(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

// A deadline hit while the broadcast was in flight is not a failure: the
// node may have accepted the transaction, so the outcome is unknown and the
// user must not be told it was never broadcast.
func TestApproveBroadcastTimeoutIsUnknown(t *testing.T) {
	fake := &fakeChain{submitErr: fmt.Errorf("%w: context deadline exceeded", chain.ErrBroadcastTimeout)}
	service := newTestRelay(fake)
	ctx := context.Background()

	session, err := service.HandleImage(ctx, 7, stagedImage(t))
	require.NoError(t, err)

	outcome, err := service.Approve(ctx, 7, session.ApprovalID)
	require.NoError(t, err)
	assert.True(t, outcome.Unknown)
	assert.Empty(t, outcome.Hash)
	assert.Equal(t, models.StateFailed, outcome.State)

	stored, err := service.Pending(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestClassifyLockErr(t *testing.T) {
	assert.ErrorIs(t, classifyLockErr(&redsync.ErrTaken{}), ErrRelayLocked)
	assert.ErrorIs(t, classifyLockErr(&redsync.ErrNodeTaken{Node: 0}), ErrRelayLocked)

	transport := errors.New("dial tcp 10.0.0.5:6379: i/o timeout")
	got := classifyLockErr(transport)
	assert.NotErrorIs(t, got, ErrRelayLocked)
	assert.ErrorIs(t, got, transport)
}

func TestApproveFinalityTimeoutIsUnknown(t *testing.T) {
	fake := &fakeChain{finalityErr: chain.ErrFinalityTimeout}
	service := newTestRelay(fake)
	ctx := context.Background()

	session, err := service.HandleImage(ctx, 7, stagedImage(t))
	require.NoError(t, err)

	outcome, err := service.Approve(ctx, 7, session.ApprovalID)
	require.NoError(t, err)
	assert.True(t, outcome.Unknown)
	assert.Equal(t, "0xabc123", outcome.Hash)
}

func TestCancelDiscardsStagedSession(t *testing.T) {
	service := newTestRelay(&fakeChain{})
	ctx := context.Background()

	session, err := service.HandleImage(ctx, 7, stagedImage(t))
	require.NoError(t, err)
	require.Equal(t, models.StateAwaitingApproval, session.State)

	cancelled, err := service.Cancel(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, models.StateCancelled, cancelled.State)

	stored, err := service.Pending(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestCancelWithoutSession(t *testing.T) {
	service := newTestRelay(&fakeChain{})

	cancelled, err := service.Cancel(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, cancelled)
}

func TestSecondImageReplacesStagedSession(t *testing.T) {
	service := newTestRelay(&fakeChain{})
	ctx := context.Background()

	first, err := service.HandleImage(ctx, 7, stagedImage(t))
	require.NoError(t, err)
	second, err := service.HandleImage(ctx, 7, stagedImage(t))
	require.NoError(t, err)
	require.NotEqual(t, first.ApprovalID, second.ApprovalID)

	// the old buttons are dead, the new ones work
	_, err = service.Approve(ctx, 7, first.ApprovalID)
	assert.ErrorIs(t, err, ErrStaleApproval)
}
