package relay

import (
	"errors"
	"fmt"

	"pulsepay/internal/models"
)

// ErrExtractionFailed is returned by callers when Summarize yields nil for a
// payload that was expected to summarize.
var ErrExtractionFailed = errors.New("could not extract transaction details")

// StructuralError reports which step of the checklist rejected the payload.
type StructuralError struct {
	Step   int
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("invalid transaction data: %s", e.Reason)
}

// Verify runs the ordered structural checklist over a decoded payload and
// returns nil when it is safe to show to the user. It short-circuits on the
// first failure so the reported reason is precise. It never consults the
// network: balance and on-chain recipient checks belong to submission.
func Verify(payload *models.RelayPayload) error {
	if payload == nil {
		return &StructuralError{Step: 1, Reason: "no transaction data"}
	}
	if payload.Transaction == nil {
		return &StructuralError{Step: 2, Reason: "missing transaction"}
	}
	if payload.Authenticator == nil {
		return &StructuralError{Step: 3, Reason: "missing authenticator"}
	}
	txn := payload.Transaction
	if txn.Sender == "" {
		return &StructuralError{Step: 4, Reason: "missing sender address"}
	}
	if txn.Payload == nil {
		return &StructuralError{Step: 5, Reason: "missing transaction payload"}
	}
	if txn.Payload.Function == "" {
		return &StructuralError{Step: 6, Reason: "missing function in payload"}
	}
	if txn.Payload.Function == models.TransferFunctionID {
		args := txn.Payload.Arguments
		if len(args) < 2 {
			return &StructuralError{Step: 7, Reason: "incomplete arguments for transfer"}
		}
		// presence only: zero amounts are legitimate and must pass
		if !args[1].Defined() {
			return &StructuralError{Step: 7, Reason: "missing amount in transfer arguments"}
		}
	}
	// any other function is accepted as-is: the relay supports generic
	// transactions, not just transfers
	return nil
}
