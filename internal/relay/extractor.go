package relay

import (
	"math/big"
	"strings"

	"pulsepay/internal/models"
)

var octasScale = big.NewInt(models.OctasPerAPT)

// Summarize derives the human-facing view of a decoded payload. It returns
// nil when the transaction payload shape is missing; it does not assume the
// validator ran. The display amount is a rendering of the on-chain integer
// and never feeds back into submission.
func Summarize(payload *models.RelayPayload) *models.TransactionSummary {
	if payload == nil || payload.Transaction == nil || payload.Transaction.Payload == nil {
		return nil
	}

	txn := payload.Transaction
	p := txn.Payload

	if p.Function == models.TransferFunctionID && len(p.Arguments) >= 2 {
		recipient := p.Arguments[0]
		amount := p.Arguments[1]
		if recipient.Kind == models.ArgAddress && amount.Uint != nil {
			return &models.TransactionSummary{
				Kind:         models.SummaryTransfer,
				Sender:       txn.Sender,
				Recipient:    recipient.Address,
				Amount:       FormatAmount(amount.Uint),
				AmountOctas:  amount.Uint,
				FunctionID:   p.Function,
				GasUnitPrice: txn.GasUnitPrice.String(),
				MaxGasAmount: txn.MaxGasAmount.String(),
			}
		}
	}

	return &models.TransactionSummary{
		Kind:         models.SummaryGeneric,
		Sender:       txn.Sender,
		FunctionID:   p.Function,
		GasUnitPrice: txn.GasUnitPrice.String(),
		MaxGasAmount: txn.MaxGasAmount.String(),
		Args:         p.Arguments,
	}
}

// FormatAmount renders an octas amount as a whole-APT decimal string using
// integer math only, e.g. 100000000 -> "1", 250000000 -> "2.5".
func FormatAmount(octas *big.Int) string {
	whole, frac := new(big.Int).QuoRem(octas, octasScale, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	digits := frac.String()
	for len(digits) < 8 {
		digits = "0" + digits
	}
	digits = strings.TrimRight(digits, "0")
	return whole.String() + "." + digits
}
