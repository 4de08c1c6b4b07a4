package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsepay/internal/models"
)

func TestVerifyValidTransfer(t *testing.T) {
	assert.NoError(t, Verify(samplePayload()))
}

func TestVerifyChecklistOrder(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *models.RelayPayload) *models.RelayPayload
		step   int
	}{
		{
			name:   "nil payload",
			mutate: func(p *models.RelayPayload) *models.RelayPayload { return nil },
			step:   1,
		},
		{
			name: "missing transaction",
			mutate: func(p *models.RelayPayload) *models.RelayPayload {
				p.Transaction = nil
				return p
			},
			step: 2,
		},
		{
			name: "missing authenticator",
			mutate: func(p *models.RelayPayload) *models.RelayPayload {
				p.Authenticator = nil
				return p
			},
			step: 3,
		},
		{
			name: "missing sender",
			mutate: func(p *models.RelayPayload) *models.RelayPayload {
				p.Transaction.Sender = ""
				return p
			},
			step: 4,
		},
		{
			name: "missing payload",
			mutate: func(p *models.RelayPayload) *models.RelayPayload {
				p.Transaction.Payload = nil
				return p
			},
			step: 5,
		},
		{
			name: "missing function",
			mutate: func(p *models.RelayPayload) *models.RelayPayload {
				p.Transaction.Payload.Function = ""
				return p
			},
			step: 6,
		},
		{
			name: "transfer with one argument",
			mutate: func(p *models.RelayPayload) *models.RelayPayload {
				p.Transaction.Payload.Arguments = p.Transaction.Payload.Arguments[:1]
				return p
			},
			step: 7,
		},
		{
			name: "transfer with undefined amount",
			mutate: func(p *models.RelayPayload) *models.RelayPayload {
				p.Transaction.Payload.Arguments[1] = models.Argument{Kind: models.ArgU64}
				return p
			},
			step: 7,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Verify(tc.mutate(samplePayload()))
			require.Error(t, err)
			var structural *StructuralError
			require.ErrorAs(t, err, &structural)
			assert.Equal(t, tc.step, structural.Step)
		})
	}
}

// A payload failing at step N must keep failing at step N when an earlier
// field is fixed only partially; the first failing step is always reported.
func TestVerifyFirstFailureWins(t *testing.T) {
	p := samplePayload()
	p.Transaction.Sender = ""
	p.Transaction.Payload = nil

	err := Verify(p)
	var structural *StructuralError
	require.ErrorAs(t, err, &structural)
	assert.Equal(t, 4, structural.Step)
}

func TestVerifyZeroAmountPasses(t *testing.T) {
	p := samplePayload()
	p.Transaction.Payload.Arguments[1] = models.U64Argument(0)
	assert.NoError(t, Verify(p))
}

func TestVerifyGenericFunctionAccepted(t *testing.T) {
	p := samplePayload()
	p.Transaction.Payload.Function = "0x7::market::place_order"
	p.Transaction.Payload.Arguments = nil
	assert.NoError(t, Verify(p))
}
