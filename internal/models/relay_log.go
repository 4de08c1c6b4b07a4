package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	RelayStatusSubmitted = "submitted"
	RelayStatusSuccess   = "success"
	RelayStatusFailure   = "failure"
	// RelayStatusUnknown marks a broadcast whose outcome could not be
	// confirmed (timeout); it may still have landed on chain.
	RelayStatusUnknown = "unknown"
)

// RelayLog records one submission attempt. Tokens are never stored here.
type RelayLog struct {
	bun.BaseModel `bun:"table:relay_log"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID        int64     `bun:"user_id" json:"user_id"`
	TxHash        string    `bun:"tx_hash" json:"tx_hash"`
	Sender        string    `bun:"sender" json:"sender"`
	Recipient     string    `bun:"recipient" json:"recipient"`
	AmountOctas   string    `bun:"amount_octas" json:"amount_octas"`
	FunctionID    string    `bun:"function_id" json:"function_id"`
	Status        string    `bun:"status" json:"status"`
	Detail        string    `bun:"detail" json:"detail"`
	CreatedAt     time.Time `bun:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at" json:"updated_at"`
}
