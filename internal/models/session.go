package models

import (
	"fmt"
	"time"
)

// RelayState enumerates the lifecycle of one relay attempt in a chat.
type RelayState string

const (
	StateIdle             RelayState = "idle"
	StateAwaitingImage    RelayState = "awaiting_image"
	StateDecoding         RelayState = "decoding"
	StateAwaitingApproval RelayState = "awaiting_approval"
	StateSubmitting       RelayState = "submitting"
	StateSucceeded        RelayState = "succeeded"
	StateFailed           RelayState = "failed"
	StateCancelled        RelayState = "cancelled"
)

func (s RelayState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

type RelayEvent string

const (
	EventImageReceived   RelayEvent = "image_received"
	EventScanFailed      RelayEvent = "scan_failed"
	EventScanned         RelayEvent = "scanned"
	EventDecodeFailed    RelayEvent = "decode_failed"
	EventDecoded         RelayEvent = "decoded"
	EventApproved        RelayEvent = "approved"
	EventCancelled       RelayEvent = "cancelled"
	EventSubmitSucceeded RelayEvent = "submit_succeeded"
	EventSubmitFailed    RelayEvent = "submit_failed"
)

type TransitionError struct {
	State RelayState
	Event RelayEvent
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %s not allowed in state %s", e.Event, e.State)
}

// NextState is the exhaustive transition function of the relay state machine.
// Scan failure is the only self-loop: the user may resend a clearer photo.
func NextState(state RelayState, event RelayEvent) (RelayState, error) {
	switch state {
	case StateIdle:
		if event == EventImageReceived {
			return StateAwaitingImage, nil
		}
	case StateAwaitingImage:
		switch event {
		case EventScanFailed:
			return StateAwaitingImage, nil
		case EventScanned:
			return StateDecoding, nil
		}
	case StateDecoding:
		switch event {
		case EventDecodeFailed:
			return StateFailed, nil
		case EventDecoded:
			return StateAwaitingApproval, nil
		}
	case StateAwaitingApproval:
		switch event {
		case EventApproved:
			return StateSubmitting, nil
		case EventCancelled:
			return StateCancelled, nil
		}
	case StateSubmitting:
		switch event {
		case EventSubmitSucceeded:
			return StateSucceeded, nil
		case EventSubmitFailed:
			return StateFailed, nil
		}
	}
	return state, &TransitionError{State: state, Event: event}
}

// SessionSummary is the flat, store-friendly copy of a TransactionSummary
// kept alongside the staged token for display on approval.
type SessionSummary struct {
	Kind        string `json:"kind" msgpack:"kind"`
	Sender      string `json:"sender" msgpack:"sender"`
	Recipient   string `json:"recipient" msgpack:"recipient"`
	Amount      string `json:"amount" msgpack:"amount"`
	AmountOctas string `json:"amount_octas" msgpack:"amount_octas"`
	FunctionID  string `json:"function_id" msgpack:"function_id"`
}

// RelaySession is the transient association between a chat user and a
// decoded-but-unapproved payload. It is destroyed on approval, rejection or
// expiry of the store TTL; the token is never persisted anywhere else.
type RelaySession struct {
	UserID     int64          `json:"user_id" msgpack:"user_id"`
	State      RelayState     `json:"state" msgpack:"state"`
	ApprovalID string         `json:"approval_id" msgpack:"approval_id"`
	Token      string         `json:"token" msgpack:"token"`
	Summary    SessionSummary `json:"summary" msgpack:"summary"`
	CreatedAt  time.Time      `json:"created_at" msgpack:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" msgpack:"updated_at"`
}

func NewRelaySession(userID int64) *RelaySession {
	now := time.Now()
	return &RelaySession{
		UserID:    userID,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply advances the session through the transition function.
func (session *RelaySession) Apply(event RelayEvent) error {
	next, err := NextState(session.State, event)
	if err != nil {
		return err
	}
	session.State = next
	session.UpdatedAt = time.Now()
	return nil
}
