// Package payments abstracts the payment terminal the session manager
// settles fees against. The wire protocol of the physical terminal lives in
// an external collaborator; this service only requests transactions and
// reacts to their state changes.
package payments

import (
	"context"
	"errors"
)

type State string

const (
	StatePending    State = "PENDING"
	StateProcessing State = "PROCESSING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
	StateCancelled  State = "CANCELLED"
)

// Terminal reports whether the transaction cannot change state anymore.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var ErrUnknownTransaction = errors.New("unknown payment transaction")

// Processor is the asynchronous payment collaborator. Request returns as
// soon as the transaction is accepted (state PENDING); completion arrives
// later through the notification webhook.
type Processor interface {
	Request(ctx context.Context, sessionID string, amountCents int64, currency string) (transactionID string, err error)
	Status(ctx context.Context, transactionID string) (State, error)
	Cancel(ctx context.Context, transactionID string) error
}

// Notification is one state-change message delivered by the payment
// collaborator (webhook or poll).
type Notification struct {
	TransactionID string `json:"transaction_id"`
	SessionID     string `json:"session_id"`
	State         State  `json:"state"`
	Method        string `json:"method,omitempty"`
}
