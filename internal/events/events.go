// Package events defines the outbound domain events emitted by the decision
// pipeline and the publisher used to hand them to web, reporting and
// notification collaborators.
package events

import "time"

// Subjects name the exchanges events are published on.
const (
	SubjectAccessGranted    = "access.granted"
	SubjectAccessDenied     = "access.denied"
	SubjectSessionOpened    = "session.opened"
	SubjectSessionPayment   = "session.payment_due"
	SubjectSessionClosed    = "session.closed"
	SubjectSessionCancelled = "session.cancelled"
	SubjectBarrierFault     = "barrier.fault"
)

type AccessGranted struct {
	Plate    string    `json:"plate"`
	CameraID string    `json:"camera_id"`
	At       time.Time `json:"at"`
}

type AccessDenied struct {
	Plate    string    `json:"plate"`
	Reason   string    `json:"reason"`
	CameraID string    `json:"camera_id"`
	At       time.Time `json:"at"`
}

type SessionOpened struct {
	SessionID string    `json:"session_id"`
	Plate     string    `json:"plate"`
	EntryTime time.Time `json:"entry_time"`
}

type SessionPaymentDue struct {
	SessionID string `json:"session_id"`
	Plate     string `json:"plate"`
	FeeCents  int64  `json:"fee_cents"`
	Currency  string `json:"currency"`
}

type SessionClosed struct {
	SessionID     string    `json:"session_id"`
	Plate         string    `json:"plate"`
	ExitTime      time.Time `json:"exit_time"`
	FeeCents      int64     `json:"fee_cents"`
	PaymentMethod string    `json:"payment_method,omitempty"`
}

// SessionCancelled is the operator-facing alert for failed or timed-out
// payments; a manual settlement override remains possible afterwards.
type SessionCancelled struct {
	SessionID string `json:"session_id"`
	Plate     string `json:"plate"`
	Reason    string `json:"reason"`
}

type BarrierFault struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}
