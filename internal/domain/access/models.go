package access

import (
	"time"
)

type VehicleInfo struct {
	Color string `json:"color,omitempty"`
	Type  string `json:"type,omitempty"`
}

// DetectionPayload is one OCR-produced plate reading as pushed by a camera
// collaborator. It is ephemeral input to the decision pipeline; the raw
// payload is journaled to the detection log as-is.
type DetectionPayload struct {
	CameraID    string                 `json:"camera_id"`
	Plate       string                 `json:"plate"`
	Confidence  float64                `json:"confidence"`
	EventTime   time.Time              `json:"event_time"`
	Vehicle     VehicleInfo            `json:"vehicle"`
	SnapshotURL string                 `json:"snapshot_url,omitempty"`
	RawPayload  map[string]interface{} `json:"raw_payload,omitempty"`
}

// Detection is a payload with its normalized plate attached after ingest
// validation.
type Detection struct {
	ID int64
	DetectionPayload
	NormalizedPlate string
}

// Authorization is a read-only record mapping a normalized plate to its
// standing. Plate is the unique key.
type Authorization struct {
	ID          int64
	Plate       string
	Owner       string
	VehicleType string
	Authorized  bool
	ValidFrom   *time.Time
	ValidUntil  *time.Time
}

// ValidAt reports whether the record is authorized and inside its validity
// window at the given instant. Open-ended windows are allowed on either side.
func (a *Authorization) ValidAt(t time.Time) bool {
	if a == nil || !a.Authorized {
		return false
	}
	if a.ValidFrom != nil && t.Before(*a.ValidFrom) {
		return false
	}
	if a.ValidUntil != nil && t.After(*a.ValidUntil) {
		return false
	}
	return true
}

type SessionStatus string

const (
	SessionActive         SessionStatus = "ACTIVE"
	SessionPendingPayment SessionStatus = "PENDING_PAYMENT"
	SessionPaid           SessionStatus = "PAID"
	SessionCancelled      SessionStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionPaid || s == SessionCancelled
}

// ParkingSession is the per-vehicle lifecycle record: opened on entry,
// settled and closed on exit. At most one session per plate may be in a
// non-terminal status at any time.
type ParkingSession struct {
	ID            string        `json:"id"`
	Plate         string        `json:"plate"`
	EntryTime     time.Time     `json:"entry_time"`
	ExitTime      *time.Time    `json:"exit_time,omitempty"`
	Status        SessionStatus `json:"status"`
	FeeCents      *int64        `json:"fee_cents,omitempty"`
	Currency      string        `json:"currency,omitempty"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	PaymentTxID   string        `json:"payment_tx_id,omitempty"`
	CameraEntryID string        `json:"camera_entry_id"`
	CameraExitID  string        `json:"camera_exit_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type Direction string

const (
	DirectionEntry Direction = "entry"
	DirectionExit  Direction = "exit"
)

type SessionAction string

const (
	ActionNone         SessionAction = "NONE"
	ActionOpenSession  SessionAction = "OPEN_SESSION"
	ActionCloseSession SessionAction = "CLOSE_SESSION"
)

// Reason codes attached to decisions. Stable strings: collaborators key
// notifications and reports off them.
type Reason string

const (
	ReasonAuthorized      Reason = "authorized"
	ReasonVisitor         Reason = "visitor"
	ReasonUnauthorized    Reason = "unauthorized"
	ReasonPaymentRequired Reason = "payment_required"
	ReasonPaymentPending  Reason = "payment_pending"
	ReasonPaymentSettled  Reason = "payment_settled"
	ReasonFreeExit        Reason = "free_exit"
	ReasonNoSession       Reason = "no_matching_session"
	ReasonSessionConflict Reason = "session_conflict"
	ReasonUnknownCamera   Reason = "unknown_camera"
	ReasonFeeUnavailable  Reason = "fee_unavailable"
	ReasonDuplicate       Reason = "duplicate_detection"
)

// Decision is the outcome of running one admitted detection through the
// access engine.
type Decision struct {
	Grant     bool            `json:"grant"`
	Reason    Reason          `json:"reason"`
	Direction Direction       `json:"direction,omitempty"`
	Action    SessionAction   `json:"session_action"`
	Session   *ParkingSession `json:"session,omitempty"`
}
