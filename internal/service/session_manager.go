package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"parkgate-service/internal/barrier"
	"parkgate-service/internal/domain/access"
	"parkgate-service/internal/events"
	"parkgate-service/internal/payments"
	"parkgate-service/internal/repository"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	// ErrSessionConflict is returned when a session transition would break
	// the one-open-session-per-plate invariant.
	ErrSessionConflict = errors.New("session conflict")
)

// SessionStore is the persistence surface the session manager needs.
// Implemented by repository.SessionRepository.
type SessionStore interface {
	Create(ctx context.Context, session *access.ParkingSession) error
	Update(ctx context.Context, session *access.ParkingSession) error
	FindActive(ctx context.Context, plate string) (*access.ParkingSession, error)
	Find(ctx context.Context, id string) (*access.ParkingSession, error)
	FindByPaymentTx(ctx context.Context, txID string) (*access.ParkingSession, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time) ([]access.ParkingSession, error)
	List(ctx context.Context, plate, status *string, limit, offset int) ([]access.ParkingSession, error)
}

// SessionManager owns the parking-session lifecycle: open on entry, fee and
// payment on exit, settlement, cancellation. State-mutating methods run
// under the per-plate lock shared with the access engine.
type SessionManager struct {
	sessions       SessionStore
	processor      payments.Processor
	barrier        *barrier.Controller
	publisher      events.Publisher
	currency       string
	paymentTimeout time.Duration
	locks          *plateLocks
	log            zerolog.Logger
}

func NewSessionManager(
	sessions SessionStore,
	processor payments.Processor,
	barrierCtl *barrier.Controller,
	publisher events.Publisher,
	currency string,
	paymentTimeout time.Duration,
	log zerolog.Logger,
) *SessionManager {
	return &SessionManager{
		sessions:       sessions,
		processor:      processor,
		barrier:        barrierCtl,
		publisher:      publisher,
		currency:       currency,
		paymentTimeout: paymentTimeout,
		locks:          newPlateLocks(),
		log:            log,
	}
}

// lockPlate exposes the shared per-plate lock to the access engine.
func (m *SessionManager) lockPlate(plate string) func() {
	return m.locks.lock(plate)
}

// Open creates a new ACTIVE session for the plate. The caller holds the
// plate lock; the manager re-validates against the store anyway, and the
// partial unique index backstops both.
func (m *SessionManager) Open(ctx context.Context, plate, cameraID string, at time.Time) (*access.ParkingSession, error) {
	existing, err := m.sessions.FindActive(ctx, plate)
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: plate %s already has session %s", ErrSessionConflict, plate, existing.ID)
	}

	session := &access.ParkingSession{
		ID:            uuid.NewString(),
		Plate:         plate,
		EntryTime:     at,
		Status:        access.SessionActive,
		Currency:      m.currency,
		CameraEntryID: cameraID,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, repository.ErrDuplicateSession) {
			return nil, fmt.Errorf("%w: plate %s", ErrSessionConflict, plate)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	m.log.Info().
		Str("session_id", session.ID).
		Str("plate", plate).
		Str("camera_id", cameraID).
		Time("entry_time", at).
		Msg("parking session opened")

	m.publish(events.SubjectSessionOpened, events.SessionOpened{
		SessionID: session.ID,
		Plate:     plate,
		EntryTime: at,
	})
	return session, nil
}

// CloseFree settles an exit with nothing due: the session goes straight to
// PAID with a zero fee and the exit is recorded. Caller holds the plate lock.
func (m *SessionManager) CloseFree(ctx context.Context, session *access.ParkingSession, cameraID string, at time.Time) error {
	zero := int64(0)
	session.Status = access.SessionPaid
	session.ExitTime = &at
	session.FeeCents = &zero
	session.CameraExitID = cameraID
	if err := m.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	m.log.Info().
		Str("session_id", session.ID).
		Str("plate", session.Plate).
		Time("exit_time", at).
		Msg("parking session closed without payment")

	m.publish(events.SubjectSessionClosed, events.SessionClosed{
		SessionID: session.ID,
		Plate:     session.Plate,
		ExitTime:  at,
		FeeCents:  0,
	})
	return nil
}

// BeginPayment moves an ACTIVE session to PENDING_PAYMENT, records the fee
// and requests a transaction from the payment processor. The barrier stays
// closed; the deferred grant happens when the COMPLETED notification
// arrives. Caller holds the plate lock.
func (m *SessionManager) BeginPayment(ctx context.Context, session *access.ParkingSession, feeCents int64, cameraID string) error {
	session.Status = access.SessionPendingPayment
	session.FeeCents = &feeCents
	session.Currency = m.currency
	session.CameraExitID = cameraID
	if err := m.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("mark session pending payment: %w", err)
	}

	txID, err := m.processor.Request(ctx, session.ID, feeCents, m.currency)
	if err != nil {
		// The terminal refused the request outright. Cancel rather than
		// leave the session in limbo; the operator settles manually.
		m.log.Error().Err(err).
			Str("session_id", session.ID).
			Str("plate", session.Plate).
			Msg("payment request failed")
		m.cancelLocked(ctx, session, "payment_request_failed")
		return fmt.Errorf("request payment: %w", err)
	}

	session.PaymentTxID = txID
	if err := m.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("store payment transaction: %w", err)
	}

	m.log.Info().
		Str("session_id", session.ID).
		Str("plate", session.Plate).
		Int64("fee_cents", feeCents).
		Str("payment_tx_id", txID).
		Msg("payment requested, awaiting settlement")

	m.publish(events.SubjectSessionPayment, events.SessionPaymentDue{
		SessionID: session.ID,
		Plate:     session.Plate,
		FeeCents:  feeCents,
		Currency:  m.currency,
	})
	return nil
}

// HandlePaymentNotification reacts to a payment state change delivered by
// the processor collaborator. COMPLETED settles the session and performs the
// deferred grant: the barrier opens now, not at decision time.
func (m *SessionManager) HandlePaymentNotification(ctx context.Context, n payments.Notification) error {
	session, err := m.resolveNotification(ctx, n)
	if err != nil {
		return err
	}

	unlock := m.locks.lock(session.Plate)
	defer unlock()

	// Re-read under the lock; the watchdog or an operator may have moved
	// the session meanwhile.
	session, err = m.sessions.Find(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("reload session: %w", err)
	}

	switch n.State {
	case payments.StateCompleted:
		if session.Status != access.SessionPendingPayment {
			// Duplicate notification; settlement already happened.
			m.log.Debug().
				Str("session_id", session.ID).
				Str("status", string(session.Status)).
				Msg("ignoring payment notification for settled session")
			return nil
		}
		method := n.Method
		if method == "" {
			method = "terminal"
		}
		return m.settle(ctx, session, method)

	case payments.StateFailed, payments.StateCancelled:
		if session.Status != access.SessionPendingPayment {
			return nil
		}
		m.log.Warn().
			Str("session_id", session.ID).
			Str("plate", session.Plate).
			Str("payment_state", string(n.State)).
			Msg("payment failed, session cancelled")
		m.cancelLocked(ctx, session, "payment_"+string(n.State))
		return nil

	default:
		m.log.Debug().
			Str("session_id", session.ID).
			Str("payment_state", string(n.State)).
			Msg("intermediate payment state")
		return nil
	}
}

func (m *SessionManager) resolveNotification(ctx context.Context, n payments.Notification) (*access.ParkingSession, error) {
	if n.TransactionID != "" {
		session, err := m.sessions.FindByPaymentTx(ctx, n.TransactionID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	if n.SessionID != "" {
		session, err := m.sessions.Find(ctx, n.SessionID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: transaction %q", ErrNotFound, n.TransactionID)
}

// SettleManual is the operator override: cash or invoice payment taken
// outside the terminal. Allowed from PENDING_PAYMENT and, after a failure
// or timeout, from CANCELLED.
func (m *SessionManager) SettleManual(ctx context.Context, sessionID string) (*access.ParkingSession, error) {
	session, err := m.sessions.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return nil, err
	}

	unlock := m.locks.lock(session.Plate)
	defer unlock()

	session, err = m.sessions.Find(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}

	switch session.Status {
	case access.SessionPendingPayment, access.SessionCancelled:
	case access.SessionPaid:
		return session, nil
	default:
		return nil, fmt.Errorf("%w: cannot settle session in status %s", ErrInvalidInput, session.Status)
	}

	if session.PaymentTxID != "" {
		if err := m.processor.Cancel(ctx, session.PaymentTxID); err != nil {
			m.log.Warn().Err(err).
				Str("payment_tx_id", session.PaymentTxID).
				Msg("failed to cancel outstanding payment transaction")
		}
	}
	if err := m.settle(ctx, session, "manual"); err != nil {
		return nil, err
	}
	return session, nil
}

// Cancel is the operator cancellation of a non-terminal session.
func (m *SessionManager) Cancel(ctx context.Context, sessionID, reason string) (*access.ParkingSession, error) {
	session, err := m.sessions.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		return nil, err
	}

	unlock := m.locks.lock(session.Plate)
	defer unlock()

	session, err = m.sessions.Find(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}
	if session.Status.Terminal() {
		return nil, fmt.Errorf("%w: session already %s", ErrInvalidInput, session.Status)
	}

	if session.PaymentTxID != "" {
		if err := m.processor.Cancel(ctx, session.PaymentTxID); err != nil {
			m.log.Warn().Err(err).
				Str("payment_tx_id", session.PaymentTxID).
				Msg("failed to cancel outstanding payment transaction")
		}
	}
	m.cancelLocked(ctx, session, reason)
	return session, nil
}

// settle marks the session PAID, emits SessionClosed and performs the
// deferred barrier open. Caller holds the plate lock.
func (m *SessionManager) settle(ctx context.Context, session *access.ParkingSession, method string) error {
	now := time.Now()
	session.Status = access.SessionPaid
	session.PaymentMethod = method
	if session.ExitTime == nil {
		session.ExitTime = &now
	}
	if err := m.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("settle session: %w", err)
	}

	var fee int64
	if session.FeeCents != nil {
		fee = *session.FeeCents
	}
	m.log.Info().
		Str("session_id", session.ID).
		Str("plate", session.Plate).
		Int64("fee_cents", fee).
		Str("payment_method", method).
		Msg("parking session settled")

	m.publish(events.SubjectSessionClosed, events.SessionClosed{
		SessionID:     session.ID,
		Plate:         session.Plate,
		ExitTime:      *session.ExitTime,
		FeeCents:      fee,
		PaymentMethod: method,
	})

	if err := m.barrier.RequestOpen(ctx); err != nil {
		m.log.Error().Err(err).
			Str("session_id", session.ID).
			Msg("deferred barrier open failed")
	} else {
		m.publish(events.SubjectAccessGranted, events.AccessGranted{
			Plate:    session.Plate,
			CameraID: session.CameraExitID,
			At:       *session.ExitTime,
		})
	}
	return nil
}

// cancelLocked moves the session to CANCELLED and emits the operator alert.
// Caller holds the plate lock.
func (m *SessionManager) cancelLocked(ctx context.Context, session *access.ParkingSession, reason string) {
	session.Status = access.SessionCancelled
	if err := m.sessions.Update(ctx, session); err != nil {
		m.log.Error().Err(err).
			Str("session_id", session.ID).
			Msg("failed to persist session cancellation")
		return
	}
	m.publish(events.SubjectSessionCancelled, events.SessionCancelled{
		SessionID: session.ID,
		Plate:     session.Plate,
		Reason:    reason,
	})
}

// RunTimeoutWatchdog cancels sessions stuck in PENDING_PAYMENT past the
// configured timeout so a dead terminal cannot wedge the exit lane forever.
// Blocks until the context is cancelled.
func (m *SessionManager) RunTimeoutWatchdog(ctx context.Context) error {
	interval := m.paymentTimeout / 4
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.expireStalePayments(ctx)
		}
	}
}

func (m *SessionManager) expireStalePayments(ctx context.Context) {
	cutoff := time.Now().Add(-m.paymentTimeout)
	stale, err := m.sessions.FindPendingBefore(ctx, cutoff)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to scan for stale pending payments")
		return
	}
	for i := range stale {
		session := &stale[i]
		unlock := m.locks.lock(session.Plate)

		current, err := m.sessions.Find(ctx, session.ID)
		if err != nil || current.Status != access.SessionPendingPayment {
			unlock()
			continue
		}
		if current.PaymentTxID != "" {
			if err := m.processor.Cancel(ctx, current.PaymentTxID); err != nil {
				m.log.Warn().Err(err).
					Str("payment_tx_id", current.PaymentTxID).
					Msg("failed to cancel timed-out payment transaction")
			}
		}
		m.log.Warn().
			Str("session_id", current.ID).
			Str("plate", current.Plate).
			Dur("timeout", m.paymentTimeout).
			Msg("payment timed out, session cancelled")
		m.cancelLocked(ctx, current, "payment_timeout")
		unlock()
	}
}

func (m *SessionManager) publish(subject string, event interface{}) {
	if err := m.publisher.Publish(subject, event); err != nil {
		m.log.Warn().Err(err).Str("subject", subject).Msg("failed to publish domain event")
	}
}
