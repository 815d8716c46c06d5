package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"parkgate-service/internal/barrier"
	"parkgate-service/internal/config"
	"parkgate-service/internal/debounce"
	"parkgate-service/internal/domain/access"
	"parkgate-service/internal/events"
	"parkgate-service/internal/fee"
	"parkgate-service/internal/repository"
	"parkgate-service/internal/utils"
)

// AuthorizationStore resolves normalized plates to authorization records.
// Implemented by repository.AuthorizationRepository; read-only to the core.
type AuthorizationStore interface {
	Lookup(ctx context.Context, plate string) (*access.Authorization, error)
}

// DetectionLog journals admitted detections and serves the operator query
// surface. Implemented by repository.DetectionRepository.
type DetectionLog interface {
	Create(ctx context.Context, d *access.Detection) error
	FindEvents(ctx context.Context, normalizedPlate *string, from, to *time.Time, limit, offset int) ([]repository.DetectionRow, error)
}

// Result is what one ingested detection produced.
type Result struct {
	Admitted  bool              `json:"admitted"`
	Detection *access.Detection `json:"-"`
	Decision  *access.Decision  `json:"decision,omitempty"`
}

// AccessService is the recognition-to-access decision engine. It filters the
// detection stream, decides grant/deny against the authorization store and
// session state, drives the barrier and hands session transitions to the
// session manager. Decide-then-mutate runs under the per-plate lock.
type AccessService struct {
	carpark    config.CarParkConfig
	payment    config.PaymentConfig
	feePolicy  config.FeeConfig
	minConf    float64
	auth       AuthorizationStore
	detections DetectionLog
	filter     *debounce.Filter
	sessions   *SessionManager
	barrier    *barrier.Controller
	publisher  events.Publisher
	log        zerolog.Logger
}

func NewAccessService(
	cfg *config.Config,
	auth AuthorizationStore,
	detections DetectionLog,
	filter *debounce.Filter,
	sessions *SessionManager,
	barrierCtl *barrier.Controller,
	publisher events.Publisher,
	log zerolog.Logger,
) *AccessService {
	return &AccessService{
		carpark:    cfg.CarPark,
		payment:    cfg.Payment,
		feePolicy:  cfg.Fee,
		minConf:    cfg.Recognition.MinConfidence,
		auth:       auth,
		detections: detections,
		filter:     filter,
		sessions:   sessions,
		barrier:    barrierCtl,
		publisher:  publisher,
		log:        log,
	}
}

// ProcessDetection runs one camera detection through the full pipeline:
// validation, normalization, debounce, decision, session mutation, barrier
// actuation and event emission.
func (s *AccessService) ProcessDetection(ctx context.Context, payload access.DetectionPayload) (*Result, error) {
	if payload.Plate == "" {
		return nil, fmt.Errorf("%w: plate is required", ErrInvalidInput)
	}
	if payload.CameraID == "" {
		return nil, fmt.Errorf("%w: camera_id is required", ErrInvalidInput)
	}
	if payload.EventTime.IsZero() {
		return nil, fmt.Errorf("%w: event_time is required", ErrInvalidInput)
	}
	if payload.Confidence < 0 || payload.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence must be within [0,1]", ErrInvalidInput)
	}

	normalized := utils.NormalizePlate(payload.Plate)
	if normalized == "" {
		return nil, fmt.Errorf("%w: plate cannot be empty after normalization", ErrInvalidInput)
	}

	detection := &access.Detection{
		DetectionPayload: payload,
		NormalizedPlate:  normalized,
	}

	// Low-confidence reads are recognition noise: dropped before they can
	// touch session state or the barrier.
	if payload.Confidence < s.minConf {
		s.log.Debug().
			Str("plate", normalized).
			Float64("confidence", payload.Confidence).
			Msg("detection below confidence threshold")
		return &Result{Admitted: false, Detection: detection}, nil
	}

	if !s.filter.Admit(*detection) {
		return &Result{Admitted: false, Detection: detection}, nil
	}

	if err := s.detections.Create(ctx, detection); err != nil {
		// Journaling is best effort; losing a log row must not close the
		// gate on a legitimate vehicle.
		s.log.Warn().Err(err).
			Str("plate", normalized).
			Msg("failed to journal detection")
	}

	unlock := s.sessions.lockPlate(normalized)
	defer unlock()

	decision, err := s.decide(ctx, detection)
	if err != nil {
		return nil, err
	}

	s.emitDecision(detection, decision)

	if decision.Grant {
		if err := s.barrier.RequestOpen(ctx); err != nil {
			s.log.Error().Err(err).
				Str("plate", normalized).
				Msg("barrier open failed after grant")
		}
	}

	s.log.Info().
		Str("plate", normalized).
		Str("raw_plate", payload.Plate).
		Str("camera_id", payload.CameraID).
		Bool("grant", decision.Grant).
		Str("reason", string(decision.Reason)).
		Str("direction", string(decision.Direction)).
		Msg("access decision")

	return &Result{Admitted: true, Detection: detection, Decision: decision}, nil
}

// decide implements the decision algorithm. Caller holds the plate lock.
func (s *AccessService) decide(ctx context.Context, d *access.Detection) (*access.Decision, error) {
	plate := d.NormalizedPlate
	now := d.EventTime

	authRecord, err := s.auth.Lookup(ctx, plate)
	if err != nil {
		return nil, fmt.Errorf("authorization lookup: %w", err)
	}
	authorized := authRecord.ValidAt(now)

	active, err := s.sessions.sessions.FindActive(ctx, plate)
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}

	direction, reason := s.resolveDirection(d, active)
	if reason != "" {
		return &access.Decision{Grant: false, Reason: reason, Action: access.ActionNone, Session: active}, nil
	}

	if direction == access.DirectionEntry {
		return s.decideEntry(ctx, d, authorized, active)
	}
	return s.decideExit(ctx, d, active)
}

// resolveDirection determines entry vs exit. Single-camera mode infers it
// from session presence; dual-camera mode trusts camera identity and treats
// mismatches as anomalies for manual review, never fabricating a direction.
func (s *AccessService) resolveDirection(d *access.Detection, active *access.ParkingSession) (access.Direction, access.Reason) {
	if s.carpark.CameraMode == config.CameraModeSingle {
		if active == nil {
			return access.DirectionEntry, ""
		}
		return access.DirectionExit, ""
	}

	switch d.CameraID {
	case s.carpark.EntryCameraID:
		return access.DirectionEntry, ""
	case s.carpark.ExitCameraID:
		if active == nil {
			// Exit camera fired for a plate with no open session.
			return access.DirectionExit, access.ReasonNoSession
		}
		return access.DirectionExit, ""
	default:
		return "", access.ReasonUnknownCamera
	}
}

func (s *AccessService) decideEntry(ctx context.Context, d *access.Detection, authorized bool, active *access.ParkingSession) (*access.Decision, error) {
	reason := access.ReasonAuthorized
	if !authorized {
		if s.carpark.AccessMode == config.AccessAuthorizedOnly {
			return &access.Decision{
				Grant:     false,
				Reason:    access.ReasonUnauthorized,
				Direction: access.DirectionEntry,
				Action:    access.ActionNone,
			}, nil
		}
		// Public car park: unknown plates enter as visitors and are billed
		// on the way out.
		reason = access.ReasonVisitor
	}

	if active != nil {
		// Entry camera fired while a session is already open (dual-camera
		// anomaly). Denied for operator review; never a second session.
		return &access.Decision{
			Grant:     false,
			Reason:    access.ReasonSessionConflict,
			Direction: access.DirectionEntry,
			Action:    access.ActionNone,
			Session:   active,
		}, nil
	}

	session, err := s.sessions.Open(ctx, d.NormalizedPlate, d.CameraID, d.EventTime)
	if err != nil {
		if errors.Is(err, ErrSessionConflict) {
			return &access.Decision{
				Grant:     false,
				Reason:    access.ReasonSessionConflict,
				Direction: access.DirectionEntry,
				Action:    access.ActionNone,
			}, nil
		}
		return nil, err
	}

	return &access.Decision{
		Grant:     true,
		Reason:    reason,
		Direction: access.DirectionEntry,
		Action:    access.ActionOpenSession,
		Session:   session,
	}, nil
}

func (s *AccessService) decideExit(ctx context.Context, d *access.Detection, active *access.ParkingSession) (*access.Decision, error) {
	if active == nil {
		return &access.Decision{
			Grant:     false,
			Reason:    access.ReasonNoSession,
			Direction: access.DirectionExit,
			Action:    access.ActionNone,
		}, nil
	}

	// Replayed exit while payment is already pending: idempotent no-op.
	// No new transaction, no barrier trigger; the pending settlement will
	// perform the deferred grant.
	if active.Status == access.SessionPendingPayment {
		return &access.Decision{
			Grant:     false,
			Reason:    access.ReasonPaymentPending,
			Direction: access.DirectionExit,
			Action:    access.ActionNone,
			Session:   active,
		}, nil
	}

	if s.payment.Requirement != config.PaymentNever {
		feeCents, err := fee.Compute(s.feePolicy, active.EntryTime, d.EventTime)
		if err != nil {
			// Broken fee schedule: refuse to guess an amount. The session
			// stays ACTIVE and is surfaced for manual fee entry.
			s.log.Error().Err(err).
				Str("session_id", active.ID).
				Msg("fee computation failed, session requires manual handling")
			return &access.Decision{
				Grant:     false,
				Reason:    access.ReasonFeeUnavailable,
				Direction: access.DirectionExit,
				Action:    access.ActionNone,
				Session:   active,
			}, nil
		}
		if feeCents > 0 {
			if err := s.sessions.BeginPayment(ctx, active, feeCents, d.CameraID); err != nil {
				return nil, err
			}
			return &access.Decision{
				Grant:     false,
				Reason:    access.ReasonPaymentRequired,
				Direction: access.DirectionExit,
				Action:    access.ActionNone,
				Session:   active,
			}, nil
		}
	}

	if err := s.sessions.CloseFree(ctx, active, d.CameraID, d.EventTime); err != nil {
		return nil, err
	}
	return &access.Decision{
		Grant:     true,
		Reason:    access.ReasonFreeExit,
		Direction: access.DirectionExit,
		Action:    access.ActionCloseSession,
		Session:   active,
	}, nil
}

func (s *AccessService) emitDecision(d *access.Detection, decision *access.Decision) {
	if decision.Grant {
		s.publishEvent(events.SubjectAccessGranted, events.AccessGranted{
			Plate:    d.NormalizedPlate,
			CameraID: d.CameraID,
			At:       d.EventTime,
		})
		return
	}
	s.publishEvent(events.SubjectAccessDenied, events.AccessDenied{
		Plate:    d.NormalizedPlate,
		Reason:   string(decision.Reason),
		CameraID: d.CameraID,
		At:       d.EventTime,
	})
}

func (s *AccessService) publishEvent(subject string, event interface{}) {
	if err := s.publisher.Publish(subject, event); err != nil {
		s.log.Warn().Err(err).Str("subject", subject).Msg("failed to publish domain event")
	}
}
