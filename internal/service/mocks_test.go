package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"parkgate-service/internal/barrier"
	"parkgate-service/internal/config"
	"parkgate-service/internal/debounce"
	"parkgate-service/internal/domain/access"
	"parkgate-service/internal/events"
	"parkgate-service/internal/payments"
	"parkgate-service/internal/repository"
)

// memorySessionStore is an in-memory SessionStore that mirrors the database
// behavior the repositories rely on, including the unique constraint on
// non-terminal sessions per plate.
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*access.ParkingSession
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: make(map[string]*access.ParkingSession)}
}

func (s *memorySessionStore) Create(ctx context.Context, session *access.ParkingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.Plate == session.Plate && !existing.Status.Terminal() {
			return repository.ErrDuplicateSession
		}
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *memorySessionStore) Update(ctx context.Context, session *access.ParkingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return repository.ErrNotFound
	}
	session.UpdatedAt = time.Now()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *memorySessionStore) FindActive(ctx context.Context, plate string) (*access.ParkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.Plate == plate && !session.Status.Terminal() {
			cp := *session
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memorySessionStore) Find(ctx context.Context, id string) (*access.ParkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *memorySessionStore) FindByPaymentTx(ctx context.Context, txID string) (*access.ParkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.PaymentTxID == txID {
			cp := *session
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memorySessionStore) FindPendingBefore(ctx context.Context, cutoff time.Time) ([]access.ParkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []access.ParkingSession
	for _, session := range s.sessions {
		if session.Status == access.SessionPendingPayment && session.UpdatedAt.Before(cutoff) {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (s *memorySessionStore) List(ctx context.Context, plate, status *string, limit, offset int) ([]access.ParkingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []access.ParkingSession
	for _, session := range s.sessions {
		if plate != nil && session.Plate != *plate {
			continue
		}
		if status != nil && string(session.Status) != *status {
			continue
		}
		out = append(out, *session)
	}
	return out, nil
}

// backdate rewrites a session's UpdatedAt, simulating the passage of time
// for watchdog tests.
func (s *memorySessionStore) backdate(id string, to time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.UpdatedAt = to
	}
}

type fakeAuthStore struct {
	records map[string]*access.Authorization
}

func (f *fakeAuthStore) Lookup(ctx context.Context, plate string) (*access.Authorization, error) {
	return f.records[plate], nil
}

type nopDetectionLog struct {
	mu      sync.Mutex
	created int
}

func (l *nopDetectionLog) Create(ctx context.Context, d *access.Detection) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created++
	d.ID = int64(l.created)
	return nil
}

func (l *nopDetectionLog) FindEvents(ctx context.Context, normalizedPlate *string, from, to *time.Time, limit, offset int) ([]repository.DetectionRow, error) {
	return nil, nil
}

type paymentRequest struct {
	SessionID   string
	AmountCents int64
	Currency    string
	TxID        string
}

type fakeProcessor struct {
	mu         sync.Mutex
	requests   []paymentRequest
	cancelled  []string
	requestErr error
}

func (p *fakeProcessor) Request(ctx context.Context, sessionID string, amountCents int64, currency string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.requestErr != nil {
		return "", p.requestErr
	}
	txID := fmt.Sprintf("tx-%d", len(p.requests)+1)
	p.requests = append(p.requests, paymentRequest{
		SessionID:   sessionID,
		AmountCents: amountCents,
		Currency:    currency,
		TxID:        txID,
	})
	return txID, nil
}

func (p *fakeProcessor) Status(ctx context.Context, transactionID string) (payments.State, error) {
	return payments.StatePending, nil
}

func (p *fakeProcessor) Cancel(ctx context.Context, transactionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, transactionID)
	return nil
}

type countingActuator struct {
	mu     sync.Mutex
	raises int
	lowers int
}

func (a *countingActuator) Raise(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.raises++
	return nil
}

func (a *countingActuator) Lower(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lowers++
	return nil
}

func (a *countingActuator) SafetyClear(ctx context.Context) error { return nil }

func (a *countingActuator) raiseCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.raises
}

// rig wires the full decision pipeline against in-memory fakes.
type rig struct {
	cfg      *config.Config
	store    *memorySessionStore
	auth     *fakeAuthStore
	proc     *fakeProcessor
	pub      *events.MemoryPublisher
	actuator *countingActuator
	barrier  *barrier.Controller
	manager  *SessionManager
	svc      *AccessService
}

func newRig(t *testing.T, cfg *config.Config) *rig {
	t.Helper()

	store := newMemorySessionStore()
	auth := &fakeAuthStore{records: make(map[string]*access.Authorization)}
	proc := &fakeProcessor{}
	pub := events.NewMemoryPublisher()
	actuator := &countingActuator{}

	barrierCtl := barrier.NewController(actuator, cfg.Barrier.OpenTime, cfg.Barrier.SafetyCheck, pub, zerolog.Nop())
	manager := NewSessionManager(store, proc, barrierCtl, pub, cfg.Fee.Currency, cfg.Payment.Timeout, zerolog.Nop())
	filter := debounce.NewFilter(cfg.Recognition.ProcessingInterval, cfg.Recognition.PerCameraDebounce, zerolog.Nop())
	svc := NewAccessService(cfg, auth, &nopDetectionLog{}, filter, manager, barrierCtl, pub, zerolog.Nop())

	return &rig{
		cfg:      cfg,
		store:    store,
		auth:     auth,
		proc:     proc,
		pub:      pub,
		actuator: actuator,
		barrier:  barrierCtl,
		manager:  manager,
		svc:      svc,
	}
}

func (r *rig) authorize(plate string) {
	r.auth.records[plate] = &access.Authorization{Plate: plate, Authorized: true}
}

func baseConfig() *config.Config {
	return &config.Config{
		CarPark: config.CarParkConfig{
			AccessMode: config.AccessAuthorizedOnly,
			CameraMode: config.CameraModeSingle,
		},
		Recognition: config.RecognitionConfig{
			ProcessingInterval: 10 * time.Second,
			MinConfidence:      0.5,
		},
		Payment: config.PaymentConfig{
			Requirement: config.PaymentNever,
			Timeout:     5 * time.Minute,
		},
		Fee: config.FeeConfig{
			Mode:     config.FeeFree,
			Currency: "EUR",
		},
		Barrier: config.BarrierConfig{
			OpenTime:    200 * time.Millisecond,
			SafetyCheck: true,
		},
	}
}

func dualPaidConfig() *config.Config {
	cfg := baseConfig()
	cfg.CarPark.AccessMode = config.AccessPublic
	cfg.CarPark.CameraMode = config.CameraModeDual
	cfg.CarPark.EntryCameraID = "cam-entry"
	cfg.CarPark.ExitCameraID = "cam-exit"
	cfg.Payment.Requirement = config.PaymentAlways
	cfg.Fee.Mode = config.FeeHourly
	cfg.Fee.HourlyRateCents = 200
	return cfg
}

func detectionAt(plate, camera string, at time.Time, confidence float64) access.DetectionPayload {
	return access.DetectionPayload{
		CameraID:   camera,
		Plate:      plate,
		Confidence: confidence,
		EventTime:  at,
	}
}

var testBase = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
