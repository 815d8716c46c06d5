// Package barrier owns the physical gate actuator. The controller is the
// only writer of barrier state and serializes every open/close operation;
// callers request an open and the controller runs the full
// open-dwell-close cycle on its own.
package barrier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parkgate-service/internal/events"
)

type State string

const (
	StateClosed  State = "CLOSED"
	StateOpening State = "OPENING"
	StateOpen    State = "OPEN"
	StateClosing State = "CLOSING"
	StateFault   State = "FAULT"
)

var (
	// ErrFaulted is returned while the barrier is latched in FAULT and
	// waiting for an operator reset.
	ErrFaulted = errors.New("barrier faulted")
	// ErrSafetyCheck is returned when the pre-open safety check fails.
	ErrSafetyCheck = errors.New("barrier safety check failed")
)

// Actuator drives the physical mechanism. Implementations wrap whatever
// relay or controller board the site uses; SafetyClear consults the
// obstruction sensor before the boom moves.
type Actuator interface {
	Raise(ctx context.Context) error
	Lower(ctx context.Context) error
	SafetyClear(ctx context.Context) error
}

// NoopActuator is used on sites where the boom is driven by an external
// relay collaborator and this service only tracks logical state.
type NoopActuator struct{}

func (NoopActuator) Raise(ctx context.Context) error       { return nil }
func (NoopActuator) Lower(ctx context.Context) error       { return nil }
func (NoopActuator) SafetyClear(ctx context.Context) error { return nil }

// Controller is the barrier state machine. All transitions happen under one
// mutex so the actuator is never double-triggered.
type Controller struct {
	mu          sync.Mutex
	state       State
	actuator    Actuator
	openTime    time.Duration
	safetyCheck bool
	closeTimer  *time.Timer
	publisher   events.Publisher
	log         zerolog.Logger
}

func NewController(actuator Actuator, openTime time.Duration, safetyCheck bool, publisher events.Publisher, log zerolog.Logger) *Controller {
	return &Controller{
		state:       StateClosed,
		actuator:    actuator,
		openTime:    openTime,
		safetyCheck: safetyCheck,
		publisher:   publisher,
		log:         log,
	}
}

// State returns the current barrier state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RequestOpen opens the barrier from CLOSED and schedules the autonomous
// close after the configured dwell. Requests while the barrier is already
// OPEN are coalesced into an extended dwell; requests while CLOSING are
// dropped (the next detection re-triggers); requests while FAULT return
// ErrFaulted until an operator resets. A failed safety check or actuator
// error latches FAULT and is never retried automatically.
func (c *Controller) RequestOpen(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateFault:
		c.log.Warn().Msg("open request ignored: barrier is faulted, reset required")
		return ErrFaulted
	case StateOpen, StateOpening:
		if c.closeTimer != nil {
			c.closeTimer.Reset(c.openTime)
		}
		c.log.Debug().Msg("open request coalesced: barrier already open, dwell extended")
		return nil
	case StateClosing:
		c.log.Debug().Msg("open request ignored: barrier is closing")
		return nil
	}

	if c.safetyCheck {
		if err := c.actuator.SafetyClear(ctx); err != nil {
			c.fault(fmt.Sprintf("safety check failed: %v", err))
			return fmt.Errorf("%w: %v", ErrSafetyCheck, err)
		}
	}

	c.state = StateOpening
	if err := c.actuator.Raise(ctx); err != nil {
		c.fault(fmt.Sprintf("actuator raise failed: %v", err))
		return fmt.Errorf("barrier raise: %w", err)
	}
	c.state = StateOpen
	c.log.Info().Dur("open_time", c.openTime).Msg("barrier opened")

	c.closeTimer = time.AfterFunc(c.openTime, c.autoClose)
	return nil
}

// Reset clears a FAULT after operator intervention. It is rejected in any
// other state.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateFault {
		return fmt.Errorf("barrier reset rejected in state %s", c.state)
	}
	c.state = StateClosed
	c.log.Info().Msg("barrier fault reset by operator")
	return nil
}

func (c *Controller) autoClose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return
	}
	c.state = StateClosing
	if err := c.actuator.Lower(context.Background()); err != nil {
		c.fault(fmt.Sprintf("actuator lower failed: %v", err))
		return
	}
	c.state = StateClosed
	c.log.Info().Msg("barrier closed")
}

// fault latches the FAULT state and emits the operator alert. Callers hold
// the mutex.
func (c *Controller) fault(reason string) {
	c.state = StateFault
	c.log.Error().Str("reason", reason).Msg("barrier fault")
	if err := c.publisher.Publish(events.SubjectBarrierFault, events.BarrierFault{
		Reason: reason,
		At:     time.Now(),
	}); err != nil {
		c.log.Warn().Err(err).Msg("failed to publish barrier fault event")
	}
}
