package events

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Publisher hands serialized domain events to whatever transport carries
// them to collaborators.
type Publisher interface {
	Publish(subject string, event interface{}) error
	Close() error
}

// LogPublisher writes events to the structured log only. Used when no broker
// is configured; collaborators then consume the log stream.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.log.Info().
		Str("subject", subject).
		RawJSON("event", data).
		Msg("domain event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorded is one captured event, kept by the in-memory publisher.
type Recorded struct {
	Subject string
	Event   interface{}
}

// MemoryPublisher records events in memory. Test double.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Recorded
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(subject string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Recorded{Subject: subject, Event: event})
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Recorded {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Recorded, len(p.events))
	copy(out, p.events)
	return out
}

// BySubject returns the captured events published on the given subject.
func (p *MemoryPublisher) BySubject(subject string) []Recorded {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Recorded
	for _, e := range p.events {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out
}
