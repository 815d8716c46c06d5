// Package debounce suppresses duplicate plate detections inside a cool-down
// window so one vehicle rolling past a camera does not trigger the decision
// pipeline several times.
package debounce

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parkgate-service/internal/domain/access"
)

type admitted struct {
	at         time.Time
	confidence float64
}

// Filter keeps the last admitted read per plate (optionally scoped per
// camera) and drops repeats inside the cool-down window unless they carry a
// strictly higher confidence. Safe for concurrent use.
type Filter struct {
	mu        sync.Mutex
	window    time.Duration
	perCamera bool
	last      map[string]admitted
	log       zerolog.Logger
}

func NewFilter(window time.Duration, perCamera bool, log zerolog.Logger) *Filter {
	return &Filter{
		window:    window,
		perCamera: perCamera,
		last:      make(map[string]admitted),
		log:       log,
	}
}

// Admit reports whether the detection should enter the decision pipeline and
// records it as the last admitted read if so. A higher-confidence repeat
// inside the window is admitted so a strong read can override a weak one.
// Timestamps earlier than the last admitted read are admitted as well:
// failing open on clock skew beats starving a legitimate re-entry.
func (f *Filter) Admit(d access.Detection) bool {
	key := d.NormalizedPlate
	if f.perCamera {
		key = d.CameraID + "/" + d.NormalizedPlate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prev, seen := f.last[key]
	if seen {
		age := d.EventTime.Sub(prev.at)
		if age >= 0 && age < f.window && d.Confidence <= prev.confidence {
			f.log.Debug().
				Str("plate", d.NormalizedPlate).
				Str("camera_id", d.CameraID).
				Float64("confidence", d.Confidence).
				Dur("age", age).
				Msg("detection suppressed by debounce window")
			return false
		}
	}

	f.last[key] = admitted{at: d.EventTime, confidence: d.Confidence}
	return true
}

// Prune drops entries whose window has long expired, bounding the map for
// car parks with large plate churn. Entries older than ttl relative to now
// are removed; returns how many were dropped.
func (f *Filter) Prune(now time.Time, ttl time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	dropped := 0
	for key, entry := range f.last {
		if now.Sub(entry.at) > ttl {
			delete(f.last, key)
			dropped++
		}
	}
	return dropped
}
