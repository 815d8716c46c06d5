package debounce

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"parkgate-service/internal/domain/access"
)

func detection(plate, camera string, at time.Time, confidence float64) access.Detection {
	return access.Detection{
		DetectionPayload: access.DetectionPayload{
			CameraID:   camera,
			Plate:      plate,
			Confidence: confidence,
			EventTime:  at,
		},
		NormalizedPlate: plate,
	}
}

func TestAdmitRejectsRepeatWithinWindow(t *testing.T) {
	f := NewFilter(10*time.Second, false, zerolog.Nop())
	now := time.Now()

	assert.True(t, f.Admit(detection("ABC123", "cam-1", now, 0.8)))
	assert.False(t, f.Admit(detection("ABC123", "cam-1", now.Add(2*time.Second), 0.8)))
}

func TestAdmitAllowsHigherConfidenceOverride(t *testing.T) {
	f := NewFilter(10*time.Second, false, zerolog.Nop())
	now := time.Now()

	assert.True(t, f.Admit(detection("ABC123", "cam-1", now, 0.6)))
	assert.True(t, f.Admit(detection("ABC123", "cam-1", now.Add(2*time.Second), 0.9)))
	// The override becomes the new reference read.
	assert.False(t, f.Admit(detection("ABC123", "cam-1", now.Add(4*time.Second), 0.9)))
}

func TestAdmitAfterWindowExpires(t *testing.T) {
	f := NewFilter(10*time.Second, false, zerolog.Nop())
	now := time.Now()

	assert.True(t, f.Admit(detection("ABC123", "cam-1", now, 0.8)))
	assert.True(t, f.Admit(detection("ABC123", "cam-1", now.Add(11*time.Second), 0.8)))
}

func TestAdmitDistinctPlatesIndependent(t *testing.T) {
	f := NewFilter(10*time.Second, false, zerolog.Nop())
	now := time.Now()

	assert.True(t, f.Admit(detection("ABC123", "cam-1", now, 0.8)))
	assert.True(t, f.Admit(detection("XYZ789", "cam-1", now, 0.8)))
}

func TestAdmitPerCameraScope(t *testing.T) {
	f := NewFilter(10*time.Second, true, zerolog.Nop())
	now := time.Now()

	assert.True(t, f.Admit(detection("ABC123", "cam-entry", now, 0.8)))
	// Same plate on another camera is a separate debounce key.
	assert.True(t, f.Admit(detection("ABC123", "cam-exit", now.Add(time.Second), 0.8)))
	assert.False(t, f.Admit(detection("ABC123", "cam-entry", now.Add(2*time.Second), 0.8)))
}

func TestAdmitFailsOpenOnBackwardTimestamp(t *testing.T) {
	f := NewFilter(10*time.Second, false, zerolog.Nop())
	now := time.Now()

	assert.True(t, f.Admit(detection("ABC123", "cam-1", now, 0.8)))
	// Clock skew: an earlier timestamp must not starve re-entries.
	assert.True(t, f.Admit(detection("ABC123", "cam-1", now.Add(-5*time.Second), 0.7)))
}

func TestPrune(t *testing.T) {
	f := NewFilter(10*time.Second, false, zerolog.Nop())
	now := time.Now()

	f.Admit(detection("OLD1", "cam-1", now.Add(-time.Hour), 0.8))
	f.Admit(detection("NEW1", "cam-1", now, 0.8))

	dropped := f.Prune(now, 10*time.Minute)
	assert.Equal(t, 1, dropped)

	// The pruned plate is admitted again, the fresh one still debounced.
	assert.True(t, f.Admit(detection("OLD1", "cam-1", now.Add(time.Second), 0.8)))
	assert.False(t, f.Admit(detection("NEW1", "cam-1", now.Add(time.Second), 0.8)))
}
