package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parkgate-service/internal/domain/access"
	"parkgate-service/internal/repository"
	"parkgate-service/internal/utils"
)

type EventInfo struct {
	ID              int64     `json:"id"`
	CameraID        string    `json:"camera_id"`
	RawPlate        string    `json:"raw_plate"`
	NormalizedPlate string    `json:"normalized_plate"`
	Confidence      *float64  `json:"confidence,omitempty"`
	VehicleColor    *string   `json:"vehicle_color,omitempty"`
	VehicleType     *string   `json:"vehicle_type,omitempty"`
	SnapshotURL     *string   `json:"snapshot_url,omitempty"`
	EventTime       time.Time `json:"event_time"`
}

// FindEvents queries the detection log for the operator UI.
func (s *AccessService) FindEvents(ctx context.Context, plateQuery *string, from, to *string, limit, offset int) ([]EventInfo, error) {
	var normalizedPlate *string
	if plateQuery != nil {
		normalized := utils.NormalizePlate(*plateQuery)
		if normalized != "" {
			normalizedPlate = &normalized
		}
	}

	var fromTime, toTime *time.Time
	if from != nil && *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		fromTime = &t
	}
	if to != nil && *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		toTime = &t
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.detections.FindEvents(ctx, normalizedPlate, fromTime, toTime, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}

	result := make([]EventInfo, 0, len(rows))
	for _, e := range rows {
		result = append(result, EventInfo{
			ID:              e.ID,
			CameraID:        e.CameraID,
			RawPlate:        e.RawPlate,
			NormalizedPlate: e.NormalizedPlate,
			Confidence:      e.Confidence,
			VehicleColor:    e.VehicleColor,
			VehicleType:     e.VehicleType,
			SnapshotURL:     e.SnapshotURL,
			EventTime:       e.EventTime,
		})
	}
	return result, nil
}

// ListSessions returns sessions filtered by plate and/or status.
func (m *SessionManager) ListSessions(ctx context.Context, plateQuery, status *string, limit, offset int) ([]access.ParkingSession, error) {
	var plate *string
	if plateQuery != nil {
		normalized := utils.NormalizePlate(*plateQuery)
		if normalized != "" {
			plate = &normalized
		}
	}
	if status != nil {
		switch access.SessionStatus(*status) {
		case access.SessionActive, access.SessionPendingPayment, access.SessionPaid, access.SessionCancelled:
		default:
			return nil, fmt.Errorf("%w: invalid status %q", ErrInvalidInput, *status)
		}
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	return m.sessions.List(ctx, plate, status, limit, offset)
}

// GetSession loads one session by id.
func (m *SessionManager) GetSession(ctx context.Context, id string) (*access.ParkingSession, error) {
	session, err := m.sessions.Find(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
		}
		return nil, err
	}
	return session, nil
}
