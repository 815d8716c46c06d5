package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"parkgate-service/internal/domain/access"
)

type DetectionRepository struct {
	db *gorm.DB
}

func NewDetectionRepository(db *gorm.DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

type DetectionRow struct {
	ID              int64  `gorm:"primaryKey"`
	CameraID        string `gorm:"not null"`
	RawPlate        string `gorm:"not null"`
	NormalizedPlate string `gorm:"not null;index"`
	Confidence      *float64
	VehicleColor    *string
	VehicleType     *string
	SnapshotURL     *string
	EventTime       time.Time         `gorm:"not null;index"`
	RawPayload      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt       time.Time
}

func (DetectionRow) TableName() string { return "detection_events" }

// Create journals one admitted detection. The raw camera payload is kept
// verbatim for audits and OCR tuning.
func (r *DetectionRepository) Create(ctx context.Context, d *access.Detection) error {
	row := DetectionRow{
		CameraID:        d.CameraID,
		RawPlate:        d.Plate,
		NormalizedPlate: d.NormalizedPlate,
		EventTime:       d.EventTime,
		CreatedAt:       time.Now(),
	}
	if d.Confidence != 0 {
		row.Confidence = &d.Confidence
	}
	if d.Vehicle.Color != "" {
		row.VehicleColor = &d.Vehicle.Color
	}
	if d.Vehicle.Type != "" {
		row.VehicleType = &d.Vehicle.Type
	}
	if d.SnapshotURL != "" {
		row.SnapshotURL = &d.SnapshotURL
	}
	if len(d.RawPayload) > 0 {
		row.RawPayload = datatypes.JSONMap(d.RawPayload)
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	d.ID = row.ID
	return nil
}

// FindEvents queries the detection log, newest first.
func (r *DetectionRepository) FindEvents(ctx context.Context, normalizedPlate *string, from, to *time.Time, limit, offset int) ([]DetectionRow, error) {
	query := r.db.WithContext(ctx).Model(&DetectionRow{})

	if normalizedPlate != nil {
		query = query.Where("normalized_plate = ?", *normalizedPlate)
	}
	if from != nil {
		query = query.Where("event_time >= ?", *from)
	}
	if to != nil {
		query = query.Where("event_time <= ?", *to)
	}

	query = query.Order("event_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []DetectionRow
	err := query.Find(&rows).Error
	return rows, err
}

// DeleteOldEvents trims log entries older than the given number of days and
// returns how many rows were removed.
func (r *DetectionRepository) DeleteOldEvents(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	res := r.db.WithContext(ctx).
		Where("event_time < ?", cutoff).
		Delete(&DetectionRow{})
	return res.RowsAffected, res.Error
}
