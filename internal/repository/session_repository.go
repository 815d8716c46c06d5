package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"parkgate-service/internal/domain/access"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

type ParkingSessionRow struct {
	ID            string    `gorm:"primaryKey"`
	Plate         string    `gorm:"not null;index"`
	EntryTime     time.Time `gorm:"not null"`
	ExitTime      *time.Time
	Status        string `gorm:"not null;index"`
	FeeCents      *int64
	Currency      *string
	PaymentMethod *string
	PaymentTxID   *string `gorm:"column:payment_tx_id;index"`
	CameraEntryID string  `gorm:"not null"`
	CameraExitID  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (ParkingSessionRow) TableName() string { return "parking_sessions" }

// Create inserts a new session. The partial unique index on non-terminal
// sessions turns a race on the same plate into ErrDuplicateSession.
func (r *SessionRepository) Create(ctx context.Context, session *access.ParkingSession) error {
	row := toRow(session)
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateSession
		}
		return err
	}
	session.CreatedAt = row.CreatedAt
	session.UpdatedAt = row.UpdatedAt
	return nil
}

// Update persists the current state of an existing session.
func (r *SessionRepository) Update(ctx context.Context, session *access.ParkingSession) error {
	row := toRow(session)
	row.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).Model(&ParkingSessionRow{}).
		Where("id = ?", session.ID).
		Updates(map[string]interface{}{
			"exit_time":      row.ExitTime,
			"status":         row.Status,
			"fee_cents":      row.FeeCents,
			"currency":       row.Currency,
			"payment_method": row.PaymentMethod,
			"payment_tx_id":  row.PaymentTxID,
			"camera_exit_id": row.CameraExitID,
			"updated_at":     row.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	session.UpdatedAt = row.UpdatedAt
	return nil
}

// FindActive returns the plate's session in a non-terminal status (ACTIVE or
// PENDING_PAYMENT), or nil when the plate has no open session.
func (r *SessionRepository) FindActive(ctx context.Context, plate string) (*access.ParkingSession, error) {
	var row ParkingSessionRow
	err := r.db.WithContext(ctx).
		Where("plate = ? AND status IN ?", plate, []string{
			string(access.SessionActive),
			string(access.SessionPendingPayment),
		}).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromRow(&row), nil
}

func (r *SessionRepository) Find(ctx context.Context, id string) (*access.ParkingSession, error) {
	var row ParkingSessionRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRow(&row), nil
}

// FindByPaymentTx resolves the session a payment notification refers to.
func (r *SessionRepository) FindByPaymentTx(ctx context.Context, txID string) (*access.ParkingSession, error) {
	var row ParkingSessionRow
	err := r.db.WithContext(ctx).Where("payment_tx_id = ?", txID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRow(&row), nil
}

// FindPendingBefore returns PENDING_PAYMENT sessions whose last update is
// older than the cutoff. Feeds the payment-timeout watchdog.
func (r *SessionRepository) FindPendingBefore(ctx context.Context, cutoff time.Time) ([]access.ParkingSession, error) {
	var rows []ParkingSessionRow
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(access.SessionPendingPayment), cutoff).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]access.ParkingSession, 0, len(rows))
	for i := range rows {
		out = append(out, *fromRow(&rows[i]))
	}
	return out, nil
}

// List returns sessions filtered by plate and/or status, newest first.
func (r *SessionRepository) List(ctx context.Context, plate, status *string, limit, offset int) ([]access.ParkingSession, error) {
	query := r.db.WithContext(ctx).Model(&ParkingSessionRow{})
	if plate != nil {
		query = query.Where("plate = ?", *plate)
	}
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	query = query.Order("entry_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []ParkingSessionRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]access.ParkingSession, 0, len(rows))
	for i := range rows {
		out = append(out, *fromRow(&rows[i]))
	}
	return out, nil
}

func toRow(s *access.ParkingSession) *ParkingSessionRow {
	row := &ParkingSessionRow{
		ID:            s.ID,
		Plate:         s.Plate,
		EntryTime:     s.EntryTime,
		ExitTime:      s.ExitTime,
		Status:        string(s.Status),
		FeeCents:      s.FeeCents,
		CameraEntryID: s.CameraEntryID,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.Currency != "" {
		row.Currency = &s.Currency
	}
	if s.PaymentMethod != "" {
		row.PaymentMethod = &s.PaymentMethod
	}
	if s.PaymentTxID != "" {
		row.PaymentTxID = &s.PaymentTxID
	}
	if s.CameraExitID != "" {
		row.CameraExitID = &s.CameraExitID
	}
	return row
}

func fromRow(row *ParkingSessionRow) *access.ParkingSession {
	s := &access.ParkingSession{
		ID:            row.ID,
		Plate:         row.Plate,
		EntryTime:     row.EntryTime,
		ExitTime:      row.ExitTime,
		Status:        access.SessionStatus(row.Status),
		FeeCents:      row.FeeCents,
		CameraEntryID: row.CameraEntryID,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.Currency != nil {
		s.Currency = *row.Currency
	}
	if row.PaymentMethod != nil {
		s.PaymentMethod = *row.PaymentMethod
	}
	if row.PaymentTxID != nil {
		s.PaymentTxID = *row.PaymentTxID
	}
	if row.CameraExitID != nil {
		s.CameraExitID = *row.CameraExitID
	}
	return s
}
