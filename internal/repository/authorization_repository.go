package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"parkgate-service/internal/domain/access"
)

type AuthorizationRepository struct {
	db *gorm.DB
}

func NewAuthorizationRepository(db *gorm.DB) *AuthorizationRepository {
	return &AuthorizationRepository{db: db}
}

type AuthorizationRecord struct {
	ID          int64  `gorm:"primaryKey"`
	Plate       string `gorm:"not null;uniqueIndex"`
	Owner       *string
	VehicleType *string
	Authorized  bool `gorm:"not null"`
	ValidFrom   *time.Time
	ValidUntil  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (AuthorizationRecord) TableName() string { return "authorizations" }

// Lookup returns the authorization record for a normalized plate, or nil if
// the plate is unknown.
func (r *AuthorizationRepository) Lookup(ctx context.Context, plate string) (*access.Authorization, error) {
	var rec AuthorizationRecord
	err := r.db.WithContext(ctx).Where("plate = ?", plate).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toAuthorization(&rec), nil
}

func toAuthorization(rec *AuthorizationRecord) *access.Authorization {
	a := &access.Authorization{
		ID:         rec.ID,
		Plate:      rec.Plate,
		Authorized: rec.Authorized,
		ValidFrom:  rec.ValidFrom,
		ValidUntil: rec.ValidUntil,
	}
	if rec.Owner != nil {
		a.Owner = *rec.Owner
	}
	if rec.VehicleType != nil {
		a.VehicleType = *rec.VehicleType
	}
	return a
}
