package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS authorizations (
		id              BIGSERIAL PRIMARY KEY,
		plate           TEXT NOT NULL,
		owner           TEXT,
		vehicle_type    TEXT,
		authorized      BOOLEAN NOT NULL DEFAULT TRUE,
		valid_from      TIMESTAMPTZ,
		valid_until     TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_authorizations_plate ON authorizations(plate);`,
	`CREATE TABLE IF NOT EXISTS parking_sessions (
		id              UUID PRIMARY KEY,
		plate           TEXT NOT NULL,
		entry_time      TIMESTAMPTZ NOT NULL,
		exit_time       TIMESTAMPTZ,
		status          TEXT NOT NULL,
		fee_cents       BIGINT,
		currency        TEXT,
		payment_method  TEXT,
		payment_tx_id   TEXT,
		camera_entry_id TEXT NOT NULL,
		camera_exit_id  TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_parking_sessions_plate ON parking_sessions(plate);`,
	`CREATE INDEX IF NOT EXISTS idx_parking_sessions_status ON parking_sessions(status);`,
	`CREATE INDEX IF NOT EXISTS idx_parking_sessions_payment_tx ON parking_sessions(payment_tx_id);`,
	// Storage-level enforcement of the one-open-session-per-plate invariant.
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_parking_sessions_open_plate
		ON parking_sessions(plate)
		WHERE status IN ('ACTIVE', 'PENDING_PAYMENT');`,
	`CREATE TABLE IF NOT EXISTS detection_events (
		id               BIGSERIAL PRIMARY KEY,
		camera_id        TEXT NOT NULL,
		raw_plate        TEXT NOT NULL,
		normalized_plate TEXT NOT NULL,
		confidence       NUMERIC(5,2),
		vehicle_color    TEXT,
		vehicle_type     TEXT,
		snapshot_url     TEXT,
		event_time       TIMESTAMPTZ NOT NULL,
		raw_payload      JSONB,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_detection_events_plate ON detection_events(normalized_plate);`,
	`CREATE INDEX IF NOT EXISTS idx_detection_events_event_time ON detection_events(event_time);`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM authorizations WHERE plate = 'STAFF001') THEN
			INSERT INTO authorizations (plate, owner, vehicle_type, authorized)
			VALUES ('STAFF001', 'Facility staff', 'car', TRUE);
		END IF;
	END
	$$;`,
}

// RunMigrations applies the schema statements in order. Statements are
// idempotent so repeated startups are safe.
func RunMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
