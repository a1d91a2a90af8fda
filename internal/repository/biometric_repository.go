package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/attendance-engine/internal/models"
)

const scanColumns = `id, device_id, device_type, biometric_id, scan_time, processed, linked_record_id, ingested_at, processed_at`

// BiometricRepository handles persistence for raw device scans.
type BiometricRepository struct {
	db *sqlx.DB
}

// NewBiometricRepository constructs the repository.
func NewBiometricRepository(db *sqlx.DB) *BiometricRepository {
	return &BiometricRepository{db: db}
}

// Insert stores a scan keyed by (device_id, biometric_id, scan_time).
// Returns false without error when the key already exists: device sync is
// expected to retry and re-send batches.
func (r *BiometricRepository) Insert(ctx context.Context, scan *models.BiometricScan) (bool, error) {
	if scan.ID == "" {
		scan.ID = uuid.NewString()
	}
	if scan.IngestedAt.IsZero() {
		scan.IngestedAt = time.Now().UTC()
	}
	query := `INSERT INTO biometric_scans (id, device_id, device_type, biometric_id, scan_time, processed, ingested_at)
VALUES ($1, $2, $3, $4, $5, false, $6)
ON CONFLICT (device_id, biometric_id, scan_time) DO NOTHING
RETURNING id`
	var insertedID string
	err := r.db.GetContext(ctx, &insertedID, query,
		scan.ID, scan.DeviceID, scan.DeviceType, scan.BiometricID, scan.ScanTime, scan.IngestedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert biometric scan: %w", err)
	}
	return true, nil
}

// ListUnprocessed returns pending scans oldest first, bounded by limit.
func (r *BiometricRepository) ListUnprocessed(ctx context.Context, limit int) ([]models.BiometricScan, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT ` + scanColumns + ` FROM biometric_scans
WHERE NOT processed
ORDER BY scan_time ASC, id ASC
LIMIT $1`
	var scans []models.BiometricScan
	if err := r.db.SelectContext(ctx, &scans, query, limit); err != nil {
		return nil, fmt.Errorf("list unprocessed scans: %w", err)
	}
	return scans, nil
}

// Claim marks a scan processed and links it to a ledger record. The
// processed predicate is a compare-and-set: when two reconciliation runs
// race on the same scan only one observes a row change.
func (r *BiometricRepository) Claim(ctx context.Context, scanID string, recordID *string, processedAt time.Time) (bool, error) {
	query := `UPDATE biometric_scans
SET processed = true, linked_record_id = $1, processed_at = $2
WHERE id = $3 AND NOT processed`
	res, err := r.db.ExecContext(ctx, query, recordID, processedAt, scanID)
	if err != nil {
		return false, fmt.Errorf("claim biometric scan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim biometric scan: %w", err)
	}
	return affected == 1, nil
}
