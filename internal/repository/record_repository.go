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

const recordColumns = `id, session_id, student_id, status, method, method_rank, marked_at, marked_by, created_at, updated_at`

// RecordRepository handles persistence for the attendance ledger.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs the repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// Upsert writes a mark, enforcing the one-record-per-(session,student)
// invariant and the channel precedence rule in a single statement. The
// conditional update only fires when the incoming method outranks the stored
// one (or ties, when override is set, for explicit admin corrections), so a
// race between two channels resolves inside Postgres, never as a duplicate
// row. Returns the resulting record and whether this call changed the ledger.
func (r *RecordRepository) Upsert(ctx context.Context, record *models.AttendanceRecord, override bool) (*models.AttendanceRecord, bool, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.MethodRank = record.Method.Precedence()

	predicate := "attendance_records.method_rank < EXCLUDED.method_rank"
	if override {
		predicate = "attendance_records.method_rank <= EXCLUDED.method_rank"
	}
	query := fmt.Sprintf(`INSERT INTO attendance_records (`+recordColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (session_id, student_id)
DO UPDATE SET status = EXCLUDED.status, method = EXCLUDED.method, method_rank = EXCLUDED.method_rank,
	marked_at = EXCLUDED.marked_at, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at
WHERE %s
RETURNING `+recordColumns, predicate)

	var stored models.AttendanceRecord
	err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.SessionID, record.StudentID, record.Status, record.Method,
		record.MethodRank, record.MarkedAt, record.MarkedBy, now, now)
	if err == nil {
		return &stored, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("upsert attendance record: %w", err)
	}

	// The incoming mark lost the precedence comparison (or repeated the
	// same method). Surface the standing record instead of an error.
	existing, err := r.FindBySessionStudent(ctx, record.SessionID, record.StudentID)
	if err != nil {
		return nil, false, fmt.Errorf("load standing record: %w", err)
	}
	return existing, false, nil
}

// FindBySessionStudent loads the single record for a (session, student) pair.
func (r *RecordRepository) FindBySessionStudent(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE session_id = $1 AND student_id = $2`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, sessionID, studentID); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListBySession returns the session's ledger joined with roster identity,
// in roster order. This is the stable ordering used by exports.
func (r *RecordRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	query := `SELECT ar.id, ar.session_id, ar.student_id, ar.status, ar.method, ar.method_rank,
	ar.marked_at, ar.marked_by, ar.created_at, ar.updated_at,
	s.full_name AS student_name, s.service_number
FROM attendance_records ar
JOIN students s ON s.id = ar.student_id
JOIN enrollments e ON e.student_id = ar.student_id
JOIN attendance_sessions sess ON sess.id = ar.session_id AND e.class_id = sess.class_id
WHERE ar.session_id = $1
ORDER BY e.roster_seq ASC, s.service_number ASC`
	var records []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session records: %w", err)
	}
	return records, nil
}

// CountByStatusMethod aggregates the ledger for statistics. Each student
// contributes exactly one row because of the unique constraint, so method
// upgrades never double count.
func (r *RecordRepository) CountByStatusMethod(ctx context.Context, sessionID string) ([]models.StatusMethodCount, error) {
	query := `SELECT status, method, COUNT(*) AS cnt
FROM attendance_records
WHERE session_id = $1
GROUP BY status, method`
	var rows []models.StatusMethodCount
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("aggregate session records: %w", err)
	}
	return rows, nil
}
