package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/attendance-engine/internal/models"
)

const sessionColumns = `id, title, session_type, class_id, status, scheduled_start, scheduled_end,
allow_late_minutes, qr_refresh_seconds, enable_qr_scan, enable_manual, enable_biometric,
require_location, created_by, started_at, ended_at, created_at, updated_at`

// SessionRepository handles persistence for attendance sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create persists a new session in its initial state.
func (r *SessionRepository) Create(ctx context.Context, session *models.AttendanceSession) error {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.CreatedAt = now
	session.UpdatedAt = now
	query := `INSERT INTO attendance_sessions (` + sessionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.Title, session.SessionType, session.ClassID, session.Status,
		session.ScheduledStart, session.ScheduledEnd, session.AllowLateMinutes, session.QRRefreshSeconds,
		session.EnableQRScan, session.EnableManual, session.EnableBiometric, session.RequireLocation,
		session.CreatedBy, session.StartedAt, session.EndedAt, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindByID loads a single session.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE id = $1`
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns sessions matching the provided filter.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.AttendanceSession, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Type != nil && filter.Type.Valid() {
		where = append(where, fmt.Sprintf("session_type = $%d", len(args)+1))
		args = append(args, *filter.Type)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("scheduled_start >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("scheduled_start <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"scheduled_start": "scheduled_start",
		"created_at":      "created_at",
		"status":          "status",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "scheduled_start"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM attendance_sessions WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		sessionColumns, whereClause, sortColumn, order, size, offset)
	var sessions []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM attendance_sessions WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// Activate flips a scheduled session to active. The status predicate in the
// UPDATE serializes concurrent transitions: the loser sees sql.ErrNoRows.
func (r *SessionRepository) Activate(ctx context.Context, id string, startedAt time.Time) (*models.AttendanceSession, error) {
	query := `UPDATE attendance_sessions
SET status = $1, started_at = $2, updated_at = $2
WHERE id = $3 AND status = $4
RETURNING ` + sessionColumns
	var session models.AttendanceSession
	err := r.db.GetContext(ctx, &session, query,
		models.SessionStatusActive, startedAt, id, models.SessionStatusScheduled)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Cancel flips a scheduled or active session to cancelled.
func (r *SessionRepository) Cancel(ctx context.Context, id string, endedAt time.Time) (*models.AttendanceSession, error) {
	query := `UPDATE attendance_sessions
SET status = $1, ended_at = $2, updated_at = $2
WHERE id = $3 AND status IN ($4, $5)
RETURNING ` + sessionColumns
	var session models.AttendanceSession
	err := r.db.GetContext(ctx, &session, query,
		models.SessionStatusCancelled, endedAt, id, models.SessionStatusScheduled, models.SessionStatusActive)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Complete flips an active session to completed and synthesizes an absent
// record for every enrolled student with no mark, in one transaction. A
// crash before commit leaves the session active, so the close is retryable
// without double-writing.
func (r *SessionRepository) Complete(ctx context.Context, id string, endedAt time.Time) (*models.AttendanceSession, int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin complete session: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	flip := `UPDATE attendance_sessions
SET status = $1, ended_at = $2, updated_at = $2
WHERE id = $3 AND status = $4
RETURNING ` + sessionColumns
	var session models.AttendanceSession
	if err := tx.GetContext(ctx, &session, flip,
		models.SessionStatusCompleted, endedAt, id, models.SessionStatusActive); err != nil {
		return nil, 0, err
	}

	missing := `SELECT e.student_id FROM enrollments e
WHERE e.class_id = $1 AND e.active
  AND NOT EXISTS (
    SELECT 1 FROM attendance_records ar
    WHERE ar.session_id = $2 AND ar.student_id = e.student_id
  )
ORDER BY e.roster_seq`
	var studentIDs []string
	if err := tx.SelectContext(ctx, &studentIDs, missing, session.ClassID, session.ID); err != nil {
		return nil, 0, fmt.Errorf("find unmarked students: %w", err)
	}

	insert := `INSERT INTO attendance_records (id, session_id, student_id, status, method, method_rank, marked_at, marked_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (session_id, student_id) DO NOTHING`
	synthesized := 0
	for _, studentID := range studentIDs {
		res, err := tx.ExecContext(ctx, insert,
			uuid.NewString(), session.ID, studentID,
			models.RecordStatusAbsent, models.MarkMethodAdmin, models.MarkMethodAdmin.Precedence(),
			endedAt, session.CreatedBy, endedAt, endedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("synthesize absence for %s: %w", studentID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			synthesized += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit complete session: %w", err)
	}
	committed = true
	return &session, synthesized, nil
}

// ListActive returns all sessions currently in the active state. Used on
// startup to resume token rotation after a restart.
func (r *SessionRepository) ListActive(ctx context.Context) ([]models.AttendanceSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE status = $1`
	var sessions []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &sessions, query, models.SessionStatusActive); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// CandidateSessionsForScan finds active sessions whose marking window covers
// the scan time for a class the student is enrolled in, earliest scheduled
// start first. The ordering makes reconciliation of overlapping sessions
// deterministic across repeated runs.
func (r *SessionRepository) CandidateSessionsForScan(ctx context.Context, studentID string, scanTime time.Time) ([]models.AttendanceSession, error) {
	query := `SELECT ` + prefixedSessionColumns("s") + ` FROM attendance_sessions s
JOIN enrollments e ON e.class_id = s.class_id AND e.student_id = $1 AND e.active
WHERE s.status = $2
  AND s.scheduled_start - make_interval(mins => s.allow_late_minutes) <= $3
  AND $3 <= s.scheduled_end
ORDER BY s.scheduled_start ASC, s.id ASC`
	var sessions []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &sessions, query, studentID, models.SessionStatusActive, scanTime); err != nil {
		return nil, fmt.Errorf("candidate sessions: %w", err)
	}
	return sessions, nil
}

func prefixedSessionColumns(alias string) string {
	cols := strings.Split(sessionColumns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}
