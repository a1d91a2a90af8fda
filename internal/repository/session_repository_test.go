package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campusops/attendance-engine/internal/models"
)

func newSessionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var sessionColumnList = []string{
	"id", "title", "session_type", "class_id", "status", "scheduled_start", "scheduled_end",
	"allow_late_minutes", "qr_refresh_seconds", "enable_qr_scan", "enable_manual", "enable_biometric",
	"require_location", "created_by", "started_at", "ended_at", "created_at", "updated_at",
}

func sessionRow(id string, status models.SessionStatus, start, end time.Time) []driver.Value {
	now := time.Now().UTC()
	return []driver.Value{
		id, "Morning Muster", models.SessionTypeClass, "class-1", status, start, end,
		10, 30, true, true, true, false, "admin-1", nil, nil, now, now,
	}
}

func TestSessionRepositoryActivate(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	start := time.Now().UTC()
	rows := sqlmock.NewRows(sessionColumnList).
		AddRow(sessionRow("sess-1", models.SessionStatusActive, start, start.Add(time.Hour))...)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE attendance_sessions")).
		WithArgs(models.SessionStatusActive, sqlmock.AnyArg(), "sess-1", models.SessionStatusScheduled).
		WillReturnRows(rows)

	session, err := repo.Activate(context.Background(), "sess-1", start)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusActive, session.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryActivateLosesRace(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE attendance_sessions")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Activate(context.Background(), "sess-1", time.Now().UTC())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCompleteSynthesizesAbsences(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	endedAt := time.Now().UTC()

	mock.ExpectBegin()
	flipRows := sqlmock.NewRows(sessionColumnList).
		AddRow(sessionRow("sess-1", models.SessionStatusCompleted, endedAt.Add(-time.Hour), endedAt)...)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE attendance_sessions")).
		WithArgs(models.SessionStatusCompleted, sqlmock.AnyArg(), "sess-1", models.SessionStatusActive).
		WillReturnRows(flipRows)

	missing := sqlmock.NewRows([]string{"student_id"}).
		AddRow("stud-7").
		AddRow("stud-9")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT e.student_id FROM enrollments")).
		WithArgs("class-1", "sess-1").
		WillReturnRows(missing)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	session, synthesized, err := repo.Complete(context.Background(), "sess-1", endedAt)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusCompleted, session.Status)
	require.Equal(t, 2, synthesized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCompleteNotActive(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE attendance_sessions")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := repo.Complete(context.Background(), "sess-1", time.Now().UTC())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCandidateSessionsForScan(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	repo := NewSessionRepository(db)
	scanTime := time.Now().UTC()
	rows := sqlmock.NewRows(sessionColumnList).
		AddRow(sessionRow("sess-1", models.SessionStatusActive, scanTime.Add(-10*time.Minute), scanTime.Add(50*time.Minute))...)
	mock.ExpectQuery(regexp.QuoteMeta("JOIN enrollments e ON")).
		WithArgs("stud-1", models.SessionStatusActive, scanTime).
		WillReturnRows(rows)

	sessions, err := repo.CandidateSessionsForScan(context.Background(), "stud-1", scanTime)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "sess-1", sessions[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
