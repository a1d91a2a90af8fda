package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campusops/attendance-engine/internal/models"
)

func newRecordRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var recordColumnList = []string{"id", "session_id", "student_id", "status", "method", "method_rank", "marked_at", "marked_by", "created_at", "updated_at"}

func TestRecordRepositoryUpsertApplies(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(recordColumnList).
		AddRow("rec-1", "sess-1", "stud-1", models.RecordStatusPresent, models.MarkMethodManual, 3, now, "teacher-1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnRows(rows)

	record := &models.AttendanceRecord{
		SessionID: "sess-1",
		StudentID: "stud-1",
		Status:    models.RecordStatusPresent,
		Method:    models.MarkMethodManual,
		MarkedAt:  now,
	}
	stored, applied, err := repo.Upsert(context.Background(), record, false)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, models.MarkMethodManual, stored.Method)
	require.Equal(t, 3, record.MethodRank)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryUpsertLosesPrecedence(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	now := time.Now().UTC()

	// The conditional update fires nothing when the stored rank is higher,
	// so the insert surfaces ErrNoRows and the standing record is loaded.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnError(sql.ErrNoRows)
	rows := sqlmock.NewRows(recordColumnList).
		AddRow("rec-1", "sess-1", "stud-1", models.RecordStatusPresent, models.MarkMethodManual, 3, now, "teacher-1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, session_id, student_id")).
		WithArgs("sess-1", "stud-1").
		WillReturnRows(rows)

	record := &models.AttendanceRecord{
		SessionID: "sess-1",
		StudentID: "stud-1",
		Status:    models.RecordStatusPresent,
		Method:    models.MarkMethodQR,
		MarkedAt:  now,
	}
	stored, applied, err := repo.Upsert(context.Background(), record, false)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, models.MarkMethodManual, stored.Method)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryCountByStatusMethod(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	rows := sqlmock.NewRows([]string{"status", "method", "cnt"}).
		AddRow(models.RecordStatusPresent, models.MarkMethodQR, 18).
		AddRow(models.RecordStatusLate, models.MarkMethodManual, 4).
		AddRow(models.RecordStatusAbsent, models.MarkMethodAdmin, 8)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, method, COUNT(*)")).
		WithArgs("sess-1").
		WillReturnRows(rows)

	counts, err := repo.CountByStatusMethod(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, counts, 3)
	require.Equal(t, 18, counts[0].Count)
	require.NoError(t, mock.ExpectationsWereMet())
}
