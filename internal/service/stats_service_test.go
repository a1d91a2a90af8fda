package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campusops/attendance-engine/internal/models"
	appErrors "github.com/campusops/attendance-engine/pkg/errors"
)

type statsRecordStub struct {
	rows []models.StatusMethodCount
}

func (s *statsRecordStub) CountByStatusMethod(ctx context.Context, sessionID string) ([]models.StatusMethodCount, error) {
	return s.rows, nil
}

type statsEnrollmentStub struct {
	total int
}

func (s *statsEnrollmentStub) CountActive(ctx context.Context, classID string) (int, error) {
	return s.total, nil
}

func TestStatsServiceSessionStatistics(t *testing.T) {
	sessions := &mockSessionReader{sessions: map[string]*models.AttendanceSession{
		"sess-1": {ID: "sess-1", ClassID: "class-1", Status: models.SessionStatusCompleted},
	}}
	records := &statsRecordStub{rows: []models.StatusMethodCount{
		{Status: models.RecordStatusPresent, Method: models.MarkMethodQR, Count: 20},
		{Status: models.RecordStatusPresent, Method: models.MarkMethodManual, Count: 2},
		{Status: models.RecordStatusLate, Method: models.MarkMethodBiometric, Count: 3},
		{Status: models.RecordStatusExcused, Method: models.MarkMethodAdmin, Count: 1},
		{Status: models.RecordStatusAbsent, Method: models.MarkMethodAdmin, Count: 4},
	}}
	svc := NewStatsService(sessions, records, &statsEnrollmentStub{total: 30}, nil)

	stats, err := svc.SessionStatistics(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, 30, stats.TotalStudents)
	require.Equal(t, 22, stats.PresentCount)
	require.Equal(t, 3, stats.LateCount)
	require.Equal(t, 4, stats.AbsentCount)
	require.Equal(t, 1, stats.ExcusedCount)
	require.Equal(t, 20, stats.QRScanCount)
	require.Equal(t, 2, stats.ManualCount)
	require.Equal(t, 3, stats.BiometricCount)
	require.Equal(t, 5, stats.AdminCount)
	// (22 present + 3 late) / 30 enrolled, a fraction of the roster.
	require.Equal(t, 0.8333, stats.AttendanceRate)
}

func TestStatsServiceEmptyRoster(t *testing.T) {
	sessions := &mockSessionReader{sessions: map[string]*models.AttendanceSession{
		"sess-1": {ID: "sess-1", ClassID: "class-1"},
	}}
	svc := NewStatsService(sessions, &statsRecordStub{}, &statsEnrollmentStub{total: 0}, nil)

	stats, err := svc.SessionStatistics(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Zero(t, stats.AttendanceRate)
}

func TestStatsServiceSessionNotFound(t *testing.T) {
	svc := NewStatsService(&mockSessionReader{sessions: map[string]*models.AttendanceSession{}}, &statsRecordStub{}, &statsEnrollmentStub{}, nil)

	_, err := svc.SessionStatistics(context.Background(), "nope")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
