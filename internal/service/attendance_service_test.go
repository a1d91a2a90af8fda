package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/campusops/attendance-engine/internal/models"
	appErrors "github.com/campusops/attendance-engine/pkg/errors"
)

type mockRecordRepo struct {
	records map[string]*models.AttendanceRecord
	upserts []struct {
		record   models.AttendanceRecord
		override bool
	}
	details []models.AttendanceRecordDetail
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: make(map[string]*models.AttendanceRecord)}
}

func (m *mockRecordRepo) Upsert(ctx context.Context, record *models.AttendanceRecord, override bool) (*models.AttendanceRecord, bool, error) {
	m.upserts = append(m.upserts, struct {
		record   models.AttendanceRecord
		override bool
	}{*record, override})

	key := record.SessionID + ":" + record.StudentID
	record.MethodRank = record.Method.Precedence()
	existing, ok := m.records[key]
	if !ok {
		stored := *record
		stored.ID = "rec-" + record.StudentID
		m.records[key] = &stored
		return &stored, true, nil
	}
	if record.MethodRank > existing.MethodRank || (override && record.MethodRank >= existing.MethodRank) {
		record.ID = existing.ID
		stored := *record
		m.records[key] = &stored
		return &stored, true, nil
	}
	return existing, false, nil
}

func (m *mockRecordRepo) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	return m.details, nil
}

type enrollmentStub struct {
	enrolled map[string]bool
}

func (e *enrollmentStub) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	return e.enrolled[studentID], nil
}

type tokenValidatorStub struct {
	err    error
	tokens []string
}

func (t *tokenValidatorStub) Validate(ctx context.Context, sessionID, tokenValue string) error {
	t.tokens = append(t.tokens, tokenValue)
	return t.err
}

func newAttendanceFixture(session *models.AttendanceSession) (*AttendanceService, *mockRecordRepo, *tokenValidatorStub) {
	records := newMockRecordRepo()
	tokens := &tokenValidatorStub{}
	sessions := &mockSessionReader{sessions: map[string]*models.AttendanceSession{session.ID: session}}
	enrollments := &enrollmentStub{enrolled: map[string]bool{"stud-1": true}}
	svc := NewAttendanceService(records, sessions, enrollments, tokens, &auditStub{}, nil, validator.New(), nil)
	return svc, records, tokens
}

func markingSession() *models.AttendanceSession {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &models.AttendanceSession{
		ID:               "sess-1",
		ClassID:          "class-1",
		Status:           models.SessionStatusActive,
		ScheduledStart:   start,
		ScheduledEnd:     start.Add(time.Hour),
		AllowLateMinutes: 10,
		QRRefreshSeconds: 30,
		EnableQRScan:     true,
		EnableManual:     true,
		EnableBiometric:  true,
	}
}

func TestAttendanceServiceMarkLateBoundary(t *testing.T) {
	session := markingSession()
	svc, _, _ := newAttendanceFixture(session)

	// Exactly at the deadline counts as present.
	onTime := session.ScheduledStart.Add(10 * time.Minute)
	result, err := svc.Mark(context.Background(), MarkRequest{
		SessionID:  "sess-1",
		StudentID:  "stud-1",
		Method:     string(models.MarkMethodManual),
		ObservedAt: &onTime,
		MarkedBy:   "teacher-1",
	})
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Equal(t, models.RecordStatusPresent, result.Record.Status)

	svc2, _, _ := newAttendanceFixture(markingSession())
	late := session.ScheduledStart.Add(10*time.Minute + time.Second)
	result, err = svc2.Mark(context.Background(), MarkRequest{
		SessionID:  "sess-1",
		StudentID:  "stud-1",
		Method:     string(models.MarkMethodManual),
		ObservedAt: &late,
	})
	require.NoError(t, err)
	require.Equal(t, models.RecordStatusLate, result.Record.Status)
}

func TestAttendanceServiceMarkChannelDisabled(t *testing.T) {
	session := markingSession()
	session.EnableQRScan = false
	svc, _, _ := newAttendanceFixture(session)

	_, err := svc.Mark(context.Background(), MarkRequest{
		SessionID: "sess-1",
		StudentID: "stud-1",
		Method:    string(models.MarkMethodQR),
		Token:     "tok",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrChannelDisabled.Code, appErr.Code)
}

func TestAttendanceServiceMarkNotEnrolled(t *testing.T) {
	svc, _, _ := newAttendanceFixture(markingSession())

	_, err := svc.Mark(context.Background(), MarkRequest{
		SessionID: "sess-1",
		StudentID: "stud-99",
		Method:    string(models.MarkMethodManual),
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAttendanceServiceMarkInactiveSession(t *testing.T) {
	session := markingSession()
	session.Status = models.SessionStatusScheduled
	svc, _, _ := newAttendanceFixture(session)

	_, err := svc.Mark(context.Background(), MarkRequest{
		SessionID: "sess-1",
		StudentID: "stud-1",
		Method:    string(models.MarkMethodManual),
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
}

func TestAttendanceServiceMarkQRTokenRejected(t *testing.T) {
	session := markingSession()
	svc, _, tokens := newAttendanceFixture(session)
	tokens.err = appErrors.ErrTokenExpired

	_, err := svc.Mark(context.Background(), MarkRequest{
		SessionID: "sess-1",
		StudentID: "stud-1",
		Method:    string(models.MarkMethodQR),
		Token:     "stale",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrTokenExpired.Code, appErr.Code)
	require.Equal(t, []string{"stale"}, tokens.tokens)
}

func TestAttendanceServiceLowerPrecedenceKeepsStanding(t *testing.T) {
	svc, records, _ := newAttendanceFixture(markingSession())

	observed := time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)
	first, err := svc.Mark(context.Background(), MarkRequest{
		SessionID:  "sess-1",
		StudentID:  "stud-1",
		Method:     string(models.MarkMethodManual),
		ObservedAt: &observed,
		MarkedBy:   "teacher-1",
	})
	require.NoError(t, err)
	require.True(t, first.Applied)

	// A later biometric scan must not downgrade the manual mark.
	second, err := svc.Mark(context.Background(), MarkRequest{
		SessionID:  "sess-1",
		StudentID:  "stud-1",
		Method:     string(models.MarkMethodBiometric),
		ObservedAt: &observed,
	})
	require.NoError(t, err)
	require.False(t, second.Applied)
	require.Equal(t, models.MarkMethodManual, second.Record.Method)
	require.Len(t, records.upserts, 2)
}

func TestAttendanceServiceExcuseOverrides(t *testing.T) {
	svc, records, _ := newAttendanceFixture(markingSession())

	observed := time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)
	_, err := svc.Mark(context.Background(), MarkRequest{
		SessionID:  "sess-1",
		StudentID:  "stud-1",
		Method:     string(models.MarkMethodManual),
		ObservedAt: &observed,
	})
	require.NoError(t, err)

	record, err := svc.Excuse(context.Background(), ExcuseRequest{
		SessionID: "sess-1",
		StudentID: "stud-1",
		Reason:    "medical appointment",
	}, "admin-1", models.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, models.RecordStatusExcused, record.Status)
	require.Equal(t, models.MarkMethodAdmin, record.Method)
	require.True(t, records.upserts[len(records.upserts)-1].override)
}

func TestAttendanceServiceExcuseOnFinishedSession(t *testing.T) {
	// A terminal session's ledger is frozen; excuses are refused for both
	// terminal states.
	for _, status := range []models.SessionStatus{models.SessionStatusCompleted, models.SessionStatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			session := markingSession()
			session.Status = status
			svc, records, _ := newAttendanceFixture(session)

			_, err := svc.Excuse(context.Background(), ExcuseRequest{
				SessionID: "sess-1",
				StudentID: "stud-1",
				Reason:    "medical",
			}, "admin-1", models.RequestMeta{})
			var appErr *appErrors.Error
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
			require.Empty(t, records.upserts)
		})
	}
}
