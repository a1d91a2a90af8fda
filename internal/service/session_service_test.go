package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/campusops/attendance-engine/internal/models"
	appErrors "github.com/campusops/attendance-engine/pkg/errors"
)

type mockSessionRepo struct {
	sessions    map[string]*models.AttendanceSession
	created     []*models.AttendanceSession
	synthesized int
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*models.AttendanceSession)}
}

func (m *mockSessionRepo) Create(ctx context.Context, session *models.AttendanceSession) error {
	session.ID = "sess-new"
	m.sessions[session.ID] = session
	m.created = append(m.created, session)
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	session, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return session, nil
}

func (m *mockSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.AttendanceSession, int, error) {
	var out []models.AttendanceSession
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *mockSessionRepo) Activate(ctx context.Context, id string, startedAt time.Time) (*models.AttendanceSession, error) {
	session, ok := m.sessions[id]
	if !ok || session.Status != models.SessionStatusScheduled {
		return nil, sql.ErrNoRows
	}
	session.Status = models.SessionStatusActive
	session.StartedAt = &startedAt
	return session, nil
}

func (m *mockSessionRepo) Cancel(ctx context.Context, id string, endedAt time.Time) (*models.AttendanceSession, error) {
	session, ok := m.sessions[id]
	if !ok || session.Status.Terminal() {
		return nil, sql.ErrNoRows
	}
	session.Status = models.SessionStatusCancelled
	session.EndedAt = &endedAt
	return session, nil
}

func (m *mockSessionRepo) Complete(ctx context.Context, id string, endedAt time.Time) (*models.AttendanceSession, int, error) {
	session, ok := m.sessions[id]
	if !ok || session.Status != models.SessionStatusActive {
		return nil, 0, sql.ErrNoRows
	}
	session.Status = models.SessionStatusCompleted
	session.EndedAt = &endedAt
	return session, m.synthesized, nil
}

func (m *mockSessionRepo) ListActive(ctx context.Context) ([]models.AttendanceSession, error) {
	var out []models.AttendanceSession
	for _, s := range m.sessions {
		if s.Status == models.SessionStatusActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type rotorStub struct {
	issued  []string
	started []string
	stopped []string
}

func (r *rotorStub) Issue(ctx context.Context, session *models.AttendanceSession) (*models.QRToken, error) {
	r.issued = append(r.issued, session.ID)
	return &models.QRToken{SessionID: session.ID, Token: "tok"}, nil
}

func (r *rotorStub) StartRotation(ctx context.Context, session *models.AttendanceSession) {
	r.started = append(r.started, session.ID)
}

func (r *rotorStub) StopRotation(ctx context.Context, sessionID string) {
	r.stopped = append(r.stopped, sessionID)
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		StartWindow:       5 * time.Minute,
		DefaultQRInterval: 30 * time.Second,
		MinQRInterval:     10 * time.Second,
		MaxQRInterval:     5 * time.Minute,
	}
}

func scheduledSession(id string, start time.Time) *models.AttendanceSession {
	return &models.AttendanceSession{
		ID:               id,
		Title:            "Morning Muster",
		SessionType:      models.SessionTypeClass,
		ClassID:          "class-1",
		Status:           models.SessionStatusScheduled,
		ScheduledStart:   start,
		ScheduledEnd:     start.Add(time.Hour),
		AllowLateMinutes: 10,
		QRRefreshSeconds: 30,
		EnableQRScan:     true,
		EnableManual:     true,
		CreatedBy:        "admin-1",
	}
}

func TestSessionServiceCreateValidation(t *testing.T) {
	repo := newMockSessionRepo()
	svc := NewSessionService(repo, &auditStub{}, &rotorStub{}, testSessionConfig(), nil, validator.New(), nil)
	now := time.Now().UTC()

	base := CreateSessionRequest{
		Title:          "Muster",
		SessionType:    "CLASS",
		ClassID:        "class-1",
		ScheduledStart: now.Add(time.Hour),
		ScheduledEnd:   now.Add(2 * time.Hour),
		EnableQRScan:   true,
	}

	cases := []struct {
		name   string
		mutate func(*CreateSessionRequest)
	}{
		{"end before start", func(r *CreateSessionRequest) { r.ScheduledEnd = r.ScheduledStart.Add(-time.Minute) }},
		{"start in the past", func(r *CreateSessionRequest) { r.ScheduledStart = now.Add(-time.Hour) }},
		{"no channel enabled", func(r *CreateSessionRequest) { r.EnableQRScan = false }},
		{"interval too short", func(r *CreateSessionRequest) { r.QRRefreshSeconds = 5 }},
		{"interval too long", func(r *CreateSessionRequest) { r.QRRefreshSeconds = 3600 }},
		{"unknown type", func(r *CreateSessionRequest) { r.SessionType = "PARADE" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := svc.Create(context.Background(), req, "admin-1")
			var appErr *appErrors.Error
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
		})
	}
}

func TestSessionServiceCreateDefaultsInterval(t *testing.T) {
	repo := newMockSessionRepo()
	svc := NewSessionService(repo, &auditStub{}, &rotorStub{}, testSessionConfig(), nil, validator.New(), nil)
	now := time.Now().UTC()

	session, err := svc.Create(context.Background(), CreateSessionRequest{
		Title:          "Muster",
		SessionType:    "CLASS",
		ClassID:        "class-1",
		ScheduledStart: now.Add(time.Hour),
		ScheduledEnd:   now.Add(2 * time.Hour),
		EnableQRScan:   true,
	}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusScheduled, session.Status)
	require.Equal(t, 30, session.QRRefreshSeconds)
	require.Equal(t, "admin-1", session.CreatedBy)
}

func TestSessionServiceStartTooEarly(t *testing.T) {
	repo := newMockSessionRepo()
	start := time.Now().UTC().Add(time.Hour)
	repo.sessions["sess-1"] = scheduledSession("sess-1", start)
	svc := NewSessionService(repo, &auditStub{}, &rotorStub{}, testSessionConfig(), nil, validator.New(), nil)

	_, err := svc.Start(context.Background(), "sess-1", "admin-1", models.RequestMeta{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrTooEarly.Code, appErr.Code)
}

func TestSessionServiceStartWithinWindow(t *testing.T) {
	repo := newMockSessionRepo()
	rotor := &rotorStub{}
	audit := &auditStub{}
	start := time.Now().UTC().Add(3 * time.Minute)
	repo.sessions["sess-1"] = scheduledSession("sess-1", start)
	svc := NewSessionService(repo, audit, rotor, testSessionConfig(), nil, validator.New(), nil)

	session, err := svc.Start(context.Background(), "sess-1", "admin-1", models.RequestMeta{IP: "10.0.0.1"})
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusActive, session.Status)
	require.Equal(t, []string{"sess-1"}, rotor.issued)
	require.Equal(t, []string{"sess-1"}, rotor.started)
	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionSessionStart, audit.logs[0].Action)
}

func TestSessionServiceStartAlreadyActive(t *testing.T) {
	repo := newMockSessionRepo()
	start := time.Now().UTC()
	session := scheduledSession("sess-1", start)
	session.Status = models.SessionStatusActive
	repo.sessions["sess-1"] = session
	svc := NewSessionService(repo, &auditStub{}, &rotorStub{}, testSessionConfig(), nil, validator.New(), nil)

	_, err := svc.Start(context.Background(), "sess-1", "admin-1", models.RequestMeta{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
}

func TestSessionServiceEndSynthesizesAbsences(t *testing.T) {
	repo := newMockSessionRepo()
	rotor := &rotorStub{}
	start := time.Now().UTC().Add(-time.Hour)
	session := scheduledSession("sess-1", start)
	session.Status = models.SessionStatusActive
	repo.sessions["sess-1"] = session
	// 30 enrolled, 22 marked by the channels, 8 left for the close to fill.
	repo.synthesized = 8
	svc := NewSessionService(repo, &auditStub{}, rotor, testSessionConfig(), nil, validator.New(), nil)

	ended, synthesized, err := svc.End(context.Background(), "sess-1", "admin-1", models.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusCompleted, ended.Status)
	require.Equal(t, 8, synthesized)
	require.Equal(t, []string{"sess-1"}, rotor.stopped)
}

func TestSessionServiceEndAlreadyCompleted(t *testing.T) {
	repo := newMockSessionRepo()
	start := time.Now().UTC().Add(-time.Hour)
	session := scheduledSession("sess-1", start)
	session.Status = models.SessionStatusCompleted
	repo.sessions["sess-1"] = session
	// A second close must fail cleanly, never write a second absence batch.
	repo.synthesized = 8
	svc := NewSessionService(repo, &auditStub{}, &rotorStub{}, testSessionConfig(), nil, validator.New(), nil)

	_, synthesized, err := svc.End(context.Background(), "sess-1", "admin-1", models.RequestMeta{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
	require.Zero(t, synthesized)
}

func TestSessionServiceStartFinishedSession(t *testing.T) {
	repo := newMockSessionRepo()
	// Scheduled start still in the future: the state check must win over
	// the start-window check.
	start := time.Now().UTC().Add(time.Hour)
	session := scheduledSession("sess-1", start)
	session.Status = models.SessionStatusCompleted
	repo.sessions["sess-1"] = session
	svc := NewSessionService(repo, &auditStub{}, &rotorStub{}, testSessionConfig(), nil, validator.New(), nil)

	_, err := svc.Start(context.Background(), "sess-1", "admin-1", models.RequestMeta{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
}

func TestSessionServiceCancelFinishedSession(t *testing.T) {
	repo := newMockSessionRepo()
	start := time.Now().UTC().Add(-time.Hour)
	session := scheduledSession("sess-1", start)
	session.Status = models.SessionStatusCompleted
	repo.sessions["sess-1"] = session
	svc := NewSessionService(repo, &auditStub{}, &rotorStub{}, testSessionConfig(), nil, validator.New(), nil)

	_, err := svc.CancelSession(context.Background(), "sess-1", "admin-1", models.RequestMeta{})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrInvalidState.Code, appErr.Code)
}

func TestSessionServiceResumeRotation(t *testing.T) {
	repo := newMockSessionRepo()
	rotor := &rotorStub{}
	start := time.Now().UTC().Add(-time.Hour)
	active := scheduledSession("sess-1", start)
	active.Status = models.SessionStatusActive
	repo.sessions["sess-1"] = active
	noQR := scheduledSession("sess-2", start)
	noQR.Status = models.SessionStatusActive
	noQR.EnableQRScan = false
	repo.sessions["sess-2"] = noQR
	svc := NewSessionService(repo, &auditStub{}, rotor, testSessionConfig(), nil, validator.New(), nil)

	require.NoError(t, svc.ResumeRotation(context.Background()))
	require.Equal(t, []string{"sess-1"}, rotor.started)
}
