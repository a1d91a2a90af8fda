package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/campusops/attendance-engine/internal/middleware"
	"github.com/campusops/attendance-engine/internal/models"
	"github.com/campusops/attendance-engine/internal/service"
)

type recordRepoStub struct {
	upserted *models.AttendanceRecord
}

func (s *recordRepoStub) Upsert(ctx context.Context, record *models.AttendanceRecord, override bool) (*models.AttendanceRecord, bool, error) {
	record.ID = "rec-1"
	s.upserted = record
	return record, true, nil
}

func (s *recordRepoStub) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	return nil, nil
}

type sessionReaderStub struct {
	session *models.AttendanceSession
}

func (s *sessionReaderStub) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	return s.session, nil
}

type enrollmentReaderStub struct{}

func (enrollmentReaderStub) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	return true, nil
}

type tokenCheckerStub struct {
	validated []string
}

func (s *tokenCheckerStub) Validate(ctx context.Context, sessionID, tokenValue string) error {
	s.validated = append(s.validated, tokenValue)
	return nil
}

type auditWriterStub struct{}

func (auditWriterStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error { return nil }

func newMarkFixture() (*AttendanceHandler, *recordRepoStub, *tokenCheckerStub) {
	start := time.Now().UTC().Add(-10 * time.Minute)
	session := &models.AttendanceSession{
		ID:               "sess-1",
		ClassID:          "class-1",
		Status:           models.SessionStatusActive,
		ScheduledStart:   start,
		ScheduledEnd:     start.Add(time.Hour),
		AllowLateMinutes: 15,
		EnableQRScan:     true,
		EnableManual:     true,
	}
	records := &recordRepoStub{}
	tokens := &tokenCheckerStub{}
	svc := service.NewAttendanceService(records, &sessionReaderStub{session: session}, enrollmentReaderStub{}, tokens, auditWriterStub{}, nil, nil, nil)
	return NewAttendanceHandler(svc), records, tokens
}

func markContext(t *testing.T, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodPost, "/sessions/sess-1/scan", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}
	return c, w
}

func TestAttendanceHandlerQRScanWithoutAuth(t *testing.T) {
	handler, records, tokens := newMarkFixture()
	c, w := markContext(t, map[string]interface{}{
		"student_id": "stud-1",
		"method":     "QR_SCAN",
		"token":      "tok-abc",
	})

	handler.Mark(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"tok-abc"}, tokens.validated)
	require.NotNil(t, records.upserted)
	require.Nil(t, records.upserted.MarkedBy)
}

func TestAttendanceHandlerBiometricRejectedOverHTTP(t *testing.T) {
	handler, records, _ := newMarkFixture()
	c, w := markContext(t, map[string]interface{}{
		"student_id": "stud-1",
		"method":     "BIOMETRIC",
	})
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Mark(c)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Nil(t, records.upserted)
}

func TestAttendanceHandlerIgnoresClientObservedAt(t *testing.T) {
	handler, records, _ := newMarkFixture()
	// A backdated timestamp in the payload must not reach the ledger.
	c, w := markContext(t, map[string]interface{}{
		"student_id":  "stud-1",
		"method":      "QR_SCAN",
		"token":       "tok-abc",
		"observed_at": "2020-01-01T00:00:00Z",
	})

	handler.Mark(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.WithinDuration(t, time.Now().UTC(), records.upserted.MarkedAt, 5*time.Second)
}

func TestAttendanceHandlerManualRequiresAuth(t *testing.T) {
	handler, _, _ := newMarkFixture()
	c, w := markContext(t, map[string]interface{}{
		"student_id": "stud-1",
		"method":     "MANUAL",
	})

	handler.Mark(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttendanceHandlerManualStampsActor(t *testing.T) {
	handler, records, _ := newMarkFixture()
	c, w := markContext(t, map[string]interface{}{
		"student_id": "stud-1",
		"method":     "MANUAL",
	})
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleInstructor})

	handler.Mark(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, records.upserted.MarkedBy)
	require.Equal(t, "teacher-1", *records.upserted.MarkedBy)
}

func TestAttendanceHandlerAdminChannelForbiddenForInstructor(t *testing.T) {
	handler, _, _ := newMarkFixture()
	c, w := markContext(t, map[string]interface{}{
		"student_id": "stud-1",
		"method":     "ADMIN",
	})
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleInstructor})

	handler.Mark(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAttendanceHandlerMarkInvalidBody(t *testing.T) {
	handler, _, _ := newMarkFixture()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/sessions/sess-1/scan", bytes.NewReader([]byte(`invalid`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}

	handler.Mark(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
