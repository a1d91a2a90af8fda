package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/attendance-engine/internal/models"
	appErrors "github.com/campusops/attendance-engine/pkg/errors"
)

type recordRepository interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord, override bool) (*models.AttendanceRecord, bool, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error)
}

type enrollmentReader interface {
	IsEnrolled(ctx context.Context, classID, studentID string) (bool, error)
}

type tokenValidator interface {
	Validate(ctx context.Context, sessionID, tokenValue string) error
}

type attendanceSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
}

// AttendanceService writes and reads the per-session attendance ledger.
type AttendanceService struct {
	records     recordRepository
	sessions    attendanceSessionReader
	enrollments enrollmentReader
	tokens      tokenValidator
	audit       auditWriter
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAttendanceService constructs the service.
func NewAttendanceService(records recordRepository, sessions attendanceSessionReader, enrollments enrollmentReader, tokens tokenValidator, audit auditWriter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		records:     records,
		sessions:    sessions,
		enrollments: enrollments,
		tokens:      tokens,
		audit:       audit,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// MarkRequest describes one attendance mark attempt. ObservedAt is set only
// by internal callers (the reconciler passing a device scan time); HTTP marks
// are stamped with the server clock so clients cannot backdate themselves
// across the late boundary.
type MarkRequest struct {
	SessionID  string     `json:"-"`
	StudentID  string     `json:"student_id" validate:"required"`
	Method     string     `json:"method" validate:"required,oneof=QR_SCAN MANUAL BIOMETRIC ADMIN"`
	Token      string     `json:"token"`
	ObservedAt *time.Time `json:"-"`
	MarkedBy   string     `json:"-"`
}

// MarkResult reports the standing record after a mark attempt and whether
// this attempt changed the ledger.
type MarkResult struct {
	Record  *models.AttendanceRecord `json:"record"`
	Applied bool                     `json:"applied"`
}

// Mark records attendance for a student through one of the session's
// channels. A student already marked by an equal or higher precedence
// channel keeps the standing record; the attempt succeeds without changing
// the ledger.
func (s *AttendanceService) Mark(ctx context.Context, req MarkRequest) (*MarkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	method := models.MarkMethod(req.Method)

	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "attendance can only be marked on an active session")
	}
	if !session.ChannelEnabled(method) {
		return nil, appErrors.Clone(appErrors.ErrChannelDisabled, "marking channel is not enabled for this session")
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, session.ClassID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in this class")
	}

	if method == models.MarkMethodQR {
		if err := s.tokens.Validate(ctx, session.ID, req.Token); err != nil {
			return nil, err
		}
	}

	observed := s.now()
	if req.ObservedAt != nil {
		observed = req.ObservedAt.UTC()
	}
	status := models.RecordStatusPresent
	if observed.After(session.LateDeadline()) {
		status = models.RecordStatusLate
	}

	record := &models.AttendanceRecord{
		SessionID: session.ID,
		StudentID: req.StudentID,
		Status:    status,
		Method:    method,
		MarkedAt:  observed,
	}
	if req.MarkedBy != "" {
		record.MarkedBy = &req.MarkedBy
	}
	stored, applied, err := s.records.Upsert(ctx, record, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	if applied {
		s.metrics.RecordMark(string(stored.Method), string(stored.Status))
	}
	return &MarkResult{Record: stored, Applied: applied}, nil
}

// ExcuseRequest describes an admin excuse correction.
type ExcuseRequest struct {
	SessionID string `json:"-"`
	StudentID string `json:"student_id" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}

// Excuse overwrites a student's record with EXCUSED status. It runs on the
// admin channel with override, so it replaces any standing mark including a
// previous admin one. Only scheduled and active sessions accept excuses;
// a completed session's ledger is immutable.
func (s *AttendanceService) Excuse(ctx context.Context, req ExcuseRequest, actorID string, meta models.RequestMeta) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	// Records are frozen once the session reaches a terminal state.
	if session.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cannot excuse on a finished session")
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, session.ClassID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in this class")
	}

	record := &models.AttendanceRecord{
		SessionID: session.ID,
		StudentID: req.StudentID,
		Status:    models.RecordStatusExcused,
		Method:    models.MarkMethodAdmin,
		MarkedAt:  s.now(),
		MarkedBy:  &actorID,
	}
	stored, applied, err := s.records.Upsert(ctx, record, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to excuse student")
	}
	if applied {
		s.metrics.RecordMark(string(stored.Method), string(stored.Status))
	}

	s.recordAudit(ctx, actorID, models.AuditActionStudentExcused, session.ID, req.StudentID, req.Reason, meta)
	return stored, nil
}

// ListBySession returns the session ledger in roster order.
func (s *AttendanceService) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	records, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance records")
	}
	return records, nil
}

func (s *AttendanceService) loadSession(ctx context.Context, id string) (*models.AttendanceSession, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

func (s *AttendanceService) recordAudit(ctx context.Context, actorID, action, sessionID, studentID, reason string, meta models.RequestMeta) {
	payload, _ := json.Marshal(map[string]interface{}{"student_id": studentID, "reason": reason})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "attendance_records",
		ResourceID: &sessionID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record attendance audit log", zap.Error(err))
	}
}
