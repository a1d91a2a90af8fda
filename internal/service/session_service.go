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

type sessionRepository interface {
	Create(ctx context.Context, session *models.AttendanceSession) error
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.AttendanceSession, int, error)
	Activate(ctx context.Context, id string, startedAt time.Time) (*models.AttendanceSession, error)
	Cancel(ctx context.Context, id string, endedAt time.Time) (*models.AttendanceSession, error)
	Complete(ctx context.Context, id string, endedAt time.Time) (*models.AttendanceSession, int, error)
	ListActive(ctx context.Context) ([]models.AttendanceSession, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type sessionRotator interface {
	Issue(ctx context.Context, session *models.AttendanceSession) (*models.QRToken, error)
	StartRotation(ctx context.Context, session *models.AttendanceSession)
	StopRotation(ctx context.Context, sessionID string)
}

// SessionConfig carries the lifecycle tunables.
type SessionConfig struct {
	StartWindow       time.Duration
	DefaultQRInterval time.Duration
	MinQRInterval     time.Duration
	MaxQRInterval     time.Duration
}

// SessionService drives the attendance session lifecycle.
type SessionService struct {
	repo      sessionRepository
	audit     auditWriter
	tokens    sessionRotator
	metrics   *MetricsService
	cfg       SessionConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionService constructs the service.
func NewSessionService(repo sessionRepository, audit auditWriter, tokens sessionRotator, cfg SessionConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		repo:      repo,
		audit:     audit,
		tokens:    tokens,
		metrics:   metrics,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateSessionRequest describes the create payload.
type CreateSessionRequest struct {
	Title            string    `json:"title" validate:"required"`
	SessionType      string    `json:"session_type" validate:"required,oneof=CLASS EXAM BEDCHECK LAB OTHER"`
	ClassID          string    `json:"class_id" validate:"required"`
	ScheduledStart   time.Time `json:"scheduled_start" validate:"required"`
	ScheduledEnd     time.Time `json:"scheduled_end" validate:"required"`
	AllowLateMinutes int       `json:"allow_late_minutes" validate:"min=0"`
	QRRefreshSeconds int       `json:"qr_refresh_interval_seconds" validate:"min=0"`
	EnableQRScan     bool      `json:"enable_qr_scan"`
	EnableManual     bool      `json:"enable_manual_marking"`
	EnableBiometric  bool      `json:"enable_biometric"`
	RequireLocation  bool      `json:"require_location"`
}

// Create registers a new scheduled session.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest, actorID string) (*models.AttendanceSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if !req.ScheduledEnd.After(req.ScheduledStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_end must be after scheduled_start")
	}
	if req.ScheduledStart.Before(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_start must not be in the past")
	}
	if !req.EnableQRScan && !req.EnableManual && !req.EnableBiometric {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one marking channel must be enabled")
	}

	interval := time.Duration(req.QRRefreshSeconds) * time.Second
	if req.QRRefreshSeconds == 0 {
		interval = s.cfg.DefaultQRInterval
	}
	if req.EnableQRScan && (interval < s.cfg.MinQRInterval || interval > s.cfg.MaxQRInterval) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "qr refresh interval out of range")
	}

	session := &models.AttendanceSession{
		Title:            req.Title,
		SessionType:      models.SessionType(req.SessionType),
		ClassID:          req.ClassID,
		Status:           models.SessionStatusScheduled,
		ScheduledStart:   req.ScheduledStart.UTC(),
		ScheduledEnd:     req.ScheduledEnd.UTC(),
		AllowLateMinutes: req.AllowLateMinutes,
		QRRefreshSeconds: int(interval / time.Second),
		EnableQRScan:     req.EnableQRScan,
		EnableManual:     req.EnableManual,
		EnableBiometric:  req.EnableBiometric,
		RequireLocation:  req.RequireLocation,
		CreatedBy:        actorID,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	return session, nil
}

// Get loads one session.
func (s *SessionService) Get(ctx context.Context, id string) (*models.AttendanceSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// SessionListRequest describes list filters.
type SessionListRequest struct {
	ClassID   string
	Status    string
	Type      string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// List returns sessions with pagination.
func (s *SessionService) List(ctx context.Context, req SessionListRequest) ([]models.AttendanceSession, *models.Pagination, error) {
	filter := models.SessionFilter{
		ClassID:   req.ClassID,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}
	if req.Status != "" {
		status := models.SessionStatus(req.Status)
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown session status")
		}
		filter.Status = &status
	}
	if req.Type != "" {
		sessionType := models.SessionType(req.Type)
		if !sessionType.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown session type")
		}
		filter.Type = &sessionType
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return sessions, pagination, nil
}

// Start activates a scheduled session, issues the first QR token and begins
// rotation. Starting is allowed from a short window before the scheduled
// start onward.
func (s *SessionService) Start(ctx context.Context, id, actorID string, meta models.RequestMeta) (*models.AttendanceSession, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.SessionStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "session is not in the scheduled state")
	}
	now := s.now()
	if now.Before(current.ScheduledStart.Add(-s.cfg.StartWindow)) {
		return nil, appErrors.Clone(appErrors.ErrTooEarly, "session cannot be started before its start window")
	}

	session, err := s.repo.Activate(ctx, id, now)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "session is not in the scheduled state")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start session")
	}

	if session.EnableQRScan {
		if _, err := s.tokens.Issue(ctx, session); err != nil {
			s.logger.Warn("failed to issue initial qr token", zap.String("session_id", id), zap.Error(err))
		}
		s.tokens.StartRotation(context.Background(), session)
	}

	s.metrics.SessionActivated()
	s.recordAudit(ctx, actorID, models.AuditActionSessionStart, session.ID, meta,
		map[string]interface{}{"status": session.Status})
	return session, nil
}

// End completes an active session and synthesizes absences for every
// enrolled student without a mark. The synthesis runs inside the state flip,
// so a retried close finds the session already completed and fails without
// writing a second batch.
func (s *SessionService) End(ctx context.Context, id, actorID string, meta models.RequestMeta) (*models.AttendanceSession, int, error) {
	session, synthesized, err := s.repo.Complete(ctx, id, s.now())
	if err != nil {
		if err == sql.ErrNoRows {
			if _, getErr := s.Get(ctx, id); getErr != nil {
				return nil, 0, getErr
			}
			return nil, 0, appErrors.Clone(appErrors.ErrInvalidState, "session is not active")
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}

	s.tokens.StopRotation(ctx, session.ID)
	s.metrics.SessionClosed()
	s.recordAudit(ctx, actorID, models.AuditActionSessionEnd, session.ID, meta,
		map[string]interface{}{"status": session.Status, "absences_synthesized": synthesized})
	return session, synthesized, nil
}

// CancelSession aborts a scheduled or active session. No absence records are
// written; the ledger keeps only marks made before the cancellation.
func (s *SessionService) CancelSession(ctx context.Context, id, actorID string, meta models.RequestMeta) (*models.AttendanceSession, error) {
	session, err := s.repo.Cancel(ctx, id, s.now())
	if err != nil {
		if err == sql.ErrNoRows {
			if _, getErr := s.Get(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "session is already finished")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel session")
	}

	s.tokens.StopRotation(ctx, session.ID)
	if session.StartedAt != nil {
		s.metrics.SessionClosed()
	}
	s.recordAudit(ctx, actorID, models.AuditActionSessionCancel, session.ID, meta,
		map[string]interface{}{"status": session.Status})
	return session, nil
}

// ResumeRotation restarts token rotors for sessions that were active when
// the process last stopped.
func (s *SessionService) ResumeRotation(ctx context.Context) error {
	sessions, err := s.repo.ListActive(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active sessions")
	}
	for i := range sessions {
		if !sessions[i].EnableQRScan {
			continue
		}
		session := sessions[i]
		s.tokens.StartRotation(context.Background(), &session)
		s.logger.Info("resumed qr rotation", zap.String("session_id", session.ID))
	}
	return nil
}

func (s *SessionService) recordAudit(ctx context.Context, actorID, action, sessionID string, meta models.RequestMeta, values map[string]interface{}) {
	payload, _ := json.Marshal(values)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "attendance_sessions",
		ResourceID: &sessionID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record session audit log", zap.Error(err))
	}
}
