package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/attendance-engine/internal/models"
	appErrors "github.com/campusops/attendance-engine/pkg/errors"
)

type biometricRepository interface {
	Insert(ctx context.Context, scan *models.BiometricScan) (bool, error)
	ListUnprocessed(ctx context.Context, limit int) ([]models.BiometricScan, error)
	Claim(ctx context.Context, scanID string, recordID *string, processedAt time.Time) (bool, error)
}

type candidateFinder interface {
	CandidateSessionsForScan(ctx context.Context, studentID string, scanTime time.Time) ([]models.AttendanceSession, error)
}

type studentResolver interface {
	Resolve(ctx context.Context, serviceNumber string) (string, error)
}

type attendanceMarker interface {
	Mark(ctx context.Context, req MarkRequest) (*MarkResult, error)
}

// ReconcileService ingests raw biometric scans and reconciles them against
// active sessions. Ingestion never blocks on reconciliation: scans are
// accepted first and matched later by the background job.
type ReconcileService struct {
	scans     biometricRepository
	sessions  candidateFinder
	directory studentResolver
	marker    attendanceMarker
	metrics   *MetricsService
	batchSize int
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewReconcileService constructs the service.
func NewReconcileService(scans biometricRepository, sessions candidateFinder, directory studentResolver, marker attendanceMarker, batchSize int, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ReconcileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &ReconcileService{
		scans:     scans,
		sessions:  sessions,
		directory: directory,
		marker:    marker,
		metrics:   metrics,
		batchSize: batchSize,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ScanPayload is one scan inside a device sync batch.
type ScanPayload struct {
	BiometricID string    `json:"biometric_id" validate:"required"`
	ScanTime    time.Time `json:"scan_time" validate:"required"`
}

// IngestRequest is the device sync payload.
type IngestRequest struct {
	DeviceID   string        `json:"device_id" validate:"required"`
	DeviceType string        `json:"device_type"`
	Scans      []ScanPayload `json:"scans" validate:"required,min=1,dive"`
}

// Ingest stores a batch of raw scans. Re-delivered scans are counted as
// duplicates and dropped, so devices can retry a whole batch safely.
func (s *ReconcileService) Ingest(ctx context.Context, req IngestRequest) (*models.IngestResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	result := &models.IngestResult{}
	for _, payload := range req.Scans {
		scan := &models.BiometricScan{
			DeviceID:    req.DeviceID,
			DeviceType:  req.DeviceType,
			BiometricID: payload.BiometricID,
			ScanTime:    payload.ScanTime.UTC(),
		}
		created, err := s.scans.Insert(ctx, scan)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store biometric scan")
		}
		if created {
			result.Created++
			s.metrics.RecordScanIngested("created")
		} else {
			result.Duplicates++
			s.metrics.RecordScanIngested("duplicate")
		}
	}
	s.logger.Info("biometric batch ingested",
		zap.String("device_id", req.DeviceID),
		zap.Int("created", result.Created),
		zap.Int("duplicates", result.Duplicates))
	return result, nil
}

// ProcessPending reconciles one batch of unprocessed scans. Each scan is
// handled independently: a failure on one scan leaves it unprocessed for the
// next run and never aborts the batch. Scans that match no active session
// also stay unprocessed, since the session they belong to may simply not
// have started yet.
func (s *ReconcileService) ProcessPending(ctx context.Context) (*models.ReconcileResult, error) {
	scans, err := s.scans.ListUnprocessed(ctx, s.batchSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unprocessed scans")
	}

	result := &models.ReconcileResult{}
	for i := range scans {
		outcome, err := s.processScan(ctx, &scans[i])
		if err != nil {
			s.logger.Warn("scan reconciliation failed",
				zap.String("scan_id", scans[i].ID), zap.Error(err))
			result.Unmatched++
			continue
		}
		switch outcome {
		case scanProcessed:
			result.Processed++
			s.metrics.RecordScanReconciled("processed")
		case scanUnmatched:
			result.Unmatched++
			s.metrics.RecordScanReconciled("unmatched")
		case scanSkipped:
			// Claimed by a concurrent run; that run's counters own it.
			s.metrics.RecordScanReconciled("skipped")
		}
	}
	if result.Processed > 0 || result.Unmatched > 0 {
		s.logger.Info("biometric reconciliation run",
			zap.Int("processed", result.Processed),
			zap.Int("unmatched", result.Unmatched))
	}
	return result, nil
}

type scanOutcome int

const (
	scanUnmatched scanOutcome = iota
	scanProcessed
	scanSkipped
)

func (s *ReconcileService) processScan(ctx context.Context, scan *models.BiometricScan) (scanOutcome, error) {
	studentID, err := s.directory.Resolve(ctx, scan.BiometricID)
	if err != nil {
		// Directory failures are retryable; the scan stays queued.
		return scanUnmatched, err
	}

	candidates, err := s.sessions.CandidateSessionsForScan(ctx, studentID, scan.ScanTime)
	if err != nil {
		return scanUnmatched, err
	}

	var recordID *string
	for i := range candidates {
		session := &candidates[i]
		if !session.EnableBiometric {
			continue
		}
		observed := scan.ScanTime
		markResult, err := s.marker.Mark(ctx, MarkRequest{
			SessionID:  session.ID,
			StudentID:  studentID,
			Method:     string(models.MarkMethodBiometric),
			ObservedAt: &observed,
			MarkedBy:   "device:" + scan.DeviceID,
		})
		if err != nil {
			return scanUnmatched, err
		}
		recordID = &markResult.Record.ID
		break
	}
	if recordID == nil {
		return scanUnmatched, nil
	}

	claimed, err := s.scans.Claim(ctx, scan.ID, recordID, s.now())
	if err != nil {
		return scanUnmatched, err
	}
	if !claimed {
		// Another worker got there first.
		return scanSkipped, nil
	}
	return scanProcessed, nil
}
