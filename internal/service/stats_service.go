package service

import (
	"context"
	"database/sql"
	"math"

	"go.uber.org/zap"

	"github.com/campusops/attendance-engine/internal/models"
	appErrors "github.com/campusops/attendance-engine/pkg/errors"
)

type statsRecordReader interface {
	CountByStatusMethod(ctx context.Context, sessionID string) ([]models.StatusMethodCount, error)
}

type statsEnrollmentReader interface {
	CountActive(ctx context.Context, classID string) (int, error)
}

// StatsService computes read-only attendance statistics per session.
type StatsService struct {
	sessions    attendanceSessionReader
	records     statsRecordReader
	enrollments statsEnrollmentReader
	logger      *zap.Logger
}

// NewStatsService constructs the service.
func NewStatsService(sessions attendanceSessionReader, records statsRecordReader, enrollments statsEnrollmentReader, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{sessions: sessions, records: records, enrollments: enrollments, logger: logger}
}

// SessionStatistics aggregates the ledger of one session. The attendance
// rate is the fraction of enrolled students marked present or late; excused
// students count neither for nor against the rate's numerator.
func (s *StatsService) SessionStatistics(ctx context.Context, sessionID string) (*models.SessionStatistics, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	total, err := s.enrollments.CountActive(ctx, session.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollment")
	}

	rows, err := s.records.CountByStatusMethod(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}

	stats := &models.SessionStatistics{SessionID: sessionID, TotalStudents: total}
	for _, row := range rows {
		switch row.Status {
		case models.RecordStatusPresent:
			stats.PresentCount += row.Count
		case models.RecordStatusLate:
			stats.LateCount += row.Count
		case models.RecordStatusAbsent:
			stats.AbsentCount += row.Count
		case models.RecordStatusExcused:
			stats.ExcusedCount += row.Count
		}
		switch row.Method {
		case models.MarkMethodQR:
			stats.QRScanCount += row.Count
		case models.MarkMethodManual:
			stats.ManualCount += row.Count
		case models.MarkMethodBiometric:
			stats.BiometricCount += row.Count
		case models.MarkMethodAdmin:
			stats.AdminCount += row.Count
		}
	}
	if total > 0 {
		rate := float64(stats.PresentCount+stats.LateCount) / float64(total)
		stats.AttendanceRate = math.Round(rate*10000) / 10000
	}
	return stats, nil
}
