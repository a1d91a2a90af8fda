package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campusops/attendance-engine/internal/models"
	appErrors "github.com/campusops/attendance-engine/pkg/errors"
	"github.com/campusops/attendance-engine/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type exportRecordReader interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error)
}

// ExportFile is a rendered attendance report ready to stream to the client.
type ExportFile struct {
	FileName    string
	ContentType string
	Content     []byte
}

// ExportService renders the session ledger as downloadable reports.
type ExportService struct {
	sessions attendanceSessionReader
	records  exportRecordReader
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(sessions attendanceSessionReader, records exportRecordReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		sessions: sessions,
		records:  records,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// SessionReport renders the full ledger of one session in roster order,
// including the admin-synthesized absences of a completed session.
func (s *ExportService) SessionReport(ctx context.Context, sessionID, format string) (*ExportFile, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	records, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance records")
	}

	table := export.Table{
		Columns: []string{"Student", "Service No", "Status", "Method", "Marked At"},
		Rows:    make([][]string, 0, len(records)),
	}
	for _, record := range records {
		table.Rows = append(table.Rows, []string{
			record.StudentName,
			record.ServiceNumber,
			string(record.Status),
			string(record.Method),
			record.MarkedAt.UTC().Format(time.RFC3339),
		})
	}

	name := fmt.Sprintf("attendance_%s_%s", session.ClassID, session.ScheduledStart.UTC().Format("20060102_1504"))
	switch format {
	case ExportFormatCSV, "":
		content, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return &ExportFile{FileName: name + ".csv", ContentType: "text/csv", Content: content}, nil
	case ExportFormatPDF:
		subtitle := fmt.Sprintf("%s  %s - %s",
			session.ScheduledStart.UTC().Format("2006-01-02"),
			session.ScheduledStart.UTC().Format("15:04"),
			session.ScheduledEnd.UTC().Format("15:04"))
		content, err := s.pdf.Render(table, session.Title, subtitle)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return &ExportFile{FileName: name + ".pdf", ContentType: "application/pdf", Content: content}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
