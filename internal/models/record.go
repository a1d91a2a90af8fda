package models

import "time"

// MarkMethod identifies the channel that produced an attendance mark.
type MarkMethod string

const (
	MarkMethodQR        MarkMethod = "QR_SCAN"
	MarkMethodBiometric MarkMethod = "BIOMETRIC"
	MarkMethodManual    MarkMethod = "MANUAL"
	MarkMethodAdmin     MarkMethod = "ADMIN"
)

// Valid returns true when the method is a supported value.
func (m MarkMethod) Valid() bool {
	switch m {
	case MarkMethodQR, MarkMethodBiometric, MarkMethodManual, MarkMethodAdmin:
		return true
	default:
		return false
	}
}

// Precedence returns the total order that decides which channel's mark wins
// when more than one exists for the same student and session. Higher wins.
// Admin and manual marks are explicit human corrections, so they outrank the
// automated channels.
func (m MarkMethod) Precedence() int {
	switch m {
	case MarkMethodAdmin:
		return 4
	case MarkMethodManual:
		return 3
	case MarkMethodBiometric:
		return 2
	case MarkMethodQR:
		return 1
	default:
		return 0
	}
}

// RecordStatus is the attendance outcome stored on a record.
type RecordStatus string

const (
	RecordStatusPresent RecordStatus = "PRESENT"
	RecordStatusLate    RecordStatus = "LATE"
	RecordStatusAbsent  RecordStatus = "ABSENT"
	RecordStatusExcused RecordStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s RecordStatus) Valid() bool {
	switch s {
	case RecordStatusPresent, RecordStatusLate, RecordStatusAbsent, RecordStatusExcused:
		return true
	default:
		return false
	}
}

// AttendanceRecord is the single mark held per (session, student) pair.
type AttendanceRecord struct {
	ID        string       `db:"id" json:"id"`
	SessionID string       `db:"session_id" json:"session_id"`
	StudentID string       `db:"student_id" json:"student_id"`
	Status    RecordStatus `db:"status" json:"status"`
	Method    MarkMethod   `db:"method" json:"method"`
	// MethodRank mirrors Method.Precedence so the upgrade rule can be
	// enforced inside a single conditional upsert.
	MethodRank int       `db:"method_rank" json:"-"`
	MarkedAt   time.Time `db:"marked_at" json:"marked_at"`
	MarkedBy   *string   `db:"marked_by" json:"marked_by,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// AttendanceRecordDetail joins a record with the student's roster identity.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentName   string `db:"student_name" json:"student_name"`
	ServiceNumber string `db:"service_number" json:"service_number"`
}
