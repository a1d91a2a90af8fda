package models

import "time"

// SessionType categorises what kind of muster a session covers.
type SessionType string

const (
	SessionTypeClass    SessionType = "CLASS"
	SessionTypeExam     SessionType = "EXAM"
	SessionTypeBedcheck SessionType = "BEDCHECK"
	SessionTypeLab      SessionType = "LAB"
	SessionTypeOther    SessionType = "OTHER"
)

// Valid returns true when the session type is a supported value.
func (t SessionType) Valid() bool {
	switch t {
	case SessionTypeClass, SessionTypeExam, SessionTypeBedcheck, SessionTypeLab, SessionTypeOther:
		return true
	default:
		return false
	}
}

// SessionStatus represents the lifecycle state of an attendance session.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "SCHEDULED"
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// Valid returns true when the status is a supported value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusActive, SessionStatusCompleted, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// AttendanceSession is a bounded window during which attendance may be
// marked for one class.
type AttendanceSession struct {
	ID                string        `db:"id" json:"id"`
	Title             string        `db:"title" json:"title"`
	SessionType       SessionType   `db:"session_type" json:"session_type"`
	ClassID           string        `db:"class_id" json:"class_id"`
	Status            SessionStatus `db:"status" json:"status"`
	ScheduledStart    time.Time     `db:"scheduled_start" json:"scheduled_start"`
	ScheduledEnd      time.Time     `db:"scheduled_end" json:"scheduled_end"`
	AllowLateMinutes  int           `db:"allow_late_minutes" json:"allow_late_minutes"`
	QRRefreshSeconds  int           `db:"qr_refresh_seconds" json:"qr_refresh_interval_seconds"`
	EnableQRScan      bool          `db:"enable_qr_scan" json:"enable_qr_scan"`
	EnableManual      bool          `db:"enable_manual" json:"enable_manual_marking"`
	EnableBiometric   bool          `db:"enable_biometric" json:"enable_biometric"`
	RequireLocation   bool          `db:"require_location" json:"require_location"`
	CreatedBy         string        `db:"created_by" json:"created_by"`
	StartedAt         *time.Time    `db:"started_at" json:"started_at,omitempty"`
	EndedAt           *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// DurationMinutes derives the scheduled length of the session.
func (s *AttendanceSession) DurationMinutes() int {
	return int(s.ScheduledEnd.Sub(s.ScheduledStart).Minutes())
}

// LateDeadline is the instant after which a mark is recorded as late.
func (s *AttendanceSession) LateDeadline() time.Time {
	return s.ScheduledStart.Add(time.Duration(s.AllowLateMinutes) * time.Minute)
}

// QRInterval returns the configured token refresh interval.
func (s *AttendanceSession) QRInterval() time.Duration {
	return time.Duration(s.QRRefreshSeconds) * time.Second
}

// ChannelEnabled reports whether the given marking method is allowed on the
// session. Admin corrections are always permitted.
func (s *AttendanceSession) ChannelEnabled(method MarkMethod) bool {
	switch method {
	case MarkMethodQR:
		return s.EnableQRScan
	case MarkMethodManual:
		return s.EnableManual
	case MarkMethodBiometric:
		return s.EnableBiometric
	case MarkMethodAdmin:
		return true
	default:
		return false
	}
}

// AnyChannelEnabled reports whether at least one marking channel is enabled.
func (s *AttendanceSession) AnyChannelEnabled() bool {
	return s.EnableQRScan || s.EnableManual || s.EnableBiometric
}

// SessionFilter provides filters for listing sessions.
type SessionFilter struct {
	ClassID   string
	Status    *SessionStatus
	Type      *SessionType
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
