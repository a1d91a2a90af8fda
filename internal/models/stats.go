package models

// SessionStatistics is a read-only projection over the attendance ledger
// for one session. Counts reflect only the current record per student.
type SessionStatistics struct {
	SessionID      string  `json:"session_id"`
	TotalStudents  int     `json:"total_students"`
	PresentCount   int     `json:"present_count"`
	LateCount      int     `json:"late_count"`
	AbsentCount    int     `json:"absent_count"`
	ExcusedCount   int     `json:"excused_count"`
	QRScanCount    int     `json:"qr_scan_count"`
	ManualCount    int     `json:"manual_count"`
	BiometricCount int     `json:"biometric_count"`
	AdminCount     int     `json:"admin_count"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// StatusMethodCount is one aggregation row from the ledger.
type StatusMethodCount struct {
	Status RecordStatus `db:"status"`
	Method MarkMethod   `db:"method"`
	Count  int          `db:"cnt"`
}
