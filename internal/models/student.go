package models

import "time"

// Student represents a trainee registered in the institution. ServiceNumber
// is the roster identity that biometric devices report as biometric_id.
type Student struct {
	ID            string    `db:"id" json:"id"`
	ServiceNumber string    `db:"service_number" json:"service_number"`
	FullName      string    `db:"full_name" json:"full_name"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Enrollment captures a student's registration to a class.
type Enrollment struct {
	ID        string     `db:"id" json:"id"`
	StudentID string     `db:"student_id" json:"student_id"`
	ClassID   string     `db:"class_id" json:"class_id"`
	RosterSeq int        `db:"roster_seq" json:"roster_seq"`
	JoinedAt  time.Time  `db:"joined_at" json:"joined_at"`
	LeftAt    *time.Time `db:"left_at" json:"left_at,omitempty"`
	Active    bool       `db:"active" json:"active"`
}

// RosterEntry is an enrolled student in roster order, the stable ordering
// used by attendance exports.
type RosterEntry struct {
	StudentID     string `db:"student_id" json:"student_id"`
	ServiceNumber string `db:"service_number" json:"service_number"`
	FullName      string `db:"full_name" json:"full_name"`
	RosterSeq     int    `db:"roster_seq" json:"roster_seq"`
}
