package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campusops/attendance-engine/internal/models"
)

// EnrollmentRepository reads class rosters.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Roster returns the enrolled students of a class in roster order.
func (r *EnrollmentRepository) Roster(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	query := `SELECT e.student_id, s.service_number, s.full_name, e.roster_seq
FROM enrollments e
JOIN students s ON s.id = e.student_id
WHERE e.class_id = $1 AND e.active
ORDER BY e.roster_seq ASC, s.service_number ASC`
	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID); err != nil {
		return nil, fmt.Errorf("class roster: %w", err)
	}
	return entries, nil
}

// CountActive returns the number of enrolled students in a class.
func (r *EnrollmentRepository) CountActive(ctx context.Context, classID string) (int, error) {
	query := `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND active`
	var total int
	if err := r.db.GetContext(ctx, &total, query, classID); err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return total, nil
}

// IsEnrolled reports whether the student is actively enrolled in the class.
func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	query := `SELECT EXISTS (
SELECT 1 FROM enrollments WHERE class_id = $1 AND student_id = $2 AND active)`
	var enrolled bool
	if err := r.db.GetContext(ctx, &enrolled, query, classID, studentID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return enrolled, nil
}
