package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

// SessionExamRepository reads the session-exam academic calendar.
type SessionExamRepository struct {
	db *sqlx.DB
}

// NewSessionExamRepository creates a new session exam repository.
func NewSessionExamRepository(db *sqlx.DB) *SessionExamRepository {
	return &SessionExamRepository{db: db}
}

const sessionExamColumns = `id, number, academic_year, window_start, window_end, deliberation_date`

// CurrentAt returns the session whose window contains the given date, or
// sql.ErrNoRows when no encoding period is open.
func (r *SessionExamRepository) CurrentAt(ctx context.Context, at time.Time) (*models.SessionExam, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_exams
        WHERE window_start::date <= $1::date AND window_end::date >= $1::date
        ORDER BY number LIMIT 1`, sessionExamColumns)
	var session models.SessionExam
	if err := r.db.GetContext(ctx, &session, query, at); err != nil {
		return nil, err
	}
	return &session, nil
}

// NearestBefore returns the session whose window most recently closed
// before the given date.
func (r *SessionExamRepository) NearestBefore(ctx context.Context, at time.Time) (*models.SessionExam, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_exams
        WHERE window_end::date < $1::date
        ORDER BY window_end DESC LIMIT 1`, sessionExamColumns)
	var session models.SessionExam
	if err := r.db.GetContext(ctx, &session, query, at); err != nil {
		return nil, err
	}
	return &session, nil
}

// NearestAfter returns the next session opening after the given date.
func (r *SessionExamRepository) NearestAfter(ctx context.Context, at time.Time) (*models.SessionExam, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_exams
        WHERE window_start::date > $1::date
        ORDER BY window_start ASC LIMIT 1`, sessionExamColumns)
	var session models.SessionExam
	if err := r.db.GetContext(ctx, &session, query, at); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByNumberAndYear fetches one session of an academic year.
func (r *SessionExamRepository) FindByNumberAndYear(ctx context.Context, number, academicYear int) (*models.SessionExam, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_exams WHERE number = $1 AND academic_year = $2`, sessionExamColumns)
	var session models.SessionExam
	if err := r.db.GetContext(ctx, &session, query, number, academicYear); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListByYear returns the sessions of an academic year ordered by number.
func (r *SessionExamRepository) ListByYear(ctx context.Context, academicYear int) ([]models.SessionExam, error) {
	query := fmt.Sprintf(`SELECT %s FROM session_exams WHERE academic_year = $1 ORDER BY number`, sessionExamColumns)
	var sessions []models.SessionExam
	if err := r.db.SelectContext(ctx, &sessions, query, academicYear); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}
