package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

// EnrolmentRepository is the read projection and write path for exam
// enrolments. Reads resolve the per-enrolment deadline inline; writes run
// per row under a row lock.
type EnrolmentRepository struct {
	db *sqlx.DB
}

// NewEnrolmentRepository creates a new enrolment repository.
func NewEnrolmentRepository(db *sqlx.DB) *EnrolmentRepository {
	return &EnrolmentRepository{db: db}
}

const enrolmentProjection = `SELECT e.id, e.learning_unit_enrolment_id, e.session_number, e.state,
        e.score_draft, e.score_reencoded, e.score_final,
        e.justification_draft, e.justification_reencoded, e.justification_final,
        d.deadline_date, d.deadline_tutor_offset_days,
        oe.student_registration_id,
        s.last_name AS student_last_name, s.first_name AS student_first_name, s.email AS student_email,
        o.id AS offer_id, o.acronym AS offer_acronym,
        lu.id AS learning_unit_id, lu.acronym AS learning_unit_acronym, lu.academic_year,
        e.updated_at
        FROM exam_enrolments e
        JOIN learning_unit_enrolments lue ON lue.id = e.learning_unit_enrolment_id
        JOIN offer_enrolments oe ON oe.id = lue.offer_enrolment_id
        JOIN students s ON s.registration_id = oe.student_registration_id
        JOIN offers o ON o.id = oe.offer_id
        JOIN learning_units lu ON lu.id = lue.learning_unit_id
        JOIN session_exam_deadlines d ON d.offer_enrolment_id = oe.id AND d.session_number = e.session_number`

// FindForScoreEncoding returns the enrolment snapshot for a session with
// composable AND filters, ordered by offer acronym then registration id.
func (r *EnrolmentRepository) FindForScoreEncoding(ctx context.Context, filter models.EnrolmentFilter) ([]models.ExamEnrolment, error) {
	query := enrolmentProjection + ` WHERE e.session_number = $1`
	args := []interface{}{filter.SessionNumber}

	if filter.AcademicYear != 0 {
		query += fmt.Sprintf(" AND lu.academic_year = $%d", len(args)+1)
		args = append(args, filter.AcademicYear)
	}
	if filter.LearningUnitAcronym != "" {
		query += fmt.Sprintf(" AND lu.acronym = $%d", len(args)+1)
		args = append(args, filter.LearningUnitAcronym)
	}
	if filter.OfferAcronym != "" {
		query += fmt.Sprintf(" AND o.acronym = $%d", len(args)+1)
		args = append(args, filter.OfferAcronym)
	}
	if filter.TutorGlobalID != "" {
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM attributions a
            WHERE a.learning_unit_id = lu.id AND a.tutor_global_id = $%d)`, len(args)+1)
		args = append(args, filter.TutorGlobalID)
	}
	if filter.ProgramManagerGlobalID != "" {
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM program_managers pm
            WHERE pm.offer_id = o.id AND pm.global_id = $%d)`, len(args)+1)
		args = append(args, filter.ProgramManagerGlobalID)
	}
	if filter.OnlyEnrolled {
		query += fmt.Sprintf(" AND e.state = $%d", len(args)+1)
		args = append(args, models.EnrolmentStateEnrolled)
	}
	if len(filter.EnrolmentIDs) > 0 {
		placeholders := make([]string, len(filter.EnrolmentIDs))
		for i, id := range filter.EnrolmentIDs {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, id)
		}
		query += fmt.Sprintf(" AND e.id IN (%s)", strings.Join(placeholders, ","))
	}

	query += " ORDER BY o.acronym, oe.student_registration_id"

	var enrolments []models.ExamEnrolment
	if err := r.db.SelectContext(ctx, &enrolments, query, args...); err != nil {
		return nil, fmt.Errorf("find enrolments for score encoding: %w", err)
	}
	return enrolments, nil
}

// UpdateWithLock locks one enrolment row, lets apply re-evaluate the
// change against the current values, persists the result and its history,
// and commits. The transaction spans a single enrolment only.
func (r *EnrolmentRepository) UpdateWithLock(ctx context.Context, enrolmentID string, apply models.EnrolmentApply) (*models.ExamEnrolment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enrolment update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	lockQuery := enrolmentProjection + ` WHERE e.id = $1 FOR UPDATE OF e`
	var current models.ExamEnrolment
	if err := tx.GetContext(ctx, &current, lockQuery, enrolmentID); err != nil {
		return nil, err
	}

	update, err := apply(&current)
	if err != nil {
		return nil, err
	}
	if update == nil {
		return &current, nil
	}

	now := time.Now().UTC()
	const updateQuery = `UPDATE exam_enrolments SET
        score_draft = $1, score_reencoded = $2, score_final = $3,
        justification_draft = $4, justification_reencoded = $5, justification_final = $6,
        updated_at = $7
        WHERE id = $8`
	if _, err := tx.ExecContext(ctx, updateQuery,
		update.ScoreDraft, update.ScoreReencoded, update.ScoreFinal,
		update.JustificationDraft, update.JustificationReencoded, update.JustificationFinal,
		now, enrolmentID,
	); err != nil {
		return nil, fmt.Errorf("update enrolment %s: %w", enrolmentID, err)
	}

	for i := range update.History {
		entry := &update.History[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		entry.ExamEnrolmentID = enrolmentID
		if entry.ChangedAt.IsZero() {
			entry.ChangedAt = now
		}
		const historyQuery = `INSERT INTO exam_enrolment_histories
            (id, exam_enrolment_id, field, old_value, new_value, author_global_id, changed_at)
            VALUES (:id, :exam_enrolment_id, :field, :old_value, :new_value, :author_global_id, :changed_at)`
		if _, err := tx.NamedExecContext(ctx, historyQuery, entry); err != nil {
			return nil, fmt.Errorf("insert enrolment history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enrolment update: %w", err)
	}

	current.ScoreDraft = update.ScoreDraft
	current.ScoreReencoded = update.ScoreReencoded
	current.ScoreFinal = update.ScoreFinal
	current.JustificationDraft = update.JustificationDraft
	current.JustificationReencoded = update.JustificationReencoded
	current.JustificationFinal = update.JustificationFinal
	current.UpdatedAt = now
	return &current, nil
}

// Progress counts encoded versus total enrolments per (offer, learning
// unit) for one session, restricted to ENROLLED rows.
func (r *EnrolmentRepository) Progress(ctx context.Context, filter models.EnrolmentFilter) ([]models.EncodingProgress, error) {
	query := `SELECT o.acronym AS offer_acronym, lu.acronym AS learning_unit_acronym,
        COUNT(*) FILTER (WHERE e.score_draft IS NOT NULL OR e.justification_draft IS NOT NULL
            OR e.score_final IS NOT NULL OR e.justification_final IS NOT NULL) AS encoded,
        COUNT(*) AS total
        FROM exam_enrolments e
        JOIN learning_unit_enrolments lue ON lue.id = e.learning_unit_enrolment_id
        JOIN offer_enrolments oe ON oe.id = lue.offer_enrolment_id
        JOIN offers o ON o.id = oe.offer_id
        JOIN learning_units lu ON lu.id = lue.learning_unit_id
        WHERE e.session_number = $1 AND e.state = $2`
	args := []interface{}{filter.SessionNumber, models.EnrolmentStateEnrolled}

	if filter.AcademicYear != 0 {
		query += fmt.Sprintf(" AND lu.academic_year = $%d", len(args)+1)
		args = append(args, filter.AcademicYear)
	}
	if filter.LearningUnitAcronym != "" {
		query += fmt.Sprintf(" AND lu.acronym = $%d", len(args)+1)
		args = append(args, filter.LearningUnitAcronym)
	}
	if filter.OfferAcronym != "" {
		query += fmt.Sprintf(" AND o.acronym = $%d", len(args)+1)
		args = append(args, filter.OfferAcronym)
	}
	if filter.TutorGlobalID != "" {
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM attributions a
            WHERE a.learning_unit_id = lu.id AND a.tutor_global_id = $%d)`, len(args)+1)
		args = append(args, filter.TutorGlobalID)
	}
	if filter.ProgramManagerGlobalID != "" {
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM program_managers pm
            WHERE pm.offer_id = o.id AND pm.global_id = $%d)`, len(args)+1)
		args = append(args, filter.ProgramManagerGlobalID)
	}

	query += " GROUP BY o.acronym, lu.acronym ORDER BY o.acronym, lu.acronym"

	var progress []models.EncodingProgress
	if err := r.db.SelectContext(ctx, &progress, query, args...); err != nil {
		return nil, fmt.Errorf("encoding progress: %w", err)
	}
	return progress, nil
}

// HistoryForEnrolment returns the audit trail of one enrolment, newest
// first.
func (r *EnrolmentRepository) HistoryForEnrolment(ctx context.Context, enrolmentID string) ([]models.ExamEnrolmentHistory, error) {
	const query = `SELECT id, exam_enrolment_id, field, old_value, new_value, author_global_id, changed_at
        FROM exam_enrolment_histories WHERE exam_enrolment_id = $1 ORDER BY changed_at DESC`
	var history []models.ExamEnrolmentHistory
	if err := r.db.SelectContext(ctx, &history, query, enrolmentID); err != nil {
		return nil, fmt.Errorf("enrolment history: %w", err)
	}
	return history, nil
}
