package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

// AttributionRepository resolves role reference data: tutor attributions
// to learning units and programme manager grants over offers.
type AttributionRepository struct {
	db *sqlx.DB
}

// NewAttributionRepository creates a new attribution repository.
func NewAttributionRepository(db *sqlx.DB) *AttributionRepository {
	return &AttributionRepository{db: db}
}

const attributionColumns = `a.id, a.tutor_global_id, a.tutor_email, a.tutor_last_name, a.tutor_first_name,
        a.learning_unit_id, lu.acronym AS learning_unit_acronym, lu.title AS learning_unit_title,
        lu.academic_year, a.function, a.created_at`

// ListByTutor returns the attributions of one tutor for an academic year,
// ordered by learning unit acronym.
func (r *AttributionRepository) ListByTutor(ctx context.Context, globalID string, academicYear int) ([]models.Attribution, error) {
	query := fmt.Sprintf(`SELECT %s FROM attributions a
        JOIN learning_units lu ON lu.id = a.learning_unit_id
        WHERE a.tutor_global_id = $1 AND lu.academic_year = $2
        ORDER BY lu.acronym`, attributionColumns)
	var attributions []models.Attribution
	if err := r.db.SelectContext(ctx, &attributions, query, globalID, academicYear); err != nil {
		return nil, fmt.Errorf("list attributions by tutor: %w", err)
	}
	return attributions, nil
}

// ListByLearningUnit returns the tutors attributed to a learning unit.
func (r *AttributionRepository) ListByLearningUnit(ctx context.Context, acronym string, academicYear int) ([]models.Attribution, error) {
	query := fmt.Sprintf(`SELECT %s FROM attributions a
        JOIN learning_units lu ON lu.id = a.learning_unit_id
        WHERE lu.acronym = $1 AND lu.academic_year = $2
        ORDER BY a.tutor_last_name, a.tutor_first_name`, attributionColumns)
	var attributions []models.Attribution
	if err := r.db.SelectContext(ctx, &attributions, query, acronym, academicYear); err != nil {
		return nil, fmt.Errorf("list attributions by learning unit: %w", err)
	}
	return attributions, nil
}

// IsTutorOf reports whether the principal is attributed to the learning
// unit.
func (r *AttributionRepository) IsTutorOf(ctx context.Context, globalID, acronym string, academicYear int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM attributions a
        JOIN learning_units lu ON lu.id = a.learning_unit_id
        WHERE a.tutor_global_id = $1 AND lu.acronym = $2 AND lu.academic_year = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, globalID, acronym, academicYear); err != nil {
		return false, fmt.Errorf("check tutor attribution: %w", err)
	}
	return exists, nil
}

// IsProgramManagerOf reports whether the principal manages the offer.
func (r *AttributionRepository) IsProgramManagerOf(ctx context.Context, globalID, offerAcronym string, academicYear int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM program_managers pm
        JOIN offers o ON o.id = pm.offer_id
        WHERE pm.global_id = $1 AND o.acronym = $2 AND o.academic_year = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, globalID, offerAcronym, academicYear); err != nil {
		return false, fmt.Errorf("check program manager: %w", err)
	}
	return exists, nil
}

// ListManagersByOffer returns the programme managers of an offer; used for
// the completion notice.
func (r *AttributionRepository) ListManagersByOffer(ctx context.Context, offerAcronym string, academicYear int) ([]models.ProgramManager, error) {
	const query = `SELECT pm.id, pm.global_id, pm.email, pm.offer_id,
        o.acronym AS offer_acronym, o.academic_year, pm.created_at
        FROM program_managers pm
        JOIN offers o ON o.id = pm.offer_id
        WHERE o.acronym = $1 AND o.academic_year = $2
        ORDER BY pm.email`
	var managers []models.ProgramManager
	if err := r.db.SelectContext(ctx, &managers, query, offerAcronym, academicYear); err != nil {
		return nil, fmt.Errorf("list managers by offer: %w", err)
	}
	return managers, nil
}
