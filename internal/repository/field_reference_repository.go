package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

// FieldReferenceRepository loads the field constraint records consulted by
// form builders; it is not on the encoding hot path.
type FieldReferenceRepository struct {
	db *sqlx.DB
}

// NewFieldReferenceRepository creates a new field reference repository.
func NewFieldReferenceRepository(db *sqlx.DB) *FieldReferenceRepository {
	return &FieldReferenceRepository{db: db}
}

// ListByEntityAndContext returns the constraints of one entity in a given
// context, keyed by field name.
func (r *FieldReferenceRepository) ListByEntityAndContext(ctx context.Context, entity, context_ string) (map[string]models.FieldConstraint, error) {
	const query = `SELECT id, entity, field_name, context, status, initial_value, placeholder, regex
        FROM field_references WHERE entity = $1 AND context = $2`
	var constraints []models.FieldConstraint
	if err := r.db.SelectContext(ctx, &constraints, query, entity, context_); err != nil {
		return nil, fmt.Errorf("list field references: %w", err)
	}
	byField := make(map[string]models.FieldConstraint, len(constraints))
	for _, constraint := range constraints {
		byField[constraint.FieldName] = constraint
	}
	return byField, nil
}
