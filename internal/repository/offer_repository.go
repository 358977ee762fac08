package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

// OfferRepository reads offers and owns the one-to-one score sheet
// address rows.
type OfferRepository struct {
	db *sqlx.DB
}

// NewOfferRepository creates a new offer repository.
func NewOfferRepository(db *sqlx.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

// FindByAcronym fetches one offer-year.
func (r *OfferRepository) FindByAcronym(ctx context.Context, acronym string, academicYear int) (*models.Offer, error) {
	const query = `SELECT id, acronym, academic_year, title, entity_acronym, created_at, updated_at
        FROM offers WHERE acronym = $1 AND academic_year = $2`
	var offer models.Offer
	if err := r.db.GetContext(ctx, &offer, query, acronym, academicYear); err != nil {
		return nil, err
	}
	return &offer, nil
}

const addressColumns = `sa.id, sa.offer_id, o.acronym AS offer_acronym, sa.mode,
        sa.entity_address_choice, sa.recipient, sa.location, sa.postal_code, sa.city,
        sa.country, sa.phone, sa.fax, sa.email, sa.updated_at`

// FindAddressByOffer fetches the score sheet address of an offer, or
// sql.ErrNoRows when none is configured.
func (r *OfferRepository) FindAddressByOffer(ctx context.Context, offerID string) (*models.ScoreSheetAddress, error) {
	query := fmt.Sprintf(`SELECT %s FROM score_sheet_addresses sa
        JOIN offers o ON o.id = sa.offer_id
        WHERE sa.offer_id = $1`, addressColumns)
	var address models.ScoreSheetAddress
	if err := r.db.GetContext(ctx, &address, query, offerID); err != nil {
		return nil, err
	}
	return &address, nil
}

// UpsertAddress writes the address block of an offer; the table is
// one-to-one with offers.
func (r *OfferRepository) UpsertAddress(ctx context.Context, address *models.ScoreSheetAddress) error {
	if address.ID == "" {
		address.ID = uuid.NewString()
	}
	address.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO score_sheet_addresses
        (id, offer_id, mode, entity_address_choice, recipient, location, postal_code, city, country, phone, fax, email, updated_at)
        VALUES (:id, :offer_id, :mode, :entity_address_choice, :recipient, :location, :postal_code, :city, :country, :phone, :fax, :email, :updated_at)
        ON CONFLICT (offer_id)
        DO UPDATE SET mode = EXCLUDED.mode,
            entity_address_choice = EXCLUDED.entity_address_choice,
            recipient = EXCLUDED.recipient, location = EXCLUDED.location,
            postal_code = EXCLUDED.postal_code, city = EXCLUDED.city,
            country = EXCLUDED.country, phone = EXCLUDED.phone,
            fax = EXCLUDED.fax, email = EXCLUDED.email,
            updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, address); err != nil {
		return fmt.Errorf("upsert score sheet address: %w", err)
	}
	return nil
}
