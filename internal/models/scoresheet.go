package models

import "time"

// ScoreSheetAddressMode selects how the printed sheet address is sourced.
type ScoreSheetAddressMode string

const (
	// AddressModeEntity reuses an institutional entity's address.
	AddressModeEntity ScoreSheetAddressMode = "ENTITY"
	// AddressModeCustom carries a hand-filled address block.
	AddressModeCustom ScoreSheetAddressMode = "CUSTOM"
)

// ScoreSheetAddress is the per-offer contact block for printed score
// sheets. Exactly one of the two modes is populated.
type ScoreSheetAddress struct {
	ID           string                `db:"id" json:"id"`
	OfferID      string                `db:"offer_id" json:"offer_id"`
	OfferAcronym string                `db:"offer_acronym" json:"offer_acronym"`
	Mode         ScoreSheetAddressMode `db:"mode" json:"mode"`

	// Entity mode.
	EntityAddressChoice *string `db:"entity_address_choice" json:"entity_address_choice,omitempty"`

	// Custom mode.
	Recipient  *string `db:"recipient" json:"recipient,omitempty"`
	Location   *string `db:"location" json:"location,omitempty"`
	PostalCode *string `db:"postal_code" json:"postal_code,omitempty"`
	City       *string `db:"city" json:"city,omitempty"`
	Country    *string `db:"country" json:"country,omitempty"`
	Phone      *string `db:"phone" json:"phone,omitempty"`
	Fax        *string `db:"fax" json:"fax,omitempty"`
	Email      *string `db:"email" json:"email,omitempty"`

	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ScoreSheetRow is one enrolment line on a printed sheet. When no final
// value exists the draft values are shown.
type ScoreSheetRow struct {
	RegistrationID  string         `json:"registration_id"`
	LastName        string         `json:"last_name"`
	FirstName       string         `json:"first_name"`
	Score           *float64       `json:"score,omitempty"`
	Justification   *Justification `json:"justification,omitempty"`
	Final           bool           `json:"final"`
	DeadlineDate    time.Time      `json:"deadline_date"`
	DeadlineReached bool           `json:"deadline_reached"`
}

// ScoreSheet is the per-(learning unit, programme) payload published for
// downstream PDF rendering.
type ScoreSheet struct {
	SessionNumber       int                `json:"session_number"`
	AcademicYear        int                `json:"academic_year"`
	LearningUnitAcronym string             `json:"learning_unit_acronym"`
	LearningUnitTitle   string             `json:"learning_unit_title"`
	OfferAcronym        string             `json:"offer_acronym"`
	OfferTitle          string             `json:"offer_title"`
	DeliberationDate    *time.Time         `json:"deliberation_date,omitempty"`
	Address             *ScoreSheetAddress `json:"address,omitempty"`
	Rows                []ScoreSheetRow    `json:"rows"`
}

// ScoreSheetRequest is the queue envelope consumed by the bridge.
type ScoreSheetRequest struct {
	GlobalID      string `json:"global_id"`
	ResponseQueue string `json:"response_queue"`
}

// ScoreSheetResponse is published back onto the response queue named in
// the request envelope.
type ScoreSheetResponse struct {
	GlobalID string       `json:"global_id"`
	Sheets   []ScoreSheet `json:"sheets"`
}
