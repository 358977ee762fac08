package models

import "time"

// UserRole represents the principal roles of the encoding subsystem.
type UserRole string

const (
	RoleAdmin          UserRole = "ADMIN"
	RoleTutor          UserRole = "TUTOR"
	RoleProgramManager UserRole = "PROGRAM_MANAGER"
)

// User represents an authenticated principal stored in the users table.
// GlobalID is the institutional identifier shared with the attribution and
// programme manager reference data.
type User struct {
	ID           string     `db:"id" json:"id"`
	GlobalID     string     `db:"global_id" json:"global_id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Principal identifies the authenticated caller of an encoding operation.
type Principal struct {
	UserID   string   `json:"user_id"`
	GlobalID string   `json:"global_id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// Attribution binds a tutor to a learning unit for an academic year.
type Attribution struct {
	ID                  string    `db:"id" json:"id"`
	TutorGlobalID       string    `db:"tutor_global_id" json:"tutor_global_id"`
	TutorEmail          string    `db:"tutor_email" json:"tutor_email"`
	TutorLastName       string    `db:"tutor_last_name" json:"tutor_last_name"`
	TutorFirstName      string    `db:"tutor_first_name" json:"tutor_first_name"`
	LearningUnitID      string    `db:"learning_unit_id" json:"learning_unit_id"`
	LearningUnitAcronym string    `db:"learning_unit_acronym" json:"learning_unit_acronym"`
	LearningUnitTitle   string    `db:"learning_unit_title" json:"learning_unit_title"`
	AcademicYear        int       `db:"academic_year" json:"academic_year"`
	Function            string    `db:"function" json:"function"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// ProgramManager grants a principal authority over an offer.
type ProgramManager struct {
	ID           string    `db:"id" json:"id"`
	GlobalID     string    `db:"global_id" json:"global_id"`
	Email        string    `db:"email" json:"email"`
	OfferID      string    `db:"offer_id" json:"offer_id"`
	OfferAcronym string    `db:"offer_acronym" json:"offer_acronym"`
	AcademicYear int       `db:"academic_year" json:"academic_year"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// FieldConstraintStatus drives per-field UI behaviour sourced from the
// field reference table.
type FieldConstraintStatus string

const (
	FieldStatusEnabled  FieldConstraintStatus = "ENABLED"
	FieldStatusDisabled FieldConstraintStatus = "DISABLED"
	FieldStatusRequired FieldConstraintStatus = "REQUIRED"
	FieldStatusAlert    FieldConstraintStatus = "ALERT"
)

// FieldConstraint is one record of the field reference table keyed by
// (entity, field name, context).
type FieldConstraint struct {
	ID           string                `db:"id" json:"id"`
	Entity       string                `db:"entity" json:"entity"`
	FieldName    string                `db:"field_name" json:"field_name"`
	Context      string                `db:"context" json:"context"`
	Status       FieldConstraintStatus `db:"status" json:"status"`
	InitialValue *string               `db:"initial_value" json:"initial_value,omitempty"`
	Placeholder  *string               `db:"placeholder" json:"placeholder,omitempty"`
	Regex        *string               `db:"regex" json:"regex,omitempty"`
}
