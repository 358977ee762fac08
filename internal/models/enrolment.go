package models

import "time"

// EnrolmentState mirrors the offer enrolment lifecycle.
type EnrolmentState string

const (
	EnrolmentStateEnrolled    EnrolmentState = "ENROLLED"
	EnrolmentStateNotEnrolled EnrolmentState = "NOT_ENROLLED"
)

// Justification replaces a numeric score at a given encoding layer.
type Justification string

const (
	JustificationAbsenceUnjustified Justification = "ABSENCE_UNJUSTIFIED"
	JustificationAbsenceJustified   Justification = "ABSENCE_JUSTIFIED"
	JustificationCheating           Justification = "CHEATING"
	JustificationScoreMissing       Justification = "SCORE_MISSING"
)

// Valid reports whether j is one of the known justifications.
func (j Justification) Valid() bool {
	switch j {
	case JustificationAbsenceUnjustified, JustificationAbsenceJustified,
		JustificationCheating, JustificationScoreMissing:
		return true
	}
	return false
}

// justificationTokens maps the single-letter spreadsheet tokens onto
// justifications. The token set is part of the upload contract.
var justificationTokens = map[string]Justification{
	"A": JustificationAbsenceUnjustified,
	"M": JustificationAbsenceJustified,
	"T": JustificationCheating,
	"?": JustificationScoreMissing,
}

// JustificationFromToken resolves a spreadsheet token.
func JustificationFromToken(token string) (Justification, bool) {
	j, ok := justificationTokens[token]
	return j, ok
}

// Token returns the spreadsheet representation of j.
func (j Justification) Token() string {
	for token, candidate := range justificationTokens {
		if candidate == j {
			return token
		}
	}
	return ""
}

// EncodingState is the derived double-encoding state of one layer kind.
type EncodingState string

const (
	EncodingStateEmpty     EncodingState = "EMPTY"
	EncodingStateDraft     EncodingState = "DRAFT"
	EncodingStateReencoded EncodingState = "REENCODED"
	EncodingStateFinal     EncodingState = "FINAL"
)

// OfferEnrolment binds a student to an offer for one academic year.
type OfferEnrolment struct {
	ID                    string         `db:"id" json:"id"`
	StudentRegistrationID string         `db:"student_registration_id" json:"student_registration_id"`
	OfferID               string         `db:"offer_id" json:"offer_id"`
	State                 EnrolmentState `db:"state" json:"state"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
}

// LearningUnitEnrolment binds an offer enrolment to a learning unit.
type LearningUnitEnrolment struct {
	ID               string         `db:"id" json:"id"`
	OfferEnrolmentID string         `db:"offer_enrolment_id" json:"offer_enrolment_id"`
	LearningUnitID   string         `db:"learning_unit_id" json:"learning_unit_id"`
	State            EnrolmentState `db:"state" json:"state"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// ExamEnrolment is the core row of the encoding subsystem: the right of a
// student to a score for one (learning unit, session) pair, carrying the
// three encoding layers and the per-enrolment deadline resolution.
type ExamEnrolment struct {
	ID                      string         `db:"id" json:"id"`
	LearningUnitEnrolmentID string         `db:"learning_unit_enrolment_id" json:"learning_unit_enrolment_id"`
	SessionNumber           int            `db:"session_number" json:"session_number"`
	State                   EnrolmentState `db:"state" json:"state"`

	ScoreDraft     *float64 `db:"score_draft" json:"score_draft,omitempty"`
	ScoreReencoded *float64 `db:"score_reencoded" json:"score_reencoded,omitempty"`
	ScoreFinal     *float64 `db:"score_final" json:"score_final,omitempty"`

	JustificationDraft     *Justification `db:"justification_draft" json:"justification_draft,omitempty"`
	JustificationReencoded *Justification `db:"justification_reencoded" json:"justification_reencoded,omitempty"`
	JustificationFinal     *Justification `db:"justification_final" json:"justification_final,omitempty"`

	DeadlineDate            time.Time `db:"deadline_date" json:"deadline_date"`
	DeadlineTutorOffsetDays *int      `db:"deadline_tutor_offset_days" json:"deadline_tutor_offset_days,omitempty"`

	// Projection columns resolved by the enrolment store so downstream
	// components never fetch them row by row.
	StudentRegistrationID string `db:"student_registration_id" json:"student_registration_id"`
	StudentLastName       string `db:"student_last_name" json:"student_last_name"`
	StudentFirstName      string `db:"student_first_name" json:"student_first_name"`
	StudentEmail          string `db:"student_email" json:"student_email"`
	OfferID               string `db:"offer_id" json:"offer_id"`
	OfferAcronym          string `db:"offer_acronym" json:"offer_acronym"`
	LearningUnitID        string `db:"learning_unit_id" json:"learning_unit_id"`
	LearningUnitAcronym   string `db:"learning_unit_acronym" json:"learning_unit_acronym"`
	AcademicYear          int    `db:"academic_year" json:"academic_year"`

	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TutorDeadline is the enrolment deadline minus the tutor offset; it
// governs tutor write rights separately from the manager deadline.
func (e ExamEnrolment) TutorDeadline() time.Time {
	if e.DeadlineTutorOffsetDays == nil {
		return e.DeadlineDate
	}
	return e.DeadlineDate.AddDate(0, 0, -*e.DeadlineTutorOffsetDays)
}

// DeadlineReached reports whether the manager deadline has passed at now.
func (e ExamEnrolment) DeadlineReached(now time.Time) bool {
	return DateOf(now).After(DateOf(e.DeadlineDate))
}

// TutorDeadlineReached reports whether the tutor deadline has passed.
func (e ExamEnrolment) TutorDeadlineReached(now time.Time) bool {
	return DateOf(now).After(DateOf(e.TutorDeadline()))
}

// HasFinal reports whether any final-layer value is set. Once true, draft
// fields are read-only for every principal.
func (e ExamEnrolment) HasFinal() bool {
	return e.ScoreFinal != nil || e.JustificationFinal != nil
}

// IsEncoded reports whether the enrolment carries a score or justification
// at the draft or final layer. A numeric zero counts as a value.
func (e ExamEnrolment) IsEncoded() bool {
	return e.ScoreDraft != nil || e.JustificationDraft != nil || e.HasFinal()
}

// ScoreState derives the double-encoding state of the score layers.
func (e ExamEnrolment) ScoreState() EncodingState {
	switch {
	case e.ScoreFinal != nil:
		return EncodingStateFinal
	case e.ScoreReencoded != nil:
		return EncodingStateReencoded
	case e.ScoreDraft != nil:
		return EncodingStateDraft
	default:
		return EncodingStateEmpty
	}
}

// JustificationState derives the double-encoding state of the
// justification layers.
func (e ExamEnrolment) JustificationState() EncodingState {
	switch {
	case e.JustificationFinal != nil:
		return EncodingStateFinal
	case e.JustificationReencoded != nil:
		return EncodingStateReencoded
	case e.JustificationDraft != nil:
		return EncodingStateDraft
	default:
		return EncodingStateEmpty
	}
}

// EnrolmentFilter composes the AND filters of the enrolment store.
type EnrolmentFilter struct {
	SessionNumber          int
	AcademicYear           int
	LearningUnitAcronym    string
	OfferAcronym           string
	TutorGlobalID          string
	ProgramManagerGlobalID string
	OnlyEnrolled           bool
	EnrolmentIDs           []string
}
