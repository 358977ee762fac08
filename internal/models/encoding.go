package models

import "time"

// EncodingField identifies which value a proposal writes.
type EncodingField string

const (
	FieldScore         EncodingField = "score"
	FieldJustification EncodingField = "justification"
)

// EncodingLayer identifies the targeted encoding layer.
type EncodingLayer string

const (
	LayerDraft EncodingLayer = "draft"
	LayerFinal EncodingLayer = "final"
)

// ChangeProposal is one proposed write within an encoding batch. Only
// proposals with Changed=true are considered.
type ChangeProposal struct {
	EnrolmentID string        `json:"enrolment_id" validate:"required"`
	Field       EncodingField `json:"field" validate:"required,oneof=score justification"`
	Layer       EncodingLayer `json:"layer" validate:"omitempty,oneof=draft final"`
	NewValue    string        `json:"new_value"`
	Changed     bool          `json:"changed"`
}

// EncodingBatch is the transient list of proposals submitted in one call.
type EncodingBatch struct {
	Proposals []ChangeProposal `json:"proposals" validate:"required,dive"`
}

// NonTrivial returns the proposals with the changed flag set.
func (b EncodingBatch) NonTrivial() []ChangeProposal {
	out := make([]ChangeProposal, 0, len(b.Proposals))
	for _, p := range b.Proposals {
		if p.Changed {
			out = append(out, p)
		}
	}
	return out
}

// AppliedChange records one accepted and persisted proposal.
type AppliedChange struct {
	EnrolmentID   string         `json:"enrolment_id"`
	Field         EncodingField  `json:"field"`
	Layer         EncodingLayer  `json:"layer"`
	Score         *float64       `json:"score,omitempty"`
	Justification *Justification `json:"justification,omitempty"`
}

// ProposalRejection records one rejected proposal; rejections never abort
// the rest of the batch.
type ProposalRejection struct {
	EnrolmentID string        `json:"enrolment_id"`
	Field       EncodingField `json:"field"`
	Reason      string        `json:"reason"`
	Detail      string        `json:"detail,omitempty"`
}

// EncodingNotification marks a (tutor, offer) pair whose enrolments became
// fully encoded as a result of a batch.
type EncodingNotification struct {
	TutorGlobalID       string `json:"tutor_global_id"`
	TutorEmail          string `json:"tutor_email"`
	OfferAcronym        string `json:"offer_acronym"`
	LearningUnitAcronym string `json:"learning_unit_acronym"`
}

// BatchResult is the structured outcome of applying an encoding batch.
type BatchResult struct {
	Applied       []AppliedChange        `json:"applied"`
	Rejected      []ProposalRejection    `json:"rejected"`
	Notifications []EncodingNotification `json:"notifications,omitempty"`
}

// SubmissionReport summarises a draft-to-final promotion run.
type SubmissionReport struct {
	LearningUnitAcronym string   `json:"learning_unit_acronym"`
	SessionNumber       int      `json:"session_number"`
	Applied             int      `json:"applied"`
	AllEncoded          bool     `json:"all_encoded"`
	NotifiedTutors      []string `json:"notified_tutors,omitempty"`
	NotifiedManagers    []string `json:"notified_managers,omitempty"`
	SubmittedAt         time.Time `json:"submitted_at"`
}

// EncodingProgress counts encoded enrolments per (offer, learning unit).
type EncodingProgress struct {
	OfferAcronym        string `db:"offer_acronym" json:"offer_acronym"`
	LearningUnitAcronym string `db:"learning_unit_acronym" json:"learning_unit_acronym"`
	Encoded             int    `db:"encoded" json:"encoded"`
	Total               int    `db:"total" json:"total"`
}

// Complete reports whether every enrolment of the slice is encoded.
func (p EncodingProgress) Complete() bool {
	return p.Total > 0 && p.Encoded == p.Total
}

// ExamEnrolmentHistory is the audit trail row written for every applied
// change.
type ExamEnrolmentHistory struct {
	ID              string    `db:"id" json:"id"`
	ExamEnrolmentID string    `db:"exam_enrolment_id" json:"exam_enrolment_id"`
	Field           string    `db:"field" json:"field"`
	OldValue        *string   `db:"old_value" json:"old_value,omitempty"`
	NewValue        *string   `db:"new_value" json:"new_value,omitempty"`
	AuthorGlobalID  string    `db:"author_global_id" json:"author_global_id"`
	ChangedAt       time.Time `db:"changed_at" json:"changed_at"`
}

// EnrolmentUpdate carries the layer values written by one accepted change
// plus its audit trail rows.
type EnrolmentUpdate struct {
	ScoreDraft             *float64
	ScoreReencoded         *float64
	ScoreFinal             *float64
	JustificationDraft     *Justification
	JustificationReencoded *Justification
	JustificationFinal     *Justification
	History                []ExamEnrolmentHistory
}

// FromEnrolment copies the current layer values as the starting point of
// an update.
func (u *EnrolmentUpdate) FromEnrolment(e *ExamEnrolment) {
	u.ScoreDraft = e.ScoreDraft
	u.ScoreReencoded = e.ScoreReencoded
	u.ScoreFinal = e.ScoreFinal
	u.JustificationDraft = e.JustificationDraft
	u.JustificationReencoded = e.JustificationReencoded
	u.JustificationFinal = e.JustificationFinal
}

// EnrolmentApply re-evaluates a proposed change against the freshly
// locked row. Returning a nil update aborts without error.
type EnrolmentApply func(current *ExamEnrolment) (*EnrolmentUpdate, error)

// UploadError is a typed row-level spreadsheet ingestion failure.
type UploadError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UploadReport summarises a successful spreadsheet ingestion.
type UploadReport struct {
	SessionNumber int                 `json:"session_number"`
	RowsRead      int                 `json:"rows_read"`
	Result        BatchResult         `json:"result"`
	RowErrors     []UploadError       `json:"row_errors,omitempty"`
}
