package service

import (
	"time"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

// WritableField names one of the four writable encoding fields.
type WritableField string

const (
	WritableScoreDraft         WritableField = "score_draft"
	WritableScoreFinal         WritableField = "score_final"
	WritableJustificationDraft WritableField = "justification_draft"
	WritableJustificationFinal WritableField = "justification_final"
)

// FieldSet is the set of fields a principal may write right now.
type FieldSet map[WritableField]struct{}

// Contains reports membership.
func (s FieldSet) Contains(field WritableField) bool {
	_, ok := s[field]
	return ok
}

// PermissionPolicy is the single place deciding write authority. It is
// evaluated per enrolment and principal against the calendar's now, and
// returned as a set so the batch processor can reject unauthorised
// proposals without touching the rest of the batch.
type PermissionPolicy struct{}

// NewPermissionPolicy constructs the policy.
func NewPermissionPolicy() *PermissionPolicy {
	return &PermissionPolicy{}
}

// WritableFields evaluates the policy rules in order. A numeric zero score
// counts as a value, never as absent.
func (p *PermissionPolicy) WritableFields(enrolment models.ExamEnrolment, role models.UserRole, now time.Time) FieldSet {
	writable := FieldSet{}

	if enrolment.State != models.EnrolmentStateEnrolled {
		return writable
	}

	switch role {
	case models.RoleProgramManager:
		if enrolment.DeadlineReached(now) {
			return writable
		}
		writable[WritableScoreDraft] = struct{}{}
		writable[WritableScoreFinal] = struct{}{}
		writable[WritableJustificationDraft] = struct{}{}
		writable[WritableJustificationFinal] = struct{}{}
	case models.RoleTutor:
		if enrolment.HasFinal() {
			return writable
		}
		if enrolment.TutorDeadlineReached(now) || enrolment.DeadlineReached(now) {
			return writable
		}
		writable[WritableScoreDraft] = struct{}{}
		writable[WritableJustificationDraft] = struct{}{}
	}

	return writable
}

// AllowsJustification enforces the value-level restriction on top of the
// field set: ABSENCE_JUSTIFIED is reserved to programme managers.
func (p *PermissionPolicy) AllowsJustification(role models.UserRole, justification models.Justification) bool {
	if justification == models.JustificationAbsenceJustified {
		return role == models.RoleProgramManager
	}
	return true
}

// FieldFor maps a proposal's (field, layer) pair onto the policy field.
func FieldFor(field models.EncodingField, layer models.EncodingLayer) WritableField {
	if field == models.FieldScore {
		if layer == models.LayerFinal {
			return WritableScoreFinal
		}
		return WritableScoreDraft
	}
	if layer == models.LayerFinal {
		return WritableJustificationFinal
	}
	return WritableJustificationDraft
}
