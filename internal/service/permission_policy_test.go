package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/uclouvain/osis-score-encoding/internal/models"
)

func TestWritableFields(t *testing.T) {
	now := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)
	offset := 3

	base := models.ExamEnrolment{
		State:        models.EnrolmentStateEnrolled,
		DeadlineDate: now.AddDate(0, 0, 7),
	}

	tests := []struct {
		name  string
		setup func(e *models.ExamEnrolment)
		role  models.UserRole
		want  []WritableField
	}{
		{
			name: "manager before deadline writes everything",
			role: models.RoleProgramManager,
			want: []WritableField{WritableScoreDraft, WritableScoreFinal, WritableJustificationDraft, WritableJustificationFinal},
		},
		{
			name: "manager after deadline writes nothing",
			setup: func(e *models.ExamEnrolment) {
				e.DeadlineDate = now.AddDate(0, 0, -1)
			},
			role: models.RoleProgramManager,
			want: nil,
		},
		{
			name: "manager on deadline day still writes",
			setup: func(e *models.ExamEnrolment) {
				e.DeadlineDate = now
			},
			role: models.RoleProgramManager,
			want: []WritableField{WritableScoreDraft, WritableScoreFinal, WritableJustificationDraft, WritableJustificationFinal},
		},
		{
			name: "tutor before tutor deadline writes drafts",
			role: models.RoleTutor,
			want: []WritableField{WritableScoreDraft, WritableJustificationDraft},
		},
		{
			name: "tutor after tutor deadline writes nothing",
			setup: func(e *models.ExamEnrolment) {
				e.DeadlineDate = now.AddDate(0, 0, 2)
				e.DeadlineTutorOffsetDays = &offset
			},
			role: models.RoleTutor,
			want: nil,
		},
		{
			name: "tutor blocked once a final exists",
			setup: func(e *models.ExamEnrolment) {
				e.ScoreFinal = ptrFloat(12)
			},
			role: models.RoleTutor,
			want: nil,
		},
		{
			name: "not enrolled blocks everyone",
			setup: func(e *models.ExamEnrolment) {
				e.State = models.EnrolmentStateNotEnrolled
			},
			role: models.RoleProgramManager,
			want: nil,
		},
	}

	policy := NewPermissionPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enrolment := base
			if tt.setup != nil {
				tt.setup(&enrolment)
			}
			got := policy.WritableFields(enrolment, tt.role, now)
			assert.Len(t, got, len(tt.want))
			for _, field := range tt.want {
				assert.True(t, got.Contains(field), "missing %s", field)
			}
		})
	}
}

func TestAllowsJustification(t *testing.T) {
	policy := NewPermissionPolicy()

	assert.False(t, policy.AllowsJustification(models.RoleTutor, models.JustificationAbsenceJustified))
	assert.True(t, policy.AllowsJustification(models.RoleProgramManager, models.JustificationAbsenceJustified))
	assert.True(t, policy.AllowsJustification(models.RoleTutor, models.JustificationCheating))
	assert.True(t, policy.AllowsJustification(models.RoleTutor, models.JustificationAbsenceUnjustified))
}

func TestFieldFor(t *testing.T) {
	assert.Equal(t, WritableScoreDraft, FieldFor(models.FieldScore, models.LayerDraft))
	assert.Equal(t, WritableScoreFinal, FieldFor(models.FieldScore, models.LayerFinal))
	assert.Equal(t, WritableJustificationDraft, FieldFor(models.FieldJustification, models.LayerDraft))
	assert.Equal(t, WritableJustificationFinal, FieldFor(models.FieldJustification, models.LayerFinal))
}
