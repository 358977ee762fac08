package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uclouvain/osis-score-encoding/internal/models"
	"github.com/uclouvain/osis-score-encoding/pkg/jobs"
	"github.com/uclouvain/osis-score-encoding/pkg/mailer"
)

// MailJobType tags enqueued outbound mail jobs.
const MailJobType = "outbound_mail"

type mailEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// NotificationService translates encoding events into outbound mail and
// hands delivery to the background queue so request handling never waits
// on the mail platform.
type NotificationService struct {
	queue          mailEnqueuer
	subjectPrefix  string
	tutorEnabled   bool
	managerEnabled bool
	logger         *zap.Logger
}

// NewNotificationService constructs NotificationService with every
// notification kind enabled.
func NewNotificationService(queue mailEnqueuer, subjectPrefix string, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		queue:          queue,
		subjectPrefix:  subjectPrefix,
		tutorEnabled:   true,
		managerEnabled: true,
		logger:         logger,
	}
}

// WithToggles enables or disables the tutor-facing and manager-facing
// notification kinds. A disabled kind is silently skipped.
func (s *NotificationService) WithToggles(tutor, manager bool) *NotificationService {
	s.tutorEnabled = tutor
	s.managerEnabled = manager
	return s
}

// TutorSubmissionSummary mails the submitting tutor a summary of the
// promotion run.
func (s *NotificationService) TutorSubmissionSummary(principal models.Principal, report models.SubmissionReport) error {
	if !s.tutorEnabled || principal.Email == "" {
		return nil
	}
	return s.enqueue(mailer.Message{
		To:       []string{principal.Email},
		Subject:  s.subject(fmt.Sprintf("scores submitted for %s, session %d", report.LearningUnitAcronym, report.SessionNumber)),
		Template: mailer.TemplateTutorSubmission,
		Data: map[string]interface{}{
			"learning_unit": report.LearningUnitAcronym,
			"session":       report.SessionNumber,
			"applied":       report.Applied,
			"all_encoded":   report.AllEncoded,
			"submitted_at":  report.SubmittedAt,
		},
		PlainBody: fmt.Sprintf("%d score(s) submitted for %s in session %d.", report.Applied, report.LearningUnitAcronym, report.SessionNumber),
	})
}

// OfferFullyEncoded tells the offer's programme managers that every
// enrolment of the offer now carries a value.
func (s *NotificationService) OfferFullyEncoded(managers []models.ProgramManager, offerAcronym, learningUnitAcronym string, sessionNumber int) error {
	if !s.managerEnabled {
		return nil
	}
	recipients := make([]string, 0, len(managers))
	for _, manager := range managers {
		if manager.Email != "" {
			recipients = append(recipients, manager.Email)
		}
	}
	if len(recipients) == 0 {
		return nil
	}
	return s.enqueue(mailer.Message{
		To:       recipients,
		Subject:  s.subject(fmt.Sprintf("all scores encoded for %s, session %d", offerAcronym, sessionNumber)),
		Template: mailer.TemplateOfferAllEncoded,
		Data: map[string]interface{}{
			"offer":         offerAcronym,
			"learning_unit": learningUnitAcronym,
			"session":       sessionNumber,
		},
		PlainBody: fmt.Sprintf("Every enrolment of %s is encoded for session %d.", offerAcronym, sessionNumber),
	})
}

// EncodedByManager warns a tutor that a programme manager finalised the
// scores of one of their learning units.
func (s *NotificationService) EncodedByManager(notification models.EncodingNotification, sessionNumber int) error {
	if !s.tutorEnabled || notification.TutorEmail == "" {
		return nil
	}
	return s.enqueue(mailer.Message{
		To:       []string{notification.TutorEmail},
		Subject:  s.subject(fmt.Sprintf("scores encoded for %s, session %d", notification.LearningUnitAcronym, sessionNumber)),
		Template: mailer.TemplateAllEncodedByManager,
		Data: map[string]interface{}{
			"offer":         notification.OfferAcronym,
			"learning_unit": notification.LearningUnitAcronym,
			"session":       sessionNumber,
		},
		PlainBody: fmt.Sprintf("All scores of %s (%s) were encoded for session %d.", notification.LearningUnitAcronym, notification.OfferAcronym, sessionNumber),
	})
}

func (s *NotificationService) subject(body string) string {
	if s.subjectPrefix == "" {
		return body
	}
	return s.subjectPrefix + " " + body
}

func (s *NotificationService) enqueue(msg mailer.Message) error {
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    MailJobType,
		Payload: msg,
	})
}

// MailHandler adapts a mailer into a queue handler for outbound mail jobs.
func MailHandler(m mailer.Mailer, logger *zap.Logger) jobs.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobs.Job) error {
		msg, ok := job.Payload.(mailer.Message)
		if !ok {
			logger.Error("mail job carries no message", zap.String("job_id", job.ID))
			return nil
		}
		if !msg.HasRecipients() {
			return nil
		}
		return m.Send(ctx, msg)
	}
}
