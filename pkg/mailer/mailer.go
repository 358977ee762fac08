package mailer

import "context"

// Template names referenced by notifications. Rendering is owned by the
// mail platform; the subsystem only supplies the template name and its data.
const (
	TemplateTutorSubmission      = "assessments_scores_submission"
	TemplateOfferAllEncoded      = "assessments_offer_all_scores_encoded"
	TemplateAllEncodedByManager  = "assessments_all_scores_by_pgm_manager"
)

// Message is an outbound mail referencing a named template.
type Message struct {
	To       []string
	Cc       []string
	Subject  string
	Template string
	Data     map[string]interface{}
	// PlainBody carries a minimal text fallback for drivers without
	// template support.
	PlainBody string
}

// HasRecipients reports whether the message can be delivered at all.
func (m Message) HasRecipients() bool {
	return len(m.To) > 0
}

// Mailer delivers messages to the outbound mail platform.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
