package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/uclouvain/osis-score-encoding/pkg/config"
)

// SendgridMailer delivers messages through the SendGrid v3 API.
type SendgridMailer struct {
	key           string
	from          *sgmail.Email
	subjectPrefix string
}

// NewSendgrid builds a SendGrid-backed mailer from configuration.
func NewSendgrid(cfg config.MailerConfig) *SendgridMailer {
	return &SendgridMailer{
		key:           cfg.SendgridAPIKey,
		from:          sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		subjectPrefix: cfg.SubjectPrefix,
	}
}

// Send delivers a single message.
func (m *SendgridMailer) Send(ctx context.Context, msg Message) error {
	if !msg.HasRecipients() {
		return nil
	}

	p := sgmail.NewPersonalization()
	p.Subject = m.subjectPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail("", to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(sgmail.NewEmail("", cc))
	}
	for key, value := range msg.Data {
		p.SetSubstitution("%"+key+"%", fmt.Sprint(value))
	}

	mail := sgmail.NewV3Mail()
	mail.SetFrom(m.from)
	mail.AddPersonalizations(p)
	if msg.Template != "" {
		mail.SetTemplateID(msg.Template)
	}
	if msg.PlainBody != "" {
		mail.AddContent(sgmail.NewContent("text/plain", msg.PlainBody))
	}

	req := sendgrid.GetRequest(m.key, "/v3/mail/send", "https://api.sendgrid.com")
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(mail)

	resp, err := sendgrid.MakeRequest(req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid responded %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
