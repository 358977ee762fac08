package mailer

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ConsoleMailer logs messages instead of delivering them and keeps a copy
// for test assertions. It is the default driver outside production.
type ConsoleMailer struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewConsole builds a logging mailer.
func NewConsole(logger *zap.Logger) *ConsoleMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleMailer{logger: logger}
}

// Send records the message and writes it to the log.
func (m *ConsoleMailer) Send(ctx context.Context, msg Message) error {
	if !msg.HasRecipients() {
		return nil
	}

	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()

	m.logger.Sugar().Infow("mail (console driver)",
		"to", strings.Join(msg.To, ", "),
		"subject", msg.Subject,
		"template", msg.Template,
	)
	return nil
}

// Sent returns a snapshot of the recorded messages.
func (m *ConsoleMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
