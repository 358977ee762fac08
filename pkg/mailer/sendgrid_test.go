package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-score-encoding/pkg/config"
)

func TestSendgridMailerImplementsMailer(t *testing.T) {
	var m Mailer = NewSendgrid(config.MailerConfig{
		SendgridAPIKey: "SG.test",
		FromName:       "OSIS",
		FromAddress:    "noreply@uclouvain.be",
	})
	require.NotNil(t, m)
}

func TestSendgridMailerSkipsEmptyRecipientList(t *testing.T) {
	m := NewSendgrid(config.MailerConfig{SendgridAPIKey: "SG.test"})

	err := m.Send(context.Background(), Message{Subject: "no one to tell"})
	assert.NoError(t, err)
}
