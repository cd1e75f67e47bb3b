package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecgard/planboard/internal/config"
)

func TestInvitation(t *testing.T) {
	msg, err := Invitation(InvitationData{
		To:          "bob@example.com",
		InviterName: "Alice <script>",
		ProjectName: "Launch",
		Role:        "editor",
		AcceptURL:   "https://app.example.com/v1/invitations/inv_abc/accept",
		DeclineURL:  "https://app.example.com/v1/invitations/inv_abc/decline",
		ExpiresAt:   time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "bob@example.com", msg.To)
	assert.Equal(t, "Alice <script> invited you to Launch on Planboard", msg.Subject)
	assert.Contains(t, msg.Text, "inv_abc/accept")
	assert.Contains(t, msg.Text, "March 9, 2026")
	assert.Contains(t, msg.HTML, "inv_abc/decline")
	assert.Contains(t, msg.HTML, "Alice &lt;script&gt;")
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestSMTPMailer_Send(t *testing.T) {
	m := NewSMTPMailer(config.MailConfig{
		Host: "smtp.example.com", Port: 587, Username: "user", Password: "secret",
		From: "Planboard <no-reply@example.com>",
	})
	m.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody string
	m.send = func(addr string, a smtp.Auth, from string, to []string, body []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, string(body)
		assert.NotNil(t, a)
		return nil
	}

	err := m.Send(context.Background(), Message{To: "bob@example.com", Subject: "Hi", Text: "plain body", HTML: "<p>html body</p>"})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "no-reply@example.com", gotFrom)
	assert.Equal(t, []string{"bob@example.com"}, gotTo)
	assert.Contains(t, gotBody, "Subject: Hi\r\n")
	assert.Contains(t, gotBody, "multipart/alternative")
	assert.Contains(t, gotBody, "text/plain; charset=UTF-8")
	assert.Contains(t, gotBody, "plain body")
	assert.Contains(t, gotBody, "<p>html body</p>")
	assert.True(t, strings.HasSuffix(gotBody, "--\r\n"))
}

func TestSMTPMailer_SendError(t *testing.T) {
	m := NewSMTPMailer(config.MailConfig{Host: "localhost", Port: 25, From: "a@example.com"})
	assert.Nil(t, m.auth)
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }

	err := m.Send(context.Background(), Message{To: "bob@example.com", Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bob@example.com")
}

func TestNew(t *testing.T) {
	assert.IsType(t, &LogMailer{}, New(config.MailConfig{Driver: "log"}))
	assert.IsType(t, &SMTPMailer{}, New(config.MailConfig{Driver: "smtp", Host: "h", Port: 25}))
	assert.NoError(t, NewLogMailer("a@b").Send(context.Background(), Message{To: "x@y"}))
}
