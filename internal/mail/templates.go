package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
)

// InvitationData fills the invitation templates.
type InvitationData struct {
	To          string
	InviterName string
	ProjectName string
	Role        string
	AcceptURL   string
	DeclineURL  string
	ExpiresAt   time.Time
}

// Invitation renders the team invitation email.
func Invitation(d InvitationData) (Message, error) {
	var text, html bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, "invitation.txt", d); err != nil {
		return Message{}, fmt.Errorf("rendering invitation text: %w", err)
	}
	if err := htmlTemplates.ExecuteTemplate(&html, "invitation.html", d); err != nil {
		return Message{}, fmt.Errorf("rendering invitation html: %w", err)
	}
	return Message{
		To:      d.To,
		Subject: fmt.Sprintf("%s invited you to %s on Planboard", d.InviterName, d.ProjectName),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
