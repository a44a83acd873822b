package notification

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"strings"

	entity "casebridge/internal/domain/notification"
	"casebridge/internal/repository"
	"casebridge/internal/template"
	casebridge_errors "casebridge/pkg/errors"
)

const maxSMSLength = 320

const (
	defaultEmailBody = "Hello {{recipientName}},\n\n{{message}}\n\n{{link}}"
	defaultSMSBody   = "{{title}}: {{message}}"
)

var defaultSubjects = map[entity.Type]string{
	entity.TypeNewMessage:          "New message: {{title}}",
	entity.TypeNewConversation:     "You were added to a conversation: {{title}}",
	entity.TypeParticipantAdded:    "You were added to {{title}}",
	entity.TypeCaseStatusChanged:   "Case update: {{title}}",
	entity.TypeCaseApproved:        "Your case has been approved: {{title}}",
	entity.TypeCaseRejected:        "Decision on your case: {{title}}",
	entity.TypeNewDocument:         "New document: {{title}}",
	entity.TypeDocumentApproved:    "Document approved: {{title}}",
	entity.TypeDocumentRejected:    "Document needs attention: {{title}}",
	entity.TypeActionRequired:      "Action required: {{title}}",
	entity.TypeAppointmentReminder: "Appointment reminder: {{title}}",
	entity.TypePaymentDue:          "Payment due: {{title}}",
}

type renderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

// templateMeta is the optional metadata of an email override.
type templateMeta struct {
	Subject string `json:"subject"`
}

// renderer resolves per-type overrides from message_templates and falls back to built-in defaults.
type renderer struct {
	templates repository.TemplateRepository
}

func (r renderer) email(ctx context.Context, t entity.Type, vars map[string]interface{}) (renderedEmail, error) {
	subject := defaultSubjects[t]
	if subject == "" {
		subject = "{{title}}"
	}
	body := defaultEmailBody

	override, err := r.templates.GetActiveByName(ctx, "email."+string(t))
	switch {
	case err == nil:
		body = override.Content
		var meta templateMeta
		if len(override.Metadata) > 0 && json.Unmarshal(override.Metadata, &meta) == nil && meta.Subject != "" {
			subject = meta.Subject
		}
	case !errors.Is(err, casebridge_errors.ErrNotFound):
		return renderedEmail{}, err
	}

	text := strings.TrimSpace(template.Render(body, vars))
	return renderedEmail{
		Subject: strings.TrimSpace(template.Render(subject, vars)),
		HTML:    textToHTML(text),
		Text:    text,
	}, nil
}

func (r renderer) sms(ctx context.Context, t entity.Type, vars map[string]interface{}) (string, error) {
	body := defaultSMSBody
	override, err := r.templates.GetActiveByName(ctx, "sms."+string(t))
	switch {
	case err == nil:
		body = override.Content
	case !errors.Is(err, casebridge_errors.ErrNotFound):
		return "", err
	}
	return clip(strings.TrimSpace(template.Render(body, vars)), maxSMSLength), nil
}

func textToHTML(text string) string {
	escaped := html.EscapeString(text)
	paragraphs := strings.Split(escaped, "\n\n")
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><body>")
	for _, p := range paragraphs {
		if p == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(p, "\n", "<br>"))
		b.WriteString("</p>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
