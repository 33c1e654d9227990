package provider

import (
	"context"

	"github.com/confmail/mailbatch/internal/domain"
)

// Mailer is the outbound mail delivery port.
type Mailer interface {
	ListTemplates(ctx context.Context) ([]TemplateInfo, error)
	GetTemplate(ctx context.Context, templateKey string) (*Template, error)
	Send(ctx context.Context, msg *Message) error
}

// TemplateInfo is one row of the remote template listing.
type TemplateInfo struct {
	ID      string
	Name    string
	Updated string
}

// Template carries the latest version of a remote template, the part that
// declares its replaceable tokens.
type Template struct {
	ID          string
	Name        string
	Subject     string
	HTMLContent string
}

type EmailAddress struct {
	Email string
	Name  string
}

type Attachment struct {
	Filename string
	Content  []byte
}

// Message is a fully resolved delivery: one recipient, one template, the full
// field mapping as substitution data.
type Message struct {
	To          EmailAddress
	From        EmailAddress
	TemplateID  string
	Data        domain.Fields
	Categories  []string
	Attachments []Attachment
}
