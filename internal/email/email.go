// Package email renders and delivers transactional emails.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Template names a message layout.
type Template string

const (
	TemplateRedemption    Template = "redemption_code"
	TemplateGiftCard      Template = "gift_card"
	TemplatePasswordReset Template = "password_reset"
	TemplateWelcome       Template = "welcome"
	TemplateNewsletter    Template = "newsletter"
)

var subjects = map[Template]string{
	TemplateRedemption:    "Ton code de réduction fidélité",
	TemplateGiftCard:      "Ta carte cadeau est disponible",
	TemplatePasswordReset: "Réinitialisation de votre mot de passe",
	TemplateWelcome:       "Bienvenue dans le programme fidélité",
	TemplateNewsletter:    "Bienvenue dans l'ohana - Ton code de bienvenue",
}

// Message is one email to one recipient.
type Message struct {
	To       string
	Subject  string
	HTML     string
	Template Template
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Render builds a message from a template and its data.
func Render(t Template, to string, data any) (Message, error) {
	subject, ok := subjects[t]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", t)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, string(t)+".html", data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s: %w", t, err)
	}
	return Message{To: to, Subject: subject, HTML: buf.String(), Template: t}, nil
}

// Discard is the sender used when no provider is configured. It logs the
// recipient and template only.
type Discard struct {
	Logger *zap.Logger
}

// Send logs the message and reports success.
func (d Discard) Send(ctx context.Context, msg Message) error {
	if d.Logger != nil {
		d.Logger.Debug("email discarded",
			zap.String("to", msg.To),
			zap.String("template", string(msg.Template)))
	}
	return nil
}

// RedemptionData fills the redemption_code template.
type RedemptionData struct {
	FirstName string
	Code      string
	Amount    string
	Points    int64
	ExpiresAt string
	ShopURL   string
}

// GiftCardData fills the gift_card template.
type GiftCardData struct {
	FirstName string
	Code      string
	Amount    string
	Tier      string
	ExpiresAt string
	ShopURL   string
}

// ResetData fills the password_reset template.
type ResetData struct {
	FirstName string
	ResetURL  string
}

// WelcomeData fills the welcome and newsletter templates.
type WelcomeData struct {
	FirstName string
	Code      string
	Percent   int64
	ShopURL   string
}
