package mailer

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/diagnosis/tourbook/pkg/config"
	"github.com/diagnosis/tourbook/pkg/logger"
)

// DevMailer writes emails to the log instead of delivering them.
type DevMailer struct{}

func (DevMailer) Send(ctx context.Context, to Recipient, subject, text, _ string) (string, error) {
	logger.InfoContext(ctx, "dev email", "to", to.Email, "subject", subject, "text", text)
	return "", nil
}

// Mailer renders the application's emails and hands them to a Sender.
type Mailer struct {
	sender Sender
}

func NewMailer(sender Sender) *Mailer {
	return &Mailer{sender: sender}
}

// New picks the delivery backend from config: the log in dev mode, MailerSend
// when an API key is set, SMTP otherwise.
func New(cfg config.EmailConfig) *Mailer {
	switch {
	case cfg.DevMode:
		return NewMailer(DevMailer{})
	case cfg.MailerSendKey != "":
		return NewMailer(NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.From))
	default:
		from := cfg.From
		if cfg.FromName != "" {
			from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
		}
		return NewMailer(NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, from, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS))
	}
}

func firstName(to Recipient) string {
	if fields := strings.Fields(to.Name); len(fields) > 0 {
		return fields[0]
	}
	return "there"
}

func (m *Mailer) send(ctx context.Context, to Recipient, subject, text, body string) error {
	id, err := m.sender.Send(ctx, to, subject, text, body)
	if err != nil {
		return fmt.Errorf("send %q to %s: %w", subject, to.Email, err)
	}
	logger.DebugContext(ctx, "email sent", "subject", subject, "message_id", id)
	return nil
}

func (m *Mailer) SendWelcome(ctx context.Context, to Recipient, accountURL string) error {
	name := firstName(to)
	subject := "Welcome to the Tourbook Family!"
	text := fmt.Sprintf("Hi %s,\n\nWelcome to Tourbook, we're glad to have you!\nUpload a photo and finish your profile: %s\n", name, accountURL)
	body := fmt.Sprintf(`<p>Hi %s,</p><p>Welcome to Tourbook, we're glad to have you!</p><p><a href="%s">Upload your user photo</a></p>`,
		html.EscapeString(name), html.EscapeString(accountURL))
	return m.send(ctx, to, subject, text, body)
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to Recipient, resetURL string) error {
	name := firstName(to)
	subject := "Your password reset token (valid for only 10 minutes)"
	text := fmt.Sprintf("Hi %s,\n\nForgot your password? Submit a PATCH request with your new password and passwordConfirm to: %s\nIf you didn't forget your password, please ignore this email!\n", name, resetURL)
	body := fmt.Sprintf(`<p>Hi %s,</p><p>Forgot your password? <a href="%s">Reset your password</a>.</p><p>If you didn't forget your password, please ignore this email!</p>`,
		html.EscapeString(name), html.EscapeString(resetURL))
	return m.send(ctx, to, subject, text, body)
}

func (m *Mailer) SendBookingConfirmation(ctx context.Context, to Recipient, b BookingMail) error {
	name := firstName(to)
	subject := "Your booking for " + b.TourName + " is confirmed"
	text := fmt.Sprintf("Hi %s,\n\nThanks for booking %s (booking #%d, $%.2f).\nSee all your tours: %s\n", name, b.TourName, b.BookingID, b.Price, b.ToursURL)
	body := fmt.Sprintf(`<p>Hi %s,</p><p>Thanks for booking <b>%s</b> (booking #%d, $%.2f).</p><p><a href="%s">See all your tours</a></p>`,
		html.EscapeString(name), html.EscapeString(b.TourName), b.BookingID, b.Price, html.EscapeString(b.ToursURL))
	return m.send(ctx, to, subject, text, body)
}

var _ Service = (*Mailer)(nil)
