package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

const sendTimeout = 10 * time.Second

var errMailerSendDisabled = errors.New("mailersend: missing MAILERSEND_API_KEY or EMAIL_FROM")

// MailerSend is the production Sender.
type MailerSend struct {
	client *mailersend.Mailersend
	from   mailersend.From
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSend {
	m := &MailerSend{from: mailersend.From{Name: fromName, Email: fromEmail}}
	if apiKey != "" && fromEmail != "" {
		m.client = mailersend.NewMailersend(apiKey)
	}
	return m
}

func (m *MailerSend) Send(ctx context.Context, to Recipient, subject, text, html string) (string, error) {
	if m.client == nil {
		return "", errMailerSendDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(m.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: to.Name, Email: to.Email}})
	msg.SetSubject(subject)
	if text = strings.TrimSpace(text); text != "" {
		msg.SetText(text)
	}
	if html = strings.TrimSpace(html); html != "" {
		msg.SetHTML(html)
	}

	res, err := m.client.Email.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("mailersend: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusAccepted && res.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("mailersend: status %d: %s", res.StatusCode, strings.TrimSpace(string(detail)))
	}
	return res.Header.Get("X-Message-Id"), nil
}
