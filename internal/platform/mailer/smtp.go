package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// implicitTLSPort is the submissions port; everything else uses STARTTLS
// when the server offers it.
const implicitTLSPort = 465

// SMTPMailer delivers through a plain SMTP relay. Used against Mailpit in
// development.
type SMTPMailer struct {
	Host   string
	Port   int
	From   string // header form, may carry a display name
	User   string
	Pass   string
	UseTLS bool // false for Mailpit on 1025

	envelope string
}

func NewSMTPMailer(host string, port int, from string, user string, pass string, useTLS bool) *SMTPMailer {
	from = strings.TrimSpace(from)
	envelope := from
	if addr, err := mail.ParseAddress(from); err == nil {
		envelope = addr.Address
	}
	return &SMTPMailer{
		Host:     strings.TrimSpace(host),
		Port:     port,
		From:     from,
		User:     strings.TrimSpace(user),
		Pass:     strings.TrimSpace(pass),
		UseTLS:   useTLS,
		envelope: envelope,
	}
}

func (s *SMTPMailer) message(to Recipient, subject, text, html string) []byte {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, part := range []struct{ kind, content string }{
		{"text/plain", text},
		{"text/html", html},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.kind + "; charset=utf-8"}})
		if err != nil {
			continue
		}
		w.Write([]byte(part.content))
	}
	mw.Close()

	rcpt := to.Email
	if to.Name != "" {
		rcpt = mime.QEncoding.Encode("utf-8", to.Name) + " <" + to.Email + ">"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", s.From)
	fmt.Fprintf(&buf, "To: %s\r\n", rcpt)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	buf.Write(body.Bytes())
	return buf.Bytes()
}

// Send only checks ctx up front; net/smtp takes no context.
func (s *SMTPMailer) Send(ctx context.Context, to Recipient, subject, text, html string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rcpt := strings.TrimSpace(to.Email)
	if rcpt == "" {
		return "", errors.New("empty recipient email")
	}
	to.Email = rcpt

	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	msg := s.message(to, subject, text, html)

	var auth smtp.Auth
	if s.User != "" {
		auth = smtp.PlainAuth("", s.User, s.Pass, s.Host)
	}

	if s.UseTLS && s.Port == implicitTLSPort {
		return "", s.sendImplicitTLS(addr, auth, rcpt, msg)
	}
	// SendMail upgrades with STARTTLS when the server advertises it.
	if err := smtp.SendMail(addr, auth, s.envelope, []string{rcpt}, msg); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	return "", nil
}

func (s *SMTPMailer) sendImplicitTLS(addr string, auth smtp.Auth, rcpt string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.Host})
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(s.envelope); err != nil {
		return err
	}
	if err := c.Rcpt(rcpt); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
