// Package mailer sends transactional email over the company SMTP server.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// Attachment is a file carried by a message.
type Attachment struct {
	FileName string
	Content  []byte
}

// Message is one outbound email.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Mailer delivers messages through SMTP.
type Mailer struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// Config carries the SMTP settings.
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
}

// New constructs the mailer.
func New(cfg Config) *Mailer {
	return &Mailer{
		host:      cfg.Host,
		port:      cfg.Port,
		username:  cfg.Username,
		password:  cfg.Password,
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
	}
}

// Send delivers one message. A fresh SMTP connection is dialed per send; the
// volume here is a handful of quote emails a day, not a queue drain.
func (m *Mailer) Send(ctx context.Context, message Message) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(m.fromName, m.fromEmail); err != nil {
		return fmt.Errorf("mailer: from: %w", err)
	}
	if err := msg.To(message.To); err != nil {
		return fmt.Errorf("mailer: to: %w", err)
	}
	msg.Subject(message.Subject)
	msg.SetBodyString(gomail.TypeTextHTML, message.HTML)

	for _, att := range message.Attachments {
		msg.AttachReader(att.FileName, bytes.NewReader(att.Content))
	}

	client, err := gomail.NewClient(m.host,
		gomail.WithPort(m.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.username),
		gomail.WithPassword(m.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("mailer: client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mailer: send: %w", err)
	}
	return nil
}
