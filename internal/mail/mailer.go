package mail

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// Sender delivers a single transactional email. Text is the plain-text body;
// html may be empty, in which case a text/plain message is sent.
type Sender interface {
	Send(to, subject, text, html string) error
}

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type Mailer struct {
	config Config
}

func NewMailer(config Config) (*Mailer, error) {
	if config.Host == "" || config.Port == "" || config.From == "" {
		return nil, errors.New("smtp host, port and from address are required")
	}

	return &Mailer{config: config}, nil
}

func (m *Mailer) Send(to, subject, text, html string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("recipient address is empty")
	}

	recipients := splitRecipients(to)
	msg := buildMessage(m.config.From, to, subject, text, html)

	addr := fmt.Sprintf("%s:%s", m.config.Host, m.config.Port)
	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	if err := smtp.SendMail(addr, auth, m.config.From, recipients, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	return nil
}

func splitRecipients(to string) []string {
	parts := strings.Split(to, ",")
	recipients := make([]string, 0, len(parts))
	for _, part := range parts {
		if addr := strings.TrimSpace(part); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return recipients
}

func buildMessage(from, to, subject, text, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	if html != "" {
		b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
		b.WriteString(html)
	} else {
		b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
		b.WriteString(text)
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
