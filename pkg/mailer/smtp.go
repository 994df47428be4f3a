package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type SMTPMailer struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
	fromName  string
}

func NewSMTPMailer(host string, port int, username, password, fromEmail, fromName string) *SMTPMailer {
	return &SMTPMailer{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (m *SMTPMailer) SendMail(ctx context.Context, request *MailRequest) error {
	if len(request.To) == 0 {
		return fmt.Errorf("no recipients provided")
	}

	contentType := "text/plain; charset=UTF-8"
	if request.HTML {
		contentType = "text/html; charset=UTF-8"
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", m.fromName, m.fromEmail)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(request.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", request.Subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&msg, "\r\n%s\r\n", request.Body)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := smtp.PlainAuth("", m.username, m.password, m.host)

	err := smtp.SendMail(addr, auth, m.fromEmail, request.To, []byte(msg.String()))
	if err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	return nil
}
