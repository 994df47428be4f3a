package mailer

import "context"

type MailProvider interface {
	SendMail(ctx context.Context, request *MailRequest) error
}

type MailRequest struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	HTML    bool     `json:"html"`
}
