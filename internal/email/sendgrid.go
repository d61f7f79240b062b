package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

type SendGridSender struct {
	apiKey   string
	host     string
	fromName string
}

// NewSendGridSender talks to the SendGrid v3 API. An empty host uses the
// public endpoint.
func NewSendGridSender(apiKey, host, fromName string) *SendGridSender {
	if host == "" {
		host = sendGridHost
	}
	return &SendGridSender{apiKey: apiKey, host: host, fromName: fromName}
}

func (s *SendGridSender) Name() string { return "sendgrid" }

func (s *SendGridSender) Send(ctx context.Context, msg Message) Result {
	if err := validateMessage(msg); err != nil {
		return Result{Success: false, Error: err}
	}

	m := sgmail.NewSingleEmail(
		sgmail.NewEmail(s.fromName, msg.From),
		msg.Subject,
		sgmail.NewEmail("", msg.To),
		msg.Body,
		"",
	)

	req := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	req.Method = "POST"
	req.Body = sgmail.GetRequestBody(m)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return Result{Success: false, Error: fmt.Errorf("sendgrid request failed: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Success: false, Error: fmt.Errorf("sendgrid returned status %d", resp.StatusCode)}
	}

	var id string
	if v := resp.Headers["X-Message-Id"]; len(v) > 0 {
		id = v[0]
	}
	return Result{Success: true, MessageID: id}
}
