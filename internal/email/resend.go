package email

import (
	"context"
	"fmt"
	"net/url"

	"github.com/resend/resend-go/v2"
)

type ResendSender struct {
	client   *resend.Client
	fromName string
}

// NewResendSender talks to the Resend API. baseURL overrides the API root
// and may be empty.
func NewResendSender(apiKey, baseURL, fromName string) (*ResendSender, error) {
	client := resend.NewClient(apiKey)
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid resend base url: %w", err)
		}
		client.BaseURL = u
	}
	return &ResendSender{client: client, fromName: fromName}, nil
}

func (s *ResendSender) Name() string { return "resend" }

func (s *ResendSender) Send(ctx context.Context, msg Message) Result {
	if err := validateMessage(msg); err != nil {
		return Result{Success: false, Error: err}
	}

	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    formatFrom(s.fromName, msg.From),
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Body,
	})
	if err != nil {
		return Result{Success: false, Error: fmt.Errorf("resend request failed: %w", err)}
	}
	return Result{Success: true, MessageID: sent.Id}
}
