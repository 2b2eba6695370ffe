package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

type Sender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// LogSender logs notifications instead of sending them. Used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, to []string, subject, body string) error {
	s.logger.Info("run notification (local dev)", "to", to, "subject", subject, "body", body)
	return nil
}

// ResendSender sends notifications via the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, to []string, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      to,
		Subject: subject,
		Html:    body,
	}
	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// NewSender returns a LogSender for ENV=local, ResendSender otherwise.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return &LogSender{logger: logger.With("component", "notify")}
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// RunFinished tells the recipients a run ended. No recipients is a no-op.
func RunFinished(ctx context.Context, s Sender, to []string, runID, status, summaryPath string) error {
	if len(to) == 0 {
		return nil
	}
	subject := "Long-run automation finished: " + runID
	body := fmt.Sprintf("<p>Long-run automation finished: <b>%s</b></p><p>Status: %s</p><p>Summary: %s</p>",
		html.EscapeString(runID), html.EscapeString(status), html.EscapeString(summaryPath))
	return s.Send(ctx, to, subject, body)
}
