// Package resend implements mail.Sender on the Resend API.
package resend

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"

	"github.com/newsletter-engine/internal/mail"
	"github.com/newsletter-engine/pkg/logger"
	"github.com/newsletter-engine/pkg/ratelimit"
)

// Config holds Resend credentials and sender identity
type Config struct {
	APIKey      string
	SenderName  string
	SenderEmail string
}

// Sender implements mail.Sender using Resend
type Sender struct {
	client  *resend.Client
	config  Config
	limiter *ratelimit.MultiLimiter
	log     *logger.Logger
}

// New creates a Resend sender
func New(cfg Config, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Sender {
	return &Sender{
		client:  resend.NewClient(cfg.APIKey),
		config:  cfg,
		limiter: limiter,
		log:     log.WithComponent("resend"),
	}
}

// Send implements mail.Sender
func (s *Sender) Send(ctx context.Context, msg *mail.Message) error {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterResend); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	from := s.config.SenderEmail
	if s.config.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.SenderName, s.config.SenderEmail)
	}

	req := &resend.SendEmailRequest{
		From:    from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	}

	sent, err := s.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}

	s.log.Debug().
		Str("email_id", sent.Id).
		Int("recipients", len(msg.To)).
		Msg("Email accepted by Resend")

	return nil
}

var _ mail.Sender = (*Sender)(nil)
