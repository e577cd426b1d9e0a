// Package notify delivers run outcome reports to operators.
package notify

import (
	"context"
	"drt-simulator/internal/config"
	"drt-simulator/internal/ports"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogNotifier writes the report to a logger instead of sending it anywhere.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, subject, body string, attachments []string) error {
	n.Log.Warn().
		Str("subject", subject).
		Strs("attachments", attachments).
		Msg(body)
	return nil
}

// New picks SMTP delivery when an SMTP address and recipients are configured.
func New(cfg *config.Config) ports.Notifier {
	if cfg.SMTPAddr == "" || len(cfg.NotifyTo) == 0 {
		return LogNotifier{Log: log.Logger}
	}
	n := NewSMTPNotifier(cfg.SMTPAddr, cfg.NotifyFrom, cfg.NotifyTo)
	n.Username, n.Password = cfg.SMTPUser, cfg.SMTPPassword
	return n
}
