package ports

import "context"

// Notifier reports the outcome of a run to operators.
type Notifier interface {
	Notify(ctx context.Context, subject, body string, attachments []string) error
}
