package notify

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"
)

// Sender used when notify.from is unset.
const defaultFrom = "drtsim@localhost"

type sendFunc func(ctx context.Context, msg *mail.Msg) error

// SMTPNotifier mails the report with its attachments.
type SMTPNotifier struct {
	Addr string
	From string
	To   []string
	// Username enables SMTP PLAIN auth; relays on localhost usually accept
	// unauthenticated mail.
	Username string
	Password string

	send sendFunc
}

func NewSMTPNotifier(addr, from string, to []string) *SMTPNotifier {
	if from == "" {
		from = defaultFrom
	}
	n := &SMTPNotifier{Addr: addr, From: from, To: to}
	n.send = n.dial
	return n
}

func (n *SMTPNotifier) Notify(ctx context.Context, subject, body string, attachments []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := n.compose(subject, body, attachments)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send to %s: %w", n.Addr, err)
	}
	log.Info().Strs("to", n.To).Str("subject", subject).Msg("notification sent")
	return nil
}

func (n *SMTPNotifier) compose(subject, body string, attachments []string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.From); err != nil {
		return nil, err
	}
	if err := msg.To(n.To...); err != nil {
		return nil, err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	for _, path := range attachments {
		// AttachFile drops unreadable files silently.
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("attachment %s: %w", path, err)
		}
		msg.AttachFile(path)
	}
	return msg, nil
}

func (n *SMTPNotifier) dial(ctx context.Context, msg *mail.Msg) error {
	host, p, err := net.SplitHostPort(n.Addr)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return fmt.Errorf("port %q: %w", p, err)
	}

	opts := []mail.Option{
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithPort(port),
	}
	if n.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.Username),
			mail.WithPassword(n.Password),
		)
	}
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}
