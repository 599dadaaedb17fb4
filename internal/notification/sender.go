package notification

import (
	"context"

	"github.com/Harvard-University-iCommons/canvas-site-wizard/pkg/metrics"
	"github.com/pkg/errors"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Message is a plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender delivers messages. Implementations are expected to be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers mail through a single SMTP relay.
type SMTPSender struct {
	from   string
	client *mail.Client
}

var _ Sender = (*SMTPSender)(nil)

func NewSMTPSender(host string, port int, username, password, from string) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(password),
		)
	}
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating smtp client")
	}
	return &SMTPSender{from: from, client: client}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("message has no recipients")
	}

	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return errors.Wrap(err, "setting from address")
	}
	if err := m.To(msg.To...); err != nil {
		return errors.Wrap(err, "setting recipients")
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		metrics.IncreaseMailSentMetric("failed")
		return errors.Wrapf(err, "sending mail to %v", msg.To)
	}
	metrics.IncreaseMailSentMetric("sent")
	zap.S().Named("mail").Debugw("message sent", "to", msg.To, "subject", msg.Subject)
	return nil
}
