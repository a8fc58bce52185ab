package email

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"galvan_backend/pkg/logger"
)

// Transport names the tier a message went through.
type Transport string

const (
	TransportResend Transport = "resend"
	TransportSES    Transport = "ses"
	TransportSMTP   Transport = "smtp"
	TransportLog    Transport = "log"
)

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Tags    map[string]string
}

// Result describes an attempted send. Delivered is false when the message
// was only logged because no transport is configured.
type Result struct {
	Transport Transport
	MessageID string
	Delivered bool
}

// Sender is a single transport.
type Sender interface {
	Send(ctx context.Context, from string, msg Message) (string, error)
}

var ErrMissingRecipient = errors.New("email: recipient is required")

// Mailer picks the first configured transport: the primary API, then SMTP,
// then a log line. A failure in a configured tier is returned as is; the
// next tier is only used when the previous one is absent.
type Mailer struct {
	from        string
	primary     Sender
	primaryName Transport
	smtp        Sender
	logger      *zap.Logger
}

type Option func(*Mailer)

func WithPrimary(name Transport, sender Sender) Option {
	return func(m *Mailer) {
		m.primary = sender
		m.primaryName = name
	}
}

func WithSMTP(sender Sender) Option {
	return func(m *Mailer) {
		m.smtp = sender
	}
}

func NewMailer(from string, log *zap.Logger, opts ...Option) *Mailer {
	m := &Mailer{from: from, logger: log}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mailer) Send(ctx context.Context, msg Message) (Result, error) {
	if msg.To == "" {
		return Result{}, ErrMissingRecipient
	}

	switch {
	case m.primary != nil:
		return m.deliver(ctx, m.primaryName, m.primary, msg)
	case m.smtp != nil:
		return m.deliver(ctx, TransportSMTP, m.smtp, msg)
	default:
		m.logger.Warn("No email transport configured, message logged only",
			logger.Email(msg.To),
			zap.String("subject", msg.Subject),
		)
		return Result{Transport: TransportLog}, nil
	}
}

// Transport reports which tier Send will use.
func (m *Mailer) Transport() Transport {
	switch {
	case m.primary != nil:
		return m.primaryName
	case m.smtp != nil:
		return TransportSMTP
	default:
		return TransportLog
	}
}

func (m *Mailer) deliver(ctx context.Context, name Transport, sender Sender, msg Message) (Result, error) {
	id, err := sender.Send(ctx, m.from, msg)
	if err != nil {
		return Result{Transport: name}, fmt.Errorf("%s: %w", name, err)
	}

	m.logger.Debug("Email sent",
		zap.String("transport", string(name)),
		logger.Email(msg.To),
		zap.String("message_id", id),
	)
	return Result{Transport: name, MessageID: id, Delivered: true}, nil
}
