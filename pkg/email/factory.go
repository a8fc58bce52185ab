package email

import (
	"context"

	"go.uber.org/zap"

	"galvan_backend/pkg/config"
)

// FromConfig builds a Mailer from whatever transports are configured.
// Construction failures of a transport are logged and the tier is skipped.
func FromConfig(ctx context.Context, cfg config.MailConfig, log *zap.Logger) *Mailer {
	var opts []Option

	switch cfg.Provider {
	case "ses":
		if cfg.AWSAccessKey != "" {
			client, err := NewSESClient(ctx, cfg.AWSAccessKey, cfg.AWSSecretKey, cfg.AWSRegion)
			if err != nil {
				log.Warn("SES transport disabled", zap.Error(err))
			} else {
				opts = append(opts, WithPrimary(TransportSES, client))
			}
		}
	default:
		if cfg.ResendAPIKey != "" {
			client, err := NewResendClient(cfg.ResendAPIKey)
			if err != nil {
				log.Warn("Resend transport disabled", zap.Error(err))
			} else {
				opts = append(opts, WithPrimary(TransportResend, client))
			}
		}
	}

	if cfg.SMTPHost != "" {
		client, err := NewSMTPClient(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
		if err != nil {
			log.Warn("SMTP transport disabled", zap.Error(err))
		} else {
			opts = append(opts, WithSMTP(client))
		}
	}

	m := NewMailer(cfg.From, log, opts...)
	log.Info("Email service initialized", zap.String("transport", string(m.Transport())))
	return m
}
