package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"galvan_backend/internal/model"
	"galvan_backend/internal/repository"
	"galvan_backend/pkg/email"
	"galvan_backend/pkg/logger"
	"galvan_backend/pkg/outbox"
)

// DailyStatsSpec runs the digest every day at 19:00.
const DailyStatsSpec = "0 19 * * *"

type deliverer interface {
	Deliver(ctx context.Context, msg *model.OutboxMessage) error
}

// NewsletterStats mails the admin a summary of the last 24 hours of
// subscriptions. The email goes through the outbox so a failed attempt is
// retried by the outbox job.
type NewsletterStats struct {
	subscribers  repository.SubscriberRepository
	outbox       repository.OutboxRepository
	deliverer    deliverer
	recipient    string
	dashboardURL string
	logger       *zap.Logger
	now          func() time.Time
}

func NewNewsletterStats(
	subscribers repository.SubscriberRepository,
	outboxRepo repository.OutboxRepository,
	d deliverer,
	recipient, dashboardURL string,
	log *zap.Logger,
) *NewsletterStats {
	return &NewsletterStats{
		subscribers:  subscribers,
		outbox:       outboxRepo,
		deliverer:    d,
		recipient:    recipient,
		dashboardURL: dashboardURL,
		logger:       log,
		now:          time.Now,
	}
}

func (n *NewsletterStats) Job() Job {
	return Job{
		Name:     "newsletter-stats",
		Spec:     DailyStatsSpec,
		TTL:      23 * time.Hour,
		KeepLock: true,
		Run:      n.Run,
	}
}

// Run queues the digest. It does nothing when no recipient is configured or
// nobody subscribed in the window.
func (n *NewsletterStats) Run(ctx context.Context) error {
	if n.recipient == "" {
		return nil
	}

	now := n.now()
	fresh, err := n.subscribers.CountSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("count new subscribers: %w", err)
	}
	if fresh == 0 {
		n.logger.Info("No new subscribers today, skipping digest")
		return nil
	}

	counts, err := n.subscribers.Counts(ctx)
	if err != nil {
		return fmt.Errorf("count subscribers: %w", err)
	}

	msg, err := email.DailyStatsEmail(n.recipient, email.DailyStatsData{
		Date:              now,
		NewSubscribers:    fresh,
		ActiveSubscribers: counts.Active,
		DashboardURL:      n.dashboardURL,
	})
	if err != nil {
		return err
	}

	queued := outbox.NewMessage(model.OutboxDigest, msg, now)
	if err := n.outbox.Create(ctx, queued); err != nil {
		return fmt.Errorf("queue digest: %w", err)
	}
	if err := n.deliverer.Deliver(ctx, queued); err != nil && !errors.Is(err, outbox.ErrClaimed) {
		n.logger.Warn("Digest delivery failed, left in outbox", logger.Email(n.recipient), zap.Error(err))
		return nil
	}

	n.logger.Info("Sent newsletter digest", logger.Email(n.recipient), zap.Int64("new_subscribers", fresh))
	return nil
}
