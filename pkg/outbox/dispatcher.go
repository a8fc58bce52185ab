package outbox

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
)

// ErrClaimed is returned by Deliver when another worker already holds the
// message.
var ErrClaimed = errors.New("outbox message claimed by another worker")

type Sender interface {
	Send(ctx context.Context, msg email.Message) (email.Result, error)
}

// Dispatcher delivers queued transactional emails. Each failure pushes the
// next attempt out with exponential backoff until maxAttempts is reached.
type Dispatcher struct {
	repo        repository.OutboxRepository
	sender      Sender
	logger      *zap.Logger
	maxAttempts int
	batchSize   int
	baseDelay   time.Duration
	maxDelay    time.Duration
	lease       time.Duration
	now         func() time.Time
}

func NewDispatcher(repo repository.OutboxRepository, sender Sender, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:        repo,
		sender:      sender,
		logger:      log,
		maxAttempts: 5,
		batchSize:   100,
		baseDelay:   time.Minute,
		maxDelay:    time.Hour,
		lease:       2 * time.Minute,
		now:         time.Now,
	}
}

func (d *Dispatcher) WithMaxAttempts(n int) *Dispatcher {
	d.maxAttempts = n
	return d
}

func (d *Dispatcher) WithBatchSize(n int) *Dispatcher {
	d.batchSize = n
	return d
}

// NewMessage builds a pending outbox row for msg.
func NewMessage(kind model.OutboxKind, msg email.Message, now time.Time) *model.OutboxMessage {
	return &model.OutboxMessage{
		Kind:          kind,
		Recipient:     msg.To,
		Subject:       msg.Subject,
		HTML:          msg.HTML,
		Text:          msg.Text,
		Status:        model.OutboxPending,
		NextAttemptAt: now,
	}
}

// Deliver makes one attempt at msg and persists the outcome. The send
// error, if any, is returned after the row has been updated.
func (d *Dispatcher) Deliver(ctx context.Context, msg *model.OutboxMessage) error {
	// The claim pushes next_attempt_at past the send timeout, so a
	// concurrent ProcessPending cannot pick the row up mid-attempt.
	claimedAt := d.now()
	claimed, err := d.repo.Claim(ctx, msg.ID, claimedAt, claimedAt.Add(d.lease))
	if err != nil {
		return err
	}
	if !claimed {
		return ErrClaimed
	}
	msg.NextAttemptAt = claimedAt.Add(d.lease)

	res, sendErr := d.sender.Send(ctx, email.Message{
		To:      msg.Recipient,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		Tags:    map[string]string{"category": string(msg.Kind)},
	})

	now := d.now()
	msg.Attempts++
	msg.Transport = string(res.Transport)

	if sendErr != nil {
		msg.LastError = sendErr.Error()
		if msg.Attempts >= d.maxAttempts {
			msg.Status = model.OutboxFailed
		} else {
			msg.NextAttemptAt = now.Add(d.backoff(msg.Attempts))
		}
	} else {
		msg.Status = model.OutboxSent
		msg.SentAt = &now
		msg.LastError = ""
	}

	if err := d.repo.Update(ctx, msg); err != nil {
		d.logger.Error("Failed to update outbox message",
			zap.Uint("outbox_id", msg.ID),
			zap.Error(err),
		)
		if sendErr == nil {
			return err
		}
	}

	if sendErr != nil {
		return fmt.Errorf("deliver %s email %d (attempt %d): %w", msg.Kind, msg.ID, msg.Attempts, sendErr)
	}
	return nil
}

// ProcessPending delivers every due message in one batch and returns how
// many were sent.
func (d *Dispatcher) ProcessPending(ctx context.Context) (int, error) {
	msgs, err := d.repo.ListDue(ctx, d.now(), d.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		err := d.Deliver(ctx, msg)
		if errors.Is(err, ErrClaimed) {
			continue
		}
		if err != nil {
			d.logger.Warn("Outbox delivery failed",
				zap.Uint("outbox_id", msg.ID),
				zap.String("kind", string(msg.Kind)),
				logger.Email(msg.Recipient),
				zap.Int("attempts", msg.Attempts),
				zap.String("status", string(msg.Status)),
				zap.Error(err),
			)
			continue
		}
		sent++
	}

	if len(msgs) > 0 {
		d.logger.Info("Processed outbox batch", zap.Int("due", len(msgs)), zap.Int("sent", sent))
	}
	return sent, nil
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.maxDelay {
			return d.maxDelay
		}
	}
	return delay
}
