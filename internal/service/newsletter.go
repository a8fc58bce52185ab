package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"galvan_backend/internal/model"
	"galvan_backend/internal/repository"
	"galvan_backend/pkg/email"
	"galvan_backend/pkg/logger"
	"galvan_backend/pkg/outbox"
	"galvan_backend/pkg/utils/token"
	"galvan_backend/pkg/utils/validation"
)

const (
	MsgSubscribed        = "Successfully subscribed to newsletter"
	MsgResubscribed      = "Welcome back! You have been resubscribed"
	MsgAlreadySubscribed = "This email is already subscribed"
	MsgInvalidEmail      = "Please provide a valid email address"
	MsgUnsubscribed      = "You have been unsubscribed"
	MsgInvalidToken      = "Invalid or expired unsubscribe link"
	MsgNameTooLong       = "First and last name must be at most 100 characters"
	MsgSourceTooLong     = "Source must be at most 50 characters"
)

// Deliverer makes the first delivery attempt for a queued email.
type Deliverer interface {
	Deliver(ctx context.Context, msg *model.OutboxMessage) error
}

// Archiver stores export files and returns their public URL.
type Archiver interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

type NewsletterService struct {
	subscribers repository.SubscriberRepository
	deliverer   Deliverer
	archiver    Archiver
	logger      *zap.Logger
	appURL      string
	now         func() time.Time
	newToken    func() string
}

func NewNewsletterService(
	subscribers repository.SubscriberRepository,
	deliverer Deliverer,
	appURL string,
	log *zap.Logger,
) *NewsletterService {
	return &NewsletterService{
		subscribers: subscribers,
		deliverer:   deliverer,
		logger:      log,
		appURL:      strings.TrimRight(appURL, "/"),
		now:         time.Now,
		newToken:    token.New,
	}
}

// WithArchiver enables copying subscriber exports to object storage.
func (s *NewsletterService) WithArchiver(a Archiver) *NewsletterService {
	s.archiver = a
	return s
}

type SubscribeInput struct {
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Source    string   `json:"source"`
	Tags      []string `json:"tags"`
}

func (s *NewsletterService) Subscribe(ctx context.Context, in SubscribeInput) Result {
	addr := model.NormalizeEmail(in.Email)
	if err := validation.Email(addr); err != nil {
		return fail(ReasonInvalid, MsgInvalidEmail)
	}
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if utf8.RuneCountInString(firstName) > model.MaxNameLen || utf8.RuneCountInString(lastName) > model.MaxNameLen {
		return fail(ReasonInvalid, MsgNameTooLong)
	}
	source := normalizeSource(in.Source)
	if utf8.RuneCountInString(source) > model.MaxSourceLen {
		return fail(ReasonInvalid, MsgSourceTooLong)
	}

	now := s.now()
	sub, err := s.subscribers.FindByEmail(ctx, addr)
	resubscribed := false

	switch {
	case err == nil && sub.IsActive:
		return fail(ReasonConflict, MsgAlreadySubscribed)
	case err == nil:
		resubscribed = true
		sub.IsActive = true
		sub.UnsubscribedAt = nil
		sub.SubscribedAt = now
		sub.UnsubscribeToken = s.newToken()
	case errors.Is(err, repository.ErrNotFound):
		sub = &model.Subscriber{
			Email:            addr,
			IsActive:         true,
			SubscribedAt:     now,
			Source:           source,
			UnsubscribeToken: s.newToken(),
		}
	default:
		s.logger.Error("Failed to look up subscriber", logger.Email(addr), zap.Error(err))
		return internalError()
	}

	if firstName != "" {
		sub.FirstName = firstName
	}
	if lastName != "" {
		sub.LastName = lastName
	}
	sub.Tags = mergeTags(sub.Tags, in.Tags)

	welcome, err := email.WelcomeEmail(sub.Email, email.WelcomeData{
		FirstName:      sub.FirstName,
		Resubscribed:   resubscribed,
		SiteURL:        s.appURL,
		UnsubscribeURL: UnsubscribeURL(s.appURL, sub.UnsubscribeToken),
	})
	if err != nil {
		s.logger.Error("Failed to render welcome email", zap.Error(err))
		return internalError()
	}
	queued := outbox.NewMessage(model.OutboxWelcome, welcome, now)

	if err := s.subscribers.Save(ctx, sub, queued); err != nil {
		s.logger.Error("Failed to save subscriber", logger.Email(addr), zap.Error(err))
		return internalError()
	}

	s.deliver(ctx, queued)

	if resubscribed {
		s.logger.Info("Subscriber reactivated", zap.Uint("subscriber_id", sub.ID))
		return succeed(MsgResubscribed, sub)
	}
	s.logger.Info("New subscriber", zap.Uint("subscriber_id", sub.ID), zap.String("source", sub.Source))
	return succeed(MsgSubscribed, sub)
}

func (s *NewsletterService) Unsubscribe(ctx context.Context, tok string) Result {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return fail(ReasonInvalid, MsgInvalidToken)
	}

	sub, err := s.subscribers.FindActiveByToken(ctx, tok)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(ReasonNotFound, MsgInvalidToken)
	}
	if err != nil {
		s.logger.Error("Failed to look up unsubscribe token", zap.Error(err))
		return internalError()
	}

	now := s.now()
	sub.IsActive = false
	sub.UnsubscribedAt = &now

	confirmation, err := email.UnsubscribeEmail(sub.Email, email.UnsubscribeData{
		FirstName: sub.FirstName,
		SiteURL:   s.appURL,
	})
	if err != nil {
		s.logger.Error("Failed to render unsubscribe email", zap.Error(err))
		return internalError()
	}
	queued := outbox.NewMessage(model.OutboxUnsubscribe, confirmation, now)

	if err := s.subscribers.Save(ctx, sub, queued); err != nil {
		s.logger.Error("Failed to deactivate subscriber", zap.Uint("subscriber_id", sub.ID), zap.Error(err))
		return internalError()
	}

	s.deliver(ctx, queued)

	s.logger.Info("Subscriber unsubscribed", zap.Uint("subscriber_id", sub.ID))
	return succeed(MsgUnsubscribed, nil)
}

// deliver makes the inline attempt. A failure leaves the row pending for
// the outbox job.
func (s *NewsletterService) deliver(ctx context.Context, msg *model.OutboxMessage) {
	if s.deliverer == nil {
		return
	}
	if err := s.deliverer.Deliver(ctx, msg); err != nil && !errors.Is(err, outbox.ErrClaimed) {
		s.logger.Warn("Email queued for retry",
			zap.String("kind", string(msg.Kind)),
			logger.Email(msg.Recipient),
			zap.Error(err),
		)
	}
}

func (s *NewsletterService) ListSubscribers(ctx context.Context, filter repository.SubscriberFilter) Result {
	subs, total, err := s.subscribers.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list subscribers", zap.Error(err))
		return internalError()
	}
	return succeed("", Page{Items: subs, Total: total, Page: filter.PageNumber(), Limit: filter.Size()})
}

type SubscriberStats struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Inactive  int64 `json:"inactive"`
	LastWeek  int64 `json:"lastWeek"`
	LastMonth int64 `json:"lastMonth"`
}

func (s *NewsletterService) Stats(ctx context.Context) Result {
	counts, err := s.subscribers.Counts(ctx)
	if err != nil {
		s.logger.Error("Failed to count subscribers", zap.Error(err))
		return internalError()
	}
	now := s.now()
	week, err := s.subscribers.CountSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		s.logger.Error("Failed to count subscribers", zap.Error(err))
		return internalError()
	}
	month, err := s.subscribers.CountSince(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		s.logger.Error("Failed to count subscribers", zap.Error(err))
		return internalError()
	}

	return succeed("", SubscriberStats{
		Total:     counts.Total,
		Active:    counts.Active,
		Inactive:  counts.Total - counts.Active,
		LastWeek:  week,
		LastMonth: month,
	})
}

type Export struct {
	Filename string
	Data     []byte
	URL      string
}

var exportHeader = []string{"email", "first_name", "last_name", "source", "active", "subscribed_at"}

// Export renders every subscriber as CSV and, when an archiver is set,
// stores a copy. Archive failures are logged and do not fail the export.
func (s *NewsletterService) Export(ctx context.Context) (*Export, error) {
	subs, err := s.subscribers.All(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(exportHeader)
	for _, sub := range subs {
		w.Write([]string{
			sub.Email,
			sub.FirstName,
			sub.LastName,
			sub.Source,
			strconv.FormatBool(sub.IsActive),
			sub.SubscribedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}

	stamp := s.now().UTC().Format("2006-01-02-150405")
	out := &Export{
		Filename: fmt.Sprintf("subscribers-%s.csv", stamp),
		Data:     buf.Bytes(),
	}

	if s.archiver != nil {
		url, err := s.archiver.Upload(ctx, "exports/subscribers/"+out.Filename, out.Data, "text/csv")
		if err != nil {
			s.logger.Warn("Failed to archive subscriber export", zap.Error(err))
		} else {
			out.URL = url
		}
	}
	return out, nil
}

func normalizeSource(source string) string {
	if s := slug.Make(source); s != "" {
		return s
	}
	return model.DefaultSubscriberSource
}

func mergeTags(existing []string, add []string) []string {
	seen := make(map[string]bool, len(existing)+len(add))
	out := make([]string, 0, len(existing)+len(add))
	for _, tag := range append(append([]string{}, existing...), add...) {
		tag = slug.Make(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
