package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"galvan_backend/internal/model"
	"galvan_backend/internal/repository"
	"galvan_backend/pkg/email"
	"galvan_backend/pkg/lock"
	"galvan_backend/pkg/logger"
)

const (
	MsgCampaignNotFound    = "Campaign not found"
	MsgCampaignAlreadySent = "Campaign has already been sent"
	MsgCampaignInProgress  = "Campaign is already being sent"
	MsgCampaignCreated     = "Campaign created"
	MsgSubjectRequired     = "Subject is required"
	MsgContentRequired     = "Campaign content is required"
	MsgScheduleInPast      = "Scheduled time must be in the future"
	MsgTemplateInactive    = "Template is not active"

	sendLockTTL = 30 * time.Minute
	// The send lock is pushed out every sendLockExtendEvery recipients.
	sendLockExtendEvery = 50
)

type CampaignService struct {
	campaigns   repository.CampaignRepository
	subscribers repository.SubscriberRepository
	templates   repository.TemplateRepository
	mailer      EmailSender
	locker      lock.Locker
	logger      *zap.Logger
	appURL      string
	now         func() time.Time
}

func NewCampaignService(
	campaigns repository.CampaignRepository,
	subscribers repository.SubscriberRepository,
	templates repository.TemplateRepository,
	mailer EmailSender,
	locker lock.Locker,
	appURL string,
	log *zap.Logger,
) *CampaignService {
	return &CampaignService{
		campaigns:   campaigns,
		subscribers: subscribers,
		templates:   templates,
		mailer:      mailer,
		locker:      locker,
		logger:      log,
		appURL:      strings.TrimRight(appURL, "/"),
		now:         time.Now,
	}
}

type CreateCampaignInput struct {
	Subject     string     `json:"subject"`
	Content     string     `json:"content"`
	HTMLContent string     `json:"htmlContent"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	TemplateID  *uint      `json:"templateId"`
}

func (s *CampaignService) Create(ctx context.Context, in CreateCampaignInput) Result {
	campaign := &model.Campaign{
		Subject:     strings.TrimSpace(in.Subject),
		Content:     in.Content,
		HTMLContent: in.HTMLContent,
		Status:      model.CampaignDraft,
		TemplateID:  in.TemplateID,
	}

	if in.TemplateID != nil {
		tmpl, err := s.templates.FindByID(ctx, *in.TemplateID)
		if errors.Is(err, repository.ErrNotFound) {
			return fail(ReasonInvalid, MsgTemplateNotFound)
		}
		if err != nil {
			s.logger.Error("Failed to load template", zap.Uint("template_id", *in.TemplateID), zap.Error(err))
			return internalError()
		}
		if !tmpl.IsActive {
			return fail(ReasonInvalid, MsgTemplateInactive)
		}
		if campaign.Subject == "" {
			campaign.Subject = tmpl.Subject
		}
		if campaign.HTMLContent == "" {
			campaign.HTMLContent = tmpl.HTMLContent
		}
		if campaign.Content == "" {
			campaign.Content = tmpl.TextContent
		}
	}

	if campaign.Subject == "" {
		return fail(ReasonInvalid, MsgSubjectRequired)
	}
	if strings.TrimSpace(campaign.Content) == "" && strings.TrimSpace(campaign.HTMLContent) == "" {
		return fail(ReasonInvalid, MsgContentRequired)
	}
	if in.ScheduledAt != nil {
		if !in.ScheduledAt.After(s.now()) {
			return fail(ReasonInvalid, MsgScheduleInPast)
		}
		at := in.ScheduledAt.UTC()
		campaign.ScheduledAt = &at
		campaign.Status = model.CampaignScheduled
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		s.logger.Error("Failed to create campaign", zap.Error(err))
		return internalError()
	}
	return succeed(MsgCampaignCreated, campaign)
}

func (s *CampaignService) List(ctx context.Context, filter repository.CampaignFilter) Result {
	if filter.Status != "" && !filter.Status.Valid() {
		return fail(ReasonInvalid, fmt.Sprintf("Unknown campaign status %q", filter.Status))
	}
	campaigns, total, err := s.campaigns.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list campaigns", zap.Error(err))
		return internalError()
	}
	return succeed("", Page{Items: campaigns, Total: total, Page: filter.PageNumber(), Limit: filter.Size()})
}

func (s *CampaignService) Get(ctx context.Context, id uint) Result {
	campaign, err := s.campaigns.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(ReasonNotFound, MsgCampaignNotFound)
	}
	if err != nil {
		s.logger.Error("Failed to load campaign", zap.Uint("campaign_id", id), zap.Error(err))
		return internalError()
	}
	return succeed("", campaign)
}

type SendStats struct {
	CampaignID     uint `json:"campaignId"`
	RecipientCount int  `json:"recipientCount"`
	SentCount      int  `json:"sentCount"`
	FailedCount    int  `json:"failedCount"`
	// Resumed counts recipients already attempted by an earlier, interrupted run.
	Resumed int `json:"resumed"`
}

// Send fans the campaign out to every active subscriber, one at a time.
// A failed recipient is counted and the loop carries on. Recipients with a
// delivery row from an earlier run are skipped, so re-sending a campaign
// stuck in "sending" finishes it instead of starting over.
func (s *CampaignService) Send(ctx context.Context, id uint) Result {
	l := s.locker.NewLock("campaign-send:"+strconv.FormatUint(uint64(id), 10), sendLockTTL)
	acquired, err := l.Acquire(ctx)
	if err != nil {
		s.logger.Error("Failed to acquire campaign lock", zap.Uint("campaign_id", id), zap.Error(err))
		return internalError()
	}
	if !acquired {
		return fail(ReasonConflict, MsgCampaignInProgress)
	}
	defer func() {
		if err := l.Release(context.Background()); err != nil {
			s.logger.Warn("Failed to release campaign lock", zap.Uint("campaign_id", id), zap.Error(err))
		}
	}()

	campaign, err := s.campaigns.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(ReasonNotFound, MsgCampaignNotFound)
	}
	if err != nil {
		s.logger.Error("Failed to load campaign", zap.Uint("campaign_id", id), zap.Error(err))
		return internalError()
	}
	if campaign.Status == model.CampaignSent {
		return fail(ReasonConflict, MsgCampaignAlreadySent)
	}

	if err := s.campaigns.UpdateStatus(ctx, id, model.CampaignSending); err != nil {
		s.logger.Error("Failed to mark campaign sending", zap.Uint("campaign_id", id), zap.Error(err))
		return internalError()
	}

	subs, err := s.subscribers.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to load subscribers", zap.Uint("campaign_id", id), zap.Error(err))
		s.markFailed(ctx, id)
		return internalError()
	}
	previous, err := s.campaigns.Deliveries(ctx, id)
	if err != nil {
		s.logger.Error("Failed to load previous deliveries", zap.Uint("campaign_id", id), zap.Error(err))
		s.markFailed(ctx, id)
		return internalError()
	}

	stats := SendStats{CampaignID: id}
	attempted := make(map[uint]bool, len(previous))
	for _, d := range previous {
		attempted[d.SubscriberID] = true
		if d.Status == model.DeliverySent {
			stats.SentCount++
		} else {
			stats.FailedCount++
		}
	}
	stats.Resumed = len(previous)

	s.logger.Info("Sending campaign",
		zap.Uint("campaign_id", id),
		zap.Int("active_subscribers", len(subs)),
		zap.Int("already_attempted", len(previous)),
	)

	// Delivery rows and final counts are written even after ctx is cancelled.
	store := context.WithoutCancel(ctx)
	sinceExtend := 0
	for i := range subs {
		sub := &subs[i]
		if attempted[sub.ID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			s.logger.Warn("Campaign send interrupted, left in sending for resume",
				zap.Uint("campaign_id", id),
				zap.Int("sent", stats.SentCount),
				zap.Int("failed", stats.FailedCount),
				zap.Error(err),
			)
			return internalError()
		}
		if sinceExtend == sendLockExtendEvery {
			if err := l.Extend(ctx, sendLockTTL); err != nil {
				s.logger.Error("Lost campaign lock, stopping send", zap.Uint("campaign_id", id), zap.Error(err))
				return internalError()
			}
			sinceExtend = 0
		}
		sinceExtend++

		delivery := s.sendOne(ctx, campaign, sub)
		if delivery.Status == model.DeliverySent {
			stats.SentCount++
		} else {
			stats.FailedCount++
		}
		if err := s.campaigns.RecordDelivery(store, delivery); err != nil {
			s.logger.Error("Failed to record delivery",
				zap.Uint("campaign_id", id),
				zap.Uint("subscriber_id", sub.ID),
				zap.Error(err),
			)
		}
	}
	stats.RecipientCount = stats.SentCount + stats.FailedCount

	if err := s.campaigns.Complete(store, id, stats.SentCount, stats.FailedCount, s.now()); err != nil {
		s.logger.Error("Failed to complete campaign", zap.Uint("campaign_id", id), zap.Error(err))
		return internalError()
	}

	s.logger.Info("Campaign sent",
		zap.Uint("campaign_id", id),
		zap.Int("sent", stats.SentCount),
		zap.Int("failed", stats.FailedCount),
	)
	return succeed(fmt.Sprintf("Campaign sent to %d of %d subscribers", stats.SentCount, stats.RecipientCount), stats)
}

func (s *CampaignService) sendOne(ctx context.Context, campaign *model.Campaign, sub *model.Subscriber) *model.CampaignDelivery {
	link := UnsubscribeURL(s.appURL, sub.UnsubscribeToken)
	msg := email.Message{
		To:      sub.Email,
		Subject: Personalize(campaign.Subject, sub, link),
		HTML:    Personalize(campaign.HTMLContent, sub, link),
		Text:    Personalize(campaign.Content, sub, link),
		Tags:    map[string]string{"campaign_id": strconv.FormatUint(uint64(campaign.ID), 10)},
	}

	delivery := &model.CampaignDelivery{
		CampaignID:   campaign.ID,
		SubscriberID: sub.ID,
		Email:        sub.Email,
		Status:       model.DeliverySent,
	}

	res, err := s.mailer.Send(ctx, msg)
	delivery.Transport = string(res.Transport)
	if err != nil {
		delivery.Status = model.DeliveryFailed
		delivery.Error = err.Error()
		s.logger.Warn("Campaign delivery failed",
			zap.Uint("campaign_id", campaign.ID),
			logger.Email(sub.Email),
			zap.Error(err),
		)
	}
	return delivery
}

func (s *CampaignService) markFailed(ctx context.Context, id uint) {
	if err := s.campaigns.UpdateStatus(ctx, id, model.CampaignFailed); err != nil {
		s.logger.Error("Failed to mark campaign failed", zap.Uint("campaign_id", id), zap.Error(err))
	}
}

// SendDue sends every scheduled campaign whose time has come, resumes any
// left in "sending" by an interrupted run, and returns how many completed.
// A campaign still held by a live sender comes back as in progress and is
// left alone.
func (s *CampaignService) SendDue(ctx context.Context) (int, error) {
	due, err := s.campaigns.ListDue(ctx, s.now())
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, campaign := range due {
		res := s.Send(ctx, campaign.ID)
		if !res.Success && res.Message == MsgCampaignInProgress {
			continue
		}
		if !res.Success {
			s.logger.Warn("Scheduled campaign not sent",
				zap.Uint("campaign_id", campaign.ID),
				zap.String("reason", res.Message),
			)
			continue
		}
		sent++
	}
	return sent, nil
}
