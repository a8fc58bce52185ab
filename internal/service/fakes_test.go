package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"galvan_backend/internal/model"
	"galvan_backend/internal/repository"
	"galvan_backend/pkg/email"
)

var errDB = errors.New("connection refused")

// fakeSubscriberRepo stores copies so tests observe only what was saved.
type fakeSubscriberRepo struct {
	mu      sync.Mutex
	subs    map[uint]model.Subscriber
	nextID  uint
	outbox  []*model.OutboxMessage
	findErr error
	saveErr error
	listErr error
	saves   int
}

var _ repository.SubscriberRepository = (*fakeSubscriberRepo)(nil)

func newFakeSubscriberRepo() *fakeSubscriberRepo {
	return &fakeSubscriberRepo{subs: make(map[uint]model.Subscriber)}
}

func (r *fakeSubscriberRepo) add(sub model.Subscriber) *model.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub.ID = r.nextID
	r.subs[sub.ID] = sub
	return &sub
}

func (r *fakeSubscriberRepo) get(id uint) model.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[id]
}

func (r *fakeSubscriberRepo) FindByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, sub := range r.subs {
		if sub.Email == model.NormalizeEmail(email) {
			cp := sub
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeSubscriberRepo) FindActiveByToken(ctx context.Context, token string) (*model.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, sub := range r.subs {
		if sub.IsActive && sub.UnsubscribeToken == token {
			cp := sub
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeSubscriberRepo) Save(ctx context.Context, sub *model.Subscriber, messages ...*model.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	if sub.ID == 0 {
		r.nextID++
		sub.ID = r.nextID
	}
	r.subs[sub.ID] = *sub
	for _, msg := range messages {
		msg.ID = uint(len(r.outbox) + 1)
		r.outbox = append(r.outbox, msg)
	}
	return nil
}

func (r *fakeSubscriberRepo) sorted(filter func(model.Subscriber) bool) []model.Subscriber {
	var out []model.Subscriber
	for _, sub := range r.subs {
		if filter(sub) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeSubscriberRepo) ListActive(ctx context.Context) ([]model.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.sorted(func(s model.Subscriber) bool { return s.IsActive }), nil
}

func (r *fakeSubscriberRepo) All(ctx context.Context) ([]model.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.sorted(func(model.Subscriber) bool { return true }), nil
}

func (r *fakeSubscriberRepo) List(ctx context.Context, filter repository.SubscriberFilter) ([]model.Subscriber, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, 0, r.listErr
	}
	all := r.sorted(func(s model.Subscriber) bool {
		if filter.Active != nil && s.IsActive != *filter.Active {
			return false
		}
		return filter.Search == "" || strings.Contains(s.Email, filter.Search)
	})
	start := filter.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.Size()
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (r *fakeSubscriberRepo) Counts(ctx context.Context) (repository.SubscriberCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return repository.SubscriberCounts{}, r.listErr
	}
	var c repository.SubscriberCounts
	for _, sub := range r.subs {
		c.Total++
		if sub.IsActive {
			c.Active++
		}
	}
	return c, nil
}

func (r *fakeSubscriberRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return 0, r.listErr
	}
	var n int64
	for _, sub := range r.subs {
		if sub.IsActive && !sub.SubscribedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type fakeCampaignRepo struct {
	mu         sync.Mutex
	campaigns  map[uint]model.Campaign
	deliveries []model.CampaignDelivery
	nextID     uint
	statuses   []model.CampaignStatus
	recordErr  error
}

var _ repository.CampaignRepository = (*fakeCampaignRepo)(nil)

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: make(map[uint]model.Campaign)}
}

func (r *fakeCampaignRepo) get(id uint) model.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.campaigns[id]
}

func (r *fakeCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	r.campaigns[c.ID] = *c
	return nil
}

func (r *fakeCampaignRepo) FindByID(ctx context.Context, id uint) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *fakeCampaignRepo) List(ctx context.Context, filter repository.CampaignFilter) ([]model.Campaign, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Campaign
	for _, c := range r.campaigns {
		if filter.Status == "" || c.Status == filter.Status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, int64(len(out)), nil
}

func (r *fakeCampaignRepo) ListDue(ctx context.Context, now time.Time) ([]model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Campaign
	for _, c := range r.campaigns {
		due := c.Status == model.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now)
		if due || c.Status == model.CampaignSending {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCampaignRepo) UpdateStatus(ctx context.Context, id uint, status model.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = status
	r.campaigns[id] = c
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *fakeCampaignRepo) Complete(ctx context.Context, id uint, sent, failed int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.campaigns[id]
	c.Status = model.CampaignSent
	c.SentAt = &at
	c.SentCount = sent
	c.FailedCount = failed
	c.RecipientCount = sent + failed
	r.campaigns[id] = c
	r.statuses = append(r.statuses, model.CampaignSent)
	return nil
}

func (r *fakeCampaignRepo) Deliveries(ctx context.Context, campaignID uint) ([]model.CampaignDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CampaignDelivery
	for _, d := range r.deliveries {
		if d.CampaignID == campaignID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeCampaignRepo) RecordDelivery(ctx context.Context, d *model.CampaignDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return r.recordErr
	}
	for _, existing := range r.deliveries {
		if existing.CampaignID == d.CampaignID && existing.SubscriberID == d.SubscriberID {
			return nil
		}
	}
	r.deliveries = append(r.deliveries, *d)
	return nil
}

type fakeTemplateRepo struct {
	mu        sync.Mutex
	templates map[uint]model.Template
	nextID    uint
}

var _ repository.TemplateRepository = (*fakeTemplateRepo)(nil)

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{templates: make(map[uint]model.Template)}
}

func (r *fakeTemplateRepo) List(ctx context.Context, activeOnly bool) ([]model.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Template
	for _, t := range r.templates {
		if !activeOnly || t.IsActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeTemplateRepo) FindByID(ctx context.Context, id uint) (*model.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *fakeTemplateRepo) FindBySlug(ctx context.Context, slug string) (*model.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.templates {
		if t.Slug == slug {
			cp := t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTemplateRepo) Create(ctx context.Context, t *model.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	r.templates[t.ID] = *t
	return nil
}

func (r *fakeTemplateRepo) Update(ctx context.Context, t *model.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = *t
	return nil
}

func (r *fakeTemplateRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.templates, id)
	return nil
}

// fakeMailer records every message and fails for addresses in failFor.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []email.Message
	failFor map[string]bool
}

func (m *fakeMailer) Send(ctx context.Context, msg email.Message) (email.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	if m.failFor[msg.To] {
		return email.Result{Transport: email.TransportResend}, errors.New("provider rejected recipient")
	}
	return email.Result{Transport: email.TransportResend, Delivered: true}, nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakeDeliverer struct {
	err       error
	delivered []*model.OutboxMessage
}

func (d *fakeDeliverer) Deliver(ctx context.Context, msg *model.OutboxMessage) error {
	d.delivered = append(d.delivered, msg)
	return d.err
}

type fakeOutboxRepo struct {
	updates int
}

func (r *fakeOutboxRepo) Create(ctx context.Context, msg *model.OutboxMessage) error { return nil }

func (r *fakeOutboxRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxMessage, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) Claim(ctx context.Context, id uint, now, until time.Time) (bool, error) {
	return true, nil
}

func (r *fakeOutboxRepo) Update(ctx context.Context, msg *model.OutboxMessage) error {
	r.updates++
	return nil
}

type fakeArchiver struct {
	key  string
	body []byte
	err  error
}

func (a *fakeArchiver) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.key = key
	a.body = body
	return "https://cdn.galvan.ai/" + key, nil
}
