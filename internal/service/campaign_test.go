package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"galvan_backend/internal/model"
	"galvan_backend/internal/repository"
	"galvan_backend/pkg/email"
	"galvan_backend/pkg/lock"
)

type campaignFixture struct {
	subs      *fakeSubscriberRepo
	campaigns *fakeCampaignRepo
	templates *fakeTemplateRepo
	mailer    *fakeMailer
	locker    *lock.LocalLocker
	svc       *CampaignService
}

func newCampaignFixture(t *testing.T) *campaignFixture {
	t.Helper()
	f := &campaignFixture{
		subs:      newFakeSubscriberRepo(),
		campaigns: newFakeCampaignRepo(),
		templates: newFakeTemplateRepo(),
		mailer:    &fakeMailer{failFor: map[string]bool{}},
		locker:    lock.NewLocalLocker(),
	}
	f.svc = NewCampaignService(f.campaigns, f.subs, f.templates, f.mailer, f.locker, "https://galvan.ai", zap.NewNop())
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func (f *campaignFixture) addSubscribers(active, inactive int) []*model.Subscriber {
	var out []*model.Subscriber
	for i := 0; i < active; i++ {
		out = append(out, f.subs.add(model.Subscriber{
			Email:            fmt.Sprintf("active%d@x.com", i),
			FirstName:        fmt.Sprintf("Name%d", i),
			IsActive:         true,
			UnsubscribeToken: fmt.Sprintf("tok-%d", i),
		}))
	}
	for i := 0; i < inactive; i++ {
		f.subs.add(model.Subscriber{
			Email:            fmt.Sprintf("gone%d@x.com", i),
			IsActive:         false,
			UnsubscribeToken: fmt.Sprintf("gone-%d", i),
		})
	}
	return out
}

func (f *campaignFixture) draft(t *testing.T) uint {
	t.Helper()
	c := &model.Campaign{
		Subject:     "News for {{firstName}}",
		HTMLContent: "<p>Hi {{firstName}}, unsubscribe: {{unsubscribeUrl}}</p>",
		Content:     "Hi {{firstName}} ({{email}})",
		Status:      model.CampaignDraft,
	}
	require.NoError(t, f.campaigns.Create(context.Background(), c))
	return c.ID
}

func TestSendCampaignToActiveSubscribers(t *testing.T) {
	f := newCampaignFixture(t)
	f.addSubscribers(3, 2)
	id := f.draft(t)

	res := f.svc.Send(context.Background(), id)

	require.True(t, res.Success, res.Message)
	stats := res.Data.(SendStats)
	assert.Equal(t, 3, stats.RecipientCount)
	assert.Equal(t, 3, stats.SentCount+stats.FailedCount)

	c := f.campaigns.get(id)
	assert.Equal(t, model.CampaignSent, c.Status)
	assert.Equal(t, 3, c.RecipientCount)
	assert.Equal(t, 3, c.SentCount)
	assert.Equal(t, 0, c.FailedCount)
	require.NotNil(t, c.SentAt)
	assert.Equal(t, []model.CampaignStatus{model.CampaignSending, model.CampaignSent}, f.campaigns.statuses)

	require.Equal(t, 3, f.mailer.count())
	first := f.mailer.sent[0]
	assert.Equal(t, "active0@x.com", first.To)
	assert.Equal(t, "News for Name0", first.Subject)
	assert.Contains(t, first.HTML, "Hi Name0,")
	assert.True(t, strings.HasSuffix(first.HTML, "token=tok-0</p>"))
	assert.Equal(t, "Hi Name0 (active0@x.com)", first.Text)
	for _, msg := range f.mailer.sent {
		assert.False(t, strings.HasPrefix(msg.To, "gone"))
	}
}

func TestSendCampaignCountsFailuresAndContinues(t *testing.T) {
	f := newCampaignFixture(t)
	f.addSubscribers(4, 0)
	f.mailer.failFor["active1@x.com"] = true
	f.mailer.failFor["active2@x.com"] = true
	id := f.draft(t)

	res := f.svc.Send(context.Background(), id)

	require.True(t, res.Success)
	c := f.campaigns.get(id)
	assert.Equal(t, model.CampaignSent, c.Status)
	assert.Equal(t, 2, c.SentCount)
	assert.Equal(t, 2, c.FailedCount)
	assert.Equal(t, 4, c.RecipientCount)
	assert.Equal(t, 4, f.mailer.count())
	assert.Equal(t, "Campaign sent to 2 of 4 subscribers", res.Message)

	deliveries, _ := f.campaigns.Deliveries(context.Background(), id)
	failed := 0
	for _, d := range deliveries {
		if d.Status == model.DeliveryFailed {
			failed++
			assert.NotEmpty(t, d.Error)
		}
	}
	assert.Equal(t, 2, failed)
}

func TestSendCampaignWithNoSubscribers(t *testing.T) {
	f := newCampaignFixture(t)
	id := f.draft(t)

	res := f.svc.Send(context.Background(), id)

	require.True(t, res.Success)
	c := f.campaigns.get(id)
	assert.Equal(t, model.CampaignSent, c.Status)
	assert.Equal(t, 0, c.RecipientCount)
}

func TestSendAlreadySentCampaignIsRejected(t *testing.T) {
	f := newCampaignFixture(t)
	f.addSubscribers(2, 0)
	id := f.draft(t)
	require.True(t, f.svc.Send(context.Background(), id).Success)
	require.Equal(t, 2, f.mailer.count())

	res := f.svc.Send(context.Background(), id)

	assert.False(t, res.Success)
	assert.Equal(t, ReasonConflict, res.Reason)
	assert.Equal(t, MsgCampaignAlreadySent, res.Message)
	assert.Equal(t, 2, f.mailer.count())
}

func TestSendResumesInterruptedCampaign(t *testing.T) {
	f := newCampaignFixture(t)
	subs := f.addSubscribers(3, 0)
	id := f.draft(t)
	require.NoError(t, f.campaigns.UpdateStatus(context.Background(), id, model.CampaignSending))
	f.campaigns.deliveries = []model.CampaignDelivery{
		{CampaignID: id, SubscriberID: subs[0].ID, Email: subs[0].Email, Status: model.DeliverySent},
		{CampaignID: id, SubscriberID: subs[1].ID, Email: subs[1].Email, Status: model.DeliveryFailed},
	}

	res := f.svc.Send(context.Background(), id)

	require.True(t, res.Success)
	require.Equal(t, 1, f.mailer.count())
	assert.Equal(t, subs[2].Email, f.mailer.sent[0].To)

	stats := res.Data.(SendStats)
	assert.Equal(t, 2, stats.Resumed)

	c := f.campaigns.get(id)
	assert.Equal(t, 2, c.SentCount)
	assert.Equal(t, 1, c.FailedCount)
	assert.Equal(t, 3, c.RecipientCount)
}

func TestSendKeepsCountsWhenDeliveryRecordFails(t *testing.T) {
	f := newCampaignFixture(t)
	f.addSubscribers(3, 0)
	f.campaigns.recordErr = errDB
	id := f.draft(t)

	res := f.svc.Send(context.Background(), id)

	require.True(t, res.Success)
	c := f.campaigns.get(id)
	assert.Equal(t, 3, c.RecipientCount)
	assert.Equal(t, 3, c.SentCount)
}

func TestSendWhileLockedIsRejected(t *testing.T) {
	f := newCampaignFixture(t)
	f.addSubscribers(1, 0)
	id := f.draft(t)

	held := f.locker.NewLock(fmt.Sprintf("campaign-send:%d", id), time.Minute)
	ok, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	res := f.svc.Send(context.Background(), id)

	assert.False(t, res.Success)
	assert.Equal(t, MsgCampaignInProgress, res.Message)
	assert.Equal(t, 0, f.mailer.count())
	assert.Equal(t, model.CampaignDraft, f.campaigns.get(id).Status)

	require.NoError(t, held.Release(context.Background()))
	assert.True(t, f.svc.Send(context.Background(), id).Success)
}

func TestSendMissingCampaign(t *testing.T) {
	f := newCampaignFixture(t)

	res := f.svc.Send(context.Background(), 42)

	assert.False(t, res.Success)
	assert.Equal(t, ReasonNotFound, res.Reason)
	assert.Equal(t, MsgCampaignNotFound, res.Message)
}

func TestSendMarksFailedWhenSubscribersUnavailable(t *testing.T) {
	f := newCampaignFixture(t)
	f.subs.listErr = errDB
	id := f.draft(t)

	res := f.svc.Send(context.Background(), id)

	assert.False(t, res.Success)
	assert.Equal(t, MsgInternal, res.Message)
	assert.Equal(t, model.CampaignFailed, f.campaigns.get(id).Status)

	f.subs.listErr = nil
	assert.True(t, f.svc.Send(context.Background(), id).Success)
}

func TestSendThroughLogOnlyMailer(t *testing.T) {
	f := newCampaignFixture(t)
	f.addSubscribers(2, 0)
	f.svc.mailer = email.NewMailer("news@galvan.ai", zap.NewNop())
	id := f.draft(t)

	res := f.svc.Send(context.Background(), id)

	require.True(t, res.Success)
	assert.Equal(t, 2, f.campaigns.get(id).SentCount)
	deliveries, _ := f.campaigns.Deliveries(context.Background(), id)
	for _, d := range deliveries {
		assert.Equal(t, string(email.TransportLog), d.Transport)
	}
}

func TestCreateCampaign(t *testing.T) {
	f := newCampaignFixture(t)

	res := f.svc.Create(context.Background(), CreateCampaignInput{Subject: " Launch ", HTMLContent: "<p>hi</p>"})

	require.True(t, res.Success)
	c := res.Data.(*model.Campaign)
	assert.Equal(t, "Launch", c.Subject)
	assert.Equal(t, model.CampaignDraft, c.Status)
	assert.NotZero(t, c.ID)
}

func TestCreateCampaignValidation(t *testing.T) {
	f := newCampaignFixture(t)
	past := fixedNow.Add(-time.Hour)

	tests := []struct {
		name string
		in   CreateCampaignInput
		msg  string
	}{
		{"missing subject", CreateCampaignInput{Content: "x"}, MsgSubjectRequired},
		{"missing content", CreateCampaignInput{Subject: "x", Content: "  "}, MsgContentRequired},
		{"past schedule", CreateCampaignInput{Subject: "x", Content: "x", ScheduledAt: &past}, MsgScheduleInPast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.svc.Create(context.Background(), tt.in)
			assert.False(t, res.Success)
			assert.Equal(t, ReasonInvalid, res.Reason)
			assert.Equal(t, tt.msg, res.Message)
		})
	}
}

func TestCreateScheduledCampaignFromTemplate(t *testing.T) {
	f := newCampaignFixture(t)
	tmpl := &model.Template{Name: "Monthly", Subject: "Monthly update", HTMLContent: "<p>{{firstName}}</p>", IsActive: true}
	require.NoError(t, f.templates.Create(context.Background(), tmpl))
	at := fixedNow.Add(2 * time.Hour)

	res := f.svc.Create(context.Background(), CreateCampaignInput{TemplateID: &tmpl.ID, ScheduledAt: &at})

	require.True(t, res.Success, res.Message)
	c := res.Data.(*model.Campaign)
	assert.Equal(t, "Monthly update", c.Subject)
	assert.Equal(t, "<p>{{firstName}}</p>", c.HTMLContent)
	assert.Equal(t, model.CampaignScheduled, c.Status)
	assert.Equal(t, &tmpl.ID, c.TemplateID)
}

func TestCreateCampaignFromInactiveTemplate(t *testing.T) {
	f := newCampaignFixture(t)
	tmpl := &model.Template{Name: "Old", Subject: "s", HTMLContent: "x", IsActive: false}
	require.NoError(t, f.templates.Create(context.Background(), tmpl))

	res := f.svc.Create(context.Background(), CreateCampaignInput{TemplateID: &tmpl.ID})
	assert.Equal(t, MsgTemplateInactive, res.Message)

	missing := uint(99)
	res = f.svc.Create(context.Background(), CreateCampaignInput{TemplateID: &missing})
	assert.Equal(t, MsgTemplateNotFound, res.Message)
}

func TestListAndGetCampaigns(t *testing.T) {
	f := newCampaignFixture(t)
	id := f.draft(t)

	res := f.svc.List(context.Background(), repository.CampaignFilter{Status: model.CampaignDraft})
	require.True(t, res.Success)
	assert.Equal(t, int64(1), res.Data.(Page).Total)

	res = f.svc.List(context.Background(), repository.CampaignFilter{Status: "bogus"})
	assert.Equal(t, ReasonInvalid, res.Reason)

	res = f.svc.Get(context.Background(), id)
	require.True(t, res.Success)
	assert.Equal(t, id, res.Data.(*model.Campaign).ID)

	res = f.svc.Get(context.Background(), 999)
	assert.Equal(t, ReasonNotFound, res.Reason)
}

func TestSendDue(t *testing.T) {
	f := newCampaignFixture(t)
	f.addSubscribers(1, 0)
	due := fixedNow.Add(-time.Minute)
	later := fixedNow.Add(time.Hour)
	dueCampaign := &model.Campaign{Subject: "due", Content: "x", Status: model.CampaignScheduled, ScheduledAt: &due}
	laterCampaign := &model.Campaign{Subject: "later", Content: "x", Status: model.CampaignScheduled, ScheduledAt: &later}
	require.NoError(t, f.campaigns.Create(context.Background(), dueCampaign))
	require.NoError(t, f.campaigns.Create(context.Background(), laterCampaign))

	n, err := f.svc.SendDue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.CampaignSent, f.campaigns.get(dueCampaign.ID).Status)
	assert.Equal(t, model.CampaignScheduled, f.campaigns.get(laterCampaign.ID).Status)
}

// countingLocker wraps a locker and counts Extend calls on its locks.
type countingLocker struct {
	lock.Locker
	extends   int
	extendErr error
}

func (c *countingLocker) NewLock(key string, ttl time.Duration) lock.Lock {
	return &countingLock{Lock: c.Locker.NewLock(key, ttl), parent: c}
}

type countingLock struct {
	lock.Lock
	parent *countingLocker
}

func (l *countingLock) Extend(ctx context.Context, ttl time.Duration) error {
	l.parent.extends++
	if l.parent.extendErr != nil {
		return l.parent.extendErr
	}
	return l.Lock.Extend(ctx, ttl)
}

// cancellingMailer cancels the send context once `after` messages went out.
type cancellingMailer struct {
	*fakeMailer
	after  int
	cancel context.CancelFunc
}

func (m *cancellingMailer) Send(ctx context.Context, msg email.Message) (email.Result, error) {
	res, err := m.fakeMailer.Send(ctx, msg)
	if m.fakeMailer.count() == m.after {
		m.cancel()
	}
	return res, err
}

func TestSendExtendsLockOnLargeLists(t *testing.T) {
	f := newCampaignFixture(t)
	f.addSubscribers(2*sendLockExtendEvery+10, 0)
	locker := &countingLocker{Locker: f.locker}
	f.svc.locker = locker
	id := f.draft(t)

	res := f.svc.Send(context.Background(), id)

	require.True(t, res.Success)
	assert.Equal(t, 2, locker.extends)
	assert.Equal(t, 2*sendLockExtendEvery+10, f.campaigns.get(id).SentCount)
}

func TestSendStopsWhenLockIsLost(t *testing.T) {
	f := newCampaignFixture(t)
	f.addSubscribers(sendLockExtendEvery+5, 0)
	f.svc.locker = &countingLocker{Locker: f.locker, extendErr: lock.ErrNotHeld}
	id := f.draft(t)

	res := f.svc.Send(context.Background(), id)

	assert.False(t, res.Success)
	assert.Equal(t, sendLockExtendEvery, f.mailer.count())
	assert.Equal(t, model.CampaignSending, f.campaigns.get(id).Status)
	deliveries, _ := f.campaigns.Deliveries(context.Background(), id)
	assert.Len(t, deliveries, sendLockExtendEvery)
}

func TestCancelledSendIsResumedBySendDue(t *testing.T) {
	f := newCampaignFixture(t)
	f.addSubscribers(3, 0)
	id := f.draft(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.mailer = &cancellingMailer{fakeMailer: f.mailer, after: 1, cancel: cancel}

	res := f.svc.Send(ctx, id)

	assert.False(t, res.Success)
	assert.Equal(t, 1, f.mailer.count())
	assert.Equal(t, model.CampaignSending, f.campaigns.get(id).Status)
	deliveries, _ := f.campaigns.Deliveries(context.Background(), id)
	require.Len(t, deliveries, 1)

	f.svc.mailer = f.mailer
	n, err := f.svc.SendDue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, f.mailer.count())
	c := f.campaigns.get(id)
	assert.Equal(t, model.CampaignSent, c.Status)
	assert.Equal(t, 3, c.SentCount)
}

func TestSendDueSkipsCampaignHeldByAnotherSender(t *testing.T) {
	f := newCampaignFixture(t)
	f.addSubscribers(1, 0)
	id := f.draft(t)
	require.NoError(t, f.campaigns.UpdateStatus(context.Background(), id, model.CampaignSending))

	held := f.locker.NewLock(fmt.Sprintf("campaign-send:%d", id), time.Minute)
	ok, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	n, err := f.svc.SendDue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, f.mailer.count())
	assert.Equal(t, model.CampaignSending, f.campaigns.get(id).Status)
}
