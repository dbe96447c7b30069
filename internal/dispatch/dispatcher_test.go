package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeSender records messages and fails addresses listed in errs.
type fakeSender struct {
	mu     sync.Mutex
	sent   []*Message
	errs   map[string]error
	onSend func(m *Message)
}

func (f *fakeSender) Send(_ context.Context, m *Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, m)
	err := f.errs[m.To]
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(m)
	}
	return err
}

func (f *fakeSender) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.To)
	}
	return out
}

func newTestDispatcher(t *testing.T, store Store, sender Sender) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(Options{
		Store:  store,
		Sender: sender,
		Logger: zaptest.NewLogger(t),
		Now:    func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return d
}

func TestSendBatch_OneRecipientPerDomain(t *testing.T) {
	store := newMemStore()
	c := store.addCampaign(types.CampaignActive, 50)
	jane := store.addRecipient("jane@acme.com", "Jane Doe", "Acme", "acme.com", 0.92)
	john := store.addRecipient("john@acme.com", "John Smith", "Acme", "acme.com", 0.81)
	bob := store.addRecipient("bob@beta.io", "Bob Stone", "Beta", "beta.io", 0.85)
	sender := &fakeSender{}
	d := newTestDispatcher(t, store, sender)

	stats, err := d.SendBatch(context.Background(), c.ID, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, types.BatchCompleted, stats.Status)
	assert.Equal(t, 2, stats.Eligible)
	assert.Equal(t, 2, stats.Sent)
	assert.Equal(t, 1, stats.SkippedDomain)
	assert.Equal(t, []string{"jane@acme.com", "bob@beta.io"}, sender.recipients())

	assert.False(t, store.isQueued(jane.EmailID))
	assert.False(t, store.isQueued(bob.EmailID))
	assert.True(t, store.isQueued(john.EmailID), "skipped recipient stays queued")

	// acme.com is now cooling down, so the next run sends nothing to it.
	sender2 := &fakeSender{}
	d2 := newTestDispatcher(t, store, sender2)
	stats, err = d2.SendBatch(context.Background(), c.ID, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, stats.Sent)
	assert.Equal(t, 1, stats.SkippedCooling)
	assert.Empty(t, sender2.recipients())
}

func TestSendBatch_SkipsDomainsInCooldown(t *testing.T) {
	store := newMemStore()
	c := store.addCampaign(types.CampaignActive, 50)
	store.addRecipient("ceo@recent.com", "Ann Lee", "Recent", "recent.com", 0.9)
	old := store.addRecipient("ceo@old.com", "Ben Ray", "Old", "old.com", 0.8)
	store.setCooldown("recent.com", testNow.Add(-2*24*time.Hour), 7)
	store.setCooldown("old.com", testNow.Add(-8*24*time.Hour), 7)
	sender := &fakeSender{}
	d := newTestDispatcher(t, store, sender)

	stats, err := d.SendBatch(context.Background(), c.ID, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"ceo@old.com"}, sender.recipients())
	assert.Equal(t, 1, stats.SkippedCooling)
	assert.Equal(t, 1, stats.Sent)

	cd, ok := store.cooldown("old.com")
	require.True(t, ok)
	assert.True(t, cd.LastContacted.Equal(testNow))
	assert.Equal(t, 2, cd.ContactCount)
	assert.False(t, store.isQueued(old.EmailID))

	recent, _ := store.cooldown("recent.com")
	assert.Equal(t, 1, recent.ContactCount, "skipped domain is not touched")
}

func TestSendBatch_DailyBudget(t *testing.T) {
	store := newMemStore()
	c := store.addCampaign(types.CampaignActive, 3)
	for _, l := range []db.SendLog{
		{EmailID: uuid.New(), CampaignID: c.ID, Status: types.SendSent, SentAt: testNow.Add(-time.Hour)},
		{EmailID: uuid.New(), CampaignID: c.ID, Status: types.SendSent, SentAt: testNow.Add(-2 * time.Hour)},
		{EmailID: uuid.New(), CampaignID: c.ID, Status: types.SendFailed, SentAt: testNow.Add(-time.Hour)},
		{EmailID: uuid.New(), CampaignID: c.ID, Status: types.SendSent, SentAt: testNow.Add(-30 * time.Hour)},
	} {
		store.addLog(l)
	}
	store.addRecipient("a@one.com", "A One", "One", "one.com", 0.9)
	store.addRecipient("b@two.com", "B Two", "Two", "two.com", 0.8)
	sender := &fakeSender{}
	d := newTestDispatcher(t, store, sender)

	stats, err := d.SendBatch(context.Background(), c.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent, "two SENT today leaves one of three")
	assert.Equal(t, []string{"a@one.com"}, sender.recipients())

	t.Run("exhausted budget sends nothing", func(t *testing.T) {
		sender := &fakeSender{}
		d := newTestDispatcher(t, store, sender)
		stats, err := d.SendBatch(context.Background(), c.ID, 0, 0)
		require.NoError(t, err)
		assert.Zero(t, stats.Attempted)
		assert.Equal(t, uuid.Nil, stats.BatchID)
		assert.Empty(t, sender.recipients())
	})

	t.Run("explicit limit overrides the campaign", func(t *testing.T) {
		sender := &fakeSender{}
		d := newTestDispatcher(t, store, sender)
		stats, err := d.SendBatch(context.Background(), c.ID, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Sent)
		assert.Equal(t, []string{"b@two.com"}, sender.recipients())
	})
}

func TestSendBatch_ClassifiesOutcomes(t *testing.T) {
	store := newMemStore()
	c := store.addCampaign(types.CampaignActive, 50)
	ok := store.addRecipient("ok@one.com", "Olive Kay", "One", "one.com", 0.9)
	bounced := store.addRecipient("gone@two.com", "Gus One", "Two", "two.com", 0.8)
	failed := store.addRecipient("down@three.com", "Dee Wn", "Three", "three.com", 0.7)
	plain := store.addRecipient("err@four.com", "Eve Rr", "Four", "four.com", 0.6)
	sender := &fakeSender{errs: map[string]error{
		"gone@two.com":   &SendError{Kind: KindBounced, Stage: "rcpt", Cause: errors.New("550 user unknown")},
		"down@three.com": &SendError{Kind: KindFailed, Stage: "connect", Cause: errors.New("connection refused")},
		"err@four.com":   errors.New("something else"),
	}}
	d := newTestDispatcher(t, store, sender)

	stats, err := d.SendBatch(context.Background(), c.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Attempted)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 1, stats.Bounced)
	assert.Equal(t, 2, stats.Failed)

	byEmail := make(map[uuid.UUID]db.SendLog)
	for _, l := range store.sendLogs() {
		byEmail[l.EmailID] = l
	}
	assert.Equal(t, types.SendSent, byEmail[ok.EmailID].Status)
	assert.Nil(t, byEmail[ok.EmailID].Error)
	assert.Equal(t, "Quick question for One", byEmail[ok.EmailID].SubjectSent)
	assert.Contains(t, byEmail[ok.EmailID].BodyPreview, "Hi Olive,")

	assert.Equal(t, types.SendBounced, byEmail[bounced.EmailID].Status)
	require.NotNil(t, byEmail[bounced.EmailID].Error)
	assert.Contains(t, *byEmail[bounced.EmailID].Error, "550")
	assert.Equal(t, types.SendFailed, byEmail[failed.EmailID].Status)
	assert.Equal(t, types.SendFailed, byEmail[plain.EmailID].Status)

	// Only the SENT recipient advances a cooldown or leaves the queue.
	_, touched := store.cooldown("one.com")
	assert.True(t, touched)
	for _, domain := range []string{"two.com", "three.com", "four.com"} {
		_, touched := store.cooldown(domain)
		assert.False(t, touched, domain)
	}
	assert.False(t, store.isQueued(ok.EmailID))
	assert.True(t, store.isQueued(bounced.EmailID))
	assert.True(t, store.isQueued(failed.EmailID))

	b := store.batch(stats.BatchID)
	assert.Equal(t, types.BatchCompleted, b.Status)
	assert.Equal(t, 100, b.Progress)
	assert.Equal(t, 4, b.CurrentIndex)

	camp, _ := store.GetCampaign(context.Background(), c.ID)
	assert.Equal(t, 1, camp.TotalSent)
	assert.Equal(t, 2, camp.TotalFailed)
	assert.Equal(t, 1, camp.TotalBounced)
	require.NotNil(t, camp.LastRunAt)

	// Attempted recipients are not retried by the same campaign.
	sender2 := &fakeSender{}
	stats, err = newTestDispatcher(t, store, sender2).SendBatch(context.Background(), c.ID, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, stats.Attempted)
}

func TestSendBatch_CancellationKeepsAggregates(t *testing.T) {
	store := newMemStore()
	c := store.addCampaign(types.CampaignActive, 50)
	store.addRecipient("a@one.com", "A One", "One", "one.com", 0.9)
	store.addRecipient("b@two.com", "B Two", "Two", "two.com", 0.8)
	store.addRecipient("c@three.com", "C Three", "Three", "three.com", 0.7)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &fakeSender{onSend: func(*Message) { cancel() }}
	d := newTestDispatcher(t, store, sender)

	stats, err := d.SendBatch(ctx, c.ID, 0, 0)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, stats)
	assert.Equal(t, types.BatchCancelled, stats.Status)
	assert.Equal(t, 1, stats.Attempted)
	assert.Equal(t, 1, stats.Sent)

	b := store.batch(stats.BatchID)
	assert.Equal(t, types.BatchCancelled, b.Status)
	assert.Equal(t, 1, b.Sent)

	camp, _ := store.GetCampaign(context.Background(), c.ID)
	assert.Equal(t, 1, camp.TotalSent)
	assert.Len(t, store.sendLogs(), 1)
}

func TestSendBatch_RequiresActiveCampaign(t *testing.T) {
	store := newMemStore()
	d := newTestDispatcher(t, store, &fakeSender{})

	for _, status := range []types.CampaignStatus{types.CampaignDraft, types.CampaignPaused, types.CampaignCompleted} {
		c := store.addCampaign(status, 50)
		_, err := d.SendBatch(context.Background(), c.ID, 0, 0)
		assert.ErrorIs(t, err, ErrCampaignNotActive, status)
	}
	assert.Empty(t, store.batches)

	_, err := d.SendBatch(context.Background(), uuid.New(), 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendBatch_SerialisedPerCampaign(t *testing.T) {
	store := newMemStore()
	c := store.addCampaign(types.CampaignActive, 50)
	store.addRecipient("a@one.com", "A One", "One", "one.com", 0.9)
	locks := NewLocalLocks()

	d, err := NewDispatcher(Options{
		Store:  store,
		Sender: &fakeSender{},
		Locks:  locks.Factory(),
		Logger: zaptest.NewLogger(t),
		Now:    func() time.Time { return testNow },
	})
	require.NoError(t, err)

	held := locks.Factory()("dispatch:" + c.ID.String())
	acquired, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = d.SendBatch(context.Background(), c.ID, 0, 0)
	assert.ErrorIs(t, err, ErrDispatchInProgress)

	require.NoError(t, held.Release(context.Background()))
	stats, err := d.SendBatch(context.Background(), c.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)
}

func TestSendBatch_ConcurrentCampaignsShareCooldown(t *testing.T) {
	store := newMemStore()
	first := store.addCampaign(types.CampaignActive, 50)
	second := store.addCampaign(types.CampaignActive, 50)
	store.addRecipient("jane@acme.com", "Jane Doe", "Acme", "acme.com", 0.92)

	entered := make(chan struct{})
	release := make(chan struct{})
	sender := &fakeSender{onSend: func(m *Message) {
		if m.CampaignID == first.ID.String() {
			close(entered)
			<-release
		}
	}}
	d := newTestDispatcher(t, store, sender)

	type result struct {
		stats *types.BatchStats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := d.SendBatch(context.Background(), first.ID, 0, 0)
		done <- result{stats, err}
	}()
	<-entered

	stats, err := d.SendBatch(context.Background(), second.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Sent)
	assert.Equal(t, 0, stats.Eligible)

	close(release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.stats.Sent)

	assert.Equal(t, []string{"jane@acme.com"}, sender.recipients())
	cd, ok := store.cooldown("acme.com")
	require.True(t, ok)
	assert.Equal(t, 1, cd.ContactCount)
}

// staleStore runs hook once, right after the first run has read its cooldowns.
type staleStore struct {
	*memStore
	hook func()
}

func (s *staleStore) GetDomainCooldowns(ctx context.Context, domains []string) (map[string]db.DomainCooldown, error) {
	out, err := s.memStore.GetDomainCooldowns(ctx, domains)
	if hook := s.hook; hook != nil {
		s.hook = nil
		hook()
	}
	return out, err
}

func TestSendBatch_SkipsRecipientClaimedAfterSelection(t *testing.T) {
	mem := newMemStore()
	first := mem.addCampaign(types.CampaignActive, 50)
	second := mem.addCampaign(types.CampaignActive, 50)
	jane := mem.addRecipient("jane@acme.com", "Jane Doe", "Acme", "acme.com", 0.92)
	store := &staleStore{memStore: mem}
	sender := &fakeSender{}
	d := newTestDispatcher(t, store, sender)

	// The first campaign reaches jane after the second one already selected her.
	store.hook = func() {
		stats, err := d.SendBatch(context.Background(), first.ID, 0, 0)
		require.NoError(t, err)
		require.Equal(t, 1, stats.Sent)
	}

	stats, err := d.SendBatch(context.Background(), second.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Eligible)
	assert.Equal(t, 0, stats.Sent)
	assert.Equal(t, 1, stats.SkippedCooling)

	assert.Equal(t, []string{"jane@acme.com"}, sender.recipients())
	cd, ok := mem.cooldown("acme.com")
	require.True(t, ok)
	assert.Equal(t, 1, cd.ContactCount)
	assert.False(t, mem.isQueued(jane.EmailID))
	for _, l := range mem.sendLogs() {
		assert.Equal(t, first.ID, l.CampaignID)
	}
}

func TestSendBatch_FailedSendReleasesClaim(t *testing.T) {
	store := newMemStore()
	c := store.addCampaign(types.CampaignActive, 50)
	jane := store.addRecipient("jane@acme.com", "Jane Doe", "Acme", "acme.com", 0.92)
	store.setCooldown("acme.com", testNow.AddDate(0, 0, -30), 7)
	sender := &fakeSender{errs: map[string]error{"jane@acme.com": errors.New("connection reset")}}
	d := newTestDispatcher(t, store, sender)

	stats, err := d.SendBatch(context.Background(), c.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	assert.True(t, store.isQueued(jane.EmailID))
	cd, ok := store.cooldown("acme.com")
	require.True(t, ok)
	assert.Equal(t, 1, cd.ContactCount)
	assert.True(t, cd.LastContacted.Equal(testNow.AddDate(0, 0, -30)))
}

func TestSendBatch_PacesSends(t *testing.T) {
	store := newMemStore()
	c := store.addCampaign(types.CampaignActive, 50)
	store.addRecipient("a@one.com", "A One", "One", "one.com", 0.9)
	store.addRecipient("b@two.com", "B Two", "Two", "two.com", 0.8)
	store.addRecipient("c@three.com", "C Three", "Three", "three.com", 0.7)
	d := newTestDispatcher(t, store, &fakeSender{})

	start := time.Now()
	stats, err := d.SendBatch(context.Background(), c.ID, 0, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Sent)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestSendBatch_ParallelWorkers(t *testing.T) {
	store := newMemStore()
	c := store.addCampaign(types.CampaignActive, 50)
	domains := []string{"a.com", "b.com", "c.com", "d.com", "e.com", "f.com"}
	for i, domain := range domains {
		store.addRecipient("ceo@"+domain, "Chief Exec", domain, domain, 0.9-float64(i)*0.01)
	}
	store.addRecipient("cto@a.com", "Tech Lead", "a.com", "a.com", 0.5)
	sender := &fakeSender{}

	d, err := NewDispatcher(Options{
		Store:   store,
		Sender:  sender,
		Logger:  zaptest.NewLogger(t),
		Workers: 4,
		Now:     func() time.Time { return testNow },
	})
	require.NoError(t, err)

	stats, err := d.SendBatch(context.Background(), c.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Sent)
	assert.Equal(t, 1, stats.SkippedDomain)
	assert.ElementsMatch(t, []string{
		"ceo@a.com", "ceo@b.com", "ceo@c.com", "ceo@d.com", "ceo@e.com", "ceo@f.com",
	}, sender.recipients())
	assert.Equal(t, 6, store.batch(stats.BatchID).CurrentIndex)
}

func TestNewDispatcher_RequiresCollaborators(t *testing.T) {
	_, err := NewDispatcher(Options{Sender: &fakeSender{}})
	assert.Error(t, err)
	_, err = NewDispatcher(Options{Store: newMemStore()})
	assert.Error(t, err)
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	in := time.Date(2026, 3, 11, 2, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), startOfDay(in))
}
