package outreach

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/dispatch"
	"github.com/jonathan/outreach-agent/internal/fetch"
	"github.com/jonathan/outreach-agent/internal/scan"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/jonathan/outreach-agent/internal/validation"
	"github.com/jonathan/outreach-agent/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeMX struct{}

func (fakeMX) HasMX(context.Context, string) (bool, error) { return true, nil }

type recordingSender struct {
	mu   sync.Mutex
	sent []*dispatch.Message
}

func (r *recordingSender) Send(_ context.Context, m *dispatch.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return nil
}

func (r *recordingSender) messages() []*dispatch.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*dispatch.Message(nil), r.sent...)
}

const teamPage = `<html><body>
<div class="team-member">
  <h3>Jane Doe</h3>
  <p>Co-Founder</p>
  <a href="mailto:jane@acme.com">Email Jane</a>
</div>
</body></html>`

func acmeSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/":      `<html><body><h1>Acme</h1><a href="/about">About</a></body></html>`,
		"/about": teamPage,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

type fixture struct {
	store  *memStore
	sender *recordingSender
	pool   *worker.Pool
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := newMemStore()
	sender := &recordingSender{}

	scans, err := scan.NewManager(scan.Options{
		Store:     store,
		Fetcher:   fetch.NewFetcher(&fetch.Options{}),
		Validator: validation.NewValidator(validation.DefaultPolicy(), fakeMX{}, nil, logger),
		Logger:    logger,
	})
	require.NoError(t, err)
	dispatcher, err := dispatch.NewDispatcher(dispatch.Options{Store: store, Sender: sender, Logger: logger})
	require.NoError(t, err)

	pool := worker.NewPool(worker.Config{Workers: 2, QueueSize: 4}, logger)
	svc, err := NewService(Options{
		Store:      store,
		Scans:      scans,
		Dispatcher: dispatcher,
		Pool:       pool,
		Logger:     logger,
	})
	require.NoError(t, err)
	return &fixture{store: store, sender: sender, pool: pool, svc: svc}
}

func (f *fixture) addAcme(t *testing.T) *db.Company {
	t.Helper()
	server := acmeSite(t)
	company, err := f.store.FindOrCreateCompany(context.Background(), "Acme", "acme.com", server.URL+"/")
	require.NoError(t, err)
	return company
}

var scanConfig = &types.ScanConfig{ScanWebsite: true, MaxPages: 5, CheckMX: true}

func validCampaign() *db.CampaignInput {
	return &db.CampaignInput{
		Name:            "Founders Q2",
		SubjectTemplate: "Hello from us, {{ name }}",
		BodyTemplate:    "Hi {{ first_name }},\n\nCongrats on {{ company }}.",
		FromEmail:       "me@sender.test",
		FromName:        "Sam",
	}
}

func TestService_ScanQueueAndSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	company := f.addAcme(t)

	view, err := f.svc.RunScan(ctx, company.ID, scanConfig)
	require.NoError(t, err)
	assert.Equal(t, types.ScanStatusCompleted, view.Status)
	assert.Equal(t, types.ProgressComplete, view.ProgressPercentage)
	assert.Equal(t, 1, view.Counters.EmailsValidated)

	jane := f.store.emailByAddress("jane@acme.com")
	require.NotNil(t, jane)
	require.Equal(t, types.DiscoveryValidated, jane.Status)

	queued, err := f.svc.QueueEmails(ctx, []uuid.UUID{jane.ID, jane.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 3, queued.Requested)
	assert.Equal(t, 1, queued.Queued)

	campaign, err := f.svc.CreateCampaign(ctx, validCampaign())
	require.NoError(t, err)
	assert.Equal(t, types.CampaignDraft, campaign.Status)
	assert.Equal(t, DefaultDailyLimit, campaign.DailyLimit)
	assert.Equal(t, DefaultCooldownDays, campaign.CooldownDays)

	_, err = f.svc.SendCampaignBatch(ctx, campaign.ID, 0)
	assert.ErrorIs(t, err, ErrCampaignNotActive)

	campaign, err = f.svc.ApplyCampaignAction(ctx, campaign.ID, types.ActionActivate)
	require.NoError(t, err)
	assert.Equal(t, types.CampaignActive, campaign.Status)

	stats, err := f.svc.SendCampaignBatch(ctx, campaign.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "jane@acme.com", msgs[0].To)
	assert.Equal(t, "Hello from us, Jane", msgs[0].Subject)
	assert.Contains(t, msgs[0].Body, "Congrats on Acme.")

	batch, err := f.svc.GetSendBatch(ctx, stats.BatchID)
	require.NoError(t, err)
	assert.Equal(t, types.BatchCompleted, batch.Status)
	assert.Equal(t, 1, batch.Sent)

	logs := f.store.sendLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, types.SendSent, logs[0].Status)
	assert.Equal(t, types.QueueNone, f.store.emailByAddress("jane@acme.com").QueueStatus)
}

func TestService_StartScanRunsInBackground(t *testing.T) {
	f := newFixture(t)
	f.pool.Start()
	t.Cleanup(func() { _ = f.pool.Shutdown(context.Background()) })
	company := f.addAcme(t)

	jobID, err := f.svc.StartScan(context.Background(), company.ID, scanConfig)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, jobID)

	require.Eventually(t, func() bool {
		view, err := f.svc.GetScanStatus(context.Background(), jobID)
		return err == nil && view.Status == types.ScanStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	_, err = f.svc.GetScanStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.StartScan(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_StartScanAbandonsUnqueuedJobs(t *testing.T) {
	f := newFixture(t)
	company := f.addAcme(t)

	_, err := f.svc.StartScan(context.Background(), company.ID, scanConfig)
	require.ErrorIs(t, err, worker.ErrPoolStopped)

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	require.Len(t, f.store.jobs, 1)
	for _, j := range f.store.jobs {
		assert.Equal(t, types.ScanStatusFailed, j.Status)
		require.NotNil(t, j.ErrorMessage)
		assert.Contains(t, *j.ErrorMessage, "could not queue scan")
	}
}

func TestService_CampaignLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.CreateCampaign(ctx, validCampaign())
	require.NoError(t, err)

	steps := []struct {
		action  types.CampaignAction
		want    types.CampaignStatus
		invalid bool
	}{
		{action: types.ActionPause, invalid: true},
		{action: types.ActionResume, invalid: true},
		{action: types.ActionActivate, want: types.CampaignActive},
		{action: types.ActionActivate, invalid: true},
		{action: types.ActionResume, invalid: true},
		{action: types.ActionPause, want: types.CampaignPaused},
		{action: types.ActionResume, want: types.CampaignActive},
		{action: types.ActionPause, want: types.CampaignPaused},
		{action: types.ActionComplete, want: types.CampaignCompleted},
		{action: types.ActionResume, invalid: true},
		{action: types.ActionActivate, invalid: true},
	}
	for i, step := range steps {
		got, err := f.svc.ApplyCampaignAction(ctx, c.ID, step.action)
		if step.invalid {
			assert.ErrorIs(t, err, ErrInvalidTransition, "step %d: %s", i, step.action)
			continue
		}
		require.NoError(t, err, "step %d: %s", i, step.action)
		assert.Equal(t, step.want, got.Status, "step %d", i)
	}

	_, err = f.svc.ApplyCampaignAction(ctx, c.ID, "archive")
	assert.ErrorIs(t, err, ErrInvalidAction)
	_, err = f.svc.ApplyCampaignAction(ctx, uuid.New(), types.ActionPause)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_CreateCampaignValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(in *db.CampaignInput)
	}{
		{"missing name", func(in *db.CampaignInput) { in.Name = "" }},
		{"bad sender", func(in *db.CampaignInput) { in.FromEmail = "not-an-address" }},
		{"negative limit", func(in *db.CampaignInput) { in.DailyLimit = -1 }},
		{"broken subject", func(in *db.CampaignInput) { in.SubjectTemplate = "{% if name %}" }},
		{"broken body", func(in *db.CampaignInput) { in.BodyTemplate = "{% for %}" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validCampaign()
			tt.mutate(in)
			_, err := f.svc.CreateCampaign(ctx, in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err := f.svc.CreateCampaign(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_AddCompany(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.AddCompany(ctx, "", "www.Acme.com")
	require.NoError(t, err)
	assert.Equal(t, "acme.com", c.Domain)
	assert.Equal(t, "acme.com", c.Name)
	require.NotNil(t, c.Website)
	assert.Equal(t, "https://www.Acme.com", *c.Website)

	again, err := f.svc.AddCompany(ctx, "Acme", "https://acme.com/about")
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID, "same domain is the same company")

	_, err = f.svc.AddCompany(ctx, "Acme", " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_InputValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.QueueEmails(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.SendCampaignBatch(ctx, uuid.New(), -5)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.SendCampaignBatch(ctx, uuid.New(), 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetSendBatch(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(Options{})
	assert.Error(t, err)
}

func TestService_Listings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	company := f.addAcme(t)

	_, err := f.svc.RunScan(ctx, company.ID, scanConfig)
	require.NoError(t, err)

	companies, err := f.svc.ListCompanies(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "acme.com", companies[0].Domain)

	people, err := f.svc.ListPeople(ctx, company.ID)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "Jane Doe", people[0].FullName)

	validated, err := f.svc.ListEmails(ctx, db.EmailFilters{CompanyID: &company.ID, Status: types.DiscoveryValidated})
	require.NoError(t, err)
	require.Len(t, validated, 1)
	assert.Equal(t, "jane@acme.com", validated[0].Address)

	queued, err := f.svc.ListEmails(ctx, db.EmailFilters{QueueStatus: types.QueueQueued})
	require.NoError(t, err)
	assert.Empty(t, queued)

	jobs, err := f.svc.ListScanJobs(ctx, company.ID, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.ScanStatusCompleted, jobs[0].Status)

	campaign, err := f.svc.CreateCampaign(ctx, validCampaign())
	require.NoError(t, err)
	campaigns, err := f.svc.ListCampaigns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, campaign.ID, campaigns[0].ID)

	logs, err := f.svc.ListSendLogs(ctx, campaign.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0))
	assert.Equal(t, 50, clampLimit(-3))
	assert.Equal(t, 20, clampLimit(20))
	assert.Equal(t, 500, clampLimit(10_000))
}

func TestService_AddAndVerifyEmails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	company := f.addAcme(t)

	added, err := f.svc.AddEmail(ctx, &types.AddEmailRequest{
		CompanyID: company.ID, Email: "bob.smith@acme.com", FullName: "Bob Smith", Role: "CTO",
	})
	require.NoError(t, err)
	assert.Equal(t, types.DiscoveryValidated, added.Status)
	assert.Equal(t, types.MethodManual, added.Method)

	_, err = f.svc.AddEmail(ctx, &types.AddEmailRequest{
		CompanyID: company.ID, Email: "bob.smith@acme.com", FullName: "Bob Smith", Role: "CTO",
	})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = f.svc.AddEmail(ctx, &types.AddEmailRequest{CompanyID: company.ID, Email: "not-an-address"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.AddEmail(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	result, err := f.svc.VerifyEmail(ctx, added.ID, false)
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, types.DiscoveryValidated, result.Status)
	assert.Equal(t, "bob.smith@acme.com", result.Email)

	_, err = f.svc.VerifyEmail(ctx, uuid.New(), false)
	assert.ErrorIs(t, err, ErrNotFound)

	missing := uuid.New()
	summary, err := f.svc.VerifyEmails(ctx, &types.VerifyEmailsRequest{EmailIDs: []uuid.UUID{added.ID, added.ID, missing}})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Requested)
	assert.Equal(t, 1, summary.Verified)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, []uuid.UUID{missing}, summary.Missing)

	_, err = f.svc.VerifyEmails(ctx, &types.VerifyEmailsRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestService_OverviewResetQueueAndBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	company := f.addAcme(t)

	_, err := f.svc.RunScan(ctx, company.ID, scanConfig)
	require.NoError(t, err)
	jane := f.store.emailByAddress("jane@acme.com")
	require.NotNil(t, jane)
	_, err = f.svc.QueueEmails(ctx, []uuid.UUID{jane.ID})
	require.NoError(t, err)

	campaign, err := f.svc.CreateCampaign(ctx, validCampaign())
	require.NoError(t, err)

	overview, err := f.svc.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, overview.Companies)
	assert.Equal(t, 1, overview.Emails.Validated)
	assert.Equal(t, 1, overview.Emails.Queued)
	assert.Equal(t, 1, overview.Campaigns.Total)
	assert.Equal(t, 0, overview.Campaigns.Active)
	assert.Equal(t, 0, overview.TotalSent)

	reset, err := f.svc.ResetQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reset.EmailsReset)
	assert.Equal(t, types.QueueNone, f.store.emailByAddress("jane@acme.com").QueueStatus)

	reset, err = f.svc.ResetQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reset.EmailsReset)

	_, err = f.svc.QueueEmails(ctx, []uuid.UUID{jane.ID})
	require.NoError(t, err)
	_, err = f.svc.ApplyCampaignAction(ctx, campaign.ID, types.ActionActivate)
	require.NoError(t, err)
	stats, err := f.svc.SendCampaignBatch(ctx, campaign.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Sent)

	batches, err := f.svc.ListSendBatches(ctx, campaign.ID, 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, stats.BatchID, batches[0].ID)
	assert.Equal(t, types.BatchCompleted, batches[0].Status)

	_, err = f.svc.ListSendBatches(ctx, uuid.New(), 0)
	assert.ErrorIs(t, err, ErrNotFound)

	overview, err = f.svc.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, overview.TotalSent)
	assert.Equal(t, 1, overview.Campaigns.Active)
	assert.Equal(t, 0, overview.Emails.Queued)
}
