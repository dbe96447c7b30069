package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/logging"
	"github.com/jonathan/outreach-agent/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultCooldownDays applies when a campaign has no cooldown configured.
const DefaultCooldownDays = 7

// candidateWindow is how many queued recipients are read per run before filtering.
const candidateWindow = 1000

// Options configures a Dispatcher.
type Options struct {
	Store    Store
	Sender   Sender
	Renderer *Renderer
	Locks    LockFactory
	Logger   *zap.Logger

	// Workers above one sends in parallel. The pacing limiter is shared, so the
	// delay between sends still holds.
	Workers int
	Now     func() time.Time
}

// Dispatcher runs send batches for campaigns.
type Dispatcher struct {
	store    Store
	sender   Sender
	renderer *Renderer
	locks    LockFactory
	logger   *zap.Logger
	workers  int
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher. Store and Sender are required.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, errors.New("dispatch: store is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("dispatch: sender is required")
	}
	d := &Dispatcher{
		store:    opts.Store,
		sender:   opts.Sender,
		renderer: opts.Renderer,
		locks:    opts.Locks,
		logger:   logging.OrNop(opts.Logger),
		workers:  opts.Workers,
		now:      opts.Now,
	}
	if d.renderer == nil {
		d.renderer = NewRenderer()
	}
	if d.locks == nil {
		d.locks = NewLocalLocks().Factory()
	}
	if d.workers < 1 {
		d.workers = 1
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d, nil
}

// SendBatch sends one batch for an ACTIVE campaign. dailyLimit overrides the campaign's
// limit when positive; delay is the minimum spacing between sends.
//
// Cancelling ctx stops the batch between sends. The aggregates of the work done are
// still written and returned together with the context error.
func (d *Dispatcher) SendBatch(ctx context.Context, campaignID uuid.UUID, dailyLimit int, delay time.Duration) (*types.BatchStats, error) {
	lock := d.locks("dispatch:" + campaignID.String())
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDispatchInProgress
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			d.logger.Warn("failed to release dispatch lock", zap.String("campaign_id", campaignID.String()), zap.Error(err))
		}
	}()

	campaign, err := d.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, ErrNotFound
	}
	if campaign.Status != types.CampaignActive {
		return nil, fmt.Errorf("%w: status is %s", ErrCampaignNotActive, campaign.Status)
	}

	log := d.logger.With(zap.String("campaign_id", campaignID.String()))
	now := d.now()
	stats := &types.BatchStats{CampaignID: campaignID, Status: types.BatchCompleted, StartedAt: now}

	limit := campaign.DailyLimit
	if dailyLimit > 0 {
		limit = dailyLimit
	}
	sentToday, err := d.store.CountSentSince(ctx, campaignID, startOfDay(now))
	if err != nil {
		return nil, err
	}
	budget := limit - sentToday
	if budget <= 0 {
		log.Info("daily limit reached", zap.Int("daily_limit", limit), zap.Int("sent_today", sentToday))
		stats.CompletedAt = d.now()
		return stats, nil
	}

	queued, err := d.store.ListQueuedRecipients(ctx, campaignID, candidateWindow)
	if err != nil {
		return nil, err
	}
	cooldowns, err := d.store.GetDomainCooldowns(ctx, recipientDomains(queued))
	if err != nil {
		return nil, err
	}
	sel := SelectEligible(queued, cooldowns, now, budget)
	stats.Eligible = len(sel.Recipients)
	stats.SkippedCooling = sel.SkippedCooling
	stats.SkippedDomain = sel.SkippedDomain

	batch, err := d.store.CreateSendBatch(ctx, campaignID, len(sel.Recipients))
	if err != nil {
		return nil, err
	}
	stats.BatchID = batch.ID
	log = log.With(zap.String("batch_id", batch.ID.String()))
	log.Info("dispatch started",
		zap.Int("eligible", stats.Eligible),
		zap.Int("budget", budget),
		zap.Int("skipped_cooldown", sel.SkippedCooling),
		zap.Int("skipped_domain", sel.SkippedDomain),
	)

	run := &batchRun{
		d:        d,
		campaign: campaign,
		batchID:  batch.ID,
		stats:    stats,
		total:    len(sel.Recipients),
		logger:   log,
		pace:     pacer(delay),
	}
	runErr := run.sendAll(ctx, sel.Recipients)

	if runErr != nil {
		stats.Status = types.BatchCancelled
	}
	stats.CompletedAt = d.now()

	// Aggregates cover the work done even when ctx was cancelled.
	wctx := context.WithoutCancel(ctx)
	if err := d.store.FinishSendBatch(wctx, batch.ID, stats.Status, stats); err != nil {
		log.Error("failed to finish send batch", zap.Error(err))
	}
	if err := d.store.AddCampaignTotals(wctx, campaignID, stats.Sent, stats.Failed, stats.Bounced, stats.CompletedAt); err != nil {
		log.Error("failed to update campaign totals", zap.Error(err))
	}

	log.Info("dispatch finished",
		zap.String("status", string(stats.Status)),
		zap.Int("sent", stats.Sent),
		zap.Int("failed", stats.Failed),
		zap.Int("bounced", stats.Bounced),
	)
	return stats, runErr
}

func pacer(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// batchRun holds the state of one SendBatch call.
type batchRun struct {
	d        *Dispatcher
	campaign *db.Campaign
	batchID  uuid.UUID
	total    int
	logger   *zap.Logger
	pace     *rate.Limiter

	mu    sync.Mutex
	stats *types.BatchStats
}

func (r *batchRun) sendAll(ctx context.Context, recipients []db.Recipient) error {
	if r.d.workers == 1 {
		for _, rcpt := range recipients {
			if err := r.pace.Wait(ctx); err != nil {
				return err
			}
			r.deliver(ctx, rcpt)
		}
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.d.workers)
	for _, rcpt := range recipients {
		if err := r.pace.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			r.deliver(gctx, rcpt)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// deliver claims, renders, sends and records one recipient. Failures are recorded, not
// returned. A recipient that another run claimed first, or whose domain another run
// contacted since selection, is counted as cooling and skipped.
func (r *batchRun) deliver(ctx context.Context, rcpt db.Recipient) {
	domain := recipientDomain(rcpt)
	log := r.logger.With(logging.Email("email", rcpt.Address), zap.String("domain", domain))
	wctx := context.WithoutCancel(ctx)

	cooldown := r.campaign.CooldownDays
	if cooldown <= 0 {
		cooldown = DefaultCooldownDays
	}
	claim, err := r.d.store.ClaimRecipient(ctx, rcpt.EmailID, domain, r.d.now(), cooldown)
	if err != nil {
		log.Error("failed to claim recipient", zap.Error(err))
		return
	}
	if claim == nil {
		log.Info("recipient taken by another dispatch run")
		r.mu.Lock()
		r.stats.SkippedCooling++
		r.mu.Unlock()
		return
	}

	entry := &db.SendLog{
		EmailID:    rcpt.EmailID,
		CampaignID: r.campaign.ID,
		BatchID:    &r.batchID,
	}

	subject, body, err := r.d.renderer.RenderCampaign(r.campaign, rcpt)
	if err == nil {
		entry.SubjectSent = subject
		entry.BodyPreview = body
		err = r.d.sender.Send(ctx, &Message{
			FromEmail:  r.campaign.FromEmail,
			FromName:   r.campaign.FromName,
			To:         rcpt.Address,
			Subject:    subject,
			Body:       body,
			CampaignID: r.campaign.ID.String(),
		})
	}
	status := Classify(err)
	entry.Status = status
	entry.SentAt = r.d.now()
	if err != nil {
		msg := err.Error()
		entry.Error = &msg
		log.Warn("send failed", zap.String("status", string(status)), zap.Error(err))
	}

	if err := r.d.store.RecordSend(wctx, entry); err != nil {
		log.Error("failed to record send", zap.Error(err))
	}
	if status != types.SendSent {
		if err := r.d.store.ReleaseClaim(wctx, claim); err != nil {
			log.Error("failed to release recipient", zap.Error(err))
		}
	}

	r.mu.Lock()
	r.stats.Record(status)
	attempted := r.stats.Attempted
	r.mu.Unlock()

	if err := r.d.store.UpdateSendBatchProgress(wctx, r.batchID, attempted, r.total); err != nil {
		log.Warn("failed to update batch progress", zap.Error(err))
	}
}
