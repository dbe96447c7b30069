package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/crawling"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/discovery"
	"github.com/jonathan/outreach-agent/internal/logging"
	"github.com/jonathan/outreach-agent/internal/people"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/jonathan/outreach-agent/internal/validation"
	"go.uber.org/zap"
)

// Options holds the collaborators of a Manager.
type Options struct {
	Store     Store
	Fetcher   crawling.Fetcher
	Browser   crawling.Fetcher // used for jobs with use_browser; nil falls back to Fetcher
	Validator *validation.Validator
	Logger    *zap.Logger

	OnProgress ProgressCallback
}

// pendingValidationBatch is the page size used when validating stored candidates.
const pendingValidationBatch = 500

// Manager creates and runs scan jobs.
type Manager struct {
	store      Store
	fetcher    crawling.Fetcher
	browser    crawling.Fetcher
	extractor  *people.Extractor
	discoverer *discovery.Discoverer
	validator  *validation.Validator
	onProgress ProgressCallback
	logger     *zap.Logger

	validationBatch int
}

// NewManager creates a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("scan manager requires a store")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("scan manager requires a fetcher")
	}
	logger := logging.OrNop(opts.Logger)
	v := opts.Validator
	if v == nil {
		v = validation.NewValidator(validation.DefaultPolicy(), nil, nil, logger)
	}
	return &Manager{
		store:      opts.Store,
		fetcher:    opts.Fetcher,
		browser:    opts.Browser,
		extractor:  people.NewExtractor(logger),
		discoverer: discovery.NewDiscoverer(logger),
		validator:  v,
		onProgress: opts.OnProgress,
		logger:     logger,

		validationBatch: pendingValidationBatch,
	}, nil
}

// Create validates config and stores a PENDING job for the company. A nil config uses
// types.DefaultScanConfig.
func (m *Manager) Create(ctx context.Context, companyID uuid.UUID, config *types.ScanConfig) (*db.ScanJob, error) {
	cfg := types.DefaultScanConfig()
	if config != nil {
		cfg = *config
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scan config: %w", err)
	}
	cfg.MaxPages = crawling.ClampMaxPages(cfg.MaxPages)

	company, err := m.store.GetCompanyByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("company %s: %w", companyID, ErrNotFound)
	}
	return m.store.CreateScanJob(ctx, companyID, cfg)
}

// Status returns the externally visible state of a job.
func (m *Manager) Status(ctx context.Context, jobID uuid.UUID) (*types.ScanStatusView, error) {
	job, err := m.store.GetScanJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("scan job %s: %w", jobID, ErrNotFound)
	}
	return job.View(), nil
}

// run is the state of one executing job.
type run struct {
	job      *db.ScanJob
	company  *db.Company
	counters types.ScanCounters
	people   map[uuid.UUID]bool
	progress *tracker
	logger   *zap.Logger
}

// Run executes a PENDING job to completion. Pages that fail to fetch or parse are
// skipped. Cancellation or a store failure moves the job to FAILED; everything saved
// before that point is kept. The counters gathered so far are always returned.
func (m *Manager) Run(ctx context.Context, jobID uuid.UUID) (*types.ScanCounters, error) {
	job, err := m.store.GetScanJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("scan job %s: %w", jobID, ErrNotFound)
	}
	logger := m.logger.With(zap.String("scan_job_id", job.ID.String()), zap.String("company_id", job.CompanyID.String()))

	company, err := m.store.GetCompanyByID(ctx, job.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		m.fail(ctx, job.ID, "company not found", types.ScanCounters{}, logger)
		return nil, fmt.Errorf("company %s: %w", job.CompanyID, ErrNotFound)
	}

	if err := m.store.StartScanJob(ctx, job.ID); err != nil {
		return nil, err
	}
	logger.Info("scan started", zap.String("domain", company.Domain), zap.Int("max_pages", job.Config.MaxPages))

	r := &run{
		job:     job,
		company: company,
		people:  make(map[uuid.UUID]bool),
		progress: &tracker{
			store:  m.store,
			jobID:  job.ID,
			last:   types.ProgressStarted,
			notify: m.onProgress,
			logger: logger,
		},
		logger: logger,
	}

	if err := m.execute(ctx, r); err != nil {
		msg := err.Error()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			msg = "scan cancelled: " + msg
		}
		m.fail(ctx, job.ID, msg, r.counters, logger)
		return &r.counters, err
	}

	if err := m.store.CompleteScanJob(ctx, job.ID, r.counters); err != nil {
		return &r.counters, err
	}
	if m.onProgress != nil {
		m.onProgress(ProgressEvent{ScanJobID: job.ID, Step: "completed", Progress: types.ProgressComplete})
	}
	logger.Info("scan completed",
		zap.Int("pages_scanned", r.counters.PagesScanned),
		zap.Int("people_found", r.counters.PeopleFound),
		zap.Int("emails_discovered", r.counters.EmailsDiscovered),
		zap.Int("emails_validated", r.counters.EmailsValidated),
	)
	return &r.counters, nil
}

func (m *Manager) execute(ctx context.Context, r *run) error {
	cfg := r.job.Config
	if cfg.ScanLinkedIn {
		r.logger.Warn("LinkedIn scanning is not supported, skipping")
	}

	if cfg.ScanWebsite {
		if err := m.crawl(ctx, r); err != nil {
			return err
		}
	}

	r.progress.advance(ctx, types.ProgressBeforeValidation, StepValidating)
	if err := m.validatePending(ctx, r.company.ID, cfg, &r.counters, r.progress, r.logger); err != nil {
		return err
	}
	r.progress.advance(ctx, types.ProgressAfterValidation, StepFinalizing)

	if err := m.store.MarkCompanyScanned(ctx, r.company.ID); err != nil {
		r.logger.Warn("failed to mark company scanned", zap.Error(err))
	}
	return nil
}

func (m *Manager) crawl(ctx context.Context, r *run) error {
	fetcher := m.fetcher
	if r.job.Config.UseBrowser && m.browser != nil {
		fetcher = m.browser
	}
	crawler := crawling.NewCrawler(fetcher, r.logger)

	opts := crawling.Options{
		MaxPages:          r.job.Config.MaxPages,
		SeedPriorityPaths: true,
		OnAttempt: func(attempted, maxPages int) {
			r.progress.advance(ctx, types.CrawlProgress(attempted, maxPages), StepCrawling)
		},
	}
	stats, err := crawler.Crawl(ctx, r.company.SeedURL(), opts, func(ctx context.Context, page crawling.Page) error {
		return m.visit(ctx, r, page)
	})
	if stats != nil {
		r.counters.PagesScanned = stats.Fetched
		r.counters.PagesFailed = stats.Failed
	}
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	return nil
}

// visit extracts people from one page and stores their discovered addresses.
func (m *Manager) visit(ctx context.Context, r *run, page crawling.Page) error {
	extraction, err := m.extractor.ExtractAll(page.HTML, page.URL, r.company.Domain)
	if err != nil {
		r.logger.Warn("people extraction failed", zap.String("url", page.URL), zap.Error(err))
		return nil
	}
	r.counters.RolesRejected += extraction.RolesRejected
	if len(extraction.People) == 0 {
		return m.flushCounters(ctx, r)
	}

	parsed, err := discovery.ParsePage(page.HTML, page.URL)
	if err != nil {
		r.logger.Warn("failed to parse page for discovery", zap.String("url", page.URL), zap.Error(err))
		return nil
	}

	for _, cand := range extraction.People {
		person, err := m.store.UpsertPerson(ctx, &db.PersonInput{
			CompanyID:      r.company.ID,
			FullName:       cand.Name,
			NormalizedName: cand.NormalizedName,
			Role:           string(cand.Role),
			RoleConfidence: cand.Confidence,
			SourceURL:      cand.SourceURL,
			Strategy:       string(cand.Strategy),
		})
		if err != nil {
			return fmt.Errorf("failed to save person: %w", err)
		}
		if !r.people[person.ID] {
			r.people[person.ID] = true
			r.counters.PeopleFound++
		}

		for _, found := range m.discoverer.DiscoverOnPage(cand, r.company.Domain, parsed) {
			email := &db.EmailCandidate{
				Address:    found.Address,
				PersonID:   person.ID,
				CompanyID:  r.company.ID,
				ScanJobID:  &r.job.ID,
				Method:     found.Method,
				Pattern:    string(found.Pattern),
				SourceType: db.SourceTypeWebsite,
				SourceURL:  found.SourceURL,
			}
			inserted, err := m.store.InsertEmailCandidate(ctx, email)
			if err != nil {
				return fmt.Errorf("failed to save email candidate: %w", err)
			}
			if inserted {
				r.counters.EmailsDiscovered++
			} else {
				r.counters.EmailsDuplicate++
			}
		}
	}
	return m.flushCounters(ctx, r)
}

func (m *Manager) flushCounters(ctx context.Context, r *run) error {
	if err := m.store.UpdateScanCounters(ctx, r.job.ID, r.counters); err != nil {
		r.logger.Warn("failed to update scan counters", zap.Error(err))
	}
	return nil
}

// validatePending validates every DISCOVERED candidate of a company and stores the
// outcomes, one page of m.validationBatch rows at a time. Rows that already left
// DISCOVERED are not counted.
func (m *Manager) validatePending(ctx context.Context, companyID uuid.UUID, cfg types.ScanConfig, counters *types.ScanCounters, progress *tracker, logger *zap.Logger) error {
	span := types.ProgressAfterValidation - types.ProgressBeforeValidation
	attempted := make(map[uuid.UUID]bool)
	done := 0

	for {
		pending, err := m.store.ListPendingValidation(ctx, companyID, m.validationBatch)
		if err != nil {
			return err
		}
		fresh := pending[:0]
		for _, p := range pending {
			if !attempted[p.EmailID] {
				fresh = append(fresh, p)
			}
		}
		if len(fresh) == 0 {
			if len(pending) > 0 {
				logger.Warn("candidates still pending after validation", zap.Int("remaining", len(pending)))
			}
			return nil
		}

		for i, p := range fresh {
			if err := ctx.Err(); err != nil {
				return err
			}
			attempted[p.EmailID] = true
			if err := m.validateOne(ctx, p, cfg, counters, logger); err != nil {
				return err
			}
			done++

			if progress != nil {
				// The total is unknown until the last page; the tracker ignores decreases.
				total := done + len(fresh) - (i + 1)
				progress.advance(ctx, types.ProgressBeforeValidation+done*span/total, StepValidating)
			}
		}
		if len(pending) < m.validationBatch {
			return nil
		}
	}
}

func (m *Manager) validateOne(ctx context.Context, p db.PendingValidation, cfg types.ScanConfig, counters *types.ScanCounters, logger *zap.Logger) error {
	res := m.validator.Validate(ctx, validationInput(p, cfg.CheckMX, cfg.CheckSMTP))
	changed, err := m.store.ApplyValidation(ctx, p.EmailID, validationUpdate(res))
	if err != nil {
		return fmt.Errorf("failed to store validation: %w", err)
	}
	if changed {
		counters.RecordOutcome(res.Status)
	}
	logger.Debug("validated candidate",
		logging.Email("email", p.Address),
		zap.String("status", string(res.Status)),
		zap.String("reason", string(res.Reason)),
		zap.Float64("confidence", res.Confidence),
	)
	return nil
}

// Revalidate runs validation again over the stored DISCOVERED candidates of a company,
// for example after a scan failed before its validation step. Validated and rejected
// rows are never touched.
func (m *Manager) Revalidate(ctx context.Context, companyID uuid.UUID, config *types.ScanConfig) (*types.ScanCounters, error) {
	cfg := types.DefaultScanConfig()
	if config != nil {
		cfg = *config
	}
	company, err := m.store.GetCompanyByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("company %s: %w", companyID, ErrNotFound)
	}

	var counters types.ScanCounters
	logger := m.logger.With(zap.String("company_id", companyID.String()))
	if err := m.validatePending(ctx, companyID, cfg, &counters, nil, logger); err != nil {
		return &counters, err
	}
	logger.Info("revalidation finished",
		zap.Int("validated", counters.EmailsValidated),
		zap.Int("rejected_domain", counters.EmailsRejectedDomain),
		zap.Int("rejected_quality", counters.EmailsRejectedQuality),
	)
	return &counters, nil
}

// fail moves a job to FAILED. It runs even when ctx is cancelled.
func (m *Manager) fail(ctx context.Context, jobID uuid.UUID, message string, counters types.ScanCounters, logger *zap.Logger) {
	if err := m.store.FailScanJob(context.WithoutCancel(ctx), jobID, message, counters); err != nil {
		logger.Error("failed to mark scan job failed", zap.Error(err))
		return
	}
	logger.Warn("scan failed", zap.String("error", message))
}

// Abandon fails a PENDING job that will never run, for example because it could not be
// queued.
func (m *Manager) Abandon(ctx context.Context, jobID uuid.UUID, reason string) error {
	if err := m.store.FailScanJob(ctx, jobID, reason, types.ScanCounters{}); err != nil {
		return fmt.Errorf("failed to abandon scan job: %w", err)
	}
	return nil
}
