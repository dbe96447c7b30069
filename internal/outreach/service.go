// Package outreach is the job-control surface over scanning and campaign dispatch. The
// CLI and the HTTP server both drive the system through a Service.
package outreach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/dispatch"
	"github.com/jonathan/outreach-agent/internal/logging"
	"github.com/jonathan/outreach-agent/internal/scan"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/jonathan/outreach-agent/internal/worker"
	"go.uber.org/zap"
)

// Campaign defaults applied when an input leaves them at zero.
const (
	DefaultDailyLimit   = 100
	DefaultCooldownDays = 7
	DefaultSendDelay    = 2 * time.Second
)

// Errors returned by Service, matched with errors.Is.
var (
	ErrNotFound           = scan.ErrNotFound
	ErrInvalidTransition  = db.ErrInvalidTransition
	ErrCampaignNotActive  = dispatch.ErrCampaignNotActive
	ErrDispatchInProgress = dispatch.ErrDispatchInProgress
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidAction      = errors.New("unknown campaign action")
	ErrRoleNotAllowed     = scan.ErrRoleNotAllowed
	ErrDuplicateEmail     = scan.ErrDuplicateEmail
	ErrEmailRejected      = scan.ErrEmailRejected
)

// Store is the persistence the Service needs beyond what scans and dispatch use.
// *db.DB implements it.
type Store interface {
	FindOrCreateCompany(ctx context.Context, name, domain, website string) (*db.Company, error)
	QueueEmails(ctx context.Context, ids []uuid.UUID) (int, error)
	ResetQueue(ctx context.Context) (int, error)

	CreateCampaign(ctx context.Context, input *db.CampaignInput) (*db.Campaign, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*db.Campaign, error)
	TransitionCampaign(ctx context.Context, id uuid.UUID, from, to types.CampaignStatus) error
	GetSendBatch(ctx context.Context, id uuid.UUID) (*db.SendBatch, error)
	ListSendBatches(ctx context.Context, campaignID uuid.UUID, limit int) ([]db.SendBatch, error)

	Overview(ctx context.Context) (*types.Overview, error)
	ListCompanies(ctx context.Context, limit, offset int) ([]db.Company, error)
	ListPeopleByCompany(ctx context.Context, companyID uuid.UUID) ([]db.Person, error)
	ListEmails(ctx context.Context, filters db.EmailFilters) ([]db.EmailCandidate, error)
	ListScanJobs(ctx context.Context, companyID uuid.UUID, limit int) ([]db.ScanJob, error)
	ListCampaigns(ctx context.Context, limit int) ([]db.Campaign, error)
	ListSendLogs(ctx context.Context, campaignID uuid.UUID, limit int) ([]db.SendLog, error)
}

var _ Store = (*db.DB)(nil)

// Options holds the collaborators of a Service.
type Options struct {
	Store      Store
	Scans      *scan.Manager
	Dispatcher *dispatch.Dispatcher
	Renderer   *dispatch.Renderer
	Pool       *worker.Pool
	Logger     *zap.Logger

	// SendDelay is the pause between two sends of a batch.
	SendDelay time.Duration
}

// Service coordinates scans and campaign sends.
type Service struct {
	store      Store
	scans      *scan.Manager
	dispatcher *dispatch.Dispatcher
	renderer   *dispatch.Renderer
	pool       *worker.Pool
	validate   *validator.Validate
	sendDelay  time.Duration
	logger     *zap.Logger
}

// NewService creates a Service. Store, Scans and Dispatcher are required; Pool is needed
// only for StartScan.
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil || opts.Scans == nil || opts.Dispatcher == nil {
		return nil, errors.New("outreach service requires a store, a scan manager and a dispatcher")
	}
	s := &Service{
		store:      opts.Store,
		scans:      opts.Scans,
		dispatcher: opts.Dispatcher,
		renderer:   opts.Renderer,
		pool:       opts.Pool,
		validate:   validator.New(),
		sendDelay:  opts.SendDelay,
		logger:     logging.OrNop(opts.Logger),
	}
	if s.renderer == nil {
		s.renderer = dispatch.NewRenderer()
	}
	if s.sendDelay < 0 {
		s.sendDelay = 0
	}
	return s, nil
}

// AddCompany registers a company by website, or returns the existing one for the same
// domain. name defaults to the domain.
func (s *Service) AddCompany(ctx context.Context, name, website string) (*db.Company, error) {
	website = strings.TrimSpace(website)
	if website == "" {
		return nil, fmt.Errorf("%w: website is required", ErrInvalidInput)
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	domain, err := db.ExtractDomain(website)
	if err != nil || domain == "" {
		return nil, fmt.Errorf("%w: cannot parse website %q", ErrInvalidInput, website)
	}
	company, err := s.store.FindOrCreateCompany(ctx, name, domain, website)
	if err != nil {
		return nil, err
	}
	s.logger.Info("company registered", zap.String("company_id", company.ID.String()), zap.String("domain", company.Domain))
	return company, nil
}

// StartScan creates a scan job and queues it on the worker pool. The job ID is returned
// at once; progress is read with GetScanStatus.
func (s *Service) StartScan(ctx context.Context, companyID uuid.UUID, config *types.ScanConfig) (uuid.UUID, error) {
	if s.pool == nil {
		return uuid.Nil, errors.New("background scans need a worker pool")
	}
	job, err := s.scans.Create(ctx, companyID, config)
	if err != nil {
		return uuid.Nil, err
	}

	jobID := job.ID
	err = s.pool.Submit(worker.Job{
		Name: "scan:" + jobID.String(),
		Run: func(ctx context.Context) error {
			_, err := s.scans.Run(ctx, jobID)
			return err
		},
	})
	if err != nil {
		if abandonErr := s.scans.Abandon(context.WithoutCancel(ctx), jobID, "could not queue scan: "+err.Error()); abandonErr != nil {
			s.logger.Error("failed to abandon scan job", zap.String("scan_job_id", jobID.String()), zap.Error(abandonErr))
		}
		return uuid.Nil, fmt.Errorf("failed to queue scan: %w", err)
	}

	s.logger.Info("scan queued", zap.String("scan_job_id", jobID.String()), zap.String("company_id", companyID.String()))
	return jobID, nil
}

// RunScan creates a scan job and runs it in the caller's goroutine.
func (s *Service) RunScan(ctx context.Context, companyID uuid.UUID, config *types.ScanConfig) (*types.ScanStatusView, error) {
	job, err := s.scans.Create(ctx, companyID, config)
	if err != nil {
		return nil, err
	}
	_, runErr := s.scans.Run(ctx, job.ID)

	view, err := s.scans.Status(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return nil, err
	}
	return view, runErr
}

// GetScanStatus returns the state of a scan job.
func (s *Service) GetScanStatus(ctx context.Context, scanJobID uuid.UUID) (*types.ScanStatusView, error) {
	return s.scans.Status(ctx, scanJobID)
}

// Revalidate re-runs validation over a company's stored DISCOVERED candidates.
func (s *Service) Revalidate(ctx context.Context, companyID uuid.UUID, config *types.ScanConfig) (*types.ScanCounters, error) {
	return s.scans.Revalidate(ctx, companyID, config)
}

// QueueEmails marks VALIDATED candidates for sending. IDs that are not VALIDATED or are
// already queued are ignored.
func (s *Service) QueueEmails(ctx context.Context, emailIDs []uuid.UUID) (*types.QueueEmailsResponse, error) {
	req := &types.QueueEmailsRequest{EmailIDs: emailIDs}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	n, err := s.store.QueueEmails(ctx, dedupe(emailIDs))
	if err != nil {
		return nil, err
	}
	s.logger.Info("emails queued", zap.Int("requested", len(emailIDs)), zap.Int("queued", n))
	return &types.QueueEmailsResponse{Requested: len(emailIDs), Queued: n}, nil
}

// ResetQueue takes every queued email off the send queue.
func (s *Service) ResetQueue(ctx context.Context) (*types.ResetQueueResponse, error) {
	n, err := s.store.ResetQueue(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("send queue reset", zap.Int("emails_reset", n))
	return &types.ResetQueueResponse{EmailsReset: n}, nil
}

// AddEmail stores an address entered by hand after the same validation a scanned
// address gets.
func (s *Service) AddEmail(ctx context.Context, req *types.AddEmailRequest) (*db.EmailCandidate, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: email input is required", ErrInvalidInput)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.scans.AddManual(ctx, req)
}

// VerifyEmail runs the validation checks again for one stored address.
func (s *Service) VerifyEmail(ctx context.Context, emailID uuid.UUID, checkSMTP bool) (*types.VerifyResult, error) {
	return s.scans.Verify(ctx, emailID, checkSMTP)
}

// VerifyEmails runs the validation checks again for several stored addresses.
func (s *Service) VerifyEmails(ctx context.Context, req *types.VerifyEmailsRequest) (*types.VerifySummary, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: email_ids is required", ErrInvalidInput)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.scans.VerifyMany(ctx, dedupe(req.EmailIDs), req.CheckSMTP)
}

// Overview returns system-wide counts.
func (s *Service) Overview(ctx context.Context) (*types.Overview, error) {
	return s.store.Overview(ctx)
}

// CreateCampaign stores a DRAFT campaign after checking its fields and templates.
func (s *Service) CreateCampaign(ctx context.Context, input *db.CampaignInput) (*db.Campaign, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: campaign input is required", ErrInvalidInput)
	}
	in := *input
	if in.DailyLimit == 0 {
		in.DailyLimit = DefaultDailyLimit
	}
	if in.CooldownDays == 0 {
		in.CooldownDays = DefaultCooldownDays
	}
	if err := s.validate.Struct(&in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.renderer.Validate(in.SubjectTemplate); err != nil {
		return nil, fmt.Errorf("%w: subject: %v", ErrInvalidInput, err)
	}
	if err := s.renderer.Validate(in.BodyTemplate); err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrInvalidInput, err)
	}

	c, err := s.store.CreateCampaign(ctx, &in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("campaign created", zap.String("campaign_id", c.ID.String()), zap.String("name", c.Name))
	return c, nil
}

// GetCampaign returns a campaign.
func (s *Service) GetCampaign(ctx context.Context, id uuid.UUID) (*db.Campaign, error) {
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("campaign %s: %w", id, ErrNotFound)
	}
	return c, nil
}

// ApplyCampaignAction runs a lifecycle action (activate, pause, resume, complete) and
// returns the updated campaign.
func (s *Service) ApplyCampaignAction(ctx context.Context, id uuid.UUID, action types.CampaignAction) (*db.Campaign, error) {
	target, ok := action.Target()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if action == types.ActionResume && c.Status != types.CampaignPaused {
		return nil, fmt.Errorf("%w: only a paused campaign can be resumed", ErrInvalidTransition)
	}
	if action == types.ActionActivate && c.Status != types.CampaignDraft {
		return nil, fmt.Errorf("%w: only a draft campaign can be activated", ErrInvalidTransition)
	}
	if err := s.store.TransitionCampaign(ctx, id, c.Status, target); err != nil {
		return nil, err
	}
	s.logger.Info("campaign status changed",
		zap.String("campaign_id", id.String()),
		zap.String("from", string(c.Status)),
		zap.String("to", string(target)),
	)
	return s.GetCampaign(ctx, id)
}

// SendCampaignBatch runs one dispatch batch synchronously. dailyLimit overrides the
// campaign's limit when positive.
func (s *Service) SendCampaignBatch(ctx context.Context, campaignID uuid.UUID, dailyLimit int) (*types.BatchStats, error) {
	return s.SendCampaignBatchWithDelay(ctx, campaignID, dailyLimit, s.sendDelay)
}

// SendCampaignBatchWithDelay is SendCampaignBatch with an explicit pause between sends.
func (s *Service) SendCampaignBatchWithDelay(ctx context.Context, campaignID uuid.UUID, dailyLimit int, delay time.Duration) (*types.BatchStats, error) {
	req := &types.SendBatchRequest{DailyLimit: dailyLimit, DelaySeconds: int(delay / time.Second)}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	stats, err := s.dispatcher.SendBatch(ctx, campaignID, dailyLimit, delay)
	if errors.Is(err, dispatch.ErrNotFound) {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	return stats, err
}

// GetSendBatch returns a send batch by ID.
func (s *Service) GetSendBatch(ctx context.Context, id uuid.UUID) (*db.SendBatch, error) {
	b, err := s.store.GetSendBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("send batch %s: %w", id, ErrNotFound)
	}
	return b, nil
}

// ListSendBatches lists the batches of a campaign, newest first.
func (s *Service) ListSendBatches(ctx context.Context, campaignID uuid.UUID, limit int) ([]db.SendBatch, error) {
	if _, err := s.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.store.ListSendBatches(ctx, campaignID, clampLimit(limit))
}

// ListCompanies lists registered companies by name.
func (s *Service) ListCompanies(ctx context.Context, limit, offset int) ([]db.Company, error) {
	return s.store.ListCompanies(ctx, clampLimit(limit), offset)
}

// ListPeople lists the decision makers found for a company.
func (s *Service) ListPeople(ctx context.Context, companyID uuid.UUID) ([]db.Person, error) {
	return s.store.ListPeopleByCompany(ctx, companyID)
}

// ListEmails lists email candidates, best confidence first.
func (s *Service) ListEmails(ctx context.Context, filters db.EmailFilters) ([]db.EmailCandidate, error) {
	filters.Limit = clampLimit(filters.Limit)
	return s.store.ListEmails(ctx, filters)
}

// ListScanJobs lists the most recent scans of a company.
func (s *Service) ListScanJobs(ctx context.Context, companyID uuid.UUID, limit int) ([]types.ScanStatusView, error) {
	jobs, err := s.store.ListScanJobs(ctx, companyID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	views := make([]types.ScanStatusView, 0, len(jobs))
	for i := range jobs {
		views = append(views, *jobs[i].View())
	}
	return views, nil
}

// ListCampaigns lists campaigns, newest first.
func (s *Service) ListCampaigns(ctx context.Context, limit int) ([]db.Campaign, error) {
	return s.store.ListCampaigns(ctx, clampLimit(limit))
}

// ListSendLogs lists the delivery attempts of a campaign, newest first.
func (s *Service) ListSendLogs(ctx context.Context, campaignID uuid.UUID, limit int) ([]db.SendLog, error) {
	return s.store.ListSendLogs(ctx, campaignID, clampLimit(limit))
}

// clampLimit bounds listing page sizes.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
