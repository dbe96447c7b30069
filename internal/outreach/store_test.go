package outreach

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/dispatch"
	"github.com/jonathan/outreach-agent/internal/emailaddr"
	"github.com/jonathan/outreach-agent/internal/scan"
	"github.com/jonathan/outreach-agent/internal/types"
)

// memStore backs the whole service in memory with the same state rules as the SQL
// repository.
type memStore struct {
	mu        sync.Mutex
	companies map[uuid.UUID]*db.Company
	jobs      map[uuid.UUID]*db.ScanJob
	people    map[uuid.UUID]*db.Person
	emails    map[uuid.UUID]*db.EmailCandidate
	campaigns map[uuid.UUID]*db.Campaign
	batches   map[uuid.UUID]*db.SendBatch
	cooldowns map[string]db.DomainCooldown
	logs      []db.SendLog
}

func newMemStore() *memStore {
	return &memStore{
		companies: make(map[uuid.UUID]*db.Company),
		jobs:      make(map[uuid.UUID]*db.ScanJob),
		people:    make(map[uuid.UUID]*db.Person),
		emails:    make(map[uuid.UUID]*db.EmailCandidate),
		campaigns: make(map[uuid.UUID]*db.Campaign),
		batches:   make(map[uuid.UUID]*db.SendBatch),
		cooldowns: make(map[string]db.DomainCooldown),
	}
}

var (
	_ Store          = (*memStore)(nil)
	_ scan.Store     = (*memStore)(nil)
	_ dispatch.Store = (*memStore)(nil)
)

func (s *memStore) emailByAddress(addr string) *db.EmailCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.emails {
		if e.Address == addr {
			cp := *e
			return &cp
		}
	}
	return nil
}

func (s *memStore) sendLogs() []db.SendLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]db.SendLog(nil), s.logs...)
}

// Companies

func (s *memStore) FindOrCreateCompany(_ context.Context, name, domain, website string) (*db.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	domain = emailaddr.NormalizeDomain(domain)
	for _, c := range s.companies {
		if c.Domain == domain {
			cp := *c
			return &cp, nil
		}
	}
	if name == "" {
		name = domain
	}
	c := &db.Company{ID: uuid.New(), Name: name, Domain: domain, CreatedAt: time.Now()}
	if website != "" {
		c.Website = &website
	}
	s.companies[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *memStore) GetCompanyByID(_ context.Context, id uuid.UUID) (*db.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) MarkCompanyScanned(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.companies[id].LastScanned = &now
	return nil
}

// Scan jobs

func (s *memStore) CreateScanJob(_ context.Context, companyID uuid.UUID, config types.ScanConfig) (*db.ScanJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &db.ScanJob{ID: uuid.New(), CompanyID: companyID, Config: config, Status: types.ScanStatusPending, CurrentStep: "queued"}
	s.jobs[j.ID] = j
	cp := *j
	return &cp, nil
}

func (s *memStore) GetScanJob(_ context.Context, id uuid.UUID) (*db.ScanJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) transition(id uuid.UUID, to types.ScanStatus) (*db.ScanJob, error) {
	j, ok := s.jobs[id]
	if !ok || !types.CanTransitionScan(j.Status, to) {
		return nil, fmt.Errorf("%w: scan job %s", db.ErrInvalidTransition, id)
	}
	j.Status = to
	return j, nil
}

func (s *memStore) StartScanJob(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.transition(id, types.ScanStatusRunning)
	if err != nil {
		return err
	}
	now := time.Now()
	j.StartedAt = &now
	j.Progress = max(j.Progress, types.ProgressStarted)
	return nil
}

func (s *memStore) UpdateScanProgress(_ context.Context, id uuid.UUID, progress int, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j := s.jobs[id]; j.Status == types.ScanStatusRunning {
		j.Progress = max(j.Progress, progress)
		j.CurrentStep = step
	}
	return nil
}

func (s *memStore) UpdateScanCounters(_ context.Context, id uuid.UUID, c types.ScanCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j := s.jobs[id]; j.Status == types.ScanStatusRunning {
		j.Counters = c
	}
	return nil
}

func (s *memStore) CompleteScanJob(_ context.Context, id uuid.UUID, c types.ScanCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.transition(id, types.ScanStatusCompleted)
	if err != nil {
		return err
	}
	now := time.Now()
	j.Progress = types.ProgressComplete
	j.CurrentStep = "completed"
	j.Counters = c
	j.CompletedAt = &now
	return nil
}

func (s *memStore) FailScanJob(_ context.Context, id uuid.UUID, message string, c types.ScanCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.transition(id, types.ScanStatusFailed)
	if err != nil {
		return err
	}
	j.ErrorMessage = &message
	j.CurrentStep = "failed"
	j.Counters = c
	return nil
}

// People and email candidates

func (s *memStore) UpsertPerson(_ context.Context, in *db.PersonInput) (*db.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.people {
		if p.CompanyID == in.CompanyID && p.NormalizedName == in.NormalizedName && p.Role == in.Role {
			p.RoleConfidence = max(p.RoleConfidence, in.RoleConfidence)
			cp := *p
			return &cp, nil
		}
	}
	p := &db.Person{
		ID:             uuid.New(),
		CompanyID:      in.CompanyID,
		FullName:       in.FullName,
		NormalizedName: in.NormalizedName,
		Role:           in.Role,
		RoleConfidence: in.RoleConfidence,
		SourceURL:      in.SourceURL,
		Strategy:       in.Strategy,
	}
	s.people[p.ID] = p
	cp := *p
	return &cp, nil
}

func (s *memStore) InsertEmailCandidate(_ context.Context, e *db.EmailCandidate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := strings.ToLower(e.Address)
	for _, existing := range s.emails {
		if existing.Address == addr {
			return false, nil
		}
	}
	stored := *e
	stored.ID = uuid.New()
	stored.Address = addr
	stored.Status = types.DiscoveryDiscovered
	stored.QueueStatus = types.QueueNone
	stored.CreatedAt = time.Now()
	s.emails[stored.ID] = &stored
	e.ID = stored.ID
	e.Status = stored.Status
	return true, nil
}

// evidence assembles the validation evidence of e. Callers hold s.mu.
func (s *memStore) evidence(e *db.EmailCandidate) db.PendingValidation {
	p := s.people[e.PersonID]
	return db.PendingValidation{
		EmailID:        e.ID,
		Address:        e.Address,
		Status:         e.Status,
		QueueStatus:    e.QueueStatus,
		CompanyID:      e.CompanyID,
		CompanyDomain:  s.companies[e.CompanyID].Domain,
		Method:         e.Method,
		Pattern:        e.Pattern,
		SourceURL:      e.SourceURL,
		Role:           p.Role,
		RoleConfidence: p.RoleConfidence,
	}
}

func (s *memStore) ListPendingValidation(_ context.Context, companyID uuid.UUID, limit int) ([]db.PendingValidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.PendingValidation
	for _, e := range s.emails {
		if e.CompanyID == companyID && e.Status == types.DiscoveryDiscovered {
			out = append(out, s.evidence(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) GetEmailByAddress(_ context.Context, address string) (*db.EmailCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.emails {
		if e.Address == strings.ToLower(address) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetValidationEvidence(_ context.Context, id uuid.UUID) (*db.PendingValidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emails[id]
	if !ok {
		return nil, nil
	}
	p := s.evidence(e)
	return &p, nil
}

func (s *memStore) RefreshVerification(_ context.Context, id uuid.UUID, u *db.ValidationUpdate, dequeue bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.emails[id]; ok {
		e.ConfidenceScore = u.ConfidenceScore
		e.ConfidenceLevel = u.ConfidenceLevel
		e.QualityScore = u.QualityScore
		e.MXValid = u.MXValid
		e.SMTPValid = u.SMTPValid
		e.IsDisposable = u.IsDisposable
		if dequeue {
			e.QueueStatus = types.QueueNone
		}
	}
	return nil
}

func (s *memStore) ResetQueue(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.emails {
		if e.QueueStatus == types.QueueQueued {
			e.QueueStatus = types.QueueNone
			n++
		}
	}
	return n, nil
}

func (s *memStore) ApplyValidation(_ context.Context, id uuid.UUID, u *db.ValidationUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emails[id]
	if !ok || e.Status != types.DiscoveryDiscovered {
		return false, nil
	}
	e.Status = u.Status
	e.ConfidenceScore = u.ConfidenceScore
	e.ConfidenceLevel = u.ConfidenceLevel
	e.QualityScore = u.QualityScore
	e.MXValid = u.MXValid
	if u.RejectionReason != "" {
		reason := u.RejectionReason
		e.RejectionReason = &reason
	}
	return true, nil
}

func (s *memStore) QueueEmails(_ context.Context, ids []uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		e, ok := s.emails[id]
		if ok && e.Status == types.DiscoveryValidated && e.QueueStatus == types.QueueNone {
			e.QueueStatus = types.QueueQueued
			n++
		}
	}
	return n, nil
}

// Campaigns and dispatch

func (s *memStore) CreateCampaign(_ context.Context, in *db.CampaignInput) (*db.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &db.Campaign{
		ID:              uuid.New(),
		Name:            in.Name,
		SubjectTemplate: in.SubjectTemplate,
		BodyTemplate:    in.BodyTemplate,
		FromEmail:       in.FromEmail,
		FromName:        in.FromName,
		DailyLimit:      in.DailyLimit,
		CooldownDays:    in.CooldownDays,
		Status:          types.CampaignDraft,
	}
	s.campaigns[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *memStore) GetCampaign(_ context.Context, id uuid.UUID) (*db.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) TransitionCampaign(_ context.Context, id uuid.UUID, from, to types.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !types.CanTransitionCampaign(from, to) {
		return fmt.Errorf("%w: %s -> %s", db.ErrInvalidTransition, from, to)
	}
	c, ok := s.campaigns[id]
	if !ok || c.Status != from {
		return fmt.Errorf("%w: campaign %s is not %s", db.ErrInvalidTransition, id, from)
	}
	c.Status = to
	return nil
}

func (s *memStore) AddCampaignTotals(_ context.Context, id uuid.UUID, sent, failed, bounced int, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.campaigns[id]
	c.TotalSent += sent
	c.TotalFailed += failed
	c.TotalBounced += bounced
	c.LastRunAt = &runAt
	return nil
}

func (s *memStore) CountSentSince(_ context.Context, campaignID uuid.UUID, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.logs {
		if l.CampaignID == campaignID && l.Status == types.SendSent && !l.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListQueuedRecipients(_ context.Context, campaignID uuid.UUID, limit int) ([]db.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempted := make(map[uuid.UUID]bool)
	for _, l := range s.logs {
		if l.CampaignID == campaignID {
			attempted[l.EmailID] = true
		}
	}
	var out []db.Recipient
	for _, e := range s.emails {
		if e.Status != types.DiscoveryValidated || e.QueueStatus != types.QueueQueued || attempted[e.ID] {
			continue
		}
		p := s.people[e.PersonID]
		c := s.companies[e.CompanyID]
		out = append(out, db.Recipient{
			EmailID:         e.ID,
			Address:         e.Address,
			ConfidenceScore: e.ConfidenceScore,
			FullName:        p.FullName,
			Role:            p.Role,
			CompanyName:     c.Name,
			CompanyDomain:   c.Domain,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConfidenceScore != out[j].ConfidenceScore {
			return out[i].ConfidenceScore > out[j].ConfidenceScore
		}
		return out[i].Address < out[j].Address
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) GetDomainCooldowns(_ context.Context, domains []string) (map[string]db.DomainCooldown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]db.DomainCooldown)
	for _, d := range domains {
		if c, ok := s.cooldowns[d]; ok {
			out[d] = c
		}
	}
	return out, nil
}

func (s *memStore) CreateSendBatch(_ context.Context, campaignID uuid.UUID, total int) (*db.SendBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &db.SendBatch{ID: uuid.New(), CampaignID: campaignID, Status: types.BatchRunning, Total: total, CreatedAt: time.Now()}
	s.batches[b.ID] = b
	cp := *b
	return &cp, nil
}

func (s *memStore) GetSendBatch(_ context.Context, id uuid.UUID) (*db.SendBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) ListSendBatches(_ context.Context, campaignID uuid.UUID, limit int) ([]db.SendBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.SendBatch
	for _, b := range s.batches {
		if b.CampaignID == campaignID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

func (s *memStore) UpdateSendBatchProgress(_ context.Context, id uuid.UUID, currentIndex, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.batches[id]; b.Status == types.BatchRunning {
		b.CurrentIndex = currentIndex
		if total > 0 {
			b.Progress = max(b.Progress, currentIndex*100/total)
		}
	}
	return nil
}

func (s *memStore) FinishSendBatch(_ context.Context, id uuid.UUID, status types.BatchStatus, stats *types.BatchStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.batches[id]
	b.Status = status
	b.Sent, b.Failed, b.Bounced = stats.Sent, stats.Failed, stats.Bounced
	b.CurrentIndex = stats.Attempted
	if status == types.BatchCompleted {
		b.Progress = 100
	}
	return nil
}

func (s *memStore) RecordSend(_ context.Context, l *db.SendLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = uuid.New()
	l.BodyPreview = db.Preview(l.BodyPreview)
	s.logs = append(s.logs, *l)
	return nil
}

func (s *memStore) ClaimRecipient(_ context.Context, emailID uuid.UUID, domain string, at time.Time, cooldownDays int) (*db.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cooldowns[domain]
	if ok && c.InCooldown(at) {
		return nil, nil
	}
	e, found := s.emails[emailID]
	if !found || e.QueueStatus != types.QueueQueued {
		return nil, nil
	}
	e.QueueStatus = types.QueueNone

	claim := &db.Claim{EmailID: emailID, Domain: domain}
	if ok {
		prev := c
		claim.Previous = &prev
	}
	c.Domain = domain
	if at.After(c.LastContacted) {
		c.LastContacted = at
	}
	c.CooldownDays = cooldownDays
	c.ContactCount++
	s.cooldowns[domain] = c
	return claim, nil
}

func (s *memStore) ReleaseClaim(_ context.Context, c *db.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.emails[c.EmailID]; ok && e.Status == types.DiscoveryValidated {
		e.QueueStatus = types.QueueQueued
	}
	if c.Previous == nil {
		delete(s.cooldowns, c.Domain)
	} else {
		s.cooldowns[c.Domain] = *c.Previous
	}
	return nil
}

// Listings

func (s *memStore) ListCompanies(_ context.Context, limit, offset int) ([]db.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, limit, offset), nil
}

func (s *memStore) ListPeopleByCompany(_ context.Context, companyID uuid.UUID) ([]db.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Person
	for _, p := range s.people {
		if p.CompanyID == companyID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (s *memStore) ListEmails(_ context.Context, f db.EmailFilters) ([]db.EmailCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.EmailCandidate
	for _, e := range s.emails {
		if f.CompanyID != nil && e.CompanyID != *f.CompanyID {
			continue
		}
		if f.ScanJobID != nil && (e.ScanJobID == nil || *e.ScanJobID != *f.ScanJobID) {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.QueueStatus != "" && e.QueueStatus != f.QueueStatus {
			continue
		}
		out = append(out, *e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ConfidenceScore > out[j].ConfidenceScore })
	return page(out, f.Limit, f.Offset), nil
}

func (s *memStore) ListScanJobs(_ context.Context, companyID uuid.UUID, limit int) ([]db.ScanJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.ScanJob
	for _, j := range s.jobs {
		if j.CompanyID == companyID {
			out = append(out, *j)
		}
	}
	return page(out, limit, 0), nil
}

func (s *memStore) ListCampaigns(_ context.Context, limit int) ([]db.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, limit, 0), nil
}

func (s *memStore) ListSendLogs(_ context.Context, campaignID uuid.UUID, limit int) ([]db.SendLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.SendLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].CampaignID == campaignID {
			out = append(out, s.logs[i])
		}
	}
	return page(out, limit, 0), nil
}

func (s *memStore) Overview(context.Context) (*types.Overview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &types.Overview{Companies: len(s.companies)}
	for _, e := range s.emails {
		o.Emails.Total++
		switch {
		case e.Status == types.DiscoveryDiscovered:
			o.Emails.Discovered++
		case e.Status == types.DiscoveryValidated:
			o.Emails.Validated++
		case e.Status.IsRejected():
			o.Emails.Rejected++
		}
		if e.QueueStatus == types.QueueQueued {
			o.Emails.Queued++
		}
	}
	for _, c := range s.campaigns {
		o.Campaigns.Total++
		if c.Status == types.CampaignActive {
			o.Campaigns.Active++
		}
	}
	for _, l := range s.logs {
		if l.Status == types.SendSent {
			o.TotalSent++
		}
	}
	return o, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
