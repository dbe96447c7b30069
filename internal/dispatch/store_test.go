package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/types"
)

// memStore is an in-memory Store following the rules of the SQL repository.
type memStore struct {
	mu         sync.Mutex
	campaigns  map[uuid.UUID]*db.Campaign
	recipients []db.Recipient
	queued     map[uuid.UUID]bool
	cooldowns  map[string]db.DomainCooldown
	batches    map[uuid.UUID]*db.SendBatch
	logs       []db.SendLog
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[uuid.UUID]*db.Campaign),
		queued:    make(map[uuid.UUID]bool),
		cooldowns: make(map[string]db.DomainCooldown),
		batches:   make(map[uuid.UUID]*db.SendBatch),
	}
}

func (s *memStore) addCampaign(status types.CampaignStatus, dailyLimit int) *db.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &db.Campaign{
		ID:              uuid.New(),
		Name:            "spring outreach",
		SubjectTemplate: "Quick question for {{ company }}",
		BodyTemplate:    "Hi {{ name | default: \"there\" }},\n\nI noticed {{ company | possessive }} team is growing.",
		FromEmail:       "me@sender.test",
		FromName:        "Sam Sender",
		DailyLimit:      dailyLimit,
		CooldownDays:    7,
		Status:          status,
	}
	s.campaigns[c.ID] = c
	return c
}

func (s *memStore) addRecipient(addr, fullName, company, domain string, score float64) db.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := db.Recipient{
		EmailID:         uuid.New(),
		Address:         addr,
		ConfidenceScore: score,
		FullName:        fullName,
		Role:            "CEO",
		CompanyName:     company,
		CompanyDomain:   domain,
	}
	s.recipients = append(s.recipients, r)
	s.queued[r.EmailID] = true
	return r
}

func (s *memStore) setCooldown(domain string, last time.Time, days int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[domain] = db.DomainCooldown{Domain: domain, LastContacted: last, CooldownDays: days, ContactCount: 1}
}

func (s *memStore) addLog(l db.SendLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
}

func (s *memStore) sendLogs() []db.SendLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]db.SendLog(nil), s.logs...)
}

func (s *memStore) isQueued(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued[id]
}

func (s *memStore) cooldown(domain string) (db.DomainCooldown, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cooldowns[domain]
	return c, ok
}

func (s *memStore) batch(id uuid.UUID) *db.SendBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := *s.batches[id]
	return &b
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
	for _, r := range s.recipients {
		if s.queued[r.EmailID] && !attempted[r.EmailID] {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ConfidenceScore > out[j].ConfidenceScore })
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
	b := &db.SendBatch{ID: uuid.New(), CampaignID: campaignID, Status: types.BatchRunning, Total: total}
	s.batches[b.ID] = b
	cp := *b
	return &cp, nil
}

func (s *memStore) UpdateSendBatchProgress(_ context.Context, id uuid.UUID, currentIndex, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.batches[id]
	if b.Status != types.BatchRunning {
		return nil
	}
	b.CurrentIndex = currentIndex
	progress := 100
	if total > 0 {
		progress = currentIndex * 100 / total
	}
	if progress > b.Progress {
		b.Progress = progress
	}
	return nil
}

func (s *memStore) FinishSendBatch(_ context.Context, id uuid.UUID, status types.BatchStatus, stats *types.BatchStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.batches[id]
	if b.Status != types.BatchPending && b.Status != types.BatchRunning {
		return nil
	}
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
	if !s.queued[emailID] {
		return nil, nil
	}
	s.queued[emailID] = false

	claim := &db.Claim{EmailID: emailID, Domain: domain}
	if ok {
		prev := c
		claim.Previous = &prev
		if at.After(c.LastContacted) {
			c.LastContacted = at
		}
		c.CooldownDays = cooldownDays
		c.ContactCount++
	} else {
		c = db.DomainCooldown{Domain: domain, LastContacted: at, CooldownDays: cooldownDays, ContactCount: 1}
	}
	s.cooldowns[domain] = c
	return claim, nil
}

func (s *memStore) ReleaseClaim(_ context.Context, c *db.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[c.EmailID] = true
	if c.Previous == nil {
		delete(s.cooldowns, c.Domain)
	} else {
		s.cooldowns[c.Domain] = *c.Previous
	}
	return nil
}

var _ Store = (*memStore)(nil)
