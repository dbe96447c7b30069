package scan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/types"
)

// memStore is an in-memory Store mirroring the state rules of the SQL repository.
type memStore struct {
	mu        sync.Mutex
	companies map[uuid.UUID]*db.Company
	jobs      map[uuid.UUID]*db.ScanJob
	people    map[string]*db.Person
	emails    map[string]*db.EmailCandidate
	roles     map[uuid.UUID]string

	progress  []int
	upsertErr error
}

func newMemStore() *memStore {
	return &memStore{
		companies: make(map[uuid.UUID]*db.Company),
		jobs:      make(map[uuid.UUID]*db.ScanJob),
		people:    make(map[string]*db.Person),
		emails:    make(map[string]*db.EmailCandidate),
		roles:     make(map[uuid.UUID]string),
	}
}

func (s *memStore) addCompany(domain, website string) *db.Company {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &db.Company{ID: uuid.New(), Name: domain, Domain: domain}
	if website != "" {
		c.Website = &website
	}
	s.companies[c.ID] = c
	return c
}

func (s *memStore) email(addr string) *db.EmailCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emails[addr]
}

func (s *memStore) job(id uuid.UUID) *db.ScanJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := *s.jobs[id]
	return &j
}

func (s *memStore) GetCompanyByID(_ context.Context, id uuid.UUID) (*db.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.companies[id], nil
}

func (s *memStore) MarkCompanyScanned(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.companies[id].LastScanned = &now
	return nil
}

func (s *memStore) CreateScanJob(_ context.Context, companyID uuid.UUID, config types.ScanConfig) (*db.ScanJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &db.ScanJob{ID: uuid.New(), CompanyID: companyID, Config: config, Status: types.ScanStatusPending, CurrentStep: "queued"}
	s.jobs[j.ID] = j
	out := *j
	return &out, nil
}

func (s *memStore) GetScanJob(_ context.Context, id uuid.UUID) (*db.ScanJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	out := *j
	return &out, nil
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
	s.progress = append(s.progress, j.Progress)
	return nil
}

func (s *memStore) UpdateScanProgress(_ context.Context, id uuid.UUID, progress int, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	if j.Status != types.ScanStatusRunning {
		return nil
	}
	j.Progress = max(j.Progress, progress)
	j.CurrentStep = step
	s.progress = append(s.progress, j.Progress)
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
	j.Progress = types.ProgressComplete
	j.CurrentStep = "completed"
	j.Counters = c
	s.progress = append(s.progress, j.Progress)
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

func (s *memStore) UpsertPerson(_ context.Context, in *db.PersonInput) (*db.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	key := in.CompanyID.String() + "|" + in.NormalizedName + "|" + in.Role
	p, ok := s.people[key]
	if !ok {
		p = &db.Person{ID: uuid.New(), CompanyID: in.CompanyID, FullName: in.FullName, NormalizedName: in.NormalizedName, Role: in.Role}
		s.people[key] = p
	}
	p.RoleConfidence = max(p.RoleConfidence, in.RoleConfidence)
	p.SourceURL = in.SourceURL
	p.Strategy = in.Strategy
	s.roles[p.ID] = in.Role
	out := *p
	return &out, nil
}

func (s *memStore) InsertEmailCandidate(_ context.Context, e *db.EmailCandidate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr := strings.ToLower(e.Address)
	if _, ok := s.emails[addr]; ok {
		return false, nil
	}
	stored := *e
	stored.ID = uuid.New()
	stored.Address = addr
	stored.Status = types.DiscoveryDiscovered
	stored.QueueStatus = types.QueueNone
	s.emails[addr] = &stored
	e.ID = stored.ID
	e.Status = stored.Status
	return true, nil
}

// evidence assembles the validation evidence of e. Callers hold s.mu.
func (s *memStore) evidence(e *db.EmailCandidate) db.PendingValidation {
	var conf float64
	for _, p := range s.people {
		if p.ID == e.PersonID {
			conf = p.RoleConfidence
		}
	}
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
		Role:           s.roles[e.PersonID],
		RoleConfidence: conf,
	}
}

func (s *memStore) ListPendingValidation(_ context.Context, companyID uuid.UUID, limit int) ([]db.PendingValidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.PendingValidation
	for _, e := range s.emails {
		if e.CompanyID != companyID || e.Status != types.DiscoveryDiscovered {
			continue
		}
		out = append(out, s.evidence(e))
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
	e, ok := s.emails[strings.ToLower(address)]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) GetValidationEvidence(_ context.Context, id uuid.UUID) (*db.PendingValidation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.emails {
		if e.ID == id {
			p := s.evidence(e)
			return &p, nil
		}
	}
	return nil, nil
}

func (s *memStore) RefreshVerification(_ context.Context, id uuid.UUID, u *db.ValidationUpdate, dequeue bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.emails {
		if e.ID != id {
			continue
		}
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

func (s *memStore) setQueued(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails[addr].QueueStatus = types.QueueQueued
}

func (s *memStore) ApplyValidation(_ context.Context, id uuid.UUID, u *db.ValidationUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.emails {
		if e.ID != id {
			continue
		}
		if e.Status != types.DiscoveryDiscovered {
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
	return false, nil
}

var _ Store = (*memStore)(nil)
