package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/crawling"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/discovery"
	"github.com/jonathan/outreach-agent/internal/emailaddr"
	"github.com/jonathan/outreach-agent/internal/logging"
	"github.com/jonathan/outreach-agent/internal/people"
	"github.com/jonathan/outreach-agent/internal/roles"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/jonathan/outreach-agent/internal/validation"
	"go.uber.org/zap"
)

// manualStrategy marks people entered together with a manual address.
const manualStrategy = "manual"

func validationInput(p db.PendingValidation, checkMX, checkSMTP bool) validation.Input {
	credibility := crawling.PageCredibility(p.SourceURL)
	if p.Method == types.MethodManual {
		credibility = 1
	}
	return validation.Input{
		Email:           p.Address,
		CompanyDomain:   p.CompanyDomain,
		Role:            roles.Role(p.Role),
		RoleConfidence:  p.RoleConfidence,
		Method:          p.Method,
		Pattern:         emailaddr.Pattern(p.Pattern),
		PageCredibility: credibility,
		CheckMX:         checkMX,
		CheckSMTP:       checkSMTP,
	}
}

func validationUpdate(res validation.Result) *db.ValidationUpdate {
	return &db.ValidationUpdate{
		Status:          res.Status,
		RejectionReason: string(res.Reason),
		ConfidenceScore: res.Confidence,
		ConfidenceLevel: res.Level,
		QualityScore:    res.QualityScore,
		MXValid:         res.MXValid,
		SMTPValid:       res.SMTPValid,
		IsDisposable:    res.IsDisposable,
	}
}

// AddManual stores an address entered by an operator for a person of a registered
// company. The role must name a decision maker and the address must pass validation
// with MX checking; nothing is stored otherwise.
func (m *Manager) AddManual(ctx context.Context, req *types.AddEmailRequest) (*db.EmailCandidate, error) {
	company, err := m.store.GetCompanyByID(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("company %s: %w", req.CompanyID, ErrNotFound)
	}
	role, ok := roles.Normalize(req.Role)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRoleNotAllowed, req.Role)
	}

	addr := emailaddr.Normalize(req.Email)
	existing, err := m.store.GetEmailByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, addr)
	}

	name := people.CleanName(req.FullName)
	pattern := emailaddr.PatternOther
	if local, _, ok := emailaddr.Split(addr); ok {
		first, last := discovery.SplitName(name)
		pattern = emailaddr.ClassifyLocalPart(local, first, last)
	}
	evidence := db.PendingValidation{
		Address:        addr,
		CompanyID:      company.ID,
		CompanyDomain:  company.Domain,
		Method:         types.MethodManual,
		Pattern:        string(pattern),
		Role:           string(role),
		RoleConfidence: 1,
	}
	res := m.validator.Validate(ctx, validationInput(evidence, true, req.CheckSMTP))
	if !res.Accepted() {
		return nil, fmt.Errorf("%w: %s", ErrEmailRejected, res.Message)
	}

	person, err := m.store.UpsertPerson(ctx, &db.PersonInput{
		CompanyID:      company.ID,
		FullName:       name,
		NormalizedName: people.NormalizeName(name),
		Role:           string(role),
		RoleConfidence: 1,
		Strategy:       manualStrategy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save person: %w", err)
	}
	email := &db.EmailCandidate{
		Address:    addr,
		PersonID:   person.ID,
		CompanyID:  company.ID,
		Method:     types.MethodManual,
		Pattern:    string(pattern),
		SourceType: db.SourceTypeManual,
	}
	inserted, err := m.store.InsertEmailCandidate(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to save email: %w", err)
	}
	if !inserted {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, addr)
	}

	update := validationUpdate(res)
	if _, err := m.store.ApplyValidation(ctx, email.ID, update); err != nil {
		return nil, fmt.Errorf("failed to store validation: %w", err)
	}
	email.Status = update.Status
	email.ConfidenceScore = update.ConfidenceScore
	email.ConfidenceLevel = update.ConfidenceLevel
	email.QualityScore = update.QualityScore
	email.MXValid = update.MXValid
	email.SMTPValid = update.SMTPValid
	email.IsDisposable = update.IsDisposable

	m.logger.Info("manual email added",
		zap.String("company_id", company.ID.String()),
		logging.Email("email", addr),
		zap.Float64("confidence", res.Confidence),
	)
	return email, nil
}

// Verify runs the validation gates again for one stored candidate, with MX checking on.
// A DISCOVERED candidate takes the outcome as its status. Validated and rejected
// candidates keep their status and only have their check results refreshed; a queued
// candidate that no longer passes is taken off the send queue.
func (m *Manager) Verify(ctx context.Context, emailID uuid.UUID, checkSMTP bool) (*types.VerifyResult, error) {
	p, err := m.store.GetValidationEvidence(ctx, emailID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("email %s: %w", emailID, ErrNotFound)
	}

	res := m.validator.Validate(ctx, validationInput(*p, true, checkSMTP))
	out := &types.VerifyResult{
		EmailID:      p.EmailID,
		Email:        p.Address,
		Status:       p.Status,
		Passed:       res.Accepted(),
		Reason:       string(res.Reason),
		Confidence:   res.Confidence,
		QualityScore: res.QualityScore,
		MXValid:      res.MXValid,
		SMTPValid:    res.SMTPValid,
	}

	update := validationUpdate(res)
	if p.Status == types.DiscoveryDiscovered {
		changed, err := m.store.ApplyValidation(ctx, p.EmailID, update)
		if err != nil {
			return nil, fmt.Errorf("failed to store validation: %w", err)
		}
		if changed {
			out.Status = res.Status
		}
	} else {
		out.Unqueued = !res.Accepted() && p.QueueStatus == types.QueueQueued
		if err := m.store.RefreshVerification(ctx, p.EmailID, update, out.Unqueued); err != nil {
			return nil, err
		}
	}

	m.logger.Debug("email verified",
		logging.Email("email", p.Address),
		zap.Bool("passed", out.Passed),
		zap.String("reason", out.Reason),
		zap.Bool("unqueued", out.Unqueued),
	)
	return out, nil
}

// VerifyMany verifies each listed candidate in turn. Unknown IDs are reported as
// missing; ErrNotFound is returned only when none of them exist.
func (m *Manager) VerifyMany(ctx context.Context, emailIDs []uuid.UUID, checkSMTP bool) (*types.VerifySummary, error) {
	summary := &types.VerifySummary{Requested: len(emailIDs), Results: []types.VerifyResult{}}
	for _, id := range emailIDs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, err := m.Verify(ctx, id, checkSMTP)
		switch {
		case errors.Is(err, ErrNotFound):
			summary.Missing = append(summary.Missing, id)
			continue
		case err != nil:
			return summary, err
		}
		summary.Verified++
		if res.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
		summary.Results = append(summary.Results, *res)
	}
	if summary.Verified == 0 && len(emailIDs) > 0 {
		return summary, fmt.Errorf("no listed email exists: %w", ErrNotFound)
	}
	m.logger.Info("bulk verification finished",
		zap.Int("verified", summary.Verified),
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Int("missing", len(summary.Missing)),
	)
	return summary, nil
}
