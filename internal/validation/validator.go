// Package validation gates discovered email addresses and scores the survivors.
//
// Gates run in a fixed order and the first failure decides the outcome: format, blocked
// prefix, company domain, free-mail and government/education TLDs, disposable domains,
// MX records, and an optional SMTP mailbox probe. Addresses that pass every gate are
// scored and accepted only when their quality score reaches the policy minimum.
package validation

import (
	"context"
	"fmt"

	"github.com/jonathan/outreach-agent/internal/emailaddr"
	"github.com/jonathan/outreach-agent/internal/logging"
	"github.com/jonathan/outreach-agent/internal/roles"
	"github.com/jonathan/outreach-agent/internal/types"
	"go.uber.org/zap"
)

// Reason identifies the gate that rejected an address.
type Reason string

// Reason constants
const (
	ReasonNone           Reason = ""
	ReasonRoleRejected   Reason = "role_not_decision_maker"
	ReasonInvalidFormat  Reason = "invalid_format"
	ReasonBlockedPrefix  Reason = "blocked_prefix"
	ReasonDomainMismatch Reason = "domain_mismatch"
	ReasonFreeMail       Reason = "free_mail_domain"
	ReasonBlockedTLD     Reason = "blocked_tld"
	ReasonDisposable     Reason = "disposable_domain"
	ReasonNoMX           Reason = "no_mx_records"
	ReasonSMTPRejected   Reason = "smtp_rejected"
	ReasonLowQuality     Reason = "low_quality"
)

// Status maps a rejection reason to the discovery status it produces.
func (r Reason) Status() types.DiscoveryStatus {
	switch r {
	case ReasonNone:
		return types.DiscoveryValidated
	case ReasonRoleRejected:
		return types.DiscoveryRejectedRole
	case ReasonDomainMismatch, ReasonFreeMail, ReasonBlockedTLD:
		return types.DiscoveryRejectedDomain
	default:
		return types.DiscoveryRejectedQuality
	}
}

// Policy holds the tunable decisions of the validator.
type Policy struct {
	// AssumeValidOnLookupError treats an MX lookup or SMTP probe that could not reach an
	// answer as a pass. A definitive "no records" or mailbox rejection always fails.
	AssumeValidOnLookupError bool
	MinQualityScore          int
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{AssumeValidOnLookupError: true, MinQualityScore: DefaultMinQualityScore}
}

// Input is one address to validate together with the evidence behind it. Role is the
// canonical role of the address owner; an empty Role skips the role gate.
type Input struct {
	Email           string
	CompanyDomain   string
	Role            roles.Role
	RoleConfidence  float64
	Method          types.DiscoveryMethod
	Pattern         emailaddr.Pattern
	PageCredibility float64
	CheckMX         bool
	CheckSMTP       bool
}

// Result is the outcome of Validate. Rejections are results, not errors.
type Result struct {
	Email        string                `json:"email"`
	Status       types.DiscoveryStatus `json:"status"`
	Reason       Reason                `json:"reason,omitempty"`
	Message      string                `json:"message,omitempty"`
	DomainMatch  bool                  `json:"domain_match"`
	MXValid      bool                  `json:"mx_valid"`
	SMTPValid    bool                  `json:"smtp_valid"`
	IsDisposable bool                  `json:"is_disposable"`
	Degraded     []string              `json:"degraded,omitempty"`
	Confidence   float64               `json:"confidence"`
	Level        types.ConfidenceLevel `json:"level"`
	QualityScore int                   `json:"quality_score"`
}

// Accepted reports whether the address passed every gate.
func (r *Result) Accepted() bool {
	return r.Status == types.DiscoveryValidated
}

func (r *Result) reject(reason Reason, msg string) Result {
	r.Status = reason.Status()
	r.Reason = reason
	r.Message = msg
	return *r
}

// Validator runs the gates.
type Validator struct {
	policy Policy
	mx     MXChecker
	prober Prober
	logger *zap.Logger
}

// NewValidator creates a Validator. mx and prober may be nil, in which case the matching
// checks are skipped even when requested.
func NewValidator(policy Policy, mx MXChecker, prober Prober, logger *zap.Logger) *Validator {
	if policy.MinQualityScore <= 0 {
		policy.MinQualityScore = DefaultMinQualityScore
	}
	return &Validator{policy: policy, mx: mx, prober: prober, logger: logging.OrNop(logger)}
}

// Policy returns the validator's policy.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Validate runs the gates in order and scores the address if it survives them.
func (v *Validator) Validate(ctx context.Context, in Input) Result {
	addr := emailaddr.Normalize(in.Email)
	res := Result{Email: addr, Level: types.ConfidenceLow}

	if in.Role != "" && !roles.Valid(in.Role) {
		return res.reject(ReasonRoleRejected, fmt.Sprintf("%q is not a decision-maker role", in.Role))
	}
	if !emailaddr.IsValidFormat(addr) {
		return res.reject(ReasonInvalidFormat, "address is not a valid email")
	}
	local, domain, _ := emailaddr.Split(addr)

	if emailaddr.IsBlockedPrefix(local) {
		return res.reject(ReasonBlockedPrefix, fmt.Sprintf("generic mailbox %q", local))
	}

	res.DomainMatch = emailaddr.DomainMatches(domain, in.CompanyDomain)
	if !res.DomainMatch {
		return res.reject(ReasonDomainMismatch, fmt.Sprintf("%s is not %s", domain, emailaddr.NormalizeDomain(in.CompanyDomain)))
	}
	if emailaddr.IsFreeMail(domain) {
		return res.reject(ReasonFreeMail, "free mail provider")
	}
	if emailaddr.HasBlockedTLD(domain) {
		return res.reject(ReasonBlockedTLD, "government, education or military domain")
	}
	if emailaddr.IsDisposable(domain) {
		res.IsDisposable = true
		return res.reject(ReasonDisposable, "disposable mail provider")
	}

	if in.CheckMX && v.mx != nil {
		ok, err := v.mx.HasMX(ctx, domain)
		switch {
		case err != nil:
			v.logger.Warn("MX lookup failed", zap.String("domain", domain), zap.Error(err))
			res.Degraded = append(res.Degraded, "mx: "+err.Error())
			if !v.policy.AssumeValidOnLookupError {
				return res.reject(ReasonNoMX, "MX lookup failed")
			}
			res.MXValid = true
		case !ok:
			return res.reject(ReasonNoMX, "domain has no MX records")
		default:
			res.MXValid = true
		}
	}

	if in.CheckSMTP && v.prober != nil {
		verdict, err := v.prober.Probe(ctx, addr)
		switch verdict {
		case VerdictRejected:
			return res.reject(ReasonSMTPRejected, "mailbox rejected by mail server")
		case VerdictAccepted:
			res.SMTPValid = true
		default:
			if err != nil {
				v.logger.Debug("SMTP probe inconclusive", logging.Email("email", addr), zap.Error(err))
				res.Degraded = append(res.Degraded, "smtp: "+err.Error())
			}
			if !v.policy.AssumeValidOnLookupError {
				return res.reject(ReasonSMTPRejected, "SMTP probe inconclusive")
			}
			res.SMTPValid = true
		}
	}

	res.Confidence = Score(Factors{
		DomainMatch:     res.DomainMatch,
		RoleConfidence:  in.RoleConfidence,
		Method:          in.Method,
		Pattern:         in.Pattern,
		PageCredibility: in.PageCredibility,
		MXValid:         res.MXValid,
	})
	res.Level = Level(res.Confidence)
	res.QualityScore = QualityScore(res.Confidence)

	if res.QualityScore < v.policy.MinQualityScore {
		return res.reject(ReasonLowQuality, fmt.Sprintf("quality score %d below %d", res.QualityScore, v.policy.MinQualityScore))
	}
	res.Status = types.DiscoveryValidated
	return res
}
