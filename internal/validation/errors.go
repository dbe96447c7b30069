package validation

import "fmt"

// LookupError represents a DNS lookup that failed for a reason other than the domain
// having no records.
type LookupError struct {
	Domain string
	Cause  error
}

func (e *LookupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("MX lookup error for %s: %v", e.Domain, e.Cause)
	}
	return fmt.Sprintf("MX lookup error for %s", e.Domain)
}

func (e *LookupError) Unwrap() error {
	return e.Cause
}

// ProbeError represents an SMTP probe that could not reach a verdict.
type ProbeError struct {
	Host    string
	Message string
	Cause   error
}

func (e *ProbeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("SMTP probe error: %s (%s): %v", e.Message, e.Host, e.Cause)
	}
	return fmt.Sprintf("SMTP probe error: %s (%s)", e.Message, e.Host)
}

func (e *ProbeError) Unwrap() error {
	return e.Cause
}
