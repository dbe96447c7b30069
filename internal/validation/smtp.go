package validation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/jonathan/outreach-agent/internal/emailaddr"
)

// DefaultProbeTimeout bounds a whole SMTP probe conversation.
const DefaultProbeTimeout = 10 * time.Second

// Verdict is the outcome of an SMTP mailbox probe.
type Verdict string

// Verdict constants
const (
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
	VerdictUnknown  Verdict = "unknown"
)

// Prober checks whether a mailbox exists.
type Prober interface {
	Probe(ctx context.Context, addr string) (Verdict, error)
}

// ProberOptions configures an SMTPProber.
type ProberOptions struct {
	HeloName string
	From     string
	Port     string
	Timeout  time.Duration
}

// SMTPProber asks the domain's primary MX host whether it accepts RCPT for an address.
// No message is ever sent.
type SMTPProber struct {
	resolver Resolver
	opts     ProberOptions
	dialer   net.Dialer
}

// NewSMTPProber creates an SMTPProber. A nil resolver uses net.DefaultResolver.
func NewSMTPProber(resolver Resolver, opts ProberOptions) *SMTPProber {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if opts.HeloName == "" {
		opts.HeloName = "localhost"
	}
	if opts.From == "" {
		opts.From = "verify@" + opts.HeloName
	}
	if opts.Port == "" {
		opts.Port = "25"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultProbeTimeout
	}
	return &SMTPProber{resolver: resolver, opts: opts}
}

// Probe returns VerdictRejected only for a definitive permanent mailbox rejection.
// Anything inconclusive is VerdictUnknown with a *ProbeError.
func (p *SMTPProber) Probe(ctx context.Context, addr string) (Verdict, error) {
	domain := emailaddr.Domain(addr)
	if domain == "" {
		return VerdictUnknown, &ProbeError{Message: "invalid address"}
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	records, err := p.resolver.LookupMX(ctx, domain)
	if err != nil || len(records) == 0 {
		return VerdictUnknown, &ProbeError{Host: domain, Message: "no MX host to probe", Cause: err}
	}
	host := strings.TrimSuffix(records[0].Host, ".")

	conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, p.opts.Port))
	if err != nil {
		return VerdictUnknown, &ProbeError{Host: host, Message: "connect failed", Cause: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return VerdictUnknown, &ProbeError{Host: host, Message: "greeting failed", Cause: err}
	}
	defer func() { _ = client.Close() }()

	if err := client.Hello(p.opts.HeloName); err != nil {
		return VerdictUnknown, &ProbeError{Host: host, Message: "HELO failed", Cause: err}
	}
	if err := client.Mail(p.opts.From); err != nil {
		return VerdictUnknown, &ProbeError{Host: host, Message: "MAIL FROM refused", Cause: err}
	}

	err = client.Rcpt(addr)
	_ = client.Quit()
	if err == nil {
		return VerdictAccepted, nil
	}
	if IsMailboxRejection(err) {
		return VerdictRejected, nil
	}
	return VerdictUnknown, &ProbeError{Host: host, Message: fmt.Sprintf("RCPT inconclusive for %s", domain), Cause: err}
}

// IsMailboxRejection reports whether err is a permanent SMTP reply meaning the mailbox
// does not exist (550, 551, 553).
func IsMailboxRejection(err error) bool {
	var tpErr *textproto.Error
	if !errors.As(err, &tpErr) {
		return false
	}
	switch tpErr.Code {
	case 550, 551, 553:
		return true
	}
	return false
}
