package dispatch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/jonathan/outreach-agent/internal/types"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, m *Message) error
}

// ErrorKind classifies a failed delivery.
type ErrorKind string

// ErrorKind constants
const (
	// KindBounced means the recipient was refused.
	KindBounced ErrorKind = "bounced"
	// KindFailed covers connection, authentication and every other failure.
	KindFailed ErrorKind = "failed"
)

// SendError is a failed delivery attempt.
type SendError struct {
	Kind  ErrorKind
	Stage string
	Cause error
}

func (e *SendError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("send %s at %s: %v", e.Kind, e.Stage, e.Cause)
	}
	return fmt.Sprintf("send %s: %v", e.Kind, e.Cause)
}

func (e *SendError) Unwrap() error {
	return e.Cause
}

// Classify maps a Send result to the logged outcome. Errors that are not a *SendError
// count as FAILED.
func Classify(err error) types.SendStatus {
	if err == nil {
		return types.SendSent
	}
	var sendErr *SendError
	if errors.As(err, &sendErr) && sendErr.Kind == KindBounced {
		return types.SendBounced
	}
	return types.SendFailed
}

// DefaultSMTPTimeout bounds one SMTP session.
const DefaultSMTPTimeout = 30 * time.Second

// SMTPConfig configures an SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// RequireTLS fails the send when the server does not offer STARTTLS.
	RequireTLS bool
	Timeout    time.Duration
}

// SMTPSender submits messages to a relay with STARTTLS and PLAIN authentication.
type SMTPSender struct {
	cfg       SMTPConfig
	tlsConfig *tls.Config
	now       func() time.Time
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}
	return &SMTPSender{
		cfg:       cfg,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		now:       time.Now,
	}
}

// Send runs one SMTP transaction. A 5xx reply to RCPT is a bounce; everything else that
// goes wrong is a failure.
func (s *SMTPSender) Send(ctx context.Context, m *Message) error {
	raw, err := BuildMIME(m, s.now())
	if err != nil {
		return &SendError{Kind: KindFailed, Stage: "compose", Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &SendError{Kind: KindFailed, Stage: "connect", Cause: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return &SendError{Kind: KindFailed, Stage: "greeting", Cause: err}
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(s.tlsConfig); err != nil {
			return &SendError{Kind: KindFailed, Stage: "starttls", Cause: err}
		}
	} else if s.cfg.RequireTLS {
		return &SendError{Kind: KindFailed, Stage: "starttls", Cause: errors.New("server does not support STARTTLS")}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return &SendError{Kind: KindFailed, Stage: "auth", Cause: err}
		}
	}

	if err := client.Mail(m.FromEmail); err != nil {
		return &SendError{Kind: KindFailed, Stage: "mail", Cause: err}
	}
	if err := client.Rcpt(m.To); err != nil {
		kind := KindFailed
		if isPermanent(err) {
			kind = KindBounced
		}
		return &SendError{Kind: kind, Stage: "rcpt", Cause: err}
	}

	w, err := client.Data()
	if err != nil {
		return &SendError{Kind: KindFailed, Stage: "data", Cause: err}
	}
	if _, err := w.Write(raw); err != nil {
		return &SendError{Kind: KindFailed, Stage: "data", Cause: err}
	}
	if err := w.Close(); err != nil {
		return &SendError{Kind: KindFailed, Stage: "data", Cause: err}
	}
	_ = client.Quit()
	return nil
}

func isPermanent(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code >= 500 && tpErr.Code < 600
}
