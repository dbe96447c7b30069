// Package server provides the HTTP REST API over the outreach job-control service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/logging"
	"github.com/jonathan/outreach-agent/internal/server/middleware"
	"github.com/jonathan/outreach-agent/internal/server/ratelimit"
	"github.com/jonathan/outreach-agent/internal/types"
	"go.uber.org/zap"
)

// Service is the job-control surface the server exposes. *outreach.Service implements it.
type Service interface {
	AddCompany(ctx context.Context, name, website string) (*db.Company, error)
	ListCompanies(ctx context.Context, limit, offset int) ([]db.Company, error)
	ListPeople(ctx context.Context, companyID uuid.UUID) ([]db.Person, error)
	ListEmails(ctx context.Context, filters db.EmailFilters) ([]db.EmailCandidate, error)

	StartScan(ctx context.Context, companyID uuid.UUID, config *types.ScanConfig) (uuid.UUID, error)
	GetScanStatus(ctx context.Context, scanJobID uuid.UUID) (*types.ScanStatusView, error)
	ListScanJobs(ctx context.Context, companyID uuid.UUID, limit int) ([]types.ScanStatusView, error)
	Revalidate(ctx context.Context, companyID uuid.UUID, config *types.ScanConfig) (*types.ScanCounters, error)

	AddEmail(ctx context.Context, req *types.AddEmailRequest) (*db.EmailCandidate, error)
	VerifyEmail(ctx context.Context, emailID uuid.UUID, checkSMTP bool) (*types.VerifyResult, error)
	VerifyEmails(ctx context.Context, req *types.VerifyEmailsRequest) (*types.VerifySummary, error)
	QueueEmails(ctx context.Context, emailIDs []uuid.UUID) (*types.QueueEmailsResponse, error)
	ResetQueue(ctx context.Context) (*types.ResetQueueResponse, error)
	Overview(ctx context.Context) (*types.Overview, error)

	CreateCampaign(ctx context.Context, input *db.CampaignInput) (*db.Campaign, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*db.Campaign, error)
	ListCampaigns(ctx context.Context, limit int) ([]db.Campaign, error)
	ApplyCampaignAction(ctx context.Context, id uuid.UUID, action types.CampaignAction) (*db.Campaign, error)
	SendCampaignBatch(ctx context.Context, campaignID uuid.UUID, dailyLimit int) (*types.BatchStats, error)
	SendCampaignBatchWithDelay(ctx context.Context, campaignID uuid.UUID, dailyLimit int, delay time.Duration) (*types.BatchStats, error)
	GetSendBatch(ctx context.Context, id uuid.UUID) (*db.SendBatch, error)
	ListSendBatches(ctx context.Context, campaignID uuid.UUID, limit int) ([]db.SendBatch, error)
	ListSendLogs(ctx context.Context, campaignID uuid.UUID, limit int) ([]db.SendLog, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Addr      string
	APIKey    string            // Empty disables authentication
	RateLimit *ratelimit.Config // Nil uses ratelimit defaults
	Health    Pinger            // Optional readiness check behind /health
	Logger    *zap.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	service     Service
	health      Pinger
	logger      *zap.Logger
	rateLimiter *ratelimit.Limiter
}

// New creates a new server instance
func New(cfg Config, service Service) (*Server, error) {
	if service == nil {
		return nil, errors.New("server: service is required")
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		service:     service,
		health:      cfg.Health,
		logger:      logging.OrNop(cfg.Logger).Named("http"),
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Companies and discovery results
	mux.HandleFunc("POST /companies", s.handleAddCompany)
	mux.HandleFunc("GET /companies", s.handleListCompanies)
	mux.HandleFunc("GET /companies/{id}/people", s.handleListPeople)
	mux.HandleFunc("GET /companies/{id}/emails", s.handleListCompanyEmails)
	mux.HandleFunc("GET /companies/{id}/scans", s.handleListScans)
	mux.HandleFunc("POST /companies/{id}/revalidate", s.handleRevalidate)

	// Scan jobs
	mux.HandleFunc("POST /scans", s.handleStartScan)
	mux.HandleFunc("GET /scans/{id}", s.handleGetScan)

	// Manual entry and verification
	mux.HandleFunc("POST /emails", s.handleAddEmail)
	mux.HandleFunc("POST /emails/verify", s.handleVerifyEmails)
	mux.HandleFunc("POST /emails/{id}/verify", s.handleVerifyEmail)

	// Send queue
	mux.HandleFunc("POST /emails/queue", s.handleQueueEmails)
	mux.HandleFunc("POST /emails/queue/reset", s.handleResetQueue)

	// Campaigns
	mux.HandleFunc("POST /campaigns", s.handleCreateCampaign)
	mux.HandleFunc("GET /campaigns", s.handleListCampaigns)
	mux.HandleFunc("GET /campaigns/{id}", s.handleGetCampaign)
	mux.HandleFunc("GET /campaigns/{id}/logs", s.handleListSendLogs)
	mux.HandleFunc("GET /campaigns/{id}/batches", s.handleListBatches)
	mux.HandleFunc("POST /campaigns/{id}/send", s.handleSendBatch)
	mux.HandleFunc("POST /campaigns/{id}/{action}", s.handleCampaignAction)
	mux.HandleFunc("GET /batches/{id}", s.handleGetBatch)

	mux.HandleFunc("GET /stats/overview", s.handleOverview)

	handler := s.withRateLimit(middleware.APIKey(cfg.APIKey)(mux))
	handler = middleware.RequestID(middleware.Logger(s.logger)(handler))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute, // A send batch runs inside the request
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.rateLimiter.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(extractClientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps a service error to its HTTP status. Internal errors are logged and
// not echoed to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r)),
			zap.Error(err),
		)
		s.errorResponse(w, status, "internal error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// extractClientID extracts the client identifier (IP) from RemoteAddr.
func extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}
	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
