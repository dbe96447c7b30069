package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/types"
)

// maxBodyBytes caps request payloads.
const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched when
// optional is set.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}

// pathID parses a UUID path parameter.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: name, Message: "invalid UUID"}
	}
	return id, nil
}

// parseQueryInt parses an integer query parameter with default and max values
func parseQueryInt(r *http.Request, key string, defaultValue, maxValue int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val < 0 {
		return defaultValue
	}
	if maxValue > 0 && val > maxValue {
		return maxValue
	}
	return val
}

// addCompanyRequest is the payload for registering a company.
type addCompanyRequest struct {
	Name    string `json:"name"`
	Website string `json:"website"`
}

// handleAddCompany registers a company by website
func (s *Server) handleAddCompany(w http.ResponseWriter, r *http.Request) {
	var req addCompanyRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	company, err := s.service.AddCompany(r.Context(), req.Name, req.Website)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, company)
}

// handleListCompanies lists registered companies
func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	limit := parseQueryInt(r, "limit", 50, 500)
	offset := parseQueryInt(r, "offset", 0, 0)

	companies, err := s.service.ListCompanies(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"companies": companies,
		"count":     len(companies),
		"limit":     limit,
		"offset":    offset,
	})
}

// handleListPeople lists the decision makers found for a company
func (s *Server) handleListPeople(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	people, err := s.service.ListPeople(r.Context(), companyID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"people": people,
		"count":  len(people),
	})
}

// handleListCompanyEmails lists a company's email candidates, optionally filtered by
// ?status= and ?queue_status=
func (s *Server) handleListCompanyEmails(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	filters := db.EmailFilters{
		CompanyID:   &companyID,
		Status:      types.DiscoveryStatus(q.Get("status")),
		QueueStatus: types.QueueStatus(q.Get("queue_status")),
		Limit:       parseQueryInt(r, "limit", 100, 500),
		Offset:      parseQueryInt(r, "offset", 0, 0),
	}
	emails, err := s.service.ListEmails(r.Context(), filters)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"emails": emails,
		"count":  len(emails),
	})
}

// handleListScans lists a company's recent scan jobs
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	scans, err := s.service.ListScanJobs(r.Context(), companyID, parseQueryInt(r, "limit", 20, 100))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"scans": scans,
		"count": len(scans),
	})
}

// revalidateRequest is the optional payload for re-validation.
type revalidateRequest struct {
	Config *types.ScanConfig `json:"config,omitempty"`
}

// handleRevalidate re-runs validation over a company's DISCOVERED candidates
func (s *Server) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	companyID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req revalidateRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	counters, err := s.service.Revalidate(r.Context(), companyID, req.Config)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, counters)
}

// handleStartScan queues a scan job and answers with its ID
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req types.StartScanRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, &ErrValidation{Field: "company_id", Message: err.Error()})
		return
	}

	jobID, err := s.service.StartScan(r.Context(), req.CompanyID, req.Config)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/scans/"+jobID.String())
	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"scan_job_id": jobID,
		"status":      types.ScanStatusPending,
	})
}

// handleGetScan returns the progress and counters of a scan job
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.service.GetScanStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}

// handleQueueEmails moves VALIDATED candidates into the send queue
func (s *Server) handleQueueEmails(w http.ResponseWriter, r *http.Request) {
	var req types.QueueEmailsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.service.QueueEmails(r.Context(), req.EmailIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleAddEmail stores an address entered by hand once it passes validation
func (s *Server) handleAddEmail(w http.ResponseWriter, r *http.Request) {
	var req types.AddEmailRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	email, err := s.service.AddEmail(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, email)
}

// handleVerifyEmail runs validation again for one address. ?check_smtp=true adds
// the SMTP mailbox check.
func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	checkSMTP, _ := strconv.ParseBool(r.URL.Query().Get("check_smtp"))
	result, err := s.service.VerifyEmail(r.Context(), id, checkSMTP)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handleVerifyEmails runs validation again for a list of addresses
func (s *Server) handleVerifyEmails(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyEmailsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.service.VerifyEmails(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, summary)
}

// handleResetQueue moves every QUEUED address back to NONE
func (s *Server) handleResetQueue(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.ResetQueue(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleOverview returns system-wide counts
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.service.Overview(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, overview)
}
