package server

import (
	"net/http"
	"time"

	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/types"
)

// handleCreateCampaign stores a DRAFT campaign
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input db.CampaignInput
	if err := decodeJSON(r, &input, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	campaign, err := s.service.CreateCampaign(r.Context(), &input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/campaigns/"+campaign.ID.String())
	s.jsonResponse(w, http.StatusCreated, campaign)
}

// handleListCampaigns lists campaigns, newest first
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.service.ListCampaigns(r.Context(), parseQueryInt(r, "limit", 50, 500))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"campaigns": campaigns,
		"count":     len(campaigns),
	})
}

// handleGetCampaign returns one campaign with its totals
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	campaign, err := s.service.GetCampaign(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, campaign)
}

// handleListSendLogs lists the delivery attempts of a campaign
func (s *Server) handleListSendLogs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	logs, err := s.service.ListSendLogs(r.Context(), id, parseQueryInt(r, "limit", 100, 500))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	})
}

// handleSendBatch runs one dispatch batch and answers with its statistics
func (s *Server) handleSendBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req types.SendBatchRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}

	var stats *types.BatchStats
	if req.DelaySeconds > 0 {
		stats, err = s.service.SendCampaignBatchWithDelay(r.Context(), id, req.DailyLimit, time.Duration(req.DelaySeconds)*time.Second)
	} else {
		stats, err = s.service.SendCampaignBatch(r.Context(), id, req.DailyLimit)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

// handleCampaignAction applies activate, pause, resume or complete
func (s *Server) handleCampaignAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	action := types.CampaignAction(r.PathValue("action"))
	if _, ok := action.Target(); !ok {
		s.errorResponse(w, http.StatusNotFound, "unknown campaign action: "+string(action))
		return
	}

	campaign, err := s.service.ApplyCampaignAction(r.Context(), id, action)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, campaign)
}

// handleGetBatch returns the progress of a send batch
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	batch, err := s.service.GetSendBatch(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, batch)
}


// handleListBatches lists a campaign's send batches, newest first
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	batches, err := s.service.ListSendBatches(r.Context(), id, parseQueryInt(r, "limit", 10, 100))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"batches": batches,
		"count":   len(batches),
	})
}
