package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agentchain/approval"
	"agentchain/auth"
	"agentchain/directory"
	"agentchain/hierarchy"

	"github.com/rs/zerolog"
)

type approvalService interface {
	Submit(ctx context.Context, params approval.SubmitParams) (approval.Request, error)
	Approve(ctx context.Context, requestID, approverID string) (approval.Request, error)
	MarkPaid(ctx context.Context, requestID string) (approval.Request, error)
	Reject(ctx context.Context, requestID, reason string) (approval.Request, error)
	List(ctx context.Context, filters approval.Filters) ([]approval.Request, int, error)
}

type hierarchyService interface {
	Get(ctx context.Context, agentID string) (hierarchy.Record, error)
	SetSlot(ctx context.Context, params hierarchy.SetSlotParams) (hierarchy.Record, error)
}

type directoryService interface {
	AgentSummary(ctx context.Context, id string) (directory.AgentSummary, error)
}

type tokenVerifier interface {
	VerifyToken(token string) (auth.Principal, error)
}

// Server routes HTTP traffic to the workflow services.
type Server struct {
	approvalService  approvalService
	hierarchyService hierarchyService
	directoryService directoryService
	verifier         tokenVerifier
	log              zerolog.Logger
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/approvals", s.handleApprovals)
	mux.HandleFunc("/api/approvals/", s.handleApprovalAction)
	mux.HandleFunc("/api/agents/", s.handleAgents)
	return s.requireAuth(mux)
}

// requireAuth validates the bearer token when a verifier is configured.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}
		if _, err := s.verifier.VerifyToken(token); err != nil {
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

type approvalResponse struct {
	ID                string  `json:"id"`
	AgentID           string  `json:"agentId"`
	BillingCategoryID string  `json:"billingCategoryId"`
	Purpose           string  `json:"purpose"`
	JoiningLevel      *string `json:"joiningLevel,omitempty"`
	PromotionLevel    *string `json:"promotionLevel,omitempty"`
	Amount            string  `json:"amount"`
	BranchID          string  `json:"branchId"`
	AccountID         string  `json:"accountId"`
	ApprovedBy        *string `json:"approvedBy,omitempty"`
	Notes             *string `json:"notes,omitempty"`
	RejectReason      *string `json:"rejectReason,omitempty"`
	State             string  `json:"state"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

type approvalListResponse struct {
	Items []approvalResponse `json:"items"`
	Total int                `json:"total"`
}

type hierarchyResponse struct {
	AgentID string             `json:"agentId"`
	FeePaid bool               `json:"feePaid"`
	Slots   map[string]*string `json:"slots"`
}

type agentResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
}

type submitApprovalRequest struct {
	AgentID           string `json:"agentId"`
	BillingCategoryID string `json:"billingCategoryId"`
	Purpose           string `json:"purpose"`
	JoiningLevel      string `json:"joiningLevel"`
	PromotionLevel    string `json:"promotionLevel"`
	// Amount is accepted for wire compatibility with the old forms and
	// discarded; the service always computes it.
	Amount    string `json:"amount"`
	BranchID  string `json:"branchId"`
	AccountID string `json:"accountId"`
	Notes     string `json:"notes"`
}

func (s *Server) handleApprovals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var body submitApprovalRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		req, err := s.approvalService.Submit(r.Context(), approval.SubmitParams{
			AgentID:           body.AgentID,
			BillingCategoryID: body.BillingCategoryID,
			Purpose:           body.Purpose,
			JoiningLevel:      body.JoiningLevel,
			PromotionLevel:    body.PromotionLevel,
			BranchID:          body.BranchID,
			AccountID:         body.AccountID,
			Notes:             body.Notes,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, toApprovalResponse(req))

	case http.MethodGet:
		filters := approval.Filters{
			AgentID: r.URL.Query().Get("agentId"),
			State:   approval.State(r.URL.Query().Get("state")),
		}
		if raw := r.URL.Query().Get("page"); raw != "" {
			filters.Page, _ = strconv.Atoi(raw)
		}
		if raw := r.URL.Query().Get("pageSize"); raw != "" {
			filters.PageSize, _ = strconv.Atoi(raw)
		}
		items, total, err := s.approvalService.List(r.Context(), filters)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp := approvalListResponse{Items: make([]approvalResponse, 0, len(items)), Total: total}
		for _, item := range items {
			resp.Items = append(resp.Items, toApprovalResponse(item))
		}
		s.writeJSON(w, http.StatusOK, resp)

	default:
		s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	}
}

// handleApprovalAction serves /api/approvals/{id}/{approve|pay|reject}.
func (s *Server) handleApprovalAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/approvals/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "expected /api/approvals/{id}/{action}"})
		return
	}
	requestID, action := parts[0], parts[1]

	var body struct {
		ApproverID string `json:"approverId"`
		Reason     string `json:"reason"`
	}
	if r.Body != nil {
		// Body is optional for pay.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	var (
		req approval.Request
		err error
	)
	switch action {
	case "approve":
		req, err = s.approvalService.Approve(r.Context(), requestID, body.ApproverID)
	case "pay":
		req, err = s.approvalService.MarkPaid(r.Context(), requestID)
	case "reject":
		req, err = s.approvalService.Reject(r.Context(), requestID, body.Reason)
	default:
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown action " + action})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toApprovalResponse(req))
}

// handleAgents serves:
//
//	GET /api/agents/{id}                    agent summary
//	GET /api/agents/{id}/hierarchy          sponsor chain
//	PUT /api/agents/{id}/hierarchy/{slot}   slot write
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/agents/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "agent id required"})
		return
	}
	agentID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}
		summary, err := s.directoryService.AgentSummary(r.Context(), agentID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, agentResponse{ID: summary.ID, Code: summary.Code, DisplayName: summary.DisplayName})

	case len(parts) == 2 && parts[1] == "hierarchy":
		if r.Method != http.MethodGet {
			s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}
		rec, err := s.hierarchyService.Get(r.Context(), agentID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, toHierarchyResponse(rec))

	case len(parts) == 3 && parts[1] == "hierarchy":
		if r.Method != http.MethodPut {
			s.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}
		slot, ok := hierarchy.ParseSlot(parts[2])
		if !ok {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown slot " + parts[2]})
			return
		}
		var body struct {
			TargetAgentID *string `json:"targetAgentId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		rec, err := s.hierarchyService.SetSlot(r.Context(), hierarchy.SetSlotParams{
			AgentID: agentID,
			Slot:    slot,
			Target:  body.TargetAgentID,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, toHierarchyResponse(rec))

	default:
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, approval.ErrValidation), errors.Is(err, hierarchy.ErrUnknownSlot):
		status = http.StatusBadRequest
	case errors.Is(err, directory.ErrNotFound), errors.Is(err, approval.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, approval.ErrInvalidTransition), errors.Is(err, hierarchy.ErrChainLocked):
		status = http.StatusConflict
	case errors.Is(err, hierarchy.ErrInvalidReference):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
		s.writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func toApprovalResponse(req approval.Request) approvalResponse {
	return approvalResponse{
		ID:                req.ID,
		AgentID:           req.AgentID,
		BillingCategoryID: req.BillingCategoryID,
		Purpose:           req.Purpose,
		JoiningLevel:      req.JoiningLevel,
		PromotionLevel:    req.PromotionLevel,
		Amount:            req.Amount.StringFixed(2),
		BranchID:          req.BranchID,
		AccountID:         req.AccountID,
		ApprovedBy:        req.ApprovedBy,
		Notes:             req.Notes,
		RejectReason:      req.RejectReason,
		State:             string(req.State),
		CreatedAt:         req.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         req.UpdatedAt.Format(time.RFC3339),
	}
}

func toHierarchyResponse(rec hierarchy.Record) hierarchyResponse {
	slots := make(map[string]*string, len(rec.Slots))
	for slot, occupant := range rec.Slots {
		slots[string(slot)] = occupant
	}
	return hierarchyResponse{AgentID: rec.AgentID, FeePaid: rec.FeePaid, Slots: slots}
}
