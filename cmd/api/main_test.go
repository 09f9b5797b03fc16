package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agentchain/approval"
	"agentchain/auth"
	"agentchain/directory"
	"agentchain/hierarchy"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type stubApprovalService struct {
	submitResult approval.Request
	submitErr    error
	submitParams approval.SubmitParams
	actionResult approval.Request
	actionErr    error
	listItems    []approval.Request
	listTotal    int
	listErr      error
}

func (s *stubApprovalService) Submit(_ context.Context, params approval.SubmitParams) (approval.Request, error) {
	s.submitParams = params
	return s.submitResult, s.submitErr
}

func (s *stubApprovalService) Approve(_ context.Context, _, _ string) (approval.Request, error) {
	return s.actionResult, s.actionErr
}

func (s *stubApprovalService) MarkPaid(_ context.Context, _ string) (approval.Request, error) {
	return s.actionResult, s.actionErr
}

func (s *stubApprovalService) Reject(_ context.Context, _, _ string) (approval.Request, error) {
	return s.actionResult, s.actionErr
}

func (s *stubApprovalService) List(_ context.Context, _ approval.Filters) ([]approval.Request, int, error) {
	return s.listItems, s.listTotal, s.listErr
}

type stubHierarchyService struct {
	record hierarchy.Record
	err    error
}

func (s *stubHierarchyService) Get(_ context.Context, _ string) (hierarchy.Record, error) {
	return s.record, s.err
}

func (s *stubHierarchyService) SetSlot(_ context.Context, _ hierarchy.SetSlotParams) (hierarchy.Record, error) {
	return s.record, s.err
}

type stubDirectoryService struct {
	summary directory.AgentSummary
	err     error
}

func (s *stubDirectoryService) AgentSummary(_ context.Context, _ string) (directory.AgentSummary, error) {
	return s.summary, s.err
}

func testRecord(agentID string, feePaid bool) hierarchy.Record {
	slots := make(map[hierarchy.Slot]*string, len(hierarchy.Slots))
	for _, slot := range hierarchy.Slots {
		slots[slot] = nil
	}
	return hierarchy.Record{AgentID: agentID, FeePaid: feePaid, Slots: slots}
}

func testServer(approvals approvalService, chains hierarchyService, dir directoryService) *Server {
	return &Server{
		approvalService:  approvals,
		hierarchyService: chains,
		directoryService: dir,
		log:              zerolog.Nop(),
	}
}

func TestHandleApprovals_SubmitDiscardsClientAmount(t *testing.T) {
	now := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	stub := &stubApprovalService{
		submitResult: approval.Request{
			ID:        "req-1",
			AgentID:   "a42",
			Purpose:   "Joining Fee",
			Amount:    decimal.NewFromInt(250),
			State:     approval.StatePending,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	server := testServer(stub, &stubHierarchyService{}, &stubDirectoryService{})

	body := `{"agentId":"a42","billingCategoryId":"cat-1","purpose":"Joining Fee","joiningLevel":"APM","branchId":"br-1","accountId":"ac-1","amount":"9999"}`
	req := httptest.NewRequest(http.MethodPost, "/api/approvals", strings.NewReader(body))
	rec := httptest.NewRecorder()

	server.handleApprovals(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp approvalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Amount != "250.00" {
		t.Fatalf("expected server-computed amount 250.00, got %s", resp.Amount)
	}
	if resp.State != "pending" {
		t.Fatalf("expected pending, got %s", resp.State)
	}
}

func TestHandleApprovals_List(t *testing.T) {
	stub := &stubApprovalService{
		listItems: []approval.Request{
			{ID: "req-1", AgentID: "a42", Amount: decimal.NewFromInt(500), State: approval.StatePending},
		},
		listTotal: 1,
	}
	server := testServer(stub, &stubHierarchyService{}, &stubDirectoryService{})

	req := httptest.NewRequest(http.MethodGet, "/api/approvals?state=pending&page=1&pageSize=10", nil)
	rec := httptest.NewRecorder()

	server.handleApprovals(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp approvalListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 || resp.Items[0].ID != "req-1" {
		t.Fatalf("unexpected list payload: %+v", resp)
	}
}

func TestHandleApprovals_ValidationMapsTo400(t *testing.T) {
	stub := &stubApprovalService{submitErr: approval.ErrValidation}
	server := testServer(stub, &stubHierarchyService{}, &stubDirectoryService{})

	req := httptest.NewRequest(http.MethodPost, "/api/approvals", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	server.handleApprovals(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleApprovalAction_Approve(t *testing.T) {
	approvedBy := "approver-7"
	stub := &stubApprovalService{
		actionResult: approval.Request{
			ID:         "req-1",
			AgentID:    "a42",
			Amount:     decimal.NewFromInt(250),
			ApprovedBy: &approvedBy,
			State:      approval.StateApproved,
		},
	}
	server := testServer(stub, &stubHierarchyService{}, &stubDirectoryService{})

	req := httptest.NewRequest(http.MethodPost, "/api/approvals/req-1/approve", strings.NewReader(`{"approverId":"approver-7"}`))
	rec := httptest.NewRecorder()

	server.handleApprovalAction(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp approvalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != "approved" || resp.ApprovedBy == nil || *resp.ApprovedBy != "approver-7" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleApprovalAction_InvalidTransitionMapsTo409(t *testing.T) {
	stub := &stubApprovalService{actionErr: approval.ErrInvalidTransition}
	server := testServer(stub, &stubHierarchyService{}, &stubDirectoryService{})

	req := httptest.NewRequest(http.MethodPost, "/api/approvals/req-1/pay", nil)
	rec := httptest.NewRecorder()

	server.handleApprovalAction(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleApprovalAction_UnknownAction(t *testing.T) {
	server := testServer(&stubApprovalService{}, &stubHierarchyService{}, &stubDirectoryService{})

	req := httptest.NewRequest(http.MethodPost, "/api/approvals/req-1/archive", nil)
	rec := httptest.NewRecorder()

	server.handleApprovalAction(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleApprovalAction_WrongMethod(t *testing.T) {
	server := testServer(&stubApprovalService{}, &stubHierarchyService{}, &stubDirectoryService{})

	req := httptest.NewRequest(http.MethodGet, "/api/approvals/req-1/approve", nil)
	rec := httptest.NewRecorder()

	server.handleApprovalAction(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleAgents_GetHierarchy(t *testing.T) {
	record := testRecord("a42", true)
	introducer := "a17"
	record.Slots[hierarchy.SlotIntroducer] = &introducer
	server := testServer(&stubApprovalService{}, &stubHierarchyService{record: record}, &stubDirectoryService{})

	req := httptest.NewRequest(http.MethodGet, "/api/agents/a42/hierarchy", nil)
	rec := httptest.NewRecorder()

	server.handleAgents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp hierarchyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.FeePaid {
		t.Fatalf("expected feePaid true")
	}
	if got := resp.Slots["introducer"]; got == nil || *got != "a17" {
		t.Fatalf("expected introducer a17, got %v", got)
	}
	if len(resp.Slots) != 9 {
		t.Fatalf("expected nine slots, got %d", len(resp.Slots))
	}
}

func TestHandleAgents_SetSlot(t *testing.T) {
	record := testRecord("a42", true)
	sponsor := "a17"
	record.Slots[hierarchy.SlotPM] = &sponsor
	server := testServer(&stubApprovalService{}, &stubHierarchyService{record: record}, &stubDirectoryService{})

	req := httptest.NewRequest(http.MethodPut, "/api/agents/a42/hierarchy/pm", strings.NewReader(`{"targetAgentId":"a17"}`))
	rec := httptest.NewRecorder()

	server.handleAgents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleAgents_ChainLockedMapsTo409(t *testing.T) {
	server := testServer(&stubApprovalService{}, &stubHierarchyService{err: hierarchy.ErrChainLocked}, &stubDirectoryService{})

	req := httptest.NewRequest(http.MethodPut, "/api/agents/a42/hierarchy/pm", strings.NewReader(`{"targetAgentId":"a17"}`))
	rec := httptest.NewRecorder()

	server.handleAgents(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleAgents_InvalidReferenceMapsTo422(t *testing.T) {
	server := testServer(&stubApprovalService{}, &stubHierarchyService{err: hierarchy.ErrInvalidReference}, &stubDirectoryService{})

	req := httptest.NewRequest(http.MethodPut, "/api/agents/a42/hierarchy/pm", strings.NewReader(`{"targetAgentId":"a42"}`))
	rec := httptest.NewRecorder()

	server.handleAgents(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestHandleAgents_UnknownSlot(t *testing.T) {
	server := testServer(&stubApprovalService{}, &stubHierarchyService{}, &stubDirectoryService{})

	req := httptest.NewRequest(http.MethodPut, "/api/agents/a42/hierarchy/ceo", strings.NewReader(`{"targetAgentId":"a17"}`))
	rec := httptest.NewRecorder()

	server.handleAgents(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleAgents_Summary(t *testing.T) {
	server := testServer(&stubApprovalService{}, &stubHierarchyService{}, &stubDirectoryService{
		summary: directory.AgentSummary{ID: "a42", Code: "AG-42", DisplayName: "Asha Agent"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/agents/a42", nil)
	rec := httptest.NewRecorder()

	server.handleAgents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp agentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != "AG-42" || resp.DisplayName != "Asha Agent" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}

func TestHandleAgents_SummaryNotFound(t *testing.T) {
	server := testServer(&stubApprovalService{}, &stubHierarchyService{}, &stubDirectoryService{err: directory.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/agents/missing", nil)
	rec := httptest.NewRecorder()

	server.handleAgents(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleAgents_UnexpectedError(t *testing.T) {
	server := testServer(&stubApprovalService{}, &stubHierarchyService{}, &stubDirectoryService{err: errors.New("boom")})

	req := httptest.NewRequest(http.MethodGet, "/api/agents/a42", nil)
	rec := httptest.NewRecorder()

	server.handleAgents(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("internal error detail must not leak: %s", rec.Body.String())
	}
}

func TestRequireAuth(t *testing.T) {
	verifier := auth.NewService("test-secret")
	server := testServer(&stubApprovalService{}, &stubHierarchyService{record: testRecord("a42", false)}, &stubDirectoryService{})
	server.verifier = verifier
	handler := server.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/agents/a42/hierarchy", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, err := verifier.IssueToken(auth.Principal{UserID: "u1", Role: auth.RoleBackOffice}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/agents/a42/hierarchy", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}
