package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agentchain/cadre"
	"agentchain/directory"
	"agentchain/outbox"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrValidation signals malformed caller input; the wrapped message carries
// the offending field.
var ErrValidation = errors.New("approval: validation failed")

// Timeline event types appended on each lifecycle step.
const (
	EventSubmitted = "APPROVAL_SUBMITTED"
	EventApproved  = "APPROVAL_APPROVED"
	EventPaid      = "APPROVAL_PAID"
	EventRejected  = "APPROVAL_REJECTED"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Directory is the slice of back-office lookups the workflow validates against.
type Directory interface {
	AgentExists(ctx context.Context, id string) (bool, error)
	BranchExists(ctx context.Context, id string) (bool, error)
	AccountExists(ctx context.Context, id string) (bool, error)
	BillingCategory(ctx context.Context, id string) (directory.BillingCategory, error)
}

// OutboxWriter enqueues downstream notifications inside the workflow's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// GateUnlocker flips the sponsor-chain gate for an agent. Implemented by the
// hierarchy repository; invoked in the same transaction as the paid transition
// so the unlock and the state change are atomic.
type GateUnlocker interface {
	MarkFeePaid(ctx context.Context, tx pgx.Tx, agentID string) error
}

// Service orchestrates the fee-approval workflow: submission with server-side
// amount computation, the explicit state transitions, and the sticky unlock of
// the owning agent's sponsor chain on payment.
type Service struct {
	pool        TxBeginner
	repo        Repository
	dir         Directory
	gate        GateUnlocker
	outbox      OutboxWriter
	fees        *cadre.FeeSchedule
	catalog     *cadre.Catalog
	idGenerator func() string
	now         func() time.Time
}

func NewService(pool TxBeginner, repo Repository, dir Directory, gate GateUnlocker, outbox OutboxWriter, catalog *cadre.Catalog, fees *cadre.FeeSchedule) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		dir:         dir,
		gate:        gate,
		outbox:      outbox,
		fees:        fees,
		catalog:     catalog,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SubmitParams carries caller input for a new request. There is deliberately
// no amount field: the amount is always computed from purpose and level.
type SubmitParams struct {
	AgentID           string
	BillingCategoryID string
	Purpose           string
	JoiningLevel      string
	PromotionLevel    string
	BranchID          string
	AccountID         string
	Notes             string
}

// Submit creates a request in pending state. Each call creates a new record;
// callers needing dedupe must handle it upstream.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (Request, error) {
	if params.AgentID == "" {
		return Request{}, fmt.Errorf("%w: agent id required", ErrValidation)
	}
	if params.BillingCategoryID == "" {
		return Request{}, fmt.Errorf("%w: billing category id required", ErrValidation)
	}
	if params.BranchID == "" || params.AccountID == "" {
		return Request{}, fmt.Errorf("%w: branch and account ids required", ErrValidation)
	}
	params.Purpose = strings.TrimSpace(params.Purpose)
	if params.Purpose == "" {
		return Request{}, fmt.Errorf("%w: purpose required", ErrValidation)
	}

	if err := s.validateLevels(params.Purpose, params.JoiningLevel, params.PromotionLevel); err != nil {
		return Request{}, err
	}

	if err := s.checkAgent(ctx, params.AgentID); err != nil {
		return Request{}, err
	}
	if ok, err := s.dir.BranchExists(ctx, params.BranchID); err != nil {
		return Request{}, fmt.Errorf("approval: branch lookup: %w", err)
	} else if !ok {
		return Request{}, fmt.Errorf("approval: branch %s: %w", params.BranchID, directory.ErrNotFound)
	}
	if ok, err := s.dir.AccountExists(ctx, params.AccountID); err != nil {
		return Request{}, fmt.Errorf("approval: account lookup: %w", err)
	} else if !ok {
		return Request{}, fmt.Errorf("approval: account %s: %w", params.AccountID, directory.ErrNotFound)
	}

	category, err := s.dir.BillingCategory(ctx, params.BillingCategoryID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Request{}, fmt.Errorf("approval: billing category %s: %w", params.BillingCategoryID, directory.ErrNotFound)
		}
		return Request{}, fmt.Errorf("approval: billing category lookup: %w", err)
	}
	if !purposeListed(category.Purposes, params.Purpose) {
		return Request{}, fmt.Errorf("%w: purpose %q not offered by billing category %s", ErrValidation, params.Purpose, category.ID)
	}

	amount := s.fees.Amount(params.Purpose, params.JoiningLevel, params.PromotionLevel)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("approval: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req := Request{
		ID:                s.idGenerator(),
		AgentID:           params.AgentID,
		BillingCategoryID: params.BillingCategoryID,
		Purpose:           params.Purpose,
		JoiningLevel:      optional(params.JoiningLevel),
		PromotionLevel:    optional(params.PromotionLevel),
		Amount:            amount,
		BranchID:          params.BranchID,
		AccountID:         params.AccountID,
		Notes:             optional(params.Notes),
		State:             StatePending,
	}

	created, err := s.repo.Create(ctx, tx, req)
	if err != nil {
		return Request{}, err
	}

	if err := s.repo.AppendEvent(ctx, tx, created.ID, EventSubmitted, nil, map[string]any{
		"agent_id": created.AgentID,
		"purpose":  created.Purpose,
		"amount":   created.Amount.String(),
	}); err != nil {
		return Request{}, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"request_id": created.ID,
			"agent_id":   created.AgentID,
			"purpose":    created.Purpose,
			"amount":     created.Amount.String(),
		}
		if err := s.outbox.Enqueue(ctx, tx, outbox.TopicApprovalSubmitted, payload); err != nil {
			return Request{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("approval: commit submit: %w", err)
	}

	return created, nil
}

// Approve moves a pending request to approved, recording the approver.
func (s *Service) Approve(ctx context.Context, requestID, approverID string) (Request, error) {
	if requestID == "" {
		return Request{}, fmt.Errorf("%w: request id required", ErrValidation)
	}
	if approverID == "" {
		return Request{}, fmt.Errorf("%w: approver id required", ErrValidation)
	}

	if err := s.checkAgent(ctx, approverID); err != nil {
		return Request{}, err
	}

	return s.transition(ctx, requestID, StateApproved, EventApproved, func(req *Request) {
		req.ApprovedBy = &approverID
	})
}

// MarkPaid moves an approved request to paid and unlocks the owning agent's
// sponsor chain in the same transaction. The unlock is sticky: once set it is
// never cleared, even if a later request is rejected.
func (s *Service) MarkPaid(ctx context.Context, requestID string) (Request, error) {
	if requestID == "" {
		return Request{}, fmt.Errorf("%w: request id required", ErrValidation)
	}

	return s.transition(ctx, requestID, StatePaid, EventPaid, nil)
}

// Reject moves a pending request to rejected with the given reason.
func (s *Service) Reject(ctx context.Context, requestID, reason string) (Request, error) {
	if requestID == "" {
		return Request{}, fmt.Errorf("%w: request id required", ErrValidation)
	}

	reason = strings.TrimSpace(reason)
	return s.transition(ctx, requestID, StateRejected, EventRejected, func(req *Request) {
		req.RejectReason = optional(reason)
	})
}

// List returns requests matching the filters plus the unpaginated total.
func (s *Service) List(ctx context.Context, filters Filters) ([]Request, int, error) {
	if filters.State != "" && !ValidState(filters.State) {
		return nil, 0, fmt.Errorf("%w: unknown state %q", ErrValidation, filters.State)
	}
	return s.repo.List(ctx, filters)
}

func (s *Service) transition(ctx context.Context, requestID string, next State, eventType string, mutate func(*Request)) (Request, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("approval: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.repo.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return Request{}, err
	}

	if !CanTransition(req.State, next) {
		return Request{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.State, next)
	}

	prev := req.State
	req.State = next
	if mutate != nil {
		mutate(&req)
	}

	updated, err := s.repo.UpdateState(ctx, tx, req)
	if err != nil {
		return Request{}, err
	}

	if next == StatePaid && s.gate != nil {
		if err := s.gate.MarkFeePaid(ctx, tx, updated.AgentID); err != nil {
			return Request{}, err
		}
	}

	payload := map[string]any{
		"previous_state": string(prev),
		"next_state":     string(next),
	}
	if updated.RejectReason != nil {
		payload["reason"] = *updated.RejectReason
	}
	if err := s.repo.AppendEvent(ctx, tx, updated.ID, eventType, updated.ApprovedBy, payload); err != nil {
		return Request{}, err
	}

	if s.outbox != nil {
		outPayload := map[string]any{
			"request_id": updated.ID,
			"agent_id":   updated.AgentID,
			"state":      string(updated.State),
		}
		if err := s.outbox.Enqueue(ctx, tx, topicFor(next), outPayload); err != nil {
			return Request{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("approval: commit transition: %w", err)
	}

	return updated, nil
}

// validateLevels enforces the mutual exclusion of the two level fields: each
// is required exactly when its purpose matches and forbidden otherwise.
func (s *Service) validateLevels(purpose, joiningLevel, promotionLevel string) error {
	switch purpose {
	case cadre.PurposeJoiningFee:
		if joiningLevel == "" {
			return fmt.Errorf("%w: joining level required for purpose %q", ErrValidation, purpose)
		}
		if promotionLevel != "" {
			return fmt.Errorf("%w: promotion level must be empty for purpose %q", ErrValidation, purpose)
		}
		if err := s.catalog.Validate(joiningLevel); err != nil {
			return fmt.Errorf("%w: joining level: %w", ErrValidation, err)
		}
	case cadre.PurposePromotionFee:
		if promotionLevel == "" {
			return fmt.Errorf("%w: promotion level required for purpose %q", ErrValidation, purpose)
		}
		if joiningLevel != "" {
			return fmt.Errorf("%w: joining level must be empty for purpose %q", ErrValidation, purpose)
		}
		if err := s.catalog.Validate(promotionLevel); err != nil {
			return fmt.Errorf("%w: promotion level: %w", ErrValidation, err)
		}
	default:
		if joiningLevel != "" || promotionLevel != "" {
			return fmt.Errorf("%w: level fields only apply to joining or promotion fees", ErrValidation)
		}
	}
	return nil
}

// topicFor maps a lifecycle state to its outbox topic.
func topicFor(next State) string {
	switch next {
	case StateApproved:
		return outbox.TopicApprovalApproved
	case StatePaid:
		return outbox.TopicApprovalPaid
	case StateRejected:
		return outbox.TopicApprovalRejected
	default:
		return outbox.TopicApprovalSubmitted
	}
}

func (s *Service) checkAgent(ctx context.Context, id string) error {
	ok, err := s.dir.AgentExists(ctx, id)
	if err != nil {
		return fmt.Errorf("approval: agent lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("approval: agent %s: %w", id, directory.ErrNotFound)
	}
	return nil
}

func purposeListed(purposes []string, purpose string) bool {
	for _, p := range purposes {
		if p == purpose {
			return true
		}
	}
	return false
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
