package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"agentchain/directory"
	"agentchain/outbox"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrChainLocked signals a non-introducer slot write before any fee
	// approval for the agent reached paid.
	ErrChainLocked = errors.New("hierarchy: chain locked until joining fee is paid")
	// ErrInvalidReference signals a self-reference or a profile already
	// occupying another slot of the same record.
	ErrInvalidReference = errors.New("hierarchy: invalid sponsor reference")
	// ErrUnknownSlot signals a slot name outside the nine fixed positions.
	ErrUnknownSlot = errors.New("hierarchy: unknown slot")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Directory checks agent profile existence against the external store.
type Directory interface {
	AgentExists(ctx context.Context, id string) (bool, error)
}

// OutboxWriter enqueues downstream notifications inside the workflow's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service enforces the chain gate and the sponsor-reference invariants on
// slot writes. Reads are always permitted.
type Service struct {
	pool   TxBeginner
	repo   Repository
	dir    Directory
	outbox OutboxWriter
}

func NewService(pool TxBeginner, repo Repository, dir Directory, outbox OutboxWriter) *Service {
	return &Service{pool: pool, repo: repo, dir: dir, outbox: outbox}
}

// Get returns the agent's chain, empty if never written.
func (s *Service) Get(ctx context.Context, agentID string) (Record, error) {
	if agentID == "" {
		return Record{}, fmt.Errorf("hierarchy: agent id required")
	}
	if err := s.checkAgent(ctx, agentID); err != nil {
		return Record{}, err
	}
	return s.repo.Get(ctx, agentID)
}

// SetSlotParams carries one slot write. A nil Target clears the slot.
type SetSlotParams struct {
	AgentID string
	Slot    Slot
	Target  *string
}

// SetSlot applies one slot write under the chain gate:
//
//  1. The introducer slot is always writable.
//  2. Any other slot requires the sticky fee-paid flag; the flag is read under
//     the record's row lock, so a write racing a paid transition observes a
//     consistent state.
//  3. The target must exist, must not be the owner, and must not already
//     occupy another slot of the same record.
func (s *Service) SetSlot(ctx context.Context, params SetSlotParams) (Record, error) {
	if params.AgentID == "" {
		return Record{}, fmt.Errorf("hierarchy: agent id required")
	}
	slot, ok := ParseSlot(string(params.Slot))
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownSlot, params.Slot)
	}
	params.Slot = slot

	if err := s.checkAgent(ctx, params.AgentID); err != nil {
		return Record{}, err
	}

	if params.Target != nil {
		if *params.Target == "" {
			params.Target = nil
		} else if *params.Target == params.AgentID {
			return Record{}, fmt.Errorf("%w: agent cannot sponsor itself", ErrInvalidReference)
		} else if err := s.checkAgent(ctx, *params.Target); err != nil {
			return Record{}, err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("hierarchy: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetOrCreateForUpdate(ctx, tx, params.AgentID)
	if err != nil {
		return Record{}, err
	}

	if params.Slot != SlotIntroducer && !rec.FeePaid {
		return Record{}, ErrChainLocked
	}

	if params.Target != nil {
		for slot, occupant := range rec.Slots {
			if slot == params.Slot || occupant == nil {
				continue
			}
			if *occupant == *params.Target {
				return Record{}, fmt.Errorf("%w: profile %s already occupies slot %s", ErrInvalidReference, *params.Target, slot)
			}
		}
	}

	updated, err := s.repo.SetSlot(ctx, tx, params.AgentID, params.Slot, params.Target)
	if err != nil {
		return Record{}, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"agent_id": params.AgentID,
			"slot":     string(params.Slot),
		}
		if params.Target != nil {
			payload["target_agent_id"] = *params.Target
		}
		if err := s.outbox.Enqueue(ctx, tx, outbox.TopicHierarchySlotSet, payload); err != nil {
			return Record{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("hierarchy: commit slot write: %w", err)
	}

	return updated, nil
}

func (s *Service) checkAgent(ctx context.Context, id string) error {
	ok, err := s.dir.AgentExists(ctx, id)
	if err != nil {
		return fmt.Errorf("hierarchy: agent lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("hierarchy: agent %s: %w", id, directory.ErrNotFound)
	}
	return nil
}
