package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Get(ctx context.Context, agentID string) (Record, error)
	GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, agentID string) (Record, error)
	SetSlot(ctx context.Context, tx pgx.Tx, agentID string, slot Slot, target *string) (Record, error)
	MarkFeePaid(ctx context.Context, tx pgx.Tx, agentID string) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const recordColumns = `agent_id, fee_paid, introducer_id, pm_id, spm_id, do_id, sdo_id,
	md_id, smd_id, rmd_id, cmd_id, created_at, updated_at`

// Get reads an agent's chain. Agents that never touched their chain have no
// row yet; they read as an empty, still-locked record.
func (r *PGRepository) Get(ctx context.Context, agentID string) (Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM hierarchy_records WHERE agent_id = $1`, recordColumns)

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, agentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return emptyRecord(agentID), nil
		}
		return Record{}, fmt.Errorf("hierarchy: query record: %w", err)
	}
	return rec, nil
}

// GetOrCreateForUpdate materialises the agent's row if absent and locks it.
// The row lock serialises slot writes against the paid transition for the
// same agent; operations on different agents proceed in parallel.
func (r *PGRepository) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, agentID string) (Record, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO hierarchy_records (agent_id)
		VALUES ($1)
		ON CONFLICT (agent_id) DO NOTHING
	`, agentID); err != nil {
		return Record{}, fmt.Errorf("hierarchy: ensure record: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM hierarchy_records WHERE agent_id = $1 FOR UPDATE`, recordColumns)
	rec, err := scanRecord(tx.QueryRow(ctx, query, agentID))
	if err != nil {
		return Record{}, fmt.Errorf("hierarchy: lock record: %w", err)
	}
	return rec, nil
}

// SetSlot writes one slot column under the caller's row lock.
func (r *PGRepository) SetSlot(ctx context.Context, tx pgx.Tx, agentID string, slot Slot, target *string) (Record, error) {
	query := fmt.Sprintf(`
		UPDATE hierarchy_records
		SET %s = $2,
		    updated_at = now()
		WHERE agent_id = $1
		RETURNING %s
	`, slot.column(), recordColumns)

	rec, err := scanRecord(tx.QueryRow(ctx, query, agentID, target))
	if err != nil {
		return Record{}, fmt.Errorf("hierarchy: set slot %s: %w", slot, err)
	}
	return rec, nil
}

// MarkFeePaid sets the sticky gate flag. Idempotent: a second paid approval
// for the same agent leaves the flag set.
func (r *PGRepository) MarkFeePaid(ctx context.Context, tx pgx.Tx, agentID string) error {
	const q = `
		INSERT INTO hierarchy_records (agent_id, fee_paid)
		VALUES ($1, true)
		ON CONFLICT (agent_id) DO UPDATE
		SET fee_paid = true,
		    updated_at = now()
	`
	if _, err := tx.Exec(ctx, q, agentID); err != nil {
		return fmt.Errorf("hierarchy: mark fee paid: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec   Record
		slots [9]*string
	)
	err := row.Scan(
		&rec.AgentID,
		&rec.FeePaid,
		&slots[0], &slots[1], &slots[2], &slots[3], &slots[4],
		&slots[5], &slots[6], &slots[7], &slots[8],
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}

	rec.Slots = make(map[Slot]*string, len(Slots))
	for i, slot := range Slots {
		rec.Slots[slot] = slots[i]
	}
	return rec, nil
}

func emptyRecord(agentID string) Record {
	slots := make(map[Slot]*string, len(Slots))
	for _, slot := range Slots {
		slots[slot] = nil
	}
	return Record{AgentID: agentID, Slots: slots}
}
