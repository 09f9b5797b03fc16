package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the referenced agent, branch, account or billing
// category does not exist.
var ErrNotFound = errors.New("directory: not found")

// Repository provides read access to the back-office reference data this
// subsystem validates against.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AgentExists reports whether an agent profile with the given id exists.
func (r *Repository) AgentExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM agent_profiles WHERE id = $1)`, id)
}

// BranchExists reports whether the branch exists.
func (r *Repository) BranchExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM branches WHERE id = $1)`, id)
}

// AccountExists reports whether the ledger account exists.
func (r *Repository) AccountExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id)
}

func (r *Repository) exists(ctx context.Context, query, id string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("directory: existence check: %w", err)
	}
	return ok, nil
}

// AgentSummary fetches the display slice of an agent profile.
func (r *Repository) AgentSummary(ctx context.Context, id string) (AgentSummary, error) {
	const query = `
		SELECT id, code, display_name, created_at
		FROM agent_profiles
		WHERE id = $1
	`

	var s AgentSummary
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.Code, &s.DisplayName, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AgentSummary{}, ErrNotFound
		}
		return AgentSummary{}, fmt.Errorf("directory: query agent summary: %w", err)
	}

	return s, nil
}

// BillingCategory fetches a billing category together with its purposes.
func (r *Repository) BillingCategory(ctx context.Context, id string) (BillingCategory, error) {
	const query = `
		SELECT id, name, purposes
		FROM billing_categories
		WHERE id = $1
	`

	var c BillingCategory
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Purposes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BillingCategory{}, ErrNotFound
		}
		return BillingCategory{}, fmt.Errorf("directory: query billing category: %w", err)
	}

	return c, nil
}
