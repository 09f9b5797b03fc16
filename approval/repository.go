package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("approval: request not found")

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, req Request) (Request, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error)
	UpdateState(ctx context.Context, tx pgx.Tx, req Request) (Request, error)
	List(ctx context.Context, filters Filters) ([]Request, int, error)
	AppendEvent(ctx context.Context, tx pgx.Tx, requestID, eventType string, actorID *string, payload map[string]any) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const requestColumns = `id, agent_id, billing_category_id, purpose, joining_level, promotion_level,
	amount, branch_id, account_id, approved_by, notes, reject_reason, state, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, req Request) (Request, error) {
	query := fmt.Sprintf(`
		INSERT INTO approval_requests (id, agent_id, billing_category_id, purpose, joining_level,
			promotion_level, amount, branch_id, account_id, notes, state)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING %s
	`, requestColumns)

	row := tx.QueryRow(ctx, query,
		req.ID,
		req.AgentID,
		req.BillingCategoryID,
		req.Purpose,
		req.JoiningLevel,
		req.PromotionLevel,
		req.Amount,
		req.BranchID,
		req.AccountID,
		req.Notes,
		req.State,
	)

	created, err := scanRequest(row)
	if err != nil {
		return Request{}, fmt.Errorf("approval: insert request: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM approval_requests
		WHERE id = $1
		FOR UPDATE
	`, requestColumns)

	req, err := scanRequest(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("approval: get for update: %w", err)
	}
	return req, nil
}

// UpdateState persists the lifecycle fields of req: state, approved_by and
// reject_reason. Every other column is immutable after creation.
func (r *PGRepository) UpdateState(ctx context.Context, tx pgx.Tx, req Request) (Request, error) {
	query := fmt.Sprintf(`
		UPDATE approval_requests
		SET state = $2,
		    approved_by = $3,
		    reject_reason = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING %s
	`, requestColumns)

	updated, err := scanRequest(tx.QueryRow(ctx, query, req.ID, req.State, req.ApprovedBy, req.RejectReason))
	if err != nil {
		return Request{}, fmt.Errorf("approval: update state: %w", err)
	}
	return updated, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Request, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	where := []string{"1=1"}
	args := []any{}

	if filters.AgentID != "" {
		where = append(where, fmt.Sprintf("agent_id=$%d", len(args)+1))
		args = append(args, filters.AgentID)
	}
	if filters.State != "" {
		where = append(where, fmt.Sprintf("state=$%d", len(args)+1))
		args = append(args, filters.State)
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")
	limit := filters.PageSize
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`SELECT %s FROM approval_requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		requestColumns, whereClause, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("approval: query list: %w", err)
	}
	defer rows.Close()

	list := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("approval: scan request: %w", err)
		}
		list = append(list, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("approval: iterate list: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM approval_requests%s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("approval: count list: %w", err)
	}

	return list, total, nil
}

// AppendEvent writes one audit timeline entry inside tx. Seq is derived from
// the current maximum under the request's row lock, so entries stay dense and
// monotonic per request.
func (r *PGRepository) AppendEvent(ctx context.Context, tx pgx.Tx, requestID, eventType string, actorID *string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("approval: marshal event payload: %w", err)
	}

	const q = `
		INSERT INTO approval_events (request_id, seq, type, actor_id, payload)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4::jsonb
		FROM approval_events
		WHERE request_id = $1
	`
	if _, err := tx.Exec(ctx, q, requestID, eventType, actorID, body); err != nil {
		return fmt.Errorf("approval: append event: %w", err)
	}
	return nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	return req, row.Scan(
		&req.ID,
		&req.AgentID,
		&req.BillingCategoryID,
		&req.Purpose,
		&req.JoiningLevel,
		&req.PromotionLevel,
		&req.Amount,
		&req.BranchID,
		&req.AccountID,
		&req.ApprovedBy,
		&req.Notes,
		&req.RejectReason,
		&req.State,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
}
