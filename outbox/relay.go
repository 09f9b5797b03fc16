package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PublishFunc delivers one message to the downstream transport. A non-nil
// error leaves the row pending for a later attempt.
type PublishFunc func(ctx context.Context, msg Message) error

// Relay drains pending outbox rows in batches. Rows are claimed with
// SKIP LOCKED so multiple relays can run side by side without double delivery.
type Relay struct {
	pool        *pgxpool.Pool
	publish     PublishFunc
	log         zerolog.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewRelay(pool *pgxpool.Pool, publish PublishFunc, log zerolog.Logger) *Relay {
	r := &Relay{
		pool:        pool,
		publish:     publish,
		log:         log,
		interval:    time.Second,
		batchSize:   50,
		maxAttempts: 5,
	}
	if r.publish == nil {
		r.publish = r.logPublish
	}
	return r
}

func (r *Relay) WithInterval(d time.Duration) *Relay {
	r.interval = d
	return r
}

func (r *Relay) WithMaxAttempts(n int) *Relay {
	r.maxAttempts = n
	return r
}

// Run drains batches until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.DrainOnce(ctx); err != nil {
				r.log.Error().Err(err).Msg("outbox drain failed")
			}
		}
	}
}

// DrainOnce claims and delivers up to one batch of pending messages, returning
// the number delivered.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: begin drain tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, topic, payload, status, attempts, created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("outbox: claim batch: %w", err)
	}

	batch := make([]Message, 0, r.batchSize)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Status, &m.Attempts, &m.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("outbox: scan message: %w", err)
		}
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("outbox: iterate batch: %w", err)
	}

	delivered := 0
	for _, m := range batch {
		if err := r.publish(ctx, m); err != nil {
			next := "pending"
			if m.Attempts+1 >= r.maxAttempts {
				next = string(StatusDead)
				r.log.Warn().Str("id", m.ID).Str("topic", m.Topic).Msg("outbox message dead after max attempts")
			}
			if _, err := tx.Exec(ctx, `UPDATE outbox SET attempts = attempts + 1, status = $2 WHERE id = $1`, m.ID, next); err != nil {
				return delivered, fmt.Errorf("outbox: record failure: %w", err)
			}
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox SET status = 'processed', attempts = attempts + 1 WHERE id = $1`, m.ID); err != nil {
			return delivered, fmt.Errorf("outbox: mark processed: %w", err)
		}
		delivered++
	}

	if err := tx.Commit(ctx); err != nil {
		return delivered, fmt.Errorf("outbox: commit drain: %w", err)
	}
	return delivered, nil
}

func (r *Relay) logPublish(_ context.Context, msg Message) error {
	r.log.Info().
		Str("topic", msg.Topic).
		RawJSON("payload", msg.Payload).
		Msg("outbox publish")
	return nil
}
