package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant queries. Each must produce zero rows on a
// consistent database.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_gate_bypass",
			SQL: `SELECT agent_id FROM hierarchy_records
                  WHERE fee_paid = false
                    AND COALESCE(pm_id, spm_id, do_id, sdo_id, md_id, smd_id, rmd_id, cmd_id) IS NOT NULL`,
		},
		{
			Name: "O2_self_sponsorship",
			SQL: `SELECT agent_id FROM hierarchy_records
                  WHERE agent_id IN (introducer_id, pm_id, spm_id, do_id, sdo_id, md_id, smd_id, rmd_id, cmd_id)`,
		},
		{
			Name: "O3_duplicate_sponsor",
			SQL: `SELECT hr.agent_id, s.sponsor FROM hierarchy_records hr,
                  LATERAL unnest(ARRAY[hr.introducer_id, hr.pm_id, hr.spm_id, hr.do_id, hr.sdo_id,
                                       hr.md_id, hr.smd_id, hr.rmd_id, hr.cmd_id]) AS s(sponsor)
                  WHERE s.sponsor IS NOT NULL
                  GROUP BY hr.agent_id, s.sponsor HAVING COUNT(*) > 1`,
		},
		{
			Name: "O4_amount_computed",
			SQL: `SELECT id FROM approval_requests
                  WHERE (purpose = 'Joining Fee' AND joining_level = 'APM' AND amount <> 250)
                     OR (purpose = 'Joining Fee' AND joining_level <> 'APM' AND amount <> 500)
                     OR (purpose = 'Promotion Fee' AND amount <> 500)`,
		},
		{
			Name: "O5_paid_without_unlock",
			SQL: `SELECT ar.id FROM approval_requests ar
                  LEFT JOIN hierarchy_records hr ON hr.agent_id = ar.agent_id
                  WHERE ar.state = 'paid' AND COALESCE(hr.fee_paid, false) = false`,
		},
		{
			Name: "O6_approver_recorded",
			SQL: `SELECT id FROM approval_requests
                  WHERE state IN ('approved','paid') AND approved_by IS NULL`,
		},
		{
			Name: "O7_event_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT request_id, seq,
                             LAG(seq) OVER (PARTITION BY request_id ORDER BY seq) AS prev
                      FROM approval_events)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			Name: "O8_level_exclusive",
			SQL: `SELECT id FROM approval_requests
                  WHERE joining_level IS NOT NULL AND promotion_level IS NOT NULL`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
