package rating

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"
)

// Recalculator assigns dense ranks over active, unblocked users ordered by
// (total score DESC, registered earlier first). Equal totals share a rank
// and the next distinct total skips past the whole tie group, so totals
// 300,300,250,250 rank 1,1,3,3.
type Recalculator struct {
	db *sql.DB
	mu sync.Mutex
}

func NewRecalculator(sqldb *sql.DB) *Recalculator {
	return &Recalculator{db: sqldb}
}

// RecomputeRanks reranks everyone and returns the number of profiles whose
// rank actually changed. Concurrent calls serialise on a mutex so two
// tickers (or a ticker and an admin trigger) never interleave writes.
func (r *Recalculator) RecomputeRanks(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT p.user_id, p.total_score, p.rank
		FROM rating_profiles p JOIN users u ON u.id = p.user_id
		WHERE u.is_active AND NOT u.is_blocked
		ORDER BY p.total_score DESC, u.registered_at ASC, u.id ASC`)
	if err != nil {
		return 0, err
	}

	type entry struct {
		userID  string
		total   int
		oldRank sql.NullInt64
		newRank int
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.userID, &e.total, &e.oldRank); err != nil {
			rows.Close()
			return 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	rank := 0
	prevTotal := -1
	for i := range entries {
		if i == 0 || entries[i].total != prevTotal {
			rank = i + 1
		}
		entries[i].newRank = rank
		prevTotal = entries[i].total
	}

	changed := 0
	for _, e := range entries {
		if e.oldRank.Valid && int(e.oldRank.Int64) == e.newRank {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE rating_profiles SET rank=$1 WHERE user_id=$2`, e.newRank, e.userID); err != nil {
			return 0, err
		}
		changed++
	}
	// Users who dropped out of eligibility keep a stale rank otherwise.
	if _, err := tx.ExecContext(ctx, `UPDATE rating_profiles SET rank=NULL
		WHERE rank IS NOT NULL AND user_id IN (
			SELECT id FROM users WHERE NOT is_active OR is_blocked
		)`); err != nil {
		return 0, err
	}
	return changed, tx.Commit()
}

// RunLoop recomputes on the given interval until the context is cancelled.
// Both the server and the standalone rank job drive the same loop.
func (r *Recalculator) RunLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.RecomputeRanks(ctx)
			if err != nil {
				log.Printf("rank recompute failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("rank recompute: %d profiles updated", n)
			}
		}
	}
}
