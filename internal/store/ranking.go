package store

import (
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/nex-archive/nexharvest/internal/nex"
)

// RankingRepo writes and reads the leaderboard tables. Identity columns
// (pid, unique id, param) persist as decimal text so 64-bit values survive
// SQLite's integer affinity untouched.
type RankingRepo struct {
	db     *sql.DB
	logger *log.Logger
}

// NewRankingRepo wraps an open, migrated leaderboard database.
func NewRankingRepo(db *sql.DB, logger *log.Logger) *RankingRepo {
	if logger == nil {
		logger = log.Default()
	}
	return &RankingRepo{db: db, logger: logger}
}

// Watermark is the harvest frontier of one category: the last persisted row
// in rank order, used both to resume and to drive around-self paging.
type Watermark struct {
	Rank     uint32
	UniqueID uint64
	PID      uint64
}

// InsertBatch persists one page of leaderboard entries plus their group
// memberships, in a single transaction. A row that fails to insert is logged
// and skipped; the rest of the batch still commits.
func (r *RankingRepo) InsertBatch(game string, entries []nex.RankData) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("ranking insert: begin: %w", err)
	}
	defer tx.Rollback()

	insRank, err := tx.Prepare(`INSERT INTO ranking
		(game, id, pid, rank, category, score, param, data, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("ranking insert: prepare: %w", err)
	}
	defer insRank.Close()

	insGroup, err := tx.Prepare(`INSERT INTO ranking_group
		(game, pid, rank, category, ranking_group, ranking_index)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("ranking insert: prepare groups: %w", err)
	}
	defer insGroup.Close()

	for _, e := range entries {
		pid := strconv.FormatUint(e.PID, 10)
		if _, err := insRank.Exec(
			game,
			strconv.FormatUint(e.UniqueID, 10),
			pid,
			e.Rank,
			e.Category,
			e.Score,
			strconv.FormatUint(e.Param, 10),
			e.CommonData,
			nullUnix(e.UpdateTime),
		); err != nil {
			r.logger.Printf("[store] ranking row %s rank %d: %v", game, e.Rank, err)
			continue
		}
		for i, g := range e.Groups {
			if _, err := insGroup.Exec(game, pid, e.Rank, e.Category, g, i); err != nil {
				r.logger.Printf("[store] ranking group %s rank %d index %d: %v", game, e.Rank, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ranking insert: commit: %w", err)
	}
	return nil
}

// CountCategory returns how many rows a category already holds.
func (r *RankingRepo) CountCategory(game string, category uint32) (int64, error) {
	var n int64
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM ranking WHERE game = ? AND category = ?`,
		game, category,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ranking count %s/%d: %w", game, category, err)
	}
	return n, nil
}

// LastWatermark returns the highest-ranked persisted row of a category, or
// nil when the category is empty.
func (r *RankingRepo) LastWatermark(game string, category uint32) (*Watermark, error) {
	var (
		rank     uint32
		uniqueID string
		pid      string
	)
	err := r.db.QueryRow(
		`SELECT rank, id, pid FROM ranking
		 WHERE game = ? AND category = ?
		 ORDER BY rank DESC LIMIT 1`,
		game, category,
	).Scan(&rank, &uniqueID, &pid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ranking watermark %s/%d: %w", game, category, err)
	}

	w := &Watermark{Rank: rank}
	if w.UniqueID, err = strconv.ParseUint(uniqueID, 10, 64); err != nil {
		return nil, fmt.Errorf("ranking watermark %s/%d: unique id %q: %w", game, category, uniqueID, err)
	}
	if w.PID, err = strconv.ParseUint(pid, 10, 64); err != nil {
		return nil, fmt.Errorf("ranking watermark %s/%d: pid %q: %w", game, category, pid, err)
	}
	return w, nil
}

// DistinctPIDs returns every principal that appears in a game's leaderboard
// rows. The persistence scan can seed its owner list with these when the
// object-store tables are still empty.
func (r *RankingRepo) DistinctPIDs(game string) ([]uint64, error) {
	rows, err := r.db.Query(`SELECT DISTINCT pid FROM ranking WHERE game = ?`, game)
	if err != nil {
		return nil, fmt.Errorf("ranking pids %s: %w", game, err)
	}
	defer rows.Close()

	var pids []uint64
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("ranking pids %s: scan: %w", game, err)
		}
		pid, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			r.logger.Printf("[store] ranking pid %s %q: %v", game, s, err)
			continue
		}
		pids = append(pids, pid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ranking pids %s: iterate: %w", game, err)
	}
	return pids, nil
}

// ParamRefs returns the param value of every leaderboard row of a game, in
// insertion order. Titles that use param as an object-store reference feed
// these ids straight into the meta backfill.
func (r *RankingRepo) ParamRefs(game string) ([]uint64, error) {
	rows, err := r.db.Query(`SELECT param FROM ranking WHERE game = ?`, game)
	if err != nil {
		return nil, fmt.Errorf("ranking params %s: %w", game, err)
	}
	defer rows.Close()

	var refs []uint64
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("ranking params %s: scan: %w", game, err)
		}
		ref, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			r.logger.Printf("[store] ranking param %s %q: %v", game, s, err)
			continue
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ranking params %s: iterate: %w", game, err)
	}
	return refs, nil
}

// nullUnix maps the zero time to NULL and anything else to unix seconds.
func nullUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
