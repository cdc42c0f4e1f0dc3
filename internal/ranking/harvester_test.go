package ranking

import (
	"context"
	"database/sql"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/config"
	"github.com/nex-archive/nexharvest/internal/nex"
	"github.com/nex-archive/nexharvest/internal/session"
	"github.com/nex-archive/nexharvest/internal/store"
)

// fakeLeaderboard serves a fixed board through both enumeration modes.
// offsetCap mimics servers that refuse offset paging past a limit.
type fakeLeaderboard struct {
	entries   []nex.RankData // ascending rank, rank = index+1
	offsetCap int            // 0 means no cap
	calls     int
}

func (f *fakeLeaderboard) GetRanking(ctx context.Context, mode nex.RankingMode, category uint32, order nex.RankingOrderParam, uniqueID, pid uint64) (*nex.RankingResult, error) {
	f.calls++
	total := uint32(len(f.entries))

	switch mode {
	case nex.RankingModeGlobal:
		off := int(order.Offset)
		if f.offsetCap > 0 && off >= f.offsetCap {
			return nil, &nex.RMCError{Name: nex.ErrNameRankingMissing}
		}
		if off >= len(f.entries) {
			return nil, &nex.RMCError{Name: nex.ErrNameRankingMissing}
		}
		end := off + int(order.Count)
		if f.offsetCap > 0 && end > f.offsetCap {
			end = f.offsetCap
		}
		if end > len(f.entries) {
			end = len(f.entries)
		}
		return &nex.RankingResult{Data: f.entries[off:end], Total: total}, nil

	case nex.RankingModeGlobalAroundSelf:
		idx := -1
		for i, e := range f.entries {
			if e.UniqueID == uniqueID && e.PID == pid {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, &nex.RMCError{Name: nex.ErrNameRankingMissing}
		}
		half := int(order.Count) / 2
		start := idx - half
		if start < 0 {
			start = 0
		}
		end := start + int(order.Count)
		if end > len(f.entries) {
			end = len(f.entries)
		}
		return &nex.RankingResult{Data: f.entries[start:end], Total: total}, nil
	}
	return nil, &nex.RMCError{Name: nex.ErrNameNotImplemented}
}

type fakeSession struct {
	board *fakeLeaderboard
}

func (s *fakeSession) Ranking() nex.RankingClient     { return s.board }
func (s *fakeSession) DataStore() nex.DataStoreClient { return nil }
func (s *fakeSession) Close() error                   { return nil }

type staticBroker struct{}

func (staticBroker) Resolve(context.Context, catalog.Title) (nex.Credentials, error) {
	return nex.Credentials{Host: "h", Port: 1}, nil
}

func board(n int, category uint32) []nex.RankData {
	entries := make([]nex.RankData, n)
	for i := range entries {
		entries[i] = nex.RankData{
			PID:      uint64(10000 + i),
			UniqueID: uint64(20000 + i),
			Rank:     uint32(i + 1),
			Category: category,
			Score:    uint32(n - i),
		}
	}
	return entries
}

func testHarvester(t *testing.T, b *fakeLeaderboard) (*Harvester, *store.RankingRepo, *sql.DB) {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "ranking.db"), time.Minute)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.MigrateRankingDB(db); err != nil {
		t.Fatalf("MigrateRankingDB: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	repo := store.NewRankingRepo(db, logger)
	dialer := nex.DialerFunc(func(context.Context, nex.Credentials) (nex.Session, error) {
		return &fakeSession{board: b}, nil
	})
	tuning := config.NewDefaultTuning()
	tuning.RetryInitial = config.Duration(time.Millisecond)
	factory := session.NewFactory(dialer, staticBroker{}, tuning, logger)
	return NewHarvester(repo, factory, tuning, logger), repo, db
}

func harvestOne(t *testing.T, h *Harvester, category uint32) {
	t.Helper()
	title := catalog.Title{AID: 0xABCD, Name: "Test Title"}
	if err := h.HarvestTitle(context.Background(), title, []uint32{category}); err != nil {
		t.Fatalf("HarvestTitle: %v", err)
	}
}

func countRows(t *testing.T, db *sql.DB, category uint32) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ranking WHERE category = ?`, category).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestHarvestDrainsViaOffsetPaging(t *testing.T) {
	b := &fakeLeaderboard{entries: board(600, 7)}
	h, _, db := testHarvester(t, b)

	harvestOne(t, h, 7)

	if got := countRows(t, db, 7); got != 600 {
		t.Fatalf("rows: got %d, want 600", got)
	}
	if h.Rows() != 600 {
		t.Fatalf("Rows counter: got %d, want 600", h.Rows())
	}

	// Every row exactly once, ranks 1..600.
	var distinct int
	if err := db.QueryRow(`SELECT COUNT(DISTINCT rank) FROM ranking WHERE category = 7`).Scan(&distinct); err != nil {
		t.Fatal(err)
	}
	if distinct != 600 {
		t.Fatalf("distinct ranks: got %d, want 600", distinct)
	}
}

func TestHarvestFallsBackToAroundSelf(t *testing.T) {
	// Offset paging refuses past 1000 rows; the remaining 500 only come
	// through around-self windows.
	b := &fakeLeaderboard{entries: board(1500, 3), offsetCap: 1000}
	h, _, db := testHarvester(t, b)

	harvestOne(t, h, 3)

	if got := countRows(t, db, 3); got != 1500 {
		t.Fatalf("rows: got %d, want 1500", got)
	}
	var maxRank int
	if err := db.QueryRow(`SELECT MAX(rank) FROM ranking WHERE category = 3`).Scan(&maxRank); err != nil {
		t.Fatal(err)
	}
	if maxRank != 1500 {
		t.Fatalf("max rank: got %d, want 1500", maxRank)
	}
}

func TestHarvestResumesFromWatermark(t *testing.T) {
	b := &fakeLeaderboard{entries: board(400, 5)}
	h, repo, db := testHarvester(t, b)

	// First 100 rows already persisted by a previous run.
	if err := repo.InsertBatch("000000000000ABCD", b.entries[:100]); err != nil {
		t.Fatalf("seed: %v", err)
	}

	harvestOne(t, h, 5)

	if got := countRows(t, db, 5); got != 400 {
		t.Fatalf("rows: got %d, want 400 (resume must not duplicate)", got)
	}
	// Only the missing 300 were fetched this run.
	if h.Rows() != 300 {
		t.Fatalf("Rows counter: got %d, want 300", h.Rows())
	}
}

func TestHarvestSkipsFinishedCategory(t *testing.T) {
	b := &fakeLeaderboard{entries: board(50, 2)}
	h, repo, db := testHarvester(t, b)

	if err := repo.InsertBatch("000000000000ABCD", b.entries); err != nil {
		t.Fatalf("seed: %v", err)
	}
	callsBefore := b.calls

	harvestOne(t, h, 2)

	if got := countRows(t, db, 2); got != 50 {
		t.Fatalf("rows: got %d, want 50", got)
	}
	// Just the probe; no scan traffic for a finished category.
	if b.calls != callsBefore+1 {
		t.Fatalf("calls: got %d extra, want 1 (probe only)", b.calls-callsBefore)
	}
}

func TestHarvestAroundSelfFiltersOverlap(t *testing.T) {
	// Small board forces heavily overlapping around-self windows.
	b := &fakeLeaderboard{entries: board(40, 9), offsetCap: 10}
	h, _, db := testHarvester(t, b)

	harvestOne(t, h, 9)

	if got := countRows(t, db, 9); got != 40 {
		t.Fatalf("rows: got %d, want 40", got)
	}
	var dup int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM (SELECT rank FROM ranking WHERE category = 9 GROUP BY rank HAVING COUNT(*) > 1)`,
	).Scan(&dup); err != nil {
		t.Fatal(err)
	}
	if dup != 0 {
		t.Fatalf("duplicate ranks: got %d, want 0", dup)
	}
}

func TestHarvestInvalidCategoryIsSkipped(t *testing.T) {
	// Empty board: every probe fails with an RMC error.
	b := &fakeLeaderboard{entries: nil}
	h, _, db := testHarvester(t, b)

	harvestOne(t, h, 1)

	if got := countRows(t, db, 1); got != 0 {
		t.Fatalf("rows: got %d, want 0", got)
	}
}
