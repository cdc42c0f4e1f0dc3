package ranking

import (
	"context"
	"log"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/config"
	"github.com/nex-archive/nexharvest/internal/nex"
	"github.com/nex-archive/nexharvest/internal/session"
	"github.com/nex-archive/nexharvest/internal/store"
)

// offsetInterval is the page size of every enumeration call.
const offsetInterval = 255

// Harvester drains a title's leaderboard categories into the ranking store.
type Harvester struct {
	repo    *store.RankingRepo
	factory *session.Factory
	tuning  *config.Tuning
	logger  *log.Logger

	// rows counts persisted entries across all category workers.
	rows *xsync.Counter
}

// NewHarvester wires the ranking store and session factory together.
func NewHarvester(repo *store.RankingRepo, factory *session.Factory, tuning *config.Tuning, logger *log.Logger) *Harvester {
	if logger == nil {
		logger = log.Default()
	}
	return &Harvester{
		repo:    repo,
		factory: factory,
		tuning:  tuning,
		logger:  logger,
		rows:    xsync.NewCounter(),
	}
}

// Rows reports how many leaderboard entries this harvester has persisted.
func (h *Harvester) Rows() int64 { return h.rows.Value() }

// HarvestTitle drains every category of a title. Categories run in
// subgroups; each subgroup's categories harvest concurrently on their own
// sessions, and the next subgroup starts once the whole previous one joins.
func (h *Harvester) HarvestTitle(ctx context.Context, title catalog.Title, categories []uint32) error {
	size := h.tuning.RankingSubgroup
	for start := 0; start < len(categories); start += size {
		end := start + size
		if end > len(categories) {
			end = len(categories)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, category := range categories[start:end] {
			category := category
			g.Go(func() error {
				handle, err := h.factory.Open(gctx, title)
				if err != nil {
					return err
				}
				defer handle.Close()
				return h.harvestCategory(gctx, handle, title, category)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// harvestCategory runs the drain state machine for one category: probe the
// total, resume or start an offset scan, then cursor around the last seen
// player until the window stops producing new ranks. RMC errors end a phase;
// only transport-level trouble and storage failures abort the category.
func (h *Harvester) harvestCategory(ctx context.Context, handle *session.Handle, title catalog.Title, category uint32) error {
	h.logger.Printf("[ranking] Starting category %d", category)
	game := title.PrettyID()

	// One request to learn the total and a seed cursor, in case offset
	// paging fails on the first call.
	var probe *nex.RankingResult
	err := handle.Do(ctx, "get_ranking probe", func(s nex.Session) error {
		order := nex.RankingOrderParam{Offset: 0, Count: 1}
		res, err := s.Ranking().GetRanking(ctx, nex.RankingModeGlobal, category, order, 0, 0)
		if err != nil {
			return err
		}
		probe = res
		return nil
	})
	if err != nil {
		if _, ok := nex.IsRMC(err); ok {
			h.logger.Printf("[ranking] Issue with %s at category %d: %v", title.DisplayName(), category, err)
			return nil
		}
		return err
	}
	if len(probe.Data) == 0 {
		h.logger.Printf("[ranking] Category %d of %s is empty", category, title.DisplayName())
		return nil
	}

	seen, err := h.repo.CountCategory(game, category)
	if err != nil {
		return err
	}

	cursor := store.Watermark{
		Rank:     0,
		UniqueID: probe.Data[0].UniqueID,
		PID:      probe.Data[0].PID,
	}

	switch {
	case seen >= int64(probe.Total):
		h.logger.Printf("[ranking] Stopping category %d, already finished", category)
		return nil

	case seen == 0:
		n, err := h.offsetScan(ctx, handle, title, category, &cursor)
		if err != nil {
			return err
		}
		seen += n
		// Servers that cap offset paging still serve the tail through
		// around-self windows; run it even after a complete scan, it
		// terminates immediately when nothing new comes back.
		return h.aroundSelfScan(ctx, handle, title, category, &cursor, seen)

	default:
		w, err := h.repo.LastWatermark(game, category)
		if err != nil {
			return err
		}
		if w != nil {
			cursor = *w
		}
		return h.aroundSelfScan(ctx, handle, title, category, &cursor, seen)
	}
}

// offsetScan pages the global leaderboard by offset until the server refuses
// the next page. Returns how many entries were persisted.
func (h *Harvester) offsetScan(ctx context.Context, handle *session.Handle, title catalog.Title, category uint32, cursor *store.Watermark) (int64, error) {
	game := title.PrettyID()
	var seen int64
	var offset uint32

	for {
		var page *nex.RankingResult
		err := handle.Do(ctx, "get_ranking offset", func(s nex.Session) error {
			order := nex.RankingOrderParam{
				OrderCalc: nex.OrdinalRanking,
				Offset:    offset,
				Count:     offsetInterval,
			}
			res, err := s.Ranking().GetRanking(ctx, nex.RankingModeGlobal, category, order, 0, 0)
			if err != nil {
				return err
			}
			page = res
			return nil
		})
		if err != nil {
			if _, ok := nex.IsRMC(err); ok {
				h.logger.Printf("[ranking] Have %d and RMCError with %s at category %d: %v", seen, title.DisplayName(), category, err)
				return seen, nil
			}
			return seen, err
		}
		if len(page.Data) == 0 {
			return seen, nil
		}

		if err := h.repo.InsertBatch(game, page.Data); err != nil {
			return seen, err
		}
		last := page.Data[len(page.Data)-1]
		cursor.Rank = last.Rank
		cursor.UniqueID = last.UniqueID
		cursor.PID = last.PID
		seen += int64(len(page.Data))
		h.rows.Add(int64(len(page.Data)))
		offset += uint32(len(page.Data))

		h.logger.Printf("[ranking] Have %d out of %d for category %d for %s", seen, page.Total, category, title.DisplayName())
	}
}

// aroundSelfScan cursors past the watermark with around-self windows,
// keeping only ranks beyond it. A window that yields nothing new means the
// category is drained.
func (h *Harvester) aroundSelfScan(ctx context.Context, handle *session.Handle, title catalog.Title, category uint32, cursor *store.Watermark, seen int64) error {
	game := title.PrettyID()

	for {
		var page *nex.RankingResult
		err := handle.Do(ctx, "get_ranking around_self", func(s nex.Session) error {
			order := nex.RankingOrderParam{
				OrderCalc: nex.OrdinalRanking,
				Offset:    0,
				Count:     offsetInterval,
			}
			res, err := s.Ranking().GetRanking(ctx, nex.RankingModeGlobalAroundSelf, category, order, cursor.UniqueID, cursor.PID)
			if err != nil {
				return err
			}
			page = res
			return nil
		})
		if err != nil {
			if _, ok := nex.IsRMC(err); ok {
				h.logger.Printf("[ranking] Have %d and RMCError with %s at category %d: %v", seen, title.DisplayName(), category, err)
				return nil
			}
			return err
		}

		fresh := page.Data[:0:0]
		for _, e := range page.Data {
			if e.Rank > cursor.Rank {
				fresh = append(fresh, e)
			}
		}
		// The window only repeats known players; the category is drained.
		if len(fresh) == 0 {
			return nil
		}

		if err := h.repo.InsertBatch(game, fresh); err != nil {
			return err
		}
		last := fresh[len(fresh)-1]
		cursor.Rank = last.Rank
		cursor.UniqueID = last.UniqueID
		cursor.PID = last.PID
		seen += int64(len(fresh))
		h.rows.Add(int64(len(fresh)))

		h.logger.Printf("[ranking] Have %d out of %d for category %d for %s", seen, page.Total, category, title.DisplayName())
	}
}
