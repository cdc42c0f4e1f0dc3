package datastore

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/config"
	"github.com/nex-archive/nexharvest/internal/nex"
	"github.com/nex-archive/nexharvest/internal/session"
	"github.com/nex-archive/nexharvest/internal/store"
)

// Backfill resolves a known list of data ids through get_metas and downloads
// the payload-bearing ones inline. Leaderboard rows whose param column
// references store objects are drained this way.
type Backfill struct {
	repo    *store.DataStoreRepo
	factory *session.Factory
	fetcher *Fetcher
	tuning  *config.Tuning
	logger  *log.Logger
}

// NewBackfill wires the backfill pipeline.
func NewBackfill(repo *store.DataStoreRepo, factory *session.Factory, fetcher *Fetcher, tuning *config.Tuning, logger *log.Logger) *Backfill {
	if logger == nil {
		logger = log.Default()
	}
	return &Backfill{
		repo:    repo,
		factory: factory,
		fetcher: fetcher,
		tuning:  tuning,
		logger:  logger,
	}
}

// Run splits ids into batches and drains them with the configured download
// pool. Ids appear in the order given; duplicates are resolved again.
func (b *Backfill) Run(ctx context.Context, title catalog.Title, ids []uint64) error {
	batchSize := b.tuning.MetaBatch
	batches := make(chan []uint64, len(ids)/batchSize+1)
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches <- ids[start:end]
	}
	close(batches)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < b.tuning.PersistenceFetchers; w++ {
		g.Go(func() error {
			handle, err := b.factory.Open(gctx, title)
			if err != nil {
				return err
			}
			defer handle.Close()

			for batch := range batches {
				if err := b.runBatch(gctx, handle, title, batch); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// runBatch resolves one batch of ids. When the store refuses get_metas
// outright the ids are downloaded blind; per-entry misses drop that entry.
func (b *Backfill) runBatch(ctx context.Context, handle *session.Handle, title catalog.Title, batch []uint64) error {
	game := title.PrettyID()
	b.logger.Printf("[datastore] Start download of %d entries", len(batch))

	var res *nex.DataStoreMetasResult
	err := handle.Do(ctx, "get_metas", func(s nex.Session) error {
		r, err := s.DataStore().GetMetas(ctx, batch, nex.DataStoreGetMetaParam{ResultOption: nex.ResultOptionAll})
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		if _, ok := nex.IsRMC(err); !ok {
			return err
		}
		b.logger.Printf("[datastore] This game doesn't seem to support get_metas: %v", err)
		for _, id := range batch {
			if err := b.fetcher.FetchOne(ctx, handle, game, id); err != nil {
				return err
			}
		}
		return nil
	}

	entries := res.Entries[:0:0]
	for i, e := range res.Entries {
		if i < len(res.Results) && res.Results[i].OK() {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	if err := b.repo.InsertMetaBatch(game, entries); err != nil {
		return err
	}

	for _, e := range entries {
		if e.Size == 0 {
			continue
		}
		if err := b.fetcher.FetchOne(ctx, handle, game, e.DataID); err != nil {
			return err
		}
	}
	return nil
}
