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

// persistenceSlots is how many named save slots each owner can hold.
const persistenceSlots = 16

// PersistenceScanner resolves every (owner, slot) pair of a store through
// get_metas_multiple_param, recording the slot assignments and fetching the
// payloads inline.
type PersistenceScanner struct {
	repo    *store.DataStoreRepo
	factory *session.Factory
	fetcher *Fetcher
	tuning  *config.Tuning
	logger  *log.Logger
}

// NewPersistenceScanner wires the persistence pipeline.
func NewPersistenceScanner(repo *store.DataStoreRepo, factory *session.Factory, fetcher *Fetcher, tuning *config.Tuning, logger *log.Logger) *PersistenceScanner {
	if logger == nil {
		logger = log.Default()
	}
	return &PersistenceScanner{
		repo:    repo,
		factory: factory,
		fetcher: fetcher,
		tuning:  tuning,
		logger:  logger,
	}
}

// Run expands owners into (owner, slot) pairs for slots 0..15, splits them
// into batches, and drains the batches with the configured download pool.
func (p *PersistenceScanner) Run(ctx context.Context, title catalog.Title, owners []uint64) error {
	pairs := make([]nex.DataStorePersistenceTarget, 0, len(owners)*persistenceSlots)
	for _, owner := range owners {
		for slot := 0; slot < persistenceSlots; slot++ {
			pairs = append(pairs, nex.DataStorePersistenceTarget{OwnerID: owner, PersistenceID: uint16(slot)})
		}
	}

	batchSize := p.tuning.MetaBatch
	batches := make(chan []nex.DataStorePersistenceTarget, len(pairs)/batchSize+1)
	for start := 0; start < len(pairs); start += batchSize {
		end := start + batchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		batches <- pairs[start:end]
	}
	close(batches)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < p.tuning.PersistenceFetchers; w++ {
		g.Go(func() error {
			handle, err := p.factory.Open(gctx, title)
			if err != nil {
				return err
			}
			defer handle.Close()

			for batch := range batches {
				if err := p.scanBatch(gctx, handle, title, batch); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// scanBatch resolves one batch of slot targets. A refused multi-param call
// skips the whole batch; per-entry misses just drop that entry.
func (p *PersistenceScanner) scanBatch(ctx context.Context, handle *session.Handle, title catalog.Title, batch []nex.DataStorePersistenceTarget) error {
	game := title.PrettyID()
	p.logger.Printf("[datastore] Start download of %d pids", len(batch))

	var res *nex.DataStoreMetasResult
	err := handle.Do(ctx, "get_metas_multiple_param", func(s nex.Session) error {
		params := make([]nex.DataStoreGetMetaParam, len(batch))
		for i, target := range batch {
			params[i] = nex.DataStoreGetMetaParam{
				PersistenceTarget: target,
				ResultOption:      nex.ResultOptionAll,
			}
		}
		r, err := s.DataStore().GetMetasMultipleParam(ctx, params)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		if _, ok := nex.IsRMC(err); ok {
			p.logger.Printf("[datastore] Small issue: %v", err)
			return nil
		}
		return err
	}

	var metas []nex.DataStoreMetaInfo
	var targets []nex.DataStorePersistenceTarget
	for i, e := range res.Entries {
		if i < len(res.Results) && res.Results[i].OK() && i < len(batch) {
			metas = append(metas, e)
			targets = append(targets, batch[i])
		}
	}
	if len(metas) == 0 {
		return nil
	}

	for i, target := range targets {
		if err := p.repo.InsertPersistent(game, target.OwnerID, target.PersistenceID, metas[i].DataID); err != nil {
			return err
		}
	}
	if err := p.repo.InsertMetaBatch(game, metas); err != nil {
		return err
	}

	for _, m := range metas {
		if m.Size == 0 {
			continue
		}
		if err := p.fetcher.FetchOne(ctx, handle, game, m.DataID); err != nil {
			return err
		}
	}
	return nil
}
