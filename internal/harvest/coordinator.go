package harvest

import (
	"context"
	"database/sql"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/nex-archive/nexharvest/internal/broker"
	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/config"
	"github.com/nex-archive/nexharvest/internal/datastore"
	"github.com/nex-archive/nexharvest/internal/nex"
	"github.com/nex-archive/nexharvest/internal/ranking"
	"github.com/nex-archive/nexharvest/internal/session"
	"github.com/nex-archive/nexharvest/internal/store"
)

// Coordinator runs harvest modes over a slice of catalog titles. One
// coordinator owns the databases for its run; per-title sessions come from
// the broker and dialer it was built with.
type Coordinator struct {
	dialer nex.Dialer
	broker broker.Broker
	tuning *config.Tuning
	logger *log.Logger

	rankingDB   *sql.DB
	datastoreDB *sql.DB

	// httpClient overrides the blob download client; nil means a default
	// client with the tuned timeout.
	httpClient datastore.HTTPDoer
}

// New builds a coordinator. Either database may be nil when the mode does
// not touch it.
func New(dialer nex.Dialer, b broker.Broker, tuning *config.Tuning, logger *log.Logger, rankingDB, datastoreDB *sql.DB) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		dialer:      dialer,
		broker:      b,
		tuning:      tuning,
		logger:      logger,
		rankingDB:   rankingDB,
		datastoreDB: datastoreDB,
	}
}

// SetHTTPClient replaces the blob download client. Tests substitute fakes.
func (c *Coordinator) SetHTTPClient(client datastore.HTTPDoer) { c.httpClient = client }

func (c *Coordinator) factory() *session.Factory {
	return session.NewFactory(c.dialer, c.broker, c.tuning, c.logger)
}

// RunRanking drains the leaderboards of every title in the slice: discover
// categories, then harvest them in subgroups. A title whose sessions cannot
// even be established is logged and skipped, not fatal to the run.
func (c *Coordinator) RunRanking(ctx context.Context, titles []catalog.Title) error {
	repo := store.NewRankingRepo(c.rankingDB, c.logger)
	factory := c.factory()
	prober := ranking.NewProber(c.logger)

	for i, title := range titles {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.logger.Printf("[harvest] %s (%d out of %d)", title.DisplayName(), i, len(titles))

		err := func() error {
			handle, err := factory.Open(ctx, title)
			if err != nil {
				return err
			}
			defer handle.Close()

			categories, err := prober.ValidCategories(ctx, handle, title)
			if err != nil {
				return err
			}
			if len(categories) == 0 {
				c.logger.Printf("[harvest] %s has no categories", title.DisplayName())
				return nil
			}

			h := ranking.NewHarvester(repo, factory, c.tuning, c.logger)
			if err := h.HarvestTitle(ctx, title, categories); err != nil {
				return err
			}
			c.logger.Printf("[harvest] %s done, %d rows", title.DisplayName(), h.Rows())
			return nil
		}()
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			c.logger.Printf("[harvest] skipping %s: %v", title.DisplayName(), err)
		}
	}
	return nil
}

// StoreOptions select the object-store harvest variant.
type StoreOptions struct {
	// Sampling bounds each store to a slice past its first id.
	Sampling bool
	// ResumeFromDB skips scanning and instead drains the ids persisted by
	// earlier runs that still lack payloads, with the larger download pool.
	ResumeFromDB bool
	// MetasOnly skips blob downloads entirely.
	MetasOnly bool
}

// RunDataStore harvests the object store of every datastore-capable title:
// probe search support, bracket the id range, then scan metadata and fetch
// blobs concurrently until both pools drain.
func (c *Coordinator) RunDataStore(ctx context.Context, titles []catalog.Title, opts StoreOptions) error {
	repo := store.NewDataStoreRepo(c.datastoreDB, c.logger)
	factory := c.factory()

	for i, title := range titles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !title.DataStore() {
			continue
		}
		c.logger.Printf("[harvest] %s (%d out of %d)", title.DisplayName(), i, len(titles))

		if err := c.harvestStore(ctx, factory, repo, title, opts); err != nil {
			if ctx.Err() != nil {
				return err
			}
			c.logger.Printf("[harvest] skipping %s: %v", title.DisplayName(), err)
		}
	}
	return nil
}

func (c *Coordinator) harvestStore(ctx context.Context, factory *session.Factory, repo *store.DataStoreRepo, title catalog.Title, opts StoreOptions) error {
	handle, err := factory.Open(ctx, title)
	if err != nil {
		return err
	}
	defer handle.Close()

	ok, err := datastore.SearchWorks(ctx, handle)
	if err != nil {
		return err
	}
	if !ok {
		c.logger.Printf("[harvest] %s does not support search", title.DisplayName())
		return nil
	}
	c.logger.Printf("[harvest] %s DOES support search", title.DisplayName())

	game := title.PrettyID()
	finder := datastore.NewRangeFinder(repo, c.logger)
	rng, found, err := finder.Find(ctx, handle, game)
	if err != nil {
		return err
	}
	if !found {
		c.logger.Printf("[harvest] %s has no late entry, nothing to scan", title.DisplayName())
		return nil
	}
	if opts.Sampling {
		rng = rng.ClampForSampling()
	}

	// Every variant drains the unfetched backlog first, so reruns finish
	// downloads an earlier run left behind even though the resume floor
	// keeps the scanners from revisiting those ids.
	ids, err := repo.UnfetchedEntries(game)
	if err != nil {
		return err
	}
	c.logger.Printf("[harvest] %s done reading from DB, %d pending downloads", title.DisplayName(), len(ids))
	var pending [][]datastore.FetchItem
	batch := c.tuning.MetaBatch
	for start := 0; start < len(ids); start += batch {
		end := start + batch
		if end > len(ids) {
			end = len(ids)
		}
		items := make([]datastore.FetchItem, 0, end-start)
		for _, id := range ids[start:end] {
			items = append(items, datastore.FetchItem{DataID: id})
		}
		pending = append(pending, items)
	}

	queue := make(chan []datastore.FetchItem, c.tuning.BlobQueueDepth)
	scanner := datastore.NewScanner(repo, factory, c.tuning, c.logger)

	fetchWorkers := c.tuning.BlobFetchers
	if opts.ResumeFromDB {
		fetchWorkers = c.tuning.PersistenceFetchers
	}

	g, gctx := errgroup.WithContext(ctx)

	if opts.MetasOnly {
		g.Go(func() error {
			for range queue {
			}
			return nil
		})
	} else {
		fetcher := datastore.NewFetcher(repo, factory, c.tuning, c.httpClient, c.logger)
		g.Go(func() error {
			return fetcher.Run(gctx, title, fetchWorkers, queue)
		})
	}

	g.Go(func() error {
		// Backlog first so it drains even if the scan dies early.
		for _, items := range pending {
			select {
			case queue <- items:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		// Resume runs only drain the backlog; everything else scans, and
		// the scanner closes the queue once every stripe is past the late
		// id.
		if opts.ResumeFromDB {
			close(queue)
			return nil
		}
		return scanner.Run(gctx, title, rng, queue)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.Printf("[harvest] %s store done, %d metas", title.DisplayName(), scanner.Rows())
	return nil
}

// RunFromRanking backfills the object store of each datastore-capable title
// from the param references of its already-harvested leaderboard rows: the
// ids resolve through get_metas and their payloads download inline.
func (c *Coordinator) RunFromRanking(ctx context.Context, titles []catalog.Title) error {
	rankingRepo := store.NewRankingRepo(c.rankingDB, c.logger)
	repo := store.NewDataStoreRepo(c.datastoreDB, c.logger)
	factory := c.factory()

	for i, title := range titles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !title.DataStore() {
			continue
		}
		c.logger.Printf("[harvest] %s (%d out of %d)", title.DisplayName(), i, len(titles))

		ids, err := rankingRepo.ParamRefs(title.PrettyID())
		if err != nil {
			return err
		}
		c.logger.Printf("[harvest] %s done reading from DB, %d entries", title.DisplayName(), len(ids))
		if len(ids) == 0 {
			continue
		}

		fetcher := datastore.NewFetcher(repo, factory, c.tuning, c.httpClient, c.logger)
		bf := datastore.NewBackfill(repo, factory, fetcher, c.tuning, c.logger)
		if err := bf.Run(ctx, title, ids); err != nil {
			if ctx.Err() != nil {
				return err
			}
			c.logger.Printf("[harvest] skipping %s: %v", title.DisplayName(), err)
		}
	}
	return nil
}

// RunGetInfo surveys each datastore-capable title: search support, the live
// id range, and which informational verbs the store answers.
func (c *Coordinator) RunGetInfo(ctx context.Context, titles []catalog.Title) error {
	factory := c.factory()

	for _, title := range titles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !title.DataStore() {
			continue
		}

		err := func() error {
			handle, err := factory.Open(ctx, title)
			if err != nil {
				return err
			}
			defer handle.Close()

			ok, err := datastore.SearchWorks(ctx, handle)
			if err != nil {
				return err
			}
			if !ok {
				c.logger.Printf("[harvest] %s does not support search", title.DisplayName())
				return nil
			}

			info, have, err := datastore.InitialInfo(ctx, handle)
			if err != nil {
				return err
			}
			if have {
				c.logger.Printf("[harvest] %s,%d,%d,%d,%d",
					title.PrettyID(),
					info.FirstDataID, info.FirstCreateTime.Unix(),
					info.LastDataID, info.LastCreateTime.Unix())
			}

			_, err = datastore.ProbeCapabilities(ctx, handle, c.logger)
			return err
		}()
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			c.logger.Printf("[harvest] skipping %s: %v", title.DisplayName(), err)
		}
	}
	return nil
}

// OwnerSource names where RunPersistence finds its owner ids.
type OwnerSource int

const (
	// OwnersFromStore uses owners already seen in the object-store rows.
	OwnersFromStore OwnerSource = iota
	// OwnersFromRanking uses principals seen on the title's leaderboards.
	OwnersFromRanking
)

// RunPersistence resolves every (owner, slot) persistence pair of each
// datastore-capable title and archives the slot payloads.
func (c *Coordinator) RunPersistence(ctx context.Context, titles []catalog.Title, src OwnerSource) error {
	repo := store.NewDataStoreRepo(c.datastoreDB, c.logger)
	factory := c.factory()

	for _, title := range titles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !title.DataStore() {
			continue
		}

		game := title.PrettyID()
		var owners []uint64
		var err error
		switch src {
		case OwnersFromRanking:
			owners, err = store.NewRankingRepo(c.rankingDB, c.logger).DistinctPIDs(game)
		default:
			owners, err = repo.DistinctOwners(game)
		}
		if err != nil {
			return err
		}
		c.logger.Printf("[harvest] Done reading from DB, %d owners for %s", len(owners), title.DisplayName())
		if len(owners) == 0 {
			continue
		}

		err = func() error {
			handle, err := factory.Open(ctx, title)
			if err != nil {
				return err
			}
			defer handle.Close()

			ok, err := datastore.SearchWorks(ctx, handle)
			if err != nil {
				return err
			}
			if !ok {
				c.logger.Printf("[harvest] %s does not support search", title.DisplayName())
				return nil
			}

			fetcher := datastore.NewFetcher(repo, factory, c.tuning, c.httpClient, c.logger)
			ps := datastore.NewPersistenceScanner(repo, factory, fetcher, c.tuning, c.logger)
			return ps.Run(ctx, title, owners)
		}()
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			c.logger.Printf("[harvest] skipping %s: %v", title.DisplayName(), err)
		}
	}
	return nil
}

// CheckOverlap reports the titles present in both catalogs.
func (c *Coordinator) CheckOverlap(a, b []catalog.Title) {
	ids := catalog.Overlap(a, b)
	for _, id := range ids {
		c.logger.Printf("[harvest] overlap %016X", id)
	}
	c.logger.Printf("[harvest] %d titles overlap", len(ids))
}

// FilterByAID narrows titles to one specific title id.
func FilterByAID(titles []catalog.Title, aid uint64) []catalog.Title {
	var out []catalog.Title
	for _, t := range titles {
		if t.AID == aid {
			out = append(out, t)
		}
	}
	return out
}
