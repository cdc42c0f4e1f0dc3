package datastore

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/config"
	"github.com/nex-archive/nexharvest/internal/nex"
	"github.com/nex-archive/nexharvest/internal/session"
	"github.com/nex-archive/nexharvest/internal/store"
)

// FetchItem names one blob to download.
type FetchItem struct {
	DataID  uint64
	OwnerID uint64
}

// Scanner walks a store's data-id space with striped get_metas batches and
// hands payload-bearing ids to the blob fetchers.
type Scanner struct {
	repo    *store.DataStoreRepo
	factory *session.Factory
	tuning  *config.Tuning
	logger  *log.Logger

	rows *xsync.Counter
}

// NewScanner wires the object-store repo and session factory together.
func NewScanner(repo *store.DataStoreRepo, factory *session.Factory, tuning *config.Tuning, logger *log.Logger) *Scanner {
	if logger == nil {
		logger = log.Default()
	}
	return &Scanner{
		repo:    repo,
		factory: factory,
		tuning:  tuning,
		logger:  logger,
		rows:    xsync.NewCounter(),
	}
}

// Rows reports how many metadata records this scanner has persisted.
func (sc *Scanner) Rows() int64 { return sc.rows.Value() }

// Run scans [rng.FirstDataID, ...] with the configured worker count, feeding
// queue with payload-bearing ids. Worker w starts at FirstDataID + w*batch
// and advances by workers*batch, so the workers interleave without overlap.
// Each worker exits once it has passed LateDataID and a whole batch comes
// back empty; the last worker out closes the queue.
func (sc *Scanner) Run(ctx context.Context, title catalog.Title, rng Range, queue chan<- []FetchItem) error {
	workers := sc.tuning.MetaScanners
	batch := uint64(sc.tuning.MetaBatch)
	stride := batch * uint64(workers)

	var remaining atomic.Int32
	remaining.Store(int32(workers))

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			defer func() {
				if remaining.Add(-1) == 0 {
					close(queue)
				}
			}()

			handle, err := sc.factory.Open(gctx, title)
			if err != nil {
				return err
			}
			defer handle.Close()

			return sc.scanWorker(gctx, handle, title, rng, uint64(w)*batch, stride, queue)
		})
	}
	return g.Wait()
}

func (sc *Scanner) scanWorker(ctx context.Context, handle *session.Handle, title catalog.Title, rng Range, offset, stride uint64, queue chan<- []FetchItem) error {
	game := title.PrettyID()
	batch := uint64(sc.tuning.MetaBatch)
	cur := rng.FirstDataID + offset
	haveSeenLate := false

	for {
		sc.logger.Printf("[datastore] Starting at %d", cur)

		ids := make([]uint64, batch)
		for i := range ids {
			ids[i] = cur + uint64(i)
		}

		var res *nex.DataStoreMetasResult
		err := handle.Do(ctx, "get_metas", func(s nex.Session) error {
			r, err := s.DataStore().GetMetas(ctx, ids, nex.DataStoreGetMetaParam{ResultOption: nex.ResultOptionAll})
			if err != nil {
				return err
			}
			res = r
			return nil
		})
		if err != nil {
			return err
		}

		// Keep only ids the server acknowledged.
		entries := res.Entries[:0:0]
		for i, e := range res.Entries {
			if i < len(res.Results) && res.Results[i].OK() {
				entries = append(entries, e)
			}
		}

		if cur+batch-1 >= rng.LateDataID {
			haveSeenLate = true
		}

		if len(entries) == 0 {
			if haveSeenLate {
				sc.logger.Printf("[datastore] Finished with metas at %d", cur)
				return nil
			}
		} else {
			if err := sc.repo.InsertMetaBatch(game, entries); err != nil {
				return err
			}
			sc.rows.Add(int64(len(entries)))

			var items []FetchItem
			for _, e := range entries {
				if e.Size > 0 {
					items = append(items, FetchItem{DataID: e.DataID, OwnerID: e.OwnerID})
				}
			}
			if len(items) > 0 {
				select {
				case queue <- items:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			sc.logger.Printf("[datastore] Num entries %d at %d for %s", len(entries), cur, title.DisplayName())
		}

		cur += stride
	}
}
