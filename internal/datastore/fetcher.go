package datastore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/config"
	"github.com/nex-archive/nexharvest/internal/nex"
	"github.com/nex-archive/nexharvest/internal/session"
	"github.com/nex-archive/nexharvest/internal/store"
)

// HTTPDoer issues the signed CDN request. Production uses *http.Client;
// tests substitute.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads blob payloads named by FetchItems: a prepare_get_object
// ticket, then an HTTPS GET with the served headers. Payloads persist
// gzip-compressed; failures persist as error rows so no id is lost.
type Fetcher struct {
	repo    *store.DataStoreRepo
	factory *session.Factory
	tuning  *config.Tuning
	client  HTTPDoer
	logger  *log.Logger

	blobs *xsync.Counter
}

// NewFetcher wires the blob pipeline. A nil client gets a default one with
// the tuned timeout.
func NewFetcher(repo *store.DataStoreRepo, factory *session.Factory, tuning *config.Tuning, client HTTPDoer, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: tuning.HTTPTimeout.Std()}
	}
	return &Fetcher{
		repo:    repo,
		factory: factory,
		tuning:  tuning,
		client:  client,
		logger:  logger,
		blobs:   xsync.NewCounter(),
	}
}

// Blobs reports how many payloads this fetcher has persisted.
func (f *Fetcher) Blobs() int64 { return f.blobs.Value() }

// Run drains queue with workers download goroutines, each on its own
// session, until the queue closes and empties.
func (f *Fetcher) Run(ctx context.Context, title catalog.Title, workers int, queue <-chan []FetchItem) error {
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			handle, err := f.factory.Open(gctx, title)
			if err != nil {
				return err
			}
			defer handle.Close()

			for {
				select {
				case batch, ok := <-queue:
					if !ok {
						return nil
					}
					f.logger.Printf("[datastore] Start download of %d entries", len(batch))
					for _, item := range batch {
						if err := f.FetchOne(gctx, handle, title.PrettyID(), item.DataID); err != nil {
							return err
						}
					}
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}
	return g.Wait()
}

// FetchOne downloads a single blob and persists the outcome. An RMC refusal
// or HTTP failure becomes an error row and a nil return; only transport,
// storage and context failures propagate.
func (f *Fetcher) FetchOne(ctx context.Context, handle *session.Handle, game string, dataID uint64) error {
	f.logger.Printf("[datastore] Start %d", dataID)
	start := time.Now()

	var ticket *nex.DataStoreReqGetInfo
	err := handle.Do(ctx, "prepare_get_object", func(s nex.Session) error {
		t, err := s.DataStore().PrepareGetObject(ctx, nex.DataStorePrepareGetParam{DataID: dataID})
		if err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		if _, ok := nex.IsRMC(err); ok {
			return f.repo.InsertDataError(game, dataID, err.Error())
		}
		return err
	}

	body, err := f.download(ctx, ticket)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return f.repo.InsertDataError(game, dataID, err.Error())
	}

	compressed, err := gzipBytes(body)
	if err != nil {
		return err
	}
	if err := f.repo.InsertData(game, dataID, ticket.URL, compressed); err != nil {
		return err
	}
	f.blobs.Add(1)
	f.logger.Printf("[datastore] Downloaded %d in %s", dataID, time.Since(start).Round(time.Millisecond))
	return nil
}

// download performs the CDN GET. Ticket URLs come scheme-less off the wire.
func (f *Fetcher) download(ctx context.Context, ticket *nex.DataStoreReqGetInfo) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+ticket.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", ticket.URL, err)
	}
	for k, v := range ticket.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ticket.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ticket.URL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", ticket.URL, resp.StatusCode)
	}
	return body, nil
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}
