package datastore

import (
	"context"
	"database/sql"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/nex-archive/nexharvest/internal/broker"
	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/config"
	"github.com/nex-archive/nexharvest/internal/nex"
	"github.com/nex-archive/nexharvest/internal/session"
	"github.com/nex-archive/nexharvest/internal/store"
)

// fakeStore serves a fixed object store for scanner, fetcher and
// persistence tests.
type fakeStore struct {
	objects map[uint64]nex.DataStoreMetaInfo
	// searchErr overrides every SearchObject call when set.
	searchErr error
	// emptyUnbracketed makes unbracketed ascending searches return nothing,
	// mimicking servers that only answer time-bracketed queries.
	emptyUnbracketed bool
	// metasErr fails whole get_metas calls when set.
	metasErr error
	// multiErr fails whole get_metas_multiple_param calls when set.
	multiErr error
	// slots maps owner<<16|slot to a data id.
	slots map[uint64]uint64
	// tickets maps data id to a CDN path; ids without one refuse
	// prepare_get_object.
	tickets map[uint64]string
}

func (f *fakeStore) sorted() []nex.DataStoreMetaInfo {
	out := make([]nex.DataStoreMetaInfo, 0, len(f.objects))
	for _, m := range f.objects {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataID < out[j].DataID })
	return out
}

func (f *fakeStore) SearchObject(ctx context.Context, param nex.DataStoreSearchParam) ([]nex.DataStoreMetaInfo, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.emptyUnbracketed && param.CreatedAfter.IsZero() && param.ResultOrder == 0 {
		return nil, nil
	}
	all := f.sorted()
	if !param.CreatedAfter.IsZero() {
		filtered := all[:0:0]
		for _, m := range all {
			if !m.CreateTime.Before(param.CreatedAfter) {
				filtered = append(filtered, m)
			}
		}
		all = filtered
	}
	if param.ResultOrder == 1 {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}
	if n := int(param.ResultSize); n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (f *fakeStore) GetMetas(ctx context.Context, dataIDs []uint64, param nex.DataStoreGetMetaParam) (*nex.DataStoreMetasResult, error) {
	if f.metasErr != nil {
		return nil, f.metasErr
	}
	res := &nex.DataStoreMetasResult{
		Entries: make([]nex.DataStoreMetaInfo, len(dataIDs)),
		Results: make([]nex.Result, len(dataIDs)),
	}
	for i, id := range dataIDs {
		if m, ok := f.objects[id]; ok {
			res.Entries[i] = m
		} else {
			res.Results[i] = nex.Result{Err: &nex.RMCError{Name: nex.ErrNameDataStoreMissing}}
		}
	}
	return res, nil
}

func (f *fakeStore) GetMetasMultipleParam(ctx context.Context, params []nex.DataStoreGetMetaParam) (*nex.DataStoreMetasResult, error) {
	if f.multiErr != nil {
		return nil, f.multiErr
	}
	res := &nex.DataStoreMetasResult{
		Entries: make([]nex.DataStoreMetaInfo, len(params)),
		Results: make([]nex.Result, len(params)),
	}
	for i, p := range params {
		key := p.PersistenceTarget.OwnerID<<16 | uint64(p.PersistenceTarget.PersistenceID)
		id, ok := f.slots[key]
		if !ok {
			res.Results[i] = nex.Result{Err: &nex.RMCError{Name: nex.ErrNameDataStoreMissing}}
			continue
		}
		res.Entries[i] = f.objects[id]
	}
	return res, nil
}

func (f *fakeStore) PrepareGetObject(ctx context.Context, param nex.DataStorePrepareGetParam) (*nex.DataStoreReqGetInfo, error) {
	path, ok := f.tickets[param.DataID]
	if !ok {
		return nil, &nex.RMCError{Name: nex.ErrNameDataStoreMissing}
	}
	return &nex.DataStoreReqGetInfo{
		URL:     path,
		Headers: map[string]string{"X-Ticket": "signed"},
		Size:    f.objects[param.DataID].Size,
	}, nil
}

func (f *fakeStore) GetRatings(context.Context, []uint64, uint64) error { return nil }
func (f *fakeStore) GetSpecificMetaV1(context.Context, []uint64) error  { return nil }
func (f *fakeStore) GetPasswordInfos(context.Context, []uint64) error   { return nil }
func (f *fakeStore) GetObjectInfos(context.Context, []uint64) error     { return nil }
func (f *fakeStore) PrepareGetObjectOrMetaBinary(context.Context, nex.DataStorePrepareGetParam) error {
	return nil
}
func (f *fakeStore) PrepareGetObjectV1(context.Context, nex.DataStorePrepareGetParam) error {
	return nil
}
func (f *fakeStore) SearchObjectLight(context.Context, nex.DataStoreSearchParam) error { return nil }

type fakeSession struct {
	ds nex.DataStoreClient
}

func (s *fakeSession) Ranking() nex.RankingClient     { return nil }
func (s *fakeSession) DataStore() nex.DataStoreClient { return s.ds }
func (s *fakeSession) Close() error                   { return nil }

type staticBroker struct{}

func (staticBroker) Resolve(context.Context, catalog.Title) (nex.Credentials, error) {
	return nex.Credentials{Host: "h", Port: 1}, nil
}

var _ broker.Broker = staticBroker{}

// fakeHTTP serves "payload-<path>" for every ticket URL.
type fakeHTTP struct {
	status int
}

func (f *fakeHTTP) Do(req *http.Request) (*http.Response, error) {
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	body := "payload-" + req.URL.Host + req.URL.Path
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func fastTuning() *config.Tuning {
	t := config.NewDefaultTuning()
	t.RetryInitial = config.Duration(time.Millisecond)
	t.RetryMax = config.Duration(5 * time.Millisecond)
	return t
}

func testFactory(fs *fakeStore, tuning *config.Tuning) *session.Factory {
	dialer := nex.DialerFunc(func(context.Context, nex.Credentials) (nex.Session, error) {
		return &fakeSession{ds: fs}, nil
	})
	return session.NewFactory(dialer, staticBroker{}, tuning, quietLogger())
}

func testRepo(t *testing.T) (*store.DataStoreRepo, *sql.DB) {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "datastore.db"), time.Minute)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.MigrateDataStoreDB(db); err != nil {
		t.Fatalf("MigrateDataStoreDB: %v", err)
	}
	return store.NewDataStoreRepo(db, quietLogger()), db
}

func openHandle(t *testing.T, factory *session.Factory) *session.Handle {
	t.Helper()
	h, err := factory.Open(context.Background(), catalog.Title{AID: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}
