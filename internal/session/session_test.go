package session

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/config"
	"github.com/nex-archive/nexharvest/internal/nex"
)

type fakeSession struct {
	closed bool
}

func (s *fakeSession) Ranking() nex.RankingClient     { return nil }
func (s *fakeSession) DataStore() nex.DataStoreClient { return nil }
func (s *fakeSession) Close() error                   { s.closed = true; return nil }

type staticBroker struct{}

func (staticBroker) Resolve(context.Context, catalog.Title) (nex.Credentials, error) {
	return nex.Credentials{Host: "h", Port: 1}, nil
}

func fastTuning() *config.Tuning {
	t := config.NewDefaultTuning()
	t.RetryInitial = config.Duration(time.Millisecond)
	t.RetryMax = config.Duration(5 * time.Millisecond)
	return t
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestDoRetriesTransportAndRebuilds(t *testing.T) {
	var dials int
	dialer := nex.DialerFunc(func(context.Context, nex.Credentials) (nex.Session, error) {
		dials++
		return &fakeSession{}, nil
	})
	f := NewFactory(dialer, staticBroker{}, fastTuning(), quietLogger())

	h, err := f.Open(context.Background(), catalog.Title{AID: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	attempts := 0
	err = h.Do(context.Background(), "get_ranking", func(nex.Session) error {
		attempts++
		if attempts < 3 {
			return &nex.TransportError{Op: "get_ranking", Err: errors.New("connection is closed")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts: got %d, want 3", attempts)
	}
	// Initial dial plus one rebuild per transport failure.
	if dials != 3 {
		t.Fatalf("dials: got %d, want 3", dials)
	}
}

func TestDoSurfacesRMCErrorsUnchanged(t *testing.T) {
	dialer := nex.DialerFunc(func(context.Context, nex.Credentials) (nex.Session, error) {
		return &fakeSession{}, nil
	})
	f := NewFactory(dialer, staticBroker{}, fastTuning(), quietLogger())

	h, err := f.Open(context.Background(), catalog.Title{AID: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	rmc := &nex.RMCError{Name: nex.ErrNameNotImplemented}
	attempts := 0
	err = h.Do(context.Background(), "search_object", func(nex.Session) error {
		attempts++
		return rmc
	})
	if !errors.Is(err, rmc) {
		t.Fatalf("expected the RMC error back, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts: got %d, want 1 (no retries for RMC errors)", attempts)
	}
}

func TestOpenRetriesTransportDialFailures(t *testing.T) {
	var dials int
	dialer := nex.DialerFunc(func(context.Context, nex.Credentials) (nex.Session, error) {
		dials++
		if dials < 3 {
			return nil, &nex.TransportError{Op: "dial", Err: errors.New("connection refused")}
		}
		return &fakeSession{}, nil
	})
	f := NewFactory(dialer, staticBroker{}, fastTuning(), quietLogger())

	h, err := f.Open(context.Background(), catalog.Title{AID: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()
	if dials != 3 {
		t.Fatalf("dials: got %d, want 3", dials)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	dialer := nex.DialerFunc(func(context.Context, nex.Credentials) (nex.Session, error) {
		return &fakeSession{}, nil
	})
	tn := fastTuning()
	tn.RetryInitial = config.Duration(time.Hour)
	f := NewFactory(dialer, staticBroker{}, tn, quietLogger())

	h, err := f.Open(context.Background(), catalog.Title{AID: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err = h.Do(ctx, "get_metas", func(nex.Session) error {
		return &nex.TransportError{Op: "get_metas", Err: errors.New("connection failed")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
