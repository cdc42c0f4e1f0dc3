package ranking

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/config"
	"github.com/nex-archive/nexharvest/internal/nex"
	"github.com/nex-archive/nexharvest/internal/session"
)

// categoryRanking answers the probe for a fixed set of categories and
// rejects everything else with an RMC error.
type categoryRanking struct {
	valid map[uint32]bool
}

func (c *categoryRanking) GetRanking(ctx context.Context, mode nex.RankingMode, category uint32, order nex.RankingOrderParam, uniqueID, pid uint64) (*nex.RankingResult, error) {
	if !c.valid[category] {
		return nil, &nex.RMCError{Name: nex.ErrNameRankingMissing}
	}
	return &nex.RankingResult{
		Data:  []nex.RankData{{PID: 1, UniqueID: 2, Rank: 1, Category: category}},
		Total: 1,
	}, nil
}

type probeSession struct {
	rk *categoryRanking
}

func (s *probeSession) Ranking() nex.RankingClient     { return s.rk }
func (s *probeSession) DataStore() nex.DataStoreClient { return nil }
func (s *probeSession) Close() error                   { return nil }

func TestValidCategoriesSweep(t *testing.T) {
	rk := &categoryRanking{valid: map[uint32]bool{0: true, 5: true, 999: true}}
	dialer := nex.DialerFunc(func(context.Context, nex.Credentials) (nex.Session, error) {
		return &probeSession{rk: rk}, nil
	})
	logger := log.New(io.Discard, "", 0)
	tuning := config.NewDefaultTuning()
	tuning.RetryInitial = config.Duration(time.Millisecond)
	factory := session.NewFactory(dialer, staticBroker{}, tuning, logger)

	h, err := factory.Open(context.Background(), catalog.Title{AID: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	got, err := NewProber(logger).ValidCategories(context.Background(), h, catalog.Title{AID: 1})
	if err != nil {
		t.Fatalf("ValidCategories: %v", err)
	}
	want := []uint32{0, 5, 999}
	if len(got) != len(want) {
		t.Fatalf("categories: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("categories: got %v, want %v", got, want)
		}
	}
}

func TestValidCategoriesAppendsSidecar(t *testing.T) {
	rk := &categoryRanking{valid: map[uint32]bool{}}
	dialer := nex.DialerFunc(func(context.Context, nex.Credentials) (nex.Session, error) {
		return &probeSession{rk: rk}, nil
	})
	logger := log.New(io.Discard, "", 0)
	tuning := config.NewDefaultTuning()
	tuning.RetryInitial = config.Duration(time.Millisecond)
	factory := session.NewFactory(dialer, staticBroker{}, tuning, logger)

	// This title carries hashed category seeds in the sidecar.
	title := catalog.Title{AID: 1407375153317888}
	h, err := factory.Open(context.Background(), title)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	got, err := NewProber(logger).ValidCategories(context.Background(), h, title)
	if err != nil {
		t.Fatalf("ValidCategories: %v", err)
	}
	if len(got) != 63 {
		t.Fatalf("sidecar categories: got %d, want 63", len(got))
	}
	if got[0] != 0x5DD7E214 {
		t.Fatalf("first sidecar category: got %#x, want 0x5DD7E214", got[0])
	}
}
