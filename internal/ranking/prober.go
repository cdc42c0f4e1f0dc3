// Package ranking harvests leaderboards: discovering which categories a
// title serves, then draining each category through offset paging and
// around-self cursoring until the server has nothing new to give.
package ranking

import (
	"context"
	"log"

	"github.com/nex-archive/nexharvest/internal/catalog"
	"github.com/nex-archive/nexharvest/internal/nex"
	"github.com/nex-archive/nexharvest/internal/session"
)

// probeSweepLimit bounds the dense category sweep. Titles with hashed
// category ids are covered by the sidecar instead.
const probeSweepLimit = 1000

// Prober discovers a title's valid categories with single-entry probes.
type Prober struct {
	logger *log.Logger
}

// NewProber returns a category prober.
func NewProber(logger *log.Logger) *Prober {
	if logger == nil {
		logger = log.Default()
	}
	return &Prober{logger: logger}
}

// ValidCategories sweeps categories 0..999 and returns the ones the server
// answers for, plus any sidecar seeds for the title. A category that fails
// with an RMC error does not exist; transport failures retry inside the
// handle and never mark a category invalid.
func (p *Prober) ValidCategories(ctx context.Context, h *session.Handle, title catalog.Title) ([]uint32, error) {
	var valid []uint32

	for category := uint32(0); category < probeSweepLimit; category++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := h.Do(ctx, "get_ranking probe", func(s nex.Session) error {
			order := nex.RankingOrderParam{Offset: 0, Count: 1}
			_, err := s.Ranking().GetRanking(ctx, nex.RankingModeGlobal, category, order, 0, 0)
			return err
		})
		if err == nil {
			valid = append(valid, category)
			p.logger.Printf("[ranking] Found category %d", category)
		} else if _, ok := nex.IsRMC(err); !ok {
			return nil, err
		}

		if (category+1)%10 == 0 {
			p.logger.Printf("[ranking] Tested %d categories", category+1)
		}
	}

	valid = append(valid, catalog.ExtraCategories(title.AID)...)
	return valid, nil
}
