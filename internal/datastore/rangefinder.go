package datastore

import (
	"context"
	"log"
	"time"

	"github.com/nex-archive/nexharvest/internal/nex"
	"github.com/nex-archive/nexharvest/internal/session"
	"github.com/nex-archive/nexharvest/internal/store"
)

const (
	// earliestTimestamp is 2012-01-01, before any production store existed.
	earliestTimestamp = 1325401200
	// monthStep walks the search window back one average month at a time.
	monthStep = 2629800
	// firstIDCeiling caps where the scan starts when the store won't say.
	firstIDCeiling = 900000
	// samplingSpan bounds a sampling run to a slice past the first id.
	samplingSpan = 200000
)

// Range brackets a scan: FirstDataID is where striped get_metas batches
// begin, LateDataID is a known-live id near the end of the store. Scanners
// stop once they pass LateDataID and a whole batch comes back empty.
type Range struct {
	FirstDataID uint64
	LateDataID  uint64
	LateTime    time.Time
}

// RangeFinder locates the live data-id range of a store.
type RangeFinder struct {
	repo   *store.DataStoreRepo
	logger *log.Logger
	// now is replaceable in tests.
	now func() time.Time
}

// NewRangeFinder returns a range finder backed by the object-store repo for
// resume floors.
func NewRangeFinder(repo *store.DataStoreRepo, logger *log.Logger) *RangeFinder {
	if logger == nil {
		logger = log.Default()
	}
	return &RangeFinder{repo: repo, logger: logger, now: time.Now}
}

// Find resolves the scan range for a game. ok is false when no late entry
// can be located, which means the store has nothing to scan. Previously
// persisted rows raise the start so a rerun resumes instead of repeating.
func (f *RangeFinder) Find(ctx context.Context, h *session.Handle, game string) (Range, bool, error) {
	var first uint64
	var haveFirst bool

	err := h.Do(ctx, "search_object first", func(s nex.Session) error {
		res, err := s.DataStore().SearchObject(ctx, nex.DataStoreSearchParam{
			ResultSize:   1,
			ResultOption: nex.ResultOptionAll,
		})
		if err != nil {
			return err
		}
		if len(res) > 0 {
			first = res[0].DataID
			haveFirst = true
			return nil
		}

		// Unbracketed search came back empty; retry from 2012 as a backup.
		res, err = s.DataStore().SearchObject(ctx, nex.DataStoreSearchParam{
			CreatedAfter: time.Unix(earliestTimestamp, 0),
			ResultSize:   1,
			ResultOption: nex.ResultOptionAll,
		})
		if err != nil {
			return err
		}
		if len(res) > 0 {
			first = res[0].DataID
			haveFirst = true
		}
		return nil
	})
	if err != nil {
		return Range{}, false, err
	}

	if !haveFirst || first > firstIDCeiling {
		first = firstIDCeiling
	}

	// Walk back from now one month at a time until something created after
	// the window edge shows up.
	var late uint64
	var lateTime time.Time
	var haveLate bool
	timestamp := f.now().Unix()
	for {
		var page []nex.DataStoreMetaInfo
		err := h.Do(ctx, "search_object late", func(s nex.Session) error {
			res, err := s.DataStore().SearchObject(ctx, nex.DataStoreSearchParam{
				CreatedAfter: time.Unix(timestamp, 0),
				ResultSize:   1,
				ResultOption: nex.ResultOptionAll,
			})
			if err != nil {
				return err
			}
			page = res
			return nil
		})
		if err != nil {
			return Range{}, false, err
		}
		if len(page) > 0 {
			late = page[0].DataID
			lateTime = page[0].CreateTime
			haveLate = true
			break
		}
		if timestamp > earliestTimestamp {
			timestamp -= monthStep
			continue
		}
		break
	}
	if !haveLate {
		return Range{}, false, nil
	}

	// Resume: never rescan ids a previous run already persisted.
	maxID, hasRows, err := f.repo.MaxDataID(game)
	if err != nil {
		return Range{}, false, err
	}
	if hasRows && first < maxID {
		first = maxID
	}

	f.logger.Printf("[datastore] First data id %d Late time %s Late data ID %d", first, lateTime, late)
	return Range{FirstDataID: first, LateDataID: late, LateTime: lateTime}, true, nil
}

// ClampForSampling narrows a range so a sampling run only walks a bounded
// slice of the store.
func (r Range) ClampForSampling() Range {
	if r.LateDataID > r.FirstDataID+samplingSpan {
		r.LateDataID = r.FirstDataID + samplingSpan
	}
	return r
}
