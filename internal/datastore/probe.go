// Package datastore harvests object stores: probing what a server supports,
// locating the live data-id range, scanning metadata in striped batches, and
// fetching blob payloads through signed CDN tickets.
package datastore

import (
	"context"
	"log"
	"time"

	"github.com/nex-archive/nexharvest/internal/nex"
	"github.com/nex-archive/nexharvest/internal/session"
)

// SearchWorks probes whether a title's object store answers search_object.
// A clean response means yes. DataStore::NotFound also means yes: the verb
// ran, the store is just empty. Core::NotImplemented and anything else
// means no.
func SearchWorks(ctx context.Context, h *session.Handle) (bool, error) {
	err := h.Do(ctx, "search_object probe", func(s nex.Session) error {
		param := nex.DataStoreSearchParam{
			ResultOffset: 0,
			ResultSize:   1,
			ResultOption: nex.ResultOptionAll,
		}
		_, err := s.DataStore().SearchObject(ctx, param)
		return err
	})
	if err == nil {
		return true, nil
	}
	if name, ok := nex.IsRMC(err); ok {
		return name == nex.ErrNameDataStoreMissing, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	// Non-protocol failures classify the store as unsupported.
	return false, nil
}

// StoreInfo is the summary the get_info modes report: the edges of the live
// data-id range with their creation times.
type StoreInfo struct {
	FirstDataID     uint64
	FirstCreateTime time.Time
	LastDataID      uint64
	LastCreateTime  time.Time
}

// InitialInfo fetches the first and last stored objects by creation order.
// ok is false when the store answers but has no objects.
func InitialInfo(ctx context.Context, h *session.Handle) (info StoreInfo, ok bool, err error) {
	var first, last []nex.DataStoreMetaInfo

	err = h.Do(ctx, "search_object info", func(s nex.Session) error {
		asc := nex.DataStoreSearchParam{ResultSize: 1, ResultOption: nex.ResultOptionAll}
		res, err := s.DataStore().SearchObject(ctx, asc)
		if err != nil {
			return err
		}
		first = res

		desc := nex.DataStoreSearchParam{ResultSize: 1, ResultOption: nex.ResultOptionAll, ResultOrder: 1}
		res, err = s.DataStore().SearchObject(ctx, desc)
		if err != nil {
			return err
		}
		last = res
		return nil
	})
	if err != nil {
		return StoreInfo{}, false, err
	}
	if len(first) == 0 || len(last) == 0 {
		return StoreInfo{}, false, nil
	}
	return StoreInfo{
		FirstDataID:     first[0].DataID,
		FirstCreateTime: first[0].CreateTime,
		LastDataID:      last[0].DataID,
		LastCreateTime:  last[0].CreateTime,
	}, true, nil
}

// CapabilityReport records which informational verbs a store answers, for
// survey logging before a full harvest.
type CapabilityReport struct {
	SearchObject      bool
	GetMetas          bool
	GetRatings        bool
	GetSpecificMetaV1 bool
	GetPasswordInfos  bool
	GetObjectInfos    bool
	PrepareGetV1      bool
	SearchLight       bool
}

// ProbeCapabilities exercises each informational verb against a store and
// classifies the outcome. A verb counts as supported when it either works or
// fails with DataStore::NotFound against an arbitrary id.
func ProbeCapabilities(ctx context.Context, h *session.Handle, logger *log.Logger) (CapabilityReport, error) {
	if logger == nil {
		logger = log.Default()
	}
	const probeID = 1000000

	var report CapabilityReport
	verbs := []struct {
		name string
		set  func(bool)
		call func(s nex.Session) error
	}{
		{"search_object", func(v bool) { report.SearchObject = v }, func(s nex.Session) error {
			_, err := s.DataStore().SearchObject(ctx, nex.DataStoreSearchParam{ResultSize: 1, ResultOption: nex.ResultOptionAll})
			return err
		}},
		{"get_metas", func(v bool) { report.GetMetas = v }, func(s nex.Session) error {
			_, err := s.DataStore().GetMetas(ctx, []uint64{probeID}, nex.DataStoreGetMetaParam{ResultOption: nex.ResultOptionAll})
			return err
		}},
		{"get_ratings", func(v bool) { report.GetRatings = v }, func(s nex.Session) error {
			return s.DataStore().GetRatings(ctx, []uint64{probeID}, 0)
		}},
		{"get_specific_meta_v1", func(v bool) { report.GetSpecificMetaV1 = v }, func(s nex.Session) error {
			return s.DataStore().GetSpecificMetaV1(ctx, []uint64{probeID})
		}},
		{"get_password_infos", func(v bool) { report.GetPasswordInfos = v }, func(s nex.Session) error {
			return s.DataStore().GetPasswordInfos(ctx, []uint64{probeID})
		}},
		{"get_object_infos", func(v bool) { report.GetObjectInfos = v }, func(s nex.Session) error {
			return s.DataStore().GetObjectInfos(ctx, []uint64{probeID})
		}},
		{"prepare_get_object_v1", func(v bool) { report.PrepareGetV1 = v }, func(s nex.Session) error {
			return s.DataStore().PrepareGetObjectV1(ctx, nex.DataStorePrepareGetParam{DataID: probeID})
		}},
		{"search_object_light", func(v bool) { report.SearchLight = v }, func(s nex.Session) error {
			return s.DataStore().SearchObjectLight(ctx, nex.DataStoreSearchParam{ResultSize: 1, ResultOption: nex.ResultOptionAll})
		}},
	}

	for _, v := range verbs {
		err := h.Do(ctx, v.name, v.call)
		switch {
		case err == nil:
			v.set(true)
			logger.Printf("[datastore] %s: Worked!", v.name)
		default:
			name, ok := nex.IsRMC(err)
			if !ok {
				return report, err
			}
			if name == nex.ErrNameDataStoreMissing {
				v.set(true)
				logger.Printf("[datastore] %s: Worked!", v.name)
			} else {
				v.set(false)
				logger.Printf("[datastore] %s: %s", v.name, name)
			}
		}
	}
	return report, nil
}
