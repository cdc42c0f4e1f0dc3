package datastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nex-archive/nexharvest/internal/nex"
)

func TestSearchWorksClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"clean response", nil, true},
		{"empty store", &nex.RMCError{Name: nex.ErrNameDataStoreMissing}, true},
		{"verb missing", &nex.RMCError{Name: nex.ErrNameNotImplemented}, false},
		{"other rmc", &nex.RMCError{Name: "DataStore::OperationNotAllowed"}, false},
		{"non-protocol failure", errors.New("response decode failed"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := &fakeStore{searchErr: tc.err}
			h := openHandle(t, testFactory(fs, fastTuning()))

			got, err := SearchWorks(context.Background(), h)
			if err != nil {
				t.Fatalf("SearchWorks: %v", err)
			}
			if got != tc.want {
				t.Fatalf("SearchWorks: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestInitialInfo(t *testing.T) {
	fs := &fakeStore{objects: map[uint64]nex.DataStoreMetaInfo{
		5:  {DataID: 5, CreateTime: time.Unix(1360000000, 0)},
		90: {DataID: 90, CreateTime: time.Unix(1400000000, 0)},
		40: {DataID: 40, CreateTime: time.Unix(1380000000, 0)},
	}}
	h := openHandle(t, testFactory(fs, fastTuning()))

	info, ok, err := InitialInfo(context.Background(), h)
	if err != nil {
		t.Fatalf("InitialInfo: %v", err)
	}
	if !ok {
		t.Fatal("InitialInfo: got ok=false, want true")
	}
	if info.FirstDataID != 5 || info.LastDataID != 90 {
		t.Fatalf("range: got %d..%d, want 5..90", info.FirstDataID, info.LastDataID)
	}
}

func TestInitialInfoEmptyStore(t *testing.T) {
	fs := &fakeStore{objects: map[uint64]nex.DataStoreMetaInfo{}}
	h := openHandle(t, testFactory(fs, fastTuning()))

	_, ok, err := InitialInfo(context.Background(), h)
	if err != nil {
		t.Fatalf("InitialInfo: %v", err)
	}
	if ok {
		t.Fatal("InitialInfo: got ok=true for empty store")
	}
}

func TestProbeCapabilities(t *testing.T) {
	fs := &fakeStore{objects: map[uint64]nex.DataStoreMetaInfo{}}
	h := openHandle(t, testFactory(fs, fastTuning()))

	report, err := ProbeCapabilities(context.Background(), h, quietLogger())
	if err != nil {
		t.Fatalf("ProbeCapabilities: %v", err)
	}
	// The fake answers everything; per-entry misses still count as support.
	if !report.SearchObject || !report.GetMetas || !report.GetRatings || !report.SearchLight {
		t.Fatalf("report: got %+v, want all verbs supported", report)
	}
}
