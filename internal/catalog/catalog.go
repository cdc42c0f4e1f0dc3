// Package catalog loads the per-platform title catalogs and the category
// sidecar. Catalogs are read-only inputs: JSON files listing every known
// title with its access key, protocol version and capability flags.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Title is one catalog entry.
type Title struct {
	// AID is the 64-bit title id.
	AID uint64 `json:"aid"`
	// ID is the numeric game-server id used by the account-server token
	// exchange. Optional; handheld titles derive it from AID.
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	// Key is the hex access key shared with the game server.
	Key string `json:"key"`
	// Nex is a list of protocol version triples; the first is used.
	Nex [][3]int `json:"nex"`
	// AV is the app version sent during account login.
	AV int `json:"av"`
	// HasDatastore marks titles with a DataStore instance. The account
	// platform calls this "nexds" in its companion dataset.
	HasDatastore bool `json:"has_datastore"`
	NexDS        bool `json:"nexds"`
}

// PrettyID renders the title id the way every database row keys it:
// 16 upper-case hex digits, zero padded.
func (t Title) PrettyID() string {
	return fmt.Sprintf("%016X", t.AID)
}

// Version flattens the first protocol version triple into the single
// integer the session layer expects (major*10000 + minor*100 + patch).
func (t Title) Version() int {
	if len(t.Nex) == 0 {
		return 0
	}
	v := t.Nex[0]
	return v[0]*10000 + v[1]*100 + v[2]
}

// DataStore reports whether the title hosts a DataStore, honoring both
// catalog spellings of the flag.
func (t Title) DataStore() bool {
	return t.HasDatastore || t.NexDS
}

// DisplayName returns the name with newlines flattened for log lines.
func (t Title) DisplayName() string {
	return strings.ReplaceAll(t.Name, "\n", " ")
}

type catalogFile struct {
	Games []Title `json:"games"`
}

// Load reads a catalog JSON file.
func Load(path string) ([]Title, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var f catalogFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return f.Games, nil
}

// Slice bounds a catalog to the [start, stop) window used by the CLI.
// stop < 0 means "to the end". Out-of-range bounds clamp.
func Slice(titles []Title, start, stop int) []Title {
	if start < 0 {
		start = 0
	}
	if start > len(titles) {
		start = len(titles)
	}
	if stop < 0 || stop > len(titles) {
		stop = len(titles)
	}
	if stop < start {
		stop = start
	}
	return titles[start:stop]
}

// Overlap returns the title ids present in both catalogs.
func Overlap(a, b []Title) []uint64 {
	seen := make(map[uint64]struct{}, len(a))
	for _, t := range a {
		seen[t.AID] = struct{}{}
	}
	var out []uint64
	for _, t := range b {
		if _, ok := seen[t.AID]; ok {
			out = append(out, t.AID)
			delete(seen, t.AID)
		}
	}
	return out
}
