package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Some titles key leaderboards by hashed category values that a 0..999
// sweep can never find. Those lists are data, not code: they ship as a
// sidecar JSON file mapping decimal title id to category values.

//go:embed extra_categories.json
var embeddedSidecar []byte

type sidecarFile map[string][]uint32

// ExtraCategories returns the sidecar category seeds for a title, from the
// embedded sidecar. Titles without an entry get nil.
func ExtraCategories(titleID uint64) []uint32 {
	cats, err := extraCategories(embeddedSidecar, titleID)
	if err != nil {
		// The embedded sidecar is validated by tests; treat damage as empty.
		return nil
	}
	return cats
}

// ExtraCategoriesFile is ExtraCategories reading an operator-supplied
// sidecar path instead of the embedded copy.
func ExtraCategoriesFile(path string, titleID uint64) ([]uint32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read sidecar %s: %w", path, err)
	}
	return extraCategories(raw, titleID)
}

func extraCategories(raw []byte, titleID uint64) ([]uint32, error) {
	var f sidecarFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse sidecar: %w", err)
	}
	return f[strconv.FormatUint(titleID, 10)], nil
}
