package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning holds the harvest concurrency and batching knobs. All fields have
// working defaults; an operator-supplied YAML file overrides per field.
type Tuning struct {
	// MetaScanners is the size of the metadata scanner pool per title.
	MetaScanners int `yaml:"meta_scanners"`
	// BlobFetchers is the size of the blob download pool per title.
	BlobFetchers int `yaml:"blob_fetchers"`
	// PersistenceFetchers replaces BlobFetchers in the persistence and
	// use_db modes, which are blob-heavy.
	PersistenceFetchers int `yaml:"persistence_fetchers"`
	// MetaBatch is the number of data ids per get_metas call.
	MetaBatch int `yaml:"meta_batch"`
	// RankingSubgroup is how many categories harvest concurrently.
	RankingSubgroup int `yaml:"ranking_subgroup"`
	// BlobQueueDepth bounds the scanner-to-fetcher handoff queue, in
	// batches. Scanners block when it fills; entries are never dropped.
	BlobQueueDepth int `yaml:"blob_queue_depth"`

	// HTTPTimeout caps a single blob download.
	HTTPTimeout Duration `yaml:"http_timeout"`
	// BusyTimeout is the SQLite busy handler budget.
	BusyTimeout Duration `yaml:"busy_timeout"`
	// RetryInitial and RetryMax bound the transport retry backoff.
	RetryInitial Duration `yaml:"retry_initial"`
	RetryMax     Duration `yaml:"retry_max"`
}

// NewDefaultTuning returns the Tuning every mode starts from.
func NewDefaultTuning() *Tuning {
	return &Tuning{
		MetaScanners:        8,
		BlobFetchers:        8,
		PersistenceFetchers: 16,
		MetaBatch:           100,
		RankingSubgroup:     32,
		BlobQueueDepth:      1024,

		HTTPTimeout:  Duration(10 * time.Minute),
		BusyTimeout:  Duration(3600 * time.Second),
		RetryInitial: Duration(250 * time.Millisecond),
		RetryMax:     Duration(30 * time.Second),
	}
}

// LoadTuning returns the defaults overlaid with the YAML file at path. An
// empty path means defaults only.
func LoadTuning(path string) (*Tuning, error) {
	t := NewDefaultTuning()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tuning: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, t); err != nil {
		return nil, fmt.Errorf("tuning: parse %s: %w", path, err)
	}
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("tuning: %s: %w", path, err)
	}
	return t, nil
}

func (t *Tuning) validate() error {
	var errs []string
	if t.MetaScanners < 1 {
		errs = append(errs, "meta_scanners must be >= 1")
	}
	if t.BlobFetchers < 1 {
		errs = append(errs, "blob_fetchers must be >= 1")
	}
	if t.PersistenceFetchers < 1 {
		errs = append(errs, "persistence_fetchers must be >= 1")
	}
	if t.MetaBatch < 1 || t.MetaBatch > 100 {
		errs = append(errs, "meta_batch must be in 1..100")
	}
	if t.RankingSubgroup < 1 {
		errs = append(errs, "ranking_subgroup must be >= 1")
	}
	if t.BlobQueueDepth < 1 {
		errs = append(errs, "blob_queue_depth must be >= 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid tuning:\n  %s", joinLines(errs))
	}
	return nil
}

func joinLines(lines []string) string {
	out := lines[0]
	for _, l := range lines[1:] {
		out += "\n  " + l
	}
	return out
}
