package core

import (
	"sort"
	"sync"

	"github.com/catkin/xylem/pkg/installers"
	"github.com/catkin/xylem/pkg/ossupport"
	"github.com/catkin/xylem/pkg/rules"
)

// Outcome is the per-key result of a batch resolution. Err is set when
// the key could not be resolved; other keys are unaffected.
type Outcome struct {
	Key        string
	Resolution installers.Resolution
	Err        error
}

// batchWorkers bounds the fan-out of a batch resolution. The database
// is an immutable snapshot, so lookups need no coordination beyond
// collecting results.
const batchWorkers = 8

// ResolveAll resolves many keys against one database snapshot in
// parallel. Results come back sorted by key; per-key failures are
// recorded in the outcome and do not abort the batch.
func (s *System) ResolveAll(db *rules.Database, keys []string,
	platform ossupport.Platform, features ossupport.FeatureSet,
	ictx *installers.Context) []Outcome {

	workers := batchWorkers
	if len(keys) < workers {
		workers = len(keys)
	}

	work := make(chan string)
	results := make(chan Outcome)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range work {
				resolution, err := s.Resolve(db, key, platform, features, ictx)
				results <- Outcome{Key: key, Resolution: resolution, Err: err}
			}
		}()
	}

	go func() {
		for _, key := range keys {
			work <- key
		}
		close(work)
		wg.Wait()
		close(results)
	}()

	outcomes := make([]Outcome, 0, len(keys))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].Key < outcomes[j].Key
	})
	return outcomes
}
