// Package scheduler implements the weighted round-robin backend
// scheduler: backends are pre-expanded into a flat cycle where each
// backend's copies run contiguous, then handed to a ring.Ring for the
// actual next() progress.
package scheduler

import (
	"fmt"

	"github.com/rxh-go/rxh/internal/config"
	"github.com/rxh-go/rxh/internal/ring"
)

// Scheduler returns the next backend address to use for a request.
type Scheduler interface {
	Next() string
}

// New builds a Scheduler from an ordered backend list per the
// configured algorithm. Only WRR is implemented; the algorithm tag is
// an extension point for future policies.
func New(algorithm string, backends []config.Backend) (Scheduler, error) {
	switch algorithm {
	case "", config.AlgorithmWRR:
		return newWRR(backends)
	default:
		return nil, fmt.Errorf("scheduler: unknown algorithm %q", algorithm)
	}
}

type wrr struct {
	r *ring.Ring[string]
}

// newWRR expands backends into a cycle: for [(A,1),(B,3),(C,2)] the
// cycle is [A,B,B,B,C,C] — each backend's copies are contiguous and
// backends appear in input order. Length is the sum of weights.
func newWRR(backends []config.Backend) (*wrr, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("scheduler: at least one backend is required")
	}
	var cycle []string
	for _, b := range backends {
		w := b.Weight
		if w < 1 {
			w = 1
		}
		for i := 0; i < w; i++ {
			cycle = append(cycle, b.Address)
		}
	}
	return &wrr{r: ring.New(cycle)}, nil
}

func (w *wrr) Next() string { return w.r.Next() }
