// Package backend defines the contract between the run dispatcher and the
// storage-specific dependency jobs, and the registry that selects between them.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chr1sbest/tracedeps/internal/calendar"
)

// Job computes and stores the dependency links of one day.
//
// Run may block for as long as the computation takes (minutes for a busy
// day) and may fail for any reason; the caller isolates both.
type Job interface {
	Run(ctx context.Context, tagName string) error
}

// Builder assembles a Job for a day. artifact is the absolute path of the
// running executable, handed to the job so it can record or ship it.
type Builder func(artifact string, day calendar.Date) (Job, error)

// ErrNoBuilder is returned when a kind has no registered builder.
var ErrNoBuilder = errors.New("no builder registered for storage")

// Registry maps each Kind to the builder producing its Job.
type Registry struct {
	mu       sync.RWMutex
	builders map[Kind]Builder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[Kind]Builder)}
}

// Register installs the builder for kind, replacing any previous one.
func (r *Registry) Register(kind Kind, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[kind] = b
}

// Build returns a Job of the given kind for artifact and day.
func (r *Registry) Build(kind Kind, artifact string, day calendar.Date) (Job, error) {
	r.mu.RLock()
	b, ok := r.builders[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoBuilder, kind)
	}

	job, err := b(artifact, day)
	if err != nil {
		return nil, fmt.Errorf("build %s job for %s: %w", kind, day, err)
	}
	return job, nil
}

// Registered returns the registered kinds in sorted order.
func (r *Registry) Registered() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.builders))
	for k := range r.builders {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// JobFunc adapts a function to the Job interface.
type JobFunc func(ctx context.Context, tagName string) error

func (f JobFunc) Run(ctx context.Context, tagName string) error { return f(ctx, tagName) }
