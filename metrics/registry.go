// Package metrics is the catalogue of scoring metrics: what each one needs
// from its input, what shape its results take, and how its backend is
// loaded.
package metrics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/adrg/strutil"
	strmetrics "github.com/adrg/strutil/metrics"
)

// ErrSealed is returned by Register once the registry is sealed.
var ErrSealed = errors.New("metrics: registry is sealed")

// UnknownMetricError reports a metric id that is not registered.
type UnknownMetricError struct {
	ID         string
	Suggestion string
}

func (e *UnknownMetricError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown metric %q (did you mean %q?)", e.ID, e.Suggestion)
	}
	return fmt.Sprintf("unknown metric %q", e.ID)
}

// minSuggestSimilarity is the Jaro-Winkler score below which no suggestion
// is offered.
const minSuggestSimilarity = 0.75

// Registry maps metric ids to descriptors. Registration happens at start-up;
// after Seal the registry is read-only. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Descriptor
	order  []string
	sealed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: map[string]Descriptor{}}
}

// Default is the process-wide registry.
var Default = NewRegistry()

// Normalize canonicalises a metric id.
func Normalize(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Register adds d under its normalised id.
func (r *Registry) Register(d Descriptor) error {
	d.ID = Normalize(d.ID)
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("register %s: %w", d.ID, ErrSealed)
	}
	if _, ok := r.byID[d.ID]; ok {
		return fmt.Errorf("metrics: %s already registered", d.ID)
	}
	r.byID[d.ID] = d
	r.order = append(r.order, d.ID)
	return nil
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Resolve looks up a metric, returning *UnknownMetricError if absent.
func (r *Registry) Resolve(id string) (Descriptor, error) {
	key := Normalize(id)
	r.mu.RLock()
	d, ok := r.byID[key]
	r.mu.RUnlock()
	if !ok {
		return Descriptor{}, &UnknownMetricError{ID: id, Suggestion: r.suggest(key)}
	}
	return d, nil
}

// ResolveAll resolves ids in order, dropping duplicates. It fails on the
// first unknown id.
func (r *Registry) ResolveAll(ids []string) ([]Descriptor, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		d, err := r.Resolve(id)
		if err != nil {
			return nil, err
		}
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	return out, nil
}

// IDs returns registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Select returns the registered descriptors accepted by keep, in
// registration order.
func (r *Registry) Select(keep func(Descriptor) bool) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for _, id := range r.order {
		if d := r.byID[id]; keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func (r *Registry) suggest(key string) string {
	r.mu.RLock()
	ids := append([]string(nil), r.order...)
	r.mu.RUnlock()
	sort.Strings(ids)

	jw := strmetrics.NewJaroWinkler()
	var best string
	var bestScore float64
	for _, id := range ids {
		if s := strutil.Similarity(key, id, jw); s > bestScore {
			best, bestScore = id, s
		}
	}
	if bestScore < minSuggestSimilarity {
		return ""
	}
	return best
}
