// Package registry stores live handles (sessions, cursors) owned by
// out-of-process callers, keyed by opaque ids.
package registry

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nikmy/mongoflow/pkg/logger"
)

const namespace = "mongogw"

// Registry is a uuid-keyed collection of handles of one kind.
// It reports the current handle count as a prometheus metric.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]T

	log  logger.Logger
	desc *prometheus.Desc
}

func New[T any](kind string, log logger.Logger) *Registry[T] {
	return &Registry[T]{
		items: map[string]T{},
		log:   log.With(kind + "_registry"),
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, kind, "current"),
			"The current number of "+kind+" handles.",
			nil, nil,
		),
	}
}

// Add stores the handle and returns its fresh id.
func (r *Registry[T]) Add(item T) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.items[id] = item
	total := len(r.items)
	r.mu.Unlock()

	r.log.Debugf("stored %s (total %d)", id, total)
	return id
}

// Get returns the handle by id.
func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	return item, ok
}

// Remove takes the handle out of the registry and returns it,
// so the caller can release it.
func (r *Registry[T]) Remove(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if ok {
		delete(r.items, id)
		r.log.Debugf("removed %s (total %d)", id, len(r.items))
	}
	return item, ok
}

// Drain removes and returns every stored handle. Used on shutdown to
// release whatever callers left behind.
func (r *Registry[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	drained := make([]T, 0, len(r.items))
	for id, item := range r.items {
		drained = append(drained, item)
		delete(r.items, id)
	}
	return drained
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Describe implements prometheus.Collector.
func (r *Registry[T]) Describe(ch chan<- *prometheus.Desc) {
	ch <- r.desc
}

// Collect implements prometheus.Collector.
func (r *Registry[T]) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(r.desc, prometheus.GaugeValue, float64(r.Len()))
}

var _ prometheus.Collector = (*Registry[any])(nil)
