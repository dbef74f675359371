// Package monitor provides the default, in-memory domain.Monitoring
// implementation the engine falls back to when a caller doesn't supply one
// of their own.
package monitor

import (
	"fmt"
	"sync"

	"github.com/havryliv/jobtree/internal/domain"
)

// Default is a thread-safe, in-memory domain.Monitoring backed by a
// sync.Map, suitable for debugging and tests. Production users that need
// to ship metrics elsewhere should implement domain.Monitoring directly.
type Default struct {
	data *sync.Map
}

func NewDefault() *Default {
	return &Default{data: &sync.Map{}}
}

// RecordCompletion stores rec keyed by "pool:slot". A job slot is recycled
// after completion, so a later job reusing the same slot overwrites the
// earlier record here exactly as it would in the live tree.
func (m *Default) RecordCompletion(rec domain.CompletionRecord) {
	key := fmt.Sprintf("%d:%d", rec.Pool, rec.Slot)
	m.data.Store(key, rec)
}

// GetMetrics returns every currently stored CompletionRecord, keyed the
// same way RecordCompletion stored them.
func (m *Default) GetMetrics() map[string]domain.CompletionRecord {
	result := make(map[string]domain.CompletionRecord)
	m.data.Range(func(key, value interface{}) bool {
		result[key.(string)] = value.(domain.CompletionRecord)
		return true
	})
	return result
}
