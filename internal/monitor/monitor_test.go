package monitor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/havryliv/jobtree/internal/domain"
	"github.com/havryliv/jobtree/internal/monitor"
)

func TestDefault_RecordAndGetMetrics(t *testing.T) {
	m := monitor.NewDefault()
	m.RecordCompletion(domain.CompletionRecord{Pool: 0, Slot: 1, Duration: time.Millisecond})
	m.RecordCompletion(domain.CompletionRecord{Pool: 0, Slot: 2, Duration: 2 * time.Millisecond, Recovered: true})

	metrics := m.GetMetrics()
	assert.Len(t, metrics, 2)
	assert.True(t, metrics["0:2"].Recovered)
	assert.False(t, metrics["0:1"].Recovered)
}

func TestDefault_OverwritesOnSlotReuse(t *testing.T) {
	m := monitor.NewDefault()
	m.RecordCompletion(domain.CompletionRecord{Pool: 0, Slot: 1, Duration: time.Millisecond})
	m.RecordCompletion(domain.CompletionRecord{Pool: 0, Slot: 1, Duration: 9 * time.Millisecond})

	metrics := m.GetMetrics()
	assert.Len(t, metrics, 1)
	assert.Equal(t, 9*time.Millisecond, metrics["0:1"].Duration)
}
