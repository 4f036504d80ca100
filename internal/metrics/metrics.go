// Package metrics keeps an in-memory log of recent requests with running
// aggregate counters.
package metrics

import (
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// DefaultCapacity bounds the retained request log.
const DefaultCapacity = 200

// Collector is a fixed-capacity ring of recent request log entries plus
// incrementally maintained totals. Totals cover every request ever recorded,
// not just the retained window. Safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	entries []models.RequestLogEntry
	next    int
	full    bool
	total   int
	errors  int
	latSum  float64
}

// NewCollector creates a collector retaining up to capacity entries.
// Capacity below 1 falls back to DefaultCapacity.
func NewCollector(capacity int) *Collector {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Collector{entries: make([]models.RequestLogEntry, capacity)}
}

// Record appends an entry, evicting the oldest once the ring is full.
func (c *Collector) Record(entry models.RequestLogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.next] = entry
	c.next++
	if c.next == len(c.entries) {
		c.next = 0
		c.full = true
	}
	c.total++
	c.latSum += entry.LatencySeconds
	if entry.Status == models.StatusError {
		c.errors++
	}
}

// Stats returns aggregates over all recorded requests.
func (c *Collector) Stats() models.RequestStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := models.RequestStats{
		TotalQueries: c.total,
		TotalErrors:  c.errors,
	}
	if c.total > 0 {
		stats.ErrorRate = float64(c.errors) / float64(c.total)
		stats.AvgLatencySeconds = c.latSum / float64(c.total)
	}
	return stats
}

// Recent returns up to n retained entries, most recent first.
func (c *Collector) Recent(n int) []models.RequestLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	size := c.size()
	if n <= 0 || n > size {
		n = size
	}
	out := make([]models.RequestLogEntry, 0, n)
	for i := 0; i < n; i++ {
		idx := c.next - 1 - i
		if idx < 0 {
			idx += len(c.entries)
		}
		out = append(out, c.entries[idx])
	}
	return out
}

func (c *Collector) size() int {
	if c.full {
		return len(c.entries)
	}
	return c.next
}
