package metrics

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

func entry(id string, latency float64, status string) models.RequestLogEntry {
	return models.RequestLogEntry{
		RequestID:      id,
		Timestamp:      time.Now(),
		Question:       "q",
		LatencySeconds: latency,
		Status:         status,
	}
}

func TestCollector_Stats(t *testing.T) {
	c := NewCollector(10)
	c.Record(entry("a", 1.0, models.StatusOK))
	c.Record(entry("b", 3.0, models.StatusOK))
	c.Record(entry("c", 2.0, models.StatusError))

	stats := c.Stats()
	if stats.TotalQueries != 3 {
		t.Errorf("TotalQueries = %d, want 3", stats.TotalQueries)
	}
	if stats.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1", stats.TotalErrors)
	}
	if math.Abs(stats.ErrorRate-1.0/3.0) > 1e-9 {
		t.Errorf("ErrorRate = %f", stats.ErrorRate)
	}
	if math.Abs(stats.AvgLatencySeconds-2.0) > 1e-9 {
		t.Errorf("AvgLatencySeconds = %f", stats.AvgLatencySeconds)
	}
}

func TestCollector_EmptyStats(t *testing.T) {
	stats := NewCollector(10).Stats()
	if stats.TotalQueries != 0 || stats.ErrorRate != 0 || stats.AvgLatencySeconds != 0 {
		t.Errorf("empty stats = %+v", stats)
	}
}

func TestCollector_RingEviction(t *testing.T) {
	c := NewCollector(3)
	for i := 0; i < 5; i++ {
		c.Record(entry(fmt.Sprintf("r%d", i), 1.0, models.StatusOK))
	}
	recent := c.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("retained %d entries, want 3", len(recent))
	}
	// Most recent first; the two oldest were evicted.
	want := []string{"r4", "r3", "r2"}
	for i, w := range want {
		if recent[i].RequestID != w {
			t.Errorf("recent[%d] = %s, want %s", i, recent[i].RequestID, w)
		}
	}
	// Totals still count evicted requests.
	if stats := c.Stats(); stats.TotalQueries != 5 {
		t.Errorf("TotalQueries = %d, want 5", stats.TotalQueries)
	}
}

func TestCollector_RecentLimit(t *testing.T) {
	c := NewCollector(10)
	for i := 0; i < 4; i++ {
		c.Record(entry(fmt.Sprintf("r%d", i), 1.0, models.StatusOK))
	}
	recent := c.Recent(2)
	if len(recent) != 2 || recent[0].RequestID != "r3" || recent[1].RequestID != "r2" {
		t.Errorf("Recent(2) = %v", recent)
	}
	if got := c.Recent(100); len(got) != 4 {
		t.Errorf("Recent(100) returned %d entries, want 4", len(got))
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector(50)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Record(entry("x", 0.5, models.StatusOK))
				c.Stats()
				c.Recent(5)
			}
		}()
	}
	wg.Wait()
	if stats := c.Stats(); stats.TotalQueries != 800 {
		t.Errorf("TotalQueries = %d, want 800", stats.TotalQueries)
	}
}
