package metrics

import "time"

// CollectionStats is a snapshot of one collection's engine-side counters,
// gathered by whatever component owns that state (document manager, WAL,
// replicator). Collector never reaches into those packages directly —
// each is polled through a Source function, keeping this package free of
// dependencies on the rest of the engine.
type CollectionStats struct {
	Collection    string
	Documents     int
	PendingFlush  int
	WALRows       int
	CursorPos     uint64
}

// Source returns the current stats for every collection the engine
// tracks. Implemented by the document manager (or a facade over it) and
// supplied to NewCollector.
type Source func() []CollectionStats

// Collector periodically polls a Source and republishes its numbers as
// Prometheus gauges, the way a dashboard-facing sidecar would.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s tick
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.source == nil {
		return
	}
	for _, s := range c.source() {
		DocumentsTotal.WithLabelValues(s.Collection).Set(float64(s.Documents))
		DocumentsPending.WithLabelValues(s.Collection).Set(float64(s.PendingFlush))
		WALRowsTotal.WithLabelValues(s.Collection).Set(float64(s.WALRows))
		CursorPosition.WithLabelValues(s.Collection).Set(float64(s.CursorPos))
	}
}
