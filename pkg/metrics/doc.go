/*
Package metrics provides Prometheus metrics collection and exposition for
the replication engine.

The metrics package defines and registers engine metrics using the
Prometheus client library, giving a host application observability into
WAL pressure, sync actor retry behavior, replicator cursor lag, and
transaction/migration outcomes. Metrics are exposed via an HTTP endpoint
for scraping by a Prometheus server, or read directly by an embedding app
that wants to surface them in its own UI.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Documents: total, pending flush            │          │
	│  │  WAL: row count, compactions, duration      │          │
	│  │  Sync Actor: flushes, retries, duration     │          │
	│  │  Replicator: cursor position, reconcile     │          │
	│  │  Handshake: last-known-ok gauge             │          │
	│  │  Transactions / Migrations: outcome counters│          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Handler: metrics.Handler()                │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Collector

Collector polls a Source function on a 15s tick and republishes its
per-collection counters as gauges. The Source is supplied by whatever
owns the engine's live state (typically a thin facade over the document
manager and WAL) — this package never imports those packages directly,
avoiding an import cycle.

	source := func() []metrics.CollectionStats {
		return docManager.Stats()
	}
	collector := metrics.NewCollector(source)
	collector.Start()
	defer collector.Stop()

# Health

HealthChecker tracks per-component health (storage, syncer, handshake)
independently of the Prometheus registry, exposed via HealthHandler,
ReadyHandler, and LivenessHandler for a host's own liveness probes.

# Usage

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())
*/
package metrics
