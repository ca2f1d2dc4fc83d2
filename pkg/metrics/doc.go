/*
Package metrics provides Prometheus metrics collection and exposition for the
object store.

Metrics are defined as package-level Prometheus collectors, registered with
the default registry at package init, and exposed over HTTP for scraping.

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
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Counter: Monotonic increases (retries)     │          │
	│  │  Gauge: Instant values (datastore size)     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

grr_commit_failure:
  - Type: Counter
  - Description: Total number of failed datastore commit/flush attempts
  - Incremented by: the store's background flusher loop, whenever the
    backend returns an error (the mutation pool's Flush does not count)

grr_task_ttl_expired_count:
  - Type: Counter
  - Description: Total number of queued tasks removed after their lease TTL
    was exhausted before completion
  - Incremented by: QueueQueryAndOwn

grr_task_retransmission_count:
  - Type: Counter
  - Description: Total number of tasks re-leased after a previous lease
    expired unacknowledged
  - Incremented by: QueueQueryAndOwn

datastore_retries:
  - Type: Counter
  - Description: Total number of retried datastore operations (lock
    acquisition retries, sequential-collection suffix-collision retries)

datastore_size:
  - Type: Gauge
  - Description: Total size of the datastore backend in bytes, as last
    reported by Backend.Size
  - Updated by: the store's background size-monitor loop, roughly every 60s

# Usage

	import "github.com/ivydigitalstorm/grr/pkg/metrics"

	metrics.CommitFailures.Inc()
	metrics.TaskTTLExpiredCount.Inc()
	metrics.DatastoreSize.Set(float64(sizeBytes))

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(someHistogram)

Exposing the endpoint:

	http.Handle("/metrics", metrics.Handler())
	http.ListenAndServe(":9090", nil)

# Health and Readiness

This package also exposes process health via HealthHandler, ReadyHandler,
and LivenessHandler, backed by RegisterComponent/UpdateComponent. Readiness
checks the "backend" and "blobstore" components specifically; a component
that has never been registered counts as not ready.

# Design Patterns

Package Init Registration:
  - All metrics registered in init() via MustRegister
  - MustRegister panics on duplicate registration

Timer Pattern:
  - Create a Timer at operation start
  - Call ObserveDuration (or ObserveDurationVec) when the operation finishes

Global Metrics:
  - Package-level variables, safe for concurrent use
  - No initialization required by callers

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
