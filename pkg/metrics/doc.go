// Package metrics defines the Prometheus counters and histograms one
// peleka run emits: deployment outcome and duration, health-check
// outcome, orphan-sweep results, lock acquisition outcome, and
// hook failures. Metrics are registered with the default registry at
// init time; Handler returns a scrape handler for them, and no peleka
// command serves it (there is no metrics-address flag).
package metrics
