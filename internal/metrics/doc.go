// Package metrics provides the build outcome counters of the orchestrator.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection never requires nil checks:
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	builder := docbuilder.New(deps, docbuilder.WithRecorder(recorder))
//
// Exactly one of the three outcome counters (successful, failed library,
// non-library) is incremented per package build attempt.
package metrics
