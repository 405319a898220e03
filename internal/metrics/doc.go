// Package metrics records attempt outcomes and accept/discard decisions.
//
// The Prometheus recorder owns a private registry, so several recorders can
// coexist in one process (tests do this). A short-lived CLI has nothing to
// scrape, so the registry is flushed with WriteTextfile for node_exporter's
// textfile collector instead. Each write replaces the file, which is why the
// per-attempt series are last_run gauges and not counters: they describe the
// run that wrote them, stamped by imagegen_last_run_timestamp_seconds.
//
// Metrics:
//
//	imagegen_last_run_attempts{role,outcome}
//	imagegen_last_run_attempt_duration_seconds{role}
//	imagegen_last_run_accepts{role,mode}
//	imagegen_last_run_discards{role}
//	imagegen_last_run_timestamp_seconds
//	imagegen_gallery_images
package metrics
