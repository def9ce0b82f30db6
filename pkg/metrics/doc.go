/*
Package metrics provides Prometheus metrics collection and exposition for
collabcore.

Metrics are package-level variables registered at init(), following the same
convention as the rest of the collabcore stack: no runtime registration, no
process-wide configuration, safe for concurrent updates from any package.

# Metric Catalog

Row cache:

	collabcore_row_cache_size               gauge
	collabcore_row_cache_hits_total          counter
	collabcore_row_cache_misses_total        counter
	collabcore_row_cache_evictions_total     counter

Task controller:

	collabcore_fetch_tasks_queued_total      counter
	collabcore_fetch_tasks_deduped_total     counter
	collabcore_fetch_queue_depth             gauge
	collabcore_fetch_duration_seconds        histogram

Outbound sink:

	collabcore_sink_state                    gauge{state}
	collabcore_sink_messages_queued_total    counter
	collabcore_sink_messages_merged_total    counter
	collabcore_sink_messages_acked_total     counter
	collabcore_sink_timeouts_total           counter

Update log:

	collabcore_update_log_append_duration_seconds  histogram
	collabcore_update_log_appends_total            counter
	collabcore_update_log_snapshots_total          counter

CRDT session:

	collabcore_session_write_contention_total      counter

# Usage

	timer := metrics.NewTimer()
	if _, err := log.Append(ctx, tenant, objectID, update); err != nil {
		return err
	}
	timer.ObserveDuration(metrics.UpdateLogAppendDuration)
	metrics.UpdateLogAppendsTotal.Inc()

Expose the registry over HTTP with metrics.Handler():

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
