package crdt

import "github.com/VictoriaMetrics/metrics"

// Счетчики хранилища. Экспортируются через metrics.WritePrometheus.
var (
	localWritesTotal      = metrics.NewCounter("crdtstore_local_writes_total")
	mergesTotal           = metrics.NewCounter("crdtstore_merges_total")
	mergedItemsTotal      = metrics.NewCounter("crdtstore_merged_items_total")
	compactedItemsTotal   = metrics.NewCounter("crdtstore_compacted_items_total")
	malformedUpdatesTotal = metrics.NewCounter("crdtstore_malformed_updates_total")
	reentrantRejections   = metrics.NewCounter("crdtstore_reentrant_mutations_total")
)
