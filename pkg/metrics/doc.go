/*
Package metrics provides Prometheus collectors for the Strata engine.

Collectors are package-level and registered in init; the serve command
exposes Handler() at /metrics. Covered surfaces: node cache occupancy and
hit rate, novelty growth per ledger, commit and reindex activity, and
query latency.

# See Also

  - pkg/index for cache instrumentation points
  - pkg/indexer for reindex instrumentation points
*/
package metrics
