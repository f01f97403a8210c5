// Package metrics defines the recorder interfaces fed from the event bus:
// closed task results, connector snapshots, connector statuses and answer
// latencies. Sinks like PromSink and InfluxSink live in infra/metrics and
// register themselves in the factory registry; NewMetricsSink returns a
// MultiSink automatically when several sinks are configured.
package metrics
