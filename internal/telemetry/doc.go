// Package telemetry ships device update metrics to InfluxDB.
//
// The client wraps the InfluxDB v2 Go client's non-blocking write API:
// points are batched in memory and flushed on an interval, with write
// failures surfaced through an error callback rather than return values.
// Telemetry is optional; when disabled in configuration the bridge runs
// without it.
package telemetry
