package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteUpdate records the numeric fields of a device update.
//
// Non-numeric payload values are skipped; an update with no numeric
// fields writes nothing. The write is non-blocking; data is batched and
// sent asynchronously.
//
// Parameters:
//   - deviceID: Device the update concerns
//   - data: Decoded update payload
//
// Example:
//
//	client.WriteUpdate("dev123", map[string]any{"pressure": 42.0, "mode": "auto"})
//	// records pressure=42 under measurement device_updates, tag device_id=dev123
func (c *Client) WriteUpdate(deviceID string, data map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := numericFields(data)
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"device_updates",
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit WriteUpdate, like bridge
// lifecycle events.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteEvent records a bridge lifecycle event, such as a connect or a
// disconnect, under the bridge_events measurement. Like WriteUpdate,
// the write is batched and non-blocking.
//
// Parameters:
//   - event: Lifecycle event name, used as the event tag
func (c *Client) WriteEvent(event string) {
	c.WritePoint(
		"bridge_events",
		map[string]string{"event": event},
		map[string]interface{}{"count": 1},
	)
}

// numericFields extracts the numeric values from a decoded JSON payload.
// JSON numbers decode to float64; integer-typed values are included for
// payloads built in process.
func numericFields(data map[string]any) map[string]interface{} {
	fields := make(map[string]interface{}, len(data))
	for key, value := range data {
		switch v := value.(type) {
		case float64:
			fields[key] = v
		case float32:
			fields[key] = float64(v)
		case int:
			fields[key] = float64(v)
		case int64:
			fields[key] = float64(v)
		case bool:
			// Booleans become 0/1 so state flags are graphable.
			if v {
				fields[key] = float64(1)
			} else {
				fields[key] = float64(0)
			}
		}
	}
	return fields
}
