package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDevice   = "udon_device"
	MeasurementProgress = "udon_progress"
	MeasurementRun      = "udon_run"
)

// WriteDeviceEvent records an attach or detach transition.
//
// Example:
//
//	client.WriteDeviceEvent("attached", true, ev.At)
func (c *Client) WriteDeviceEvent(event string, present bool, at time.Time) {
	c.WritePointWithTime(MeasurementDevice,
		map[string]string{"event": event},
		map[string]any{"present": present},
		at,
	)
}

// WriteProgress records one progress sample of a run.
func (c *Client) WriteProgress(runID, operation string, percent int) {
	c.WritePoint(MeasurementProgress,
		map[string]string{
			"run_id":    runID,
			"operation": operation,
		},
		map[string]any{"percent": percent},
	)
}

// WriteRun records the outcome of a finished run.
func (c *Client) WriteRun(operation string, success bool, exitCode int, duration time.Duration, at time.Time) {
	c.WritePointWithTime(MeasurementRun,
		map[string]string{
			"operation": operation,
			"success":   strconv.FormatBool(success),
		},
		map[string]any{
			"exit_code":   exitCode,
			"duration_ms": duration.Milliseconds(),
		},
		at,
	)
}

// WritePoint writes a point stamped with the current time.
// Tags must stay low cardinality.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp. A zero
// timestamp means now. Points are dropped silently after Close.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
