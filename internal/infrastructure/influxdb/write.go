package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the hub.
const (
	MeasurementTagOperation = "rfid_tag_operation"
	MeasurementReaderState  = "rfid_reader_state"
	MeasurementDeviceError  = "rfid_device_error"
)

// WriteTagOperation records one inventory, read, write or clear batch.
//
//	client.WriteTagOperation("dock-1", "read", 3, 1, time.Now())
func (c *Client) WriteTagOperation(readerID, operation string, succeeded, failed int, at time.Time) {
	c.WritePointWithTime(MeasurementTagOperation,
		map[string]string{
			"reader_id": readerID,
			"operation": operation,
		},
		map[string]any{
			"succeeded": succeeded,
			"failed":    failed,
		},
		at,
	)
}

// WriteReaderState records a connection state change. reason is
// "requested", "link_lost", "shutdown" or similar.
func (c *Client) WriteReaderState(readerID string, connected bool, reason string, at time.Time) {
	tags := map[string]string{"reader_id": readerID}
	if reason != "" {
		tags["reason"] = reason
	}
	c.WritePointWithTime(MeasurementReaderState, tags, map[string]any{"connected": connected}, at)
}

// WriteDeviceError records a native driver failure.
func (c *Client) WriteDeviceError(readerID, operation string, code int, at time.Time) {
	c.WritePointWithTime(MeasurementDeviceError,
		map[string]string{
			"reader_id": readerID,
			"operation": operation,
		},
		map[string]any{"code": code},
		at,
	)
}

// WritePointWithTime writes a custom point. Points written while
// disconnected are dropped.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
