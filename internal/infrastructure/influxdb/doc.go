// Package influxdb writes reader telemetry to InfluxDB v2.
//
// It wraps influxdb-client-go with connection management, health checks
// and typed writers for the hub's measurements:
//   - rfid_tag_operation: succeeded/failed counts per batch tag operation
//   - rfid_reader_state: connection state changes
//   - rfid_device_error: native driver failures
//
// Writes are non-blocking and batched according to influxdb.batch_size
// and influxdb.flush_interval; write errors reach the SetOnError callback.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//	client.WriteTagOperation("dock-1", "read", 3, 0, time.Now())
package influxdb
