// Package bridge connects the reader registry to the hub's outside systems.
//
// EventPublisher and Telemetry are reader.EventSink implementations that
// mirror registry events to MQTT and InfluxDB. Commands executes reader
// commands received on the MQTT command topics.
package bridge
