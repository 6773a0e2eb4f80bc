// Package mqtt provides the hub's MQTT client.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retained state
//   - Subscriptions restored after reconnect
//   - A retained status topic backed by a Last Will and Testament
//
// All topics live under the configured prefix (mqtt.topic_prefix):
//
//	{prefix}/system/status            online/offline, retained
//	{prefix}/event/reader/{id}        registry events for one reader
//	{prefix}/event/hub/{type}         events concerning no single reader
//	{prefix}/reader/{id}/state        connection state, retained
//	{prefix}/command/reader/{id}      inbound commands
//	{prefix}/response/reader/{id}     command result envelopes
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//	client.Publish(client.Topics().ReaderEvent("dock-1"), payload, client.QoS(), false)
package mqtt
