// Package relay connects the flash supervisor to the outside world.
//
// The sinks in this package receive supervisor callbacks and forward them
// to structured logs (LogSink), the MQTT broker (MQTTSink) and InfluxDB
// (MetricsSink). CommandListener goes the other way and turns MQTT
// command messages into supervisor operations.
//
// Combine sinks with flash.MultiSink:
//
//	sink := flash.MultiSink{
//	    relay.NewLogSink(logger),
//	    mqttSink,
//	    relay.NewMetricsSink(influx),
//	}
package relay
