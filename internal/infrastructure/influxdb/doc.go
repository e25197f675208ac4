// Package influxdb writes flashing metrics to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched writes and health checks.
//
// # Measurements
//
//	udon_device    tag event        field present
//	udon_progress  tags run_id, operation  field percent
//	udon_run       tags operation, success fields exit_code, duration_ms
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteProgress(run.ID, "flash", 42)
//
// Writes are non-blocking. Batch errors are delivered to the SetOnError
// callback; connection and health check errors are returned directly.
package influxdb
