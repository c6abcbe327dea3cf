// Package influxdb is an optional telemetry sink backed by InfluxDB v2.
//
// When INFLUXDB_URL is set the service records every database probe as a
// db_probe point (connected, latency_ms) tagged with the service name and
// environment. Writes are batched and non-blocking; failures are reported
// through the SetOnError callback and never affect the probe itself.
//
// Usage:
//
//	sink, err := influxdb.Connect(ctx, settings.InfluxDB, map[string]string{
//	    "service":     settings.ServiceName,
//	    "environment": string(settings.Environment),
//	})
//	switch {
//	case errors.Is(err, influxdb.ErrDisabled):
//	    // run without telemetry
//	case err != nil:
//	    return err
//	default:
//	    defer sink.Close()
//	    manager := database.NewManager(settings, database.WithProbeObserver(sink))
//	}
package influxdb
