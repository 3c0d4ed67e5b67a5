// Package influxdb writes property telemetry to InfluxDB v2.
//
// Each numeric, integer or boolean property change becomes one point:
//
//	thing_property,thing_id=lamp,property=brightness value=40
//
// Writes go through the non-blocking batched write API configured by
// batch_size and flush_interval; batch failures are reported through the
// SetOnError callback rather than returned.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WritePropertyValue("lamp", "brightness", 40, time.Now())
package influxdb
