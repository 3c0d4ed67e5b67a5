package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement and tag names of property telemetry.
const (
	MeasurementProperty = "thing_property"
	TagThingID          = "thing_id"
	TagProperty         = "property"
	FieldValue          = "value"
)

// PropertyPoint builds the point for one numeric property sample.
func PropertyPoint(thingID, property string, value float64, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementProperty,
		map[string]string{
			TagThingID:  thingID,
			TagProperty: property,
		},
		map[string]any{
			FieldValue: value,
		},
		ts,
	)
}

// WritePropertyValue queues one property sample. The write is
// non-blocking; failures arrive through the SetOnError callback.
func (c *Client) WritePropertyValue(thingID, property string, value float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(PropertyPoint(thingID, property, value, ts))
}
