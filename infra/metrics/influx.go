package metrics

import (
	"context"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/openrp/cad/core/metrics"
	"github.com/openrp/cad/infra/logger"
)

// InfluxSink writes dispatch events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB
// endpoint.
func NewInfluxSink(cfg coremetrics.Config) *InfluxSink {
	client := influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAssignment writes the assignment attempt as a point.
func (s *InfluxSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	p := write.NewPointWithMeasurement("assignment").
		AddTag("call_id", ev.CallID).
		AddTag("unit_id", ev.UnitID).
		AddTag("result", ev.Result).
		AddTag("priority", ev.Priority.String()).
		AddField("latency_ms", float64(ev.Latency.Milliseconds())).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordCall writes the call lifecycle event as a point.
func (s *InfluxSink) RecordCall(ev coremetrics.CallEvent) error {
	p := write.NewPointWithMeasurement("call").
		AddTag("call_id", ev.CallID).
		AddTag("type", ev.Type).
		AddTag("status", ev.Status.String()).
		AddTag("priority", ev.Priority.String()).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordAlert writes the alert event as a point.
func (s *InfluxSink) RecordAlert(ev coremetrics.AlertEvent) error {
	p := write.NewPointWithMeasurement("alert").
		AddTag("alert_id", ev.AlertID).
		AddTag("kind", ev.Kind.String()).
		AddTag("department", ev.Department.String()).
		AddTag("priority", ev.Priority.String()).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordActiveUnits writes the unit gauge as a point.
func (s *InfluxSink) RecordActiveUnits(n int) error {
	p := write.NewPointWithMeasurement("active_units").
		AddField("count", n).
		SetTime(time.Now())
	return s.write(p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }
