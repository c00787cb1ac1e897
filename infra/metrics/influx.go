package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/yatrik/scheduler/core/metrics"
	"github.com/yatrik/scheduler/infra/logger"
)

// InfluxSink writes run, trip and utilization points to InfluxDB using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
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

// RecordRunResult writes one scheduling_run point and one point per depot.
func (s *InfluxSink) RecordRunResult(res coremetrics.RunResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("scheduling_run").
		AddTag("run_id", res.RunID).
		AddTag("service_date", res.ServiceDate).
		AddTag("cancelled", strconv.FormatBool(res.Cancelled)).
		AddField("created", res.Created).
		AddField("skipped", res.Skipped).
		AddField("success_rate", round3(res.SuccessRate)).
		AddField("duration_ms", res.Duration.Milliseconds()).
		SetTime(res.Time)
	points := []*write.Point{p}
	for _, d := range res.Depots {
		points = append(points, write.NewPointWithMeasurement("scheduling_depot").
			AddTag("run_id", res.RunID).
			AddTag("depot_id", d.DepotID).
			AddField("created", d.Created).
			AddField("skipped", d.Skipped).
			SetTime(res.Time))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordTripResults writes one point per slot outcome.
func (s *InfluxSink) RecordTripResults(res []coremetrics.TripResult) error {
	if len(res) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(res))
	for _, r := range res {
		p := write.NewPointWithMeasurement("trip_slot").
			AddTag("run_id", r.RunID).
			AddTag("route_id", r.RouteID).
			AddTag("depot_id", r.DepotID).
			AddTag("created", strconv.FormatBool(r.Created))
		if r.Reason != "" {
			p = p.AddTag("reason", r.Reason)
		}
		if r.BusID != "" {
			p = p.AddField("bus_id", r.BusID)
		}
		p = p.AddField("write_latency_ms", round3(r.WriteLatency.Seconds()*1000)).
			SetTime(r.Start)
		points = append(points, p)
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordUtilization writes the end-of-run load of every resource.
func (s *InfluxSink) RecordUtilization(us []coremetrics.Utilization) error {
	if len(us) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	points := make([]*write.Point, 0, len(us))
	for _, u := range us {
		points = append(points, write.NewPointWithMeasurement("resource_utilization").
			AddTag("run_id", u.RunID).
			AddTag("kind", string(u.Kind)).
			AddTag("resource_id", u.ResourceID).
			AddTag("depot_id", u.DepotID).
			AddField("trips", u.Trips).
			AddField("cap", u.Cap).
			AddField("ratio", round3(u.Ratio)).
			AddField("busy_minutes", u.BusyMinutes).
			SetTime(u.Time))
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
