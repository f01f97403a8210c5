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

	"github.com/kilianp07/ocppbridge/core/logger"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	infralogger "github.com/kilianp07/ocppbridge/infra/logger"
)

// InfluxConfig holds the InfluxDB v2 connection settings.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes task results and connector readings to InfluxDB using
// the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      infralogger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
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

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordTaskResult writes one task_result point.
func (s *InfluxSink) RecordTaskResult(ev coremetrics.TaskResultEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("task_result").
		AddTag("kind", ev.Kind).
		AddTag("result", ev.Result).
		AddTag("task_id", strconv.FormatUint(ev.TaskID, 10)).
		AddField("targets", ev.Targets).
		AddField("completed", ev.Completed).
		AddField("errored", ev.Errored).
		AddField("timed_out", ev.TimedOut).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSnapshot writes one connector_snapshot point. Per-phase fields are
// only present when the snapshot carried them.
func (s *InfluxSink) RecordSnapshot(ev coremetrics.SnapshotEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap := ev.Snapshot
	p := write.NewPointWithMeasurement("connector_snapshot").
		AddTag("device_id", ev.DeviceID).
		AddTag("connector_id", strconv.Itoa(ev.ConnectorID)).
		AddTag("bookend", strconv.FormatBool(ev.Bookend)).
		AddField("power_w", round3(snap.Power)).
		AddField("energy_wh", round3(snap.Energy)).
		AddField("frequency_hz", round3(snap.Frequency))
	for i, v := range snap.Current {
		if i < len(phaseLabels) {
			p = p.AddField("current_"+strings.ToLower(phaseLabels[i]), round3(v))
		}
	}
	for i, v := range snap.Voltage {
		if i < len(phaseLabels) {
			p = p.AddField("voltage_"+strings.ToLower(phaseLabels[i]), round3(v))
		}
	}
	p = p.SetTime(snap.Timestamp)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordStatus writes one connector_status point.
func (s *InfluxSink) RecordStatus(ev coremetrics.StatusEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ts := ev.Status.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	p := write.NewPointWithMeasurement("connector_status").
		AddTag("device_id", ev.DeviceID).
		AddTag("connector_id", strconv.Itoa(ev.ConnectorID)).
		AddField("status", ev.Status.Status).
		AddField("error_code", ev.Status.ErrorCode).
		SetTime(ts)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
