//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ocppbridge/api/tasks"
	"github.com/kilianp07/ocppbridge/app"
	"github.com/kilianp07/ocppbridge/config"
	"github.com/kilianp07/ocppbridge/core/factory"
	"github.com/kilianp07/ocppbridge/core/task"
	"github.com/kilianp07/ocppbridge/infra/logger"
	"github.com/kilianp07/ocppbridge/simulator"
	"github.com/kilianp07/ocppbridge/test/util"
)

const (
	org    = "e2e_org"
	bucket = "e2e_bucket"
	token  = "e2e-token"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func Test_E2E_DispatchAndTelemetry(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	broker, stopMQTT, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("unable to start mosquitto: %v", err)
	}
	defer stopMQTT()
	influx, stopInflux, err := util.StartInflux(ctx, org, bucket, token)
	if err != nil {
		t.Skipf("unable to start influx: %v", err)
	}
	defer stopInflux()

	cfg := &config.Config{}
	cfg.MQTT.Broker = broker
	cfg.OCPP.Addr = freeAddr(t)
	cfg.API.Addr = freeAddr(t)
	cfg.Metrics.PrometheusAddr = freeAddr(t)
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "influx", Conf: map[string]any{
		"url": influx.URL, "token": token, "org": org, "bucket": bucket,
	}}}
	cfg.TaskLog.Backend = "jsonl"
	cfg.TaskLog.Path = filepath.Join(t.TempDir(), "tasks.jsonl")
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	svc, err := app.New(cfg)
	require.NoError(t, err)
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()
	defer func() {
		stop()
		<-done
		_ = svc.Close()
	}()

	var received atomic.Int32
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("e2e-sub"))
	tok := sub.Connect()
	require.True(t, tok.WaitTimeout(util.MosquittoReadyTimeout))
	require.NoError(t, tok.Error())
	defer sub.Disconnect(100)
	tok = sub.Subscribe("ocpp/+/+/em", 1, func(paho.Client, paho.Message) { received.Add(1) })
	require.True(t, tok.WaitTimeout(util.MosquittoReadyTimeout))

	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", cfg.OCPP.Addr)
		if err == nil {
			_ = c.Close()
		}
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)

	simCfg := simulator.Config{URL: fmt.Sprintf("ws://%s/ocpp/", cfg.OCPP.Addr), Interval: time.Second}
	simCfg.SetDefaults()
	cp := simulator.NewChargePoint("sim0001", simCfg, simulator.AutoAnswer{}, logger.NopLogger{})
	go func() { _ = cp.Run(runCtx, true) }()
	require.Eventually(t, func() bool { return svc.Registry.IsConnected("sim0001") }, 10*time.Second, 50*time.Millisecond)

	base := "http://" + cfg.API.Addr
	body, _ := json.Marshal(tasks.DispatchRequest{Kind: "Reset", Targets: []string{"sim0001"}, Payload: json.RawMessage(`{"type":"Soft"}`)})
	resp, err := http.Post(base+"/api/tasks", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var accepted tasks.DispatchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Get(fmt.Sprintf("%s/api/tasks/%s?wait=10s", base, accepted.TaskID))
	require.NoError(t, err)
	var v task.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	_ = resp.Body.Close()
	require.True(t, v.Closed)
	assert.Equal(t, "completed", task.Result(v))

	require.Eventually(t, func() bool { return received.Load() > 0 }, 15*time.Second, 100*time.Millisecond)

	mctx, mcancel := context.WithTimeout(ctx, util.MetricTimeout)
	defer mcancel()
	require.NoError(t, util.WaitForMetric(mctx, "http://"+cfg.Metrics.PrometheusAddr+"/metrics", `dispatch_commands_total{kind="Reset"}`))

	cli := NewInfluxClient(influx.URL, org, bucket, token)
	defer cli.Close()
	require.Eventually(t, func() bool {
		n, err := cli.CountPoints(ctx, "connector_snapshot", "sim0001", "5m")
		return err == nil && n > 0
	}, 30*time.Second, 500*time.Millisecond)
	require.Eventually(t, func() bool {
		n, err := cli.CountPoints(ctx, "task_result", "", "5m")
		return err == nil && n > 0
	}, 30*time.Second, 500*time.Millisecond)
}
