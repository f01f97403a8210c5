//go:build integration

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ocppbridge/app"
	"github.com/kilianp07/ocppbridge/config"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/infra/logger"
	"github.com/kilianp07/ocppbridge/simulator"
	"github.com/kilianp07/ocppbridge/test/util"
)

func localAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

func TestStatusForwardedToBroker(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	broker, cleanup, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto: %v", err)
	}
	defer cleanup()

	statuses := make(chan model.ConnectorStatus, 4)
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("status-sub"))
	tok := sub.Connect()
	require.True(t, tok.WaitTimeout(util.MosquittoReadyTimeout))
	require.NoError(t, tok.Error())
	defer sub.Disconnect(100)
	tok = sub.Subscribe("ocpp/sim0001/+/status", 0, func(_ paho.Client, m paho.Message) {
		var st model.ConnectorStatus
		if json.Unmarshal(m.Payload(), &st) == nil {
			statuses <- st
		}
	})
	require.True(t, tok.WaitTimeout(util.MosquittoReadyTimeout))

	cfg := &config.Config{}
	cfg.MQTT.Broker = broker
	cfg.OCPP.Addr = localAddr(t)
	cfg.API.Addr = localAddr(t)
	cfg.Metrics.PrometheusAddr = localAddr(t)
	cfg.TaskLog.Backend = "jsonl"
	cfg.TaskLog.Path = filepath.Join(t.TempDir(), "tasks.jsonl")
	cfg.SetDefaults()
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

	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", cfg.OCPP.Addr)
		if err == nil {
			_ = c.Close()
		}
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)

	simCfg := simulator.Config{URL: fmt.Sprintf("ws://%s/ocpp/", cfg.OCPP.Addr)}
	simCfg.SetDefaults()
	cp := simulator.NewChargePoint("sim0001", simCfg, simulator.AutoAnswer{}, logger.NopLogger{})
	go func() { _ = cp.Run(runCtx, false) }()

	select {
	case st := <-statuses:
		require.Equal(t, "Available", st.Status)
	case <-ctx.Done():
		t.Fatal("no status published")
	}
}
