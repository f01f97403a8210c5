// Package util starts disposable brokers and databases for integration tests.
package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	MosquittoReadyTimeout = 5 * time.Second
	InfluxReadyTimeout    = 30 * time.Second
	MetricTimeout         = 5 * time.Second

	pollInterval = 50 * time.Millisecond
)

const mosquittoConf = `listener 1883
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
connection_messages true
`

// poll runs fn until it returns nil or ctx ends.
func poll(ctx context.Context, fn func(context.Context) error) error {
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(pollInterval):
		}
	}
}

// start runs req and returns the host:port mapped to port.
func start(ctx context.Context, req tc.ContainerRequest, port nat.Port) (string, func(), error) {
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		return "", nil, err
	}
	stop := func() { _ = cont.Terminate(context.Background()) }
	hostPort, err := cont.PortEndpoint(ctx, port, "")
	if err != nil {
		stop()
		return "", nil, err
	}
	return hostPort, stop, nil
}

// WaitForMetric polls metricsURL until the exposition contains substr.
func WaitForMetric(ctx context.Context, metricsURL, substr string) error {
	return poll(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if !strings.Contains(string(body), substr) {
			return fmt.Errorf("metric %q not exposed yet", substr)
		}
		return nil
	})
}

// StartMosquitto launches an anonymous Mosquitto 2 broker and returns its
// tcp:// URL once it accepts MQTT connections.
func StartMosquitto(ctx context.Context) (string, func(), error) {
	hostPort, stop, err := start(ctx, tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			Reader:            strings.NewReader(mosquittoConf),
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}, "1883/tcp")
	if err != nil {
		return "", nil, err
	}
	broker := "tcp://" + hostPort

	readyCtx, cancel := context.WithTimeout(ctx, MosquittoReadyTimeout)
	defer cancel()
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("readiness-probe")
	err = poll(readyCtx, func(context.Context) error {
		cli := paho.NewClient(opts)
		tok := cli.Connect()
		tok.Wait()
		if tok.Error() != nil {
			return tok.Error()
		}
		cli.Disconnect(100)
		return nil
	})
	if err != nil {
		stop()
		return "", nil, err
	}
	return broker, stop, nil
}

// InfluxInstance describes a running InfluxDB container.
type InfluxInstance struct {
	URL    string
	Org    string
	Bucket string
	Token  string
}

// StartInflux launches InfluxDB 2 initialised with org, bucket and an admin
// token.
func StartInflux(ctx context.Context, org, bucket, token string) (InfluxInstance, func(), error) {
	hostPort, stop, err := start(ctx, tc.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "ocppbridge",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "ocppbridge-e2e",
			"DOCKER_INFLUXDB_INIT_ORG":         org,
			"DOCKER_INFLUXDB_INIT_BUCKET":      bucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": token,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(InfluxReadyTimeout),
	}, "8086/tcp")
	if err != nil {
		return InfluxInstance{}, nil, err
	}
	return InfluxInstance{URL: "http://" + hostPort, Org: org, Bucket: bucket, Token: token}, stop, nil
}
