package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/infra/logger"
)

type fakeChannel struct {
	kind    model.TransportKind
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  bool
}

func (f *fakeChannel) Kind() model.TransportKind { return f.kind }

func (f *fakeChannel) Send(_ context.Context, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func TestRegistrySendAndConnectivity(t *testing.T) {
	r := New(logger.NopLogger{})
	ch := &fakeChannel{kind: model.TransportJSON}
	assert.False(t, r.IsConnected("cb1"))

	r.Register("cb1", ch)
	assert.True(t, r.IsConnected("cb1"))
	kind, ok := r.Transport("cb1")
	assert.True(t, ok)
	assert.Equal(t, model.TransportJSON, kind)
	_, ok = r.Transport("cb2")
	assert.False(t, ok)
	require.NoError(t, r.Send(context.Background(), "cb1", model.TransportJSON, []byte("hello")))
	assert.Equal(t, [][]byte{[]byte("hello")}, ch.sent)

	err := r.Send(context.Background(), "cb2", model.TransportJSON, []byte("x"))
	assert.True(t, errors.Is(err, ErrNotConnected))

	err = r.Send(context.Background(), "cb1", model.TransportSOAP, []byte("x"))
	assert.True(t, errors.Is(err, ErrTransportMismatch))
}

func TestRegistrySendError(t *testing.T) {
	r := New(logger.NopLogger{})
	boom := errors.New("broken pipe")
	r.Register("cb1", &fakeChannel{sendErr: boom})
	err := r.Send(context.Background(), "cb1", model.TransportJSON, []byte("x"))
	assert.True(t, errors.Is(err, boom))
}

func TestRegistryReconnectReplacesChannel(t *testing.T) {
	r := New(logger.NopLogger{})
	first := &fakeChannel{}
	second := &fakeChannel{}
	r.Register("cb1", first)
	r.Register("cb1", second)
	assert.True(t, first.closed)

	// stale close of the first connection must not drop the second
	r.Unregister("cb1", first)
	assert.True(t, r.IsConnected("cb1"))

	r.Unregister("cb1", second)
	assert.False(t, r.IsConnected("cb1"))
}

func TestRegistryDevicesSorted(t *testing.T) {
	r := New(logger.NopLogger{})
	r.Register("b", &fakeChannel{})
	r.Register("a", &fakeChannel{kind: model.TransportSOAP})
	devs := r.Devices()
	require.Len(t, devs, 2)
	assert.Equal(t, "a", devs[0].ID)
	assert.Equal(t, model.TransportSOAP, devs[0].Transport)
	assert.True(t, devs[1].Connected)

	require.NoError(t, r.Close())
	assert.Empty(t, r.Devices())
}

func TestRegistryGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	t.Cleanup(func() { ResetMetrics(nil) })
	r := New(logger.NopLogger{})
	r.Register("a", &fakeChannel{})
	r.Register("b", &fakeChannel{})
	assert.Equal(t, 2.0, testutil.ToFloat64(connectedDevices))
}
