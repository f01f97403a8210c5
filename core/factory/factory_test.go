package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type endpoint struct {
	URL     string
	Timeout time.Duration
}

type endpointConf struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
}

func endpointRegistry(t *testing.T) *Registry[endpoint] {
	t.Helper()
	reg := NewRegistry[endpoint]()
	require.NoError(t, reg.Register("http", func(conf map[string]any) (endpoint, error) {
		var c endpointConf
		if err := Decode(conf, &c); err != nil {
			return endpoint{}, err
		}
		return endpoint(c), nil
	}))
	return reg
}

func TestRegistry_CreateDecodesConf(t *testing.T) {
	reg := endpointRegistry(t)
	ep, err := reg.Create(ModuleConfig{Type: "http", Conf: map[string]any{"url": "http://influx:8086", "timeout": "1500ms"}})
	require.NoError(t, err)
	assert.Equal(t, endpoint{URL: "http://influx:8086", Timeout: 1500 * time.Millisecond}, ep)

	_, err = reg.Create(ModuleConfig{Type: "http", Conf: map[string]any{"timeout": "soon"}})
	assert.Error(t, err)
}

func TestRegistry_Errors(t *testing.T) {
	reg := endpointRegistry(t)
	assert.Error(t, reg.Register("http", func(map[string]any) (endpoint, error) { return endpoint{}, nil }), "duplicate")
	assert.Error(t, reg.Register("nil", nil))

	_, err := reg.Create(ModuleConfig{Type: "grpc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known: http")
}

func TestRegistry_NamesSorted(t *testing.T) {
	reg := endpointRegistry(t)
	require.NoError(t, reg.Register("amqp", func(map[string]any) (endpoint, error) { return endpoint{}, nil }))
	assert.Equal(t, []string{"amqp", "http"}, reg.Names())
}
