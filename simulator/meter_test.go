package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/core/telemetry"
)

func TestMeterAdvance(t *testing.T) {
	m := &Meter{PowerW: 7400, VoltageV: 230, Phases: 1}
	m.Advance(time.Hour)
	assert.Zero(t, m.EnergyWh(), "idle meter must not count")

	m.SetCharging(true)
	m.Advance(30 * time.Minute)
	assert.InDelta(t, 3700, m.EnergyWh(), 1e-9)
}

func TestMeterSampleNormalizes(t *testing.T) {
	m := &Meter{PowerW: 11040, VoltageV: 230, Phases: 3}
	m.SetCharging(true)
	m.Advance(time.Hour)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mv := m.Sample(ts)
	require.Len(t, mv.SampledValue, 8)
	assert.Equal(t, model.UnitKWh, mv.SampledValue[0].Unit)

	snap := telemetry.Normalize(mv)
	assert.InDelta(t, 11040, snap.Energy, 1e-6)
	assert.InDelta(t, 11040, snap.Power, 1e-6)
	require.Len(t, snap.Current, 3)
	assert.InDelta(t, 16, snap.Current[0], 1e-3)
	assert.Equal(t, []float64{230, 230, 230}, snap.Voltage)
	assert.Equal(t, ts, snap.Timestamp)
}

func TestFleetIDs(t *testing.T) {
	cfg := Config{Count: 3}
	cfg.SetDefaults()
	cps := GenerateFleet(cfg, AutoAnswer{}, nopLogger{})
	require.Len(t, cps, 3)
	assert.Equal(t, "sim0001", cps[0].ID)
	assert.Equal(t, "sim0003", cps[2].ID)
	assert.Nil(t, GenerateFleet(Config{}, AutoAnswer{}, nopLogger{}))
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())

	cfg.URL = "http://localhost"
	assert.Error(t, cfg.Validate())

	cfg = Config{DropRate: 2}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())
}
