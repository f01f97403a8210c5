package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ocppbridge/core/command"
)

func TestLimitPayload(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	raw, err := limitPayload("7400W", 2, start)
	require.NoError(t, err)
	cmd, err := command.DecodeCommand(command.KindSetChargingProfile, raw)
	require.NoError(t, err)
	require.NoError(t, cmd.Validate())
	p := cmd.(command.SetChargingProfile)
	assert.Equal(t, 2, p.ConnectorID)
	assert.Equal(t, command.RateUnitW, p.Profile.Schedule.RateUnit)
	assert.Equal(t, 7400.0, p.Profile.Schedule.Periods[0].Limit)

	raw, err = limitPayload("16A", 1, start)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"chargingRateUnit":"A"`)

	_, err = limitPayload("fast", 1, start)
	assert.Error(t, err)
}
