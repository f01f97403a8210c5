package command

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryKindDecodes(t *testing.T) {
	for _, k := range Kinds {
		cmd, err := DecodeCommand(k, nil)
		require.NoError(t, err, k)
		assert.Equal(t, k, cmd.Kind())

		resp, err := DecodeResponse(k, json.RawMessage(`{}`))
		require.NoError(t, err, k)
		assert.Equal(t, k, resp.Kind())
	}
}

func TestUnknownKind(t *testing.T) {
	_, err := ParseKind("DataTransfer")
	assert.True(t, errors.Is(err, ErrUnknownKind))
	_, err = DecodeCommand("DataTransfer", nil)
	assert.True(t, errors.Is(err, ErrUnknownKind))
	_, err = DecodeResponse("DataTransfer", json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestDecodeCommandPayload(t *testing.T) {
	cmd, err := DecodeCommand(KindRemoteStartTransaction, json.RawMessage(`{"connectorId":2,"idTag":"TAG1"}`))
	require.NoError(t, err)
	start, ok := cmd.(RemoteStartTransaction)
	require.True(t, ok)
	require.NotNil(t, start.ConnectorID)
	assert.Equal(t, 2, *start.ConnectorID)
	assert.Equal(t, "TAG1", start.IDTag)
	assert.NoError(t, start.Validate())

	_, err = DecodeCommand(KindReset, json.RawMessage(`{"type":`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	zero := 0
	cases := []struct {
		name string
		cmd  Command
		ok   bool
	}{
		{"start without tag", RemoteStartTransaction{}, false},
		{"start bad connector", RemoteStartTransaction{IDTag: "x", ConnectorID: &zero}, false},
		{"stop", RemoteStopTransaction{TransactionID: 5}, true},
		{"change without key", ChangeConfiguration{Value: "1"}, false},
		{"change", ChangeConfiguration{Key: "HeartbeatInterval", Value: "60"}, true},
		{"trigger status", TriggerMessage{RequestedMessage: TriggerStatusNotification}, true},
		{"trigger unknown", TriggerMessage{RequestedMessage: "Foo"}, false},
		{"reset soft", Reset{Type: "Soft"}, true},
		{"reset bad", Reset{Type: "Warm"}, false},
		{"unlock zero", UnlockConnector{}, false},
		{"clear purpose", ClearChargingProfile{Purpose: "Bogus"}, false},
		{"get all", GetConfiguration{}, true},
		{"get empty key", GetConfiguration{Key: []string{""}}, false},
		{"set limit", SetChargingProfile{ConnectorID: 1, Profile: NewLimitProfile(3, 11000, RateUnitW, time.Now())}, true},
		{"set empty schedule", SetChargingProfile{ConnectorID: 1, Profile: ChargingProfile{Purpose: PurposeTxProfile, Kind: ProfileKindAbsolute, Schedule: ChargingSchedule{RateUnit: RateUnitA}}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cmd.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
			}
		})
	}
}

func TestLimitProfileUnits(t *testing.T) {
	p := NewLimitProfile(1, 16, "amps", time.Unix(0, 0))
	assert.Equal(t, RateUnitA, p.Schedule.RateUnit)
	assert.Equal(t, PurposeTxProfile, p.Purpose)
	require.Len(t, p.Schedule.Periods, 1)
	assert.Equal(t, 16.0, p.Schedule.Periods[0].Limit)
}

func TestResponseAs(t *testing.T) {
	resp, err := ResponseAs[RemoteStartTransactionResponse](KindRemoteStartTransaction, json.RawMessage(`{"status":"Accepted"}`))
	require.NoError(t, err)
	assert.True(t, resp.Accepted())

	cfg, err := ResponseAs[GetConfigurationResponse](KindGetConfiguration,
		json.RawMessage(`{"configurationKey":[{"key":"HeartbeatInterval","readonly":false,"value":"300"}],"unknownKey":["Foo"]}`))
	require.NoError(t, err)
	require.Len(t, cfg.ConfigurationKey, 1)
	assert.Equal(t, "300", *cfg.ConfigurationKey[0].Value)
	assert.Equal(t, []string{"Foo"}, cfg.UnknownKey)

	_, err = ResponseAs[ResetResponse](KindRemoteStartTransaction, json.RawMessage(`{"status":"Accepted"}`))
	assert.Error(t, err)

	_, err = ResponseAs[ResetResponse](KindReset, json.RawMessage(`not json`))
	assert.Error(t, err)
}
