package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampledValueDefaults(t *testing.T) {
	sv := SampledValue{Value: "12"}
	assert.Equal(t, MeasurandEnergyActiveImport, sv.EffectiveMeasurand())
	assert.Equal(t, UnitWh, sv.EffectiveUnit())

	cur := SampledValue{Value: "3", Measurand: MeasurandCurrentImport}
	assert.Equal(t, Unit(""), cur.EffectiveUnit())
}

func TestSampledValueFloat(t *testing.T) {
	assert.Equal(t, 0.010999999940395355, SampledValue{Value: "0.010999999940395355"}.Float())
	assert.Equal(t, 0.0, SampledValue{Value: "n/a"}.Float())
	assert.Equal(t, 42.5, SampledValue{Value: " 42.5 "}.Float())
}

func TestSnapshotEligible(t *testing.T) {
	assert.False(t, MetricSnapshot{}.Eligible())
	assert.True(t, MetricSnapshot{Current: []float64{0, 0, 0}}.Eligible())
	assert.True(t, MetricSnapshot{Frequency: 49.985}.Eligible())
}

func TestMeterValuesDecode(t *testing.T) {
	raw := `{"connectorId":1,"transactionId":5227,"meterValue":[{"timestamp":"2022-09-29T09:13:34.604Z",
	"sampledValue":[{"measurand":"Current.Import","unit":"A","value":"53","location":"Outlet"}]}]}`
	var req MeterValuesRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	assert.Equal(t, 1, req.ConnectorID)
	require.NotNil(t, req.TransactionID)
	assert.Equal(t, 5227, *req.TransactionID)
	require.Len(t, req.MeterValue, 1)
	assert.Equal(t, time.Date(2022, 9, 29, 9, 13, 34, 604000000, time.UTC), req.MeterValue[0].Timestamp)
	assert.Equal(t, MeasurandCurrentImport, req.MeterValue[0].SampledValue[0].Measurand)
}

func TestTransportKind(t *testing.T) {
	assert.Equal(t, TransportSOAP, ParseTransportKind("SOAP"))
	assert.Equal(t, TransportJSON, ParseTransportKind("whatever"))
	b, err := json.Marshal(Device{ID: "cb1", Transport: TransportJSON, Connected: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"cb1","transport":"JSON","connected":true}`, string(b))
}
