package model

import (
	"strconv"
	"strings"
	"time"
)

// Measurand is the physical quantity a sampled value represents.
type Measurand string

const (
	MeasurandCurrentImport      Measurand = "Current.Import"
	MeasurandCurrentOffered     Measurand = "Current.Offered"
	MeasurandVoltage            Measurand = "Voltage"
	MeasurandPowerActiveImport  Measurand = "Power.Active.Import"
	MeasurandPowerOffered       Measurand = "Power.Offered"
	MeasurandEnergyActiveImport Measurand = "Energy.Active.Import.Register"
	MeasurandFrequency          Measurand = "Frequency"
	MeasurandSoC                Measurand = "SoC"
	MeasurandTemperature        Measurand = "Temperature"
)

// defaultMeasurand applies when a sample omits the measurand field.
const defaultMeasurand = MeasurandEnergyActiveImport

// Unit is the unit of measure attached to a sampled value.
type Unit string

const (
	UnitWh      Unit = "Wh"
	UnitKWh     Unit = "kWh"
	UnitW       Unit = "W"
	UnitKW      Unit = "kW"
	UnitA       Unit = "A"
	UnitV       Unit = "V"
	UnitPercent Unit = "Percent"
	UnitCelsius Unit = "Celsius"
)

// Phase labels the electrical leg a sample was measured on, e.g. "L1" or "L2-N".
type Phase string

// SampledValue is a single vendor reported reading. Value is kept as the raw
// string sent by the charge box.
type SampledValue struct {
	Value     string    `json:"value"`
	Context   string    `json:"context,omitempty"`
	Format    string    `json:"format,omitempty"`
	Measurand Measurand `json:"measurand,omitempty"`
	Phase     Phase     `json:"phase,omitempty"`
	Location  string    `json:"location,omitempty"`
	Unit      Unit      `json:"unit,omitempty"`
}

// EffectiveMeasurand applies the protocol default when the measurand is omitted.
func (s SampledValue) EffectiveMeasurand() Measurand {
	if s.Measurand == "" {
		return defaultMeasurand
	}
	return s.Measurand
}

// EffectiveUnit applies the protocol default (Wh) for energy registers
// reported without a unit.
func (s SampledValue) EffectiveUnit() Unit {
	if s.Unit == "" && s.EffectiveMeasurand() == MeasurandEnergyActiveImport {
		return UnitWh
	}
	return s.Unit
}

// Float parses the raw value. Malformed values yield 0.
func (s SampledValue) Float() float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s.Value), 64)
	if err != nil {
		return 0
	}
	return f
}

// MeterValue groups the samples taken at one instant.
type MeterValue struct {
	Timestamp    time.Time      `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

// MeterValuesRequest is the payload of a MeterValues report.
type MeterValuesRequest struct {
	ConnectorID   int          `json:"connectorId"`
	TransactionID *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue"`
}
