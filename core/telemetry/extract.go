package telemetry

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/ocppbridge/core/model"
)

const phases = 3

// Normalize converts one meter value into a snapshot. It never fails:
// missing or malformed readings degrade to zero values.
func Normalize(mv model.MeterValue) model.MetricSnapshot {
	current := phaseValues(mv.SampledValue, model.MeasurandCurrentImport, model.UnitA)
	voltage := phaseValues(mv.SampledValue, model.MeasurandVoltage, model.UnitV)
	return model.MetricSnapshot{
		Current:   current,
		Voltage:   voltage,
		Power:     power(mv.SampledValue, current, voltage),
		Energy:    energy(mv.SampledValue),
		Frequency: frequency(mv.SampledValue),
		Timestamp: mv.Timestamp,
	}
}

// phaseValues returns one value per phase, or an empty slice when no
// sample matches. A lone sample without phase label is attributed to L1.
func phaseValues(samples []model.SampledValue, m model.Measurand, u model.Unit) []float64 {
	var matched []model.SampledValue
	for _, s := range samples {
		if s.EffectiveMeasurand() == m && s.EffectiveUnit() == u {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return []float64{}
	}
	res := make([]float64, phases)
	if len(matched) == 1 && matched[0].Phase == "" {
		res[0] = matched[0].Float()
		return res
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Phase < matched[j].Phase })
	for i := 0; i < phases; i++ {
		digit := strconv.Itoa(i + 1)
		for _, s := range matched {
			if strings.Contains(string(s.Phase), digit) {
				res[i] = s.Float()
				break
			}
		}
	}
	return res
}

// power prefers the first positive reported active import power and falls
// back to the per-phase sum of current times voltage.
func power(samples []model.SampledValue, current, voltage []float64) float64 {
	for _, s := range samples {
		if s.EffectiveMeasurand() != model.MeasurandPowerActiveImport {
			continue
		}
		v := s.Float()
		if s.EffectiveUnit() == model.UnitKW {
			v *= 1000
		}
		if v > 0 {
			return v
		}
	}
	if len(current) != len(voltage) {
		return 0
	}
	return floats.Dot(current, voltage)
}

// energy returns the import register in Wh. kWh readings take precedence.
func energy(samples []model.SampledValue) float64 {
	if s, ok := first(samples, model.MeasurandEnergyActiveImport, model.UnitKWh); ok {
		return s.Float() * 1000
	}
	if s, ok := first(samples, model.MeasurandEnergyActiveImport, model.UnitWh); ok {
		return s.Float()
	}
	return 0
}

func frequency(samples []model.SampledValue) float64 {
	for _, s := range samples {
		if s.EffectiveMeasurand() == model.MeasurandFrequency {
			return s.Float()
		}
	}
	return 0
}

func first(samples []model.SampledValue, m model.Measurand, u model.Unit) (model.SampledValue, bool) {
	for _, s := range samples {
		if s.EffectiveMeasurand() == m && s.EffectiveUnit() == u {
			return s, true
		}
	}
	return model.SampledValue{}, false
}

// boundary synthesizes the meter value reported at a session boundary.
func boundary(ts time.Time, energyWh float64) model.MeterValue {
	return model.MeterValue{
		Timestamp: ts,
		SampledValue: []model.SampledValue{
			{Measurand: model.MeasurandPowerActiveImport, Unit: model.UnitW, Value: "0"},
			{Measurand: model.MeasurandEnergyActiveImport, Unit: model.UnitWh, Value: strconv.FormatFloat(energyWh, 'f', -1, 64)},
		},
	}
}
