package simulator

import (
	"strconv"
	"sync"
	"time"

	"github.com/kilianp07/ocppbridge/core/model"
)

var phaseNames = []model.Phase{"L1", "L2", "L3"}

// Meter models the energy register of one connector.
type Meter struct {
	PowerW   float64 // charging power while a session is active
	VoltageV float64 // per phase voltage
	Phases   int

	mu       sync.Mutex
	energyWh float64
	charging bool
}

// SetCharging starts or stops energy accumulation.
func (m *Meter) SetCharging(on bool) {
	m.mu.Lock()
	m.charging = on
	m.mu.Unlock()
}

// Advance accumulates the energy delivered during dt.
func (m *Meter) Advance(dt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.charging && dt > 0 {
		m.energyWh += m.PowerW * dt.Hours()
	}
}

// EnergyWh returns the register value.
func (m *Meter) EnergyWh() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.energyWh
}

// Sample renders the current readings as a meter value. Energy is reported
// in kWh, power in W and one current and voltage sample per phase.
func (m *Meter) Sample(ts time.Time) model.MeterValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	power := 0.0
	if m.charging {
		power = m.PowerW
	}
	samples := []model.SampledValue{
		{Value: format(m.energyWh / 1000), Measurand: model.MeasurandEnergyActiveImport, Unit: model.UnitKWh, Context: "Sample.Periodic"},
		{Value: format(power), Measurand: model.MeasurandPowerActiveImport, Unit: model.UnitW, Context: "Sample.Periodic"},
	}
	phases := m.Phases
	if phases > len(phaseNames) {
		phases = len(phaseNames)
	}
	for i := 0; i < phases; i++ {
		current := 0.0
		if m.VoltageV > 0 {
			current = power / float64(phases) / m.VoltageV
		}
		samples = append(samples,
			model.SampledValue{Value: format(current), Measurand: model.MeasurandCurrentImport, Unit: model.UnitA, Phase: phaseNames[i]},
			model.SampledValue{Value: format(m.VoltageV), Measurand: model.MeasurandVoltage, Unit: model.UnitV, Phase: phaseNames[i] + "-N"},
		)
	}
	return model.MeterValue{Timestamp: ts.UTC(), SampledValue: samples}
}

func format(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
