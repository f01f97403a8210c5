package command

import "time"

// ProfilePurpose is the charging profile purpose.
type ProfilePurpose string

const (
	PurposeChargePointMaxProfile ProfilePurpose = "ChargePointMaxProfile"
	PurposeTxDefaultProfile      ProfilePurpose = "TxDefaultProfile"
	PurposeTxProfile             ProfilePurpose = "TxProfile"
)

func (p ProfilePurpose) valid() bool {
	switch p {
	case PurposeChargePointMaxProfile, PurposeTxDefaultProfile, PurposeTxProfile:
		return true
	}
	return false
}

// RateUnit is the unit a schedule limit is expressed in.
type RateUnit string

const (
	RateUnitW RateUnit = "W"
	RateUnitA RateUnit = "A"
)

// ProfileKind is the charging profile kind.
type ProfileKind string

const (
	ProfileKindAbsolute  ProfileKind = "Absolute"
	ProfileKindRecurring ProfileKind = "Recurring"
	ProfileKindRelative  ProfileKind = "Relative"
)

// SchedulePeriod is one step of a charging schedule.
type SchedulePeriod struct {
	StartPeriod  int     `json:"startPeriod"`
	Limit        float64 `json:"limit"`
	NumberPhases *int    `json:"numberPhases,omitempty"`
}

// ChargingSchedule is the limit timeline of a profile.
type ChargingSchedule struct {
	Duration        *int             `json:"duration,omitempty"`
	StartSchedule   *time.Time       `json:"startSchedule,omitempty"`
	RateUnit        RateUnit         `json:"chargingRateUnit"`
	Periods         []SchedulePeriod `json:"chargingSchedulePeriod"`
	MinChargingRate *float64         `json:"minChargingRate,omitempty"`
}

// ChargingProfile limits the power or current a connector may draw.
type ChargingProfile struct {
	ID            int              `json:"chargingProfileId"`
	TransactionID *int             `json:"transactionId,omitempty"`
	StackLevel    int              `json:"stackLevel"`
	Purpose       ProfilePurpose   `json:"chargingProfilePurpose"`
	Kind          ProfileKind      `json:"chargingProfileKind"`
	ValidFrom     *time.Time       `json:"validFrom,omitempty"`
	ValidTo       *time.Time       `json:"validTo,omitempty"`
	Schedule      ChargingSchedule `json:"chargingSchedule"`
}

// NewLimitProfile builds an absolute single-period transaction profile
// capping the connector at limit (W or A) from start on.
func NewLimitProfile(id int, limit float64, unit RateUnit, start time.Time) ChargingProfile {
	if unit != RateUnitW {
		unit = RateUnitA
	}
	return ChargingProfile{
		ID:         id,
		StackLevel: 1,
		Purpose:    PurposeTxProfile,
		Kind:       ProfileKindAbsolute,
		Schedule: ChargingSchedule{
			StartSchedule: &start,
			RateUnit:      unit,
			Periods:       []SchedulePeriod{{StartPeriod: 0, Limit: limit}},
		},
	}
}

func (p ChargingProfile) validate(kind Kind) error {
	if p.StackLevel < 0 {
		return invalid(kind, "stackLevel must not be negative")
	}
	if !p.Purpose.valid() {
		return invalid(kind, "unknown purpose %q", p.Purpose)
	}
	switch p.Kind {
	case ProfileKindAbsolute, ProfileKindRecurring, ProfileKindRelative:
	default:
		return invalid(kind, "unknown profile kind %q", p.Kind)
	}
	if p.Schedule.RateUnit != RateUnitW && p.Schedule.RateUnit != RateUnitA {
		return invalid(kind, "chargingRateUnit must be W or A")
	}
	if len(p.Schedule.Periods) == 0 {
		return invalid(kind, "schedule needs at least one period")
	}
	prev := -1
	for i, sp := range p.Schedule.Periods {
		if sp.StartPeriod <= prev {
			return invalid(kind, "period %d does not start after the previous one", i)
		}
		if sp.Limit < 0 {
			return invalid(kind, "period %d has a negative limit", i)
		}
		prev = sp.StartPeriod
	}
	if p.ValidFrom != nil && p.ValidTo != nil && !p.ValidTo.After(*p.ValidFrom) {
		return invalid(kind, "validTo must be after validFrom")
	}
	return nil
}
