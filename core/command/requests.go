package command

import "strings"

// RemoteStartTransaction asks a charge box to start a session for an id tag.
type RemoteStartTransaction struct {
	ConnectorID     *int             `json:"connectorId,omitempty"`
	IDTag           string           `json:"idTag"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
}

func (RemoteStartTransaction) Kind() Kind { return KindRemoteStartTransaction }

func (c RemoteStartTransaction) Validate() error {
	if strings.TrimSpace(c.IDTag) == "" {
		return invalid(c.Kind(), "idTag is required")
	}
	if len(c.IDTag) > 20 {
		return invalid(c.Kind(), "idTag longer than 20 characters")
	}
	if c.ConnectorID != nil && *c.ConnectorID <= 0 {
		return invalid(c.Kind(), "connectorId must be positive")
	}
	if c.ChargingProfile != nil {
		if c.ChargingProfile.Purpose != PurposeTxProfile {
			return invalid(c.Kind(), "chargingProfile purpose must be %s", PurposeTxProfile)
		}
		return c.ChargingProfile.validate(c.Kind())
	}
	return nil
}

// RemoteStopTransaction asks a charge box to stop a running session.
type RemoteStopTransaction struct {
	TransactionID int `json:"transactionId"`
}

func (RemoteStopTransaction) Kind() Kind { return KindRemoteStopTransaction }

func (c RemoteStopTransaction) Validate() error {
	if c.TransactionID < 0 {
		return invalid(c.Kind(), "transactionId must not be negative")
	}
	return nil
}

// SetChargingProfile installs a charging profile on a connector.
type SetChargingProfile struct {
	ConnectorID int             `json:"connectorId"`
	Profile     ChargingProfile `json:"csChargingProfiles"`
}

func (SetChargingProfile) Kind() Kind { return KindSetChargingProfile }

func (c SetChargingProfile) Validate() error {
	if c.ConnectorID < 0 {
		return invalid(c.Kind(), "connectorId must not be negative")
	}
	return c.Profile.validate(c.Kind())
}

// ClearChargingProfile removes profiles matching the optional criteria.
type ClearChargingProfile struct {
	ID          *int           `json:"id,omitempty"`
	ConnectorID *int           `json:"connectorId,omitempty"`
	Purpose     ProfilePurpose `json:"chargingProfilePurpose,omitempty"`
	StackLevel  *int           `json:"stackLevel,omitempty"`
}

func (ClearChargingProfile) Kind() Kind { return KindClearChargingProfile }

func (c ClearChargingProfile) Validate() error {
	if c.Purpose != "" && !c.Purpose.valid() {
		return invalid(c.Kind(), "unknown purpose %q", c.Purpose)
	}
	if c.StackLevel != nil && *c.StackLevel < 0 {
		return invalid(c.Kind(), "stackLevel must not be negative")
	}
	return nil
}

// GetConfiguration reads configuration keys. An empty Key list reads all keys.
type GetConfiguration struct {
	Key []string `json:"key,omitempty"`
}

func (GetConfiguration) Kind() Kind { return KindGetConfiguration }

func (c GetConfiguration) Validate() error {
	for _, k := range c.Key {
		if k == "" {
			return invalid(c.Kind(), "empty key")
		}
	}
	return nil
}

// ChangeConfiguration sets one configuration key.
type ChangeConfiguration struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (ChangeConfiguration) Kind() Kind { return KindChangeConfiguration }

func (c ChangeConfiguration) Validate() error {
	if c.Key == "" {
		return invalid(c.Kind(), "key is required")
	}
	if len(c.Key) > 50 || len(c.Value) > 500 {
		return invalid(c.Kind(), "key or value too long")
	}
	return nil
}

// Trigger message names accepted by TriggerMessage.
const (
	TriggerBootNotification   = "BootNotification"
	TriggerHeartbeat          = "Heartbeat"
	TriggerMeterValues        = "MeterValues"
	TriggerStatusNotification = "StatusNotification"
)

// TriggerMessage requests the charge box to send a given message.
type TriggerMessage struct {
	RequestedMessage string `json:"requestedMessage"`
	ConnectorID      *int   `json:"connectorId,omitempty"`
}

func (TriggerMessage) Kind() Kind { return KindTriggerMessage }

func (c TriggerMessage) Validate() error {
	switch c.RequestedMessage {
	case TriggerBootNotification, TriggerHeartbeat, TriggerMeterValues, TriggerStatusNotification,
		"DiagnosticsStatusNotification", "FirmwareStatusNotification":
		return nil
	default:
		return invalid(c.Kind(), "unknown requestedMessage %q", c.RequestedMessage)
	}
}

// Reset types.
const (
	ResetHard = "Hard"
	ResetSoft = "Soft"
)

// Reset reboots the charge box.
type Reset struct {
	Type string `json:"type"`
}

func (Reset) Kind() Kind { return KindReset }

func (c Reset) Validate() error {
	if c.Type != ResetHard && c.Type != ResetSoft {
		return invalid(c.Kind(), "type must be Hard or Soft")
	}
	return nil
}

// UnlockConnector releases the cable lock of a connector.
type UnlockConnector struct {
	ConnectorID int `json:"connectorId"`
}

func (UnlockConnector) Kind() Kind { return KindUnlockConnector }

func (c UnlockConnector) Validate() error {
	if c.ConnectorID <= 0 {
		return invalid(c.Kind(), "connectorId must be positive")
	}
	return nil
}
