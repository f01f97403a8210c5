package command

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names a command. Values match the OCPP action names.
type Kind string

const (
	KindRemoteStartTransaction Kind = "RemoteStartTransaction"
	KindRemoteStopTransaction  Kind = "RemoteStopTransaction"
	KindSetChargingProfile     Kind = "SetChargingProfile"
	KindClearChargingProfile   Kind = "ClearChargingProfile"
	KindGetConfiguration       Kind = "GetConfiguration"
	KindChangeConfiguration    Kind = "ChangeConfiguration"
	KindTriggerMessage         Kind = "TriggerMessage"
	KindReset                  Kind = "Reset"
	KindUnlockConnector        Kind = "UnlockConnector"
)

// Kinds lists every supported command kind.
var Kinds = []Kind{
	KindRemoteStartTransaction,
	KindRemoteStopTransaction,
	KindSetChargingProfile,
	KindClearChargingProfile,
	KindGetConfiguration,
	KindChangeConfiguration,
	KindTriggerMessage,
	KindReset,
	KindUnlockConnector,
}

// ErrUnknownKind is returned for command kinds outside of Kinds.
var ErrUnknownKind = errors.New("unknown command kind")

// ErrInvalid is wrapped by Validate implementations.
var ErrInvalid = errors.New("invalid command")

// Command is a request that can be dispatched to charge boxes.
type Command interface {
	Kind() Kind
	Validate() error
}

// ParseKind returns the Kind matching s.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// DecodeCommand builds the request type of kind from its JSON payload.
func DecodeCommand(kind Kind, raw json.RawMessage) (Command, error) {
	switch kind {
	case KindRemoteStartTransaction:
		return decode[RemoteStartTransaction](raw)
	case KindRemoteStopTransaction:
		return decode[RemoteStopTransaction](raw)
	case KindSetChargingProfile:
		return decode[SetChargingProfile](raw)
	case KindClearChargingProfile:
		return decode[ClearChargingProfile](raw)
	case KindGetConfiguration:
		return decode[GetConfiguration](raw)
	case KindChangeConfiguration:
		return decode[ChangeConfiguration](raw)
	case KindTriggerMessage:
		return decode[TriggerMessage](raw)
	case KindReset:
		return decode[Reset](raw)
	case KindUnlockConnector:
		return decode[UnlockConnector](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func decode[T Command](raw json.RawMessage) (Command, error) {
	var c T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.Kind(), err)
		}
	}
	return c, nil
}

func invalid(kind Kind, format string, args ...any) error {
	return fmt.Errorf("%w %s: %s", ErrInvalid, kind, fmt.Sprintf(format, args...))
}
