package command

import (
	"encoding/json"
	"fmt"
)

// Response is the typed answer of a charge box to a Command. The interface
// is sealed: only the response types of this package implement it.
type Response interface {
	Kind() Kind
	isResponse()
}

// Status values shared by the simple responses.
const (
	StatusAccepted       = "Accepted"
	StatusRejected       = "Rejected"
	StatusRebootRequired = "RebootRequired"
	StatusNotSupported   = "NotSupported"
	StatusUnknown        = "Unknown"
	StatusUnlocked       = "Unlocked"
)

// StatusResponse carries the single status field most responses consist of.
type StatusResponse struct {
	Status string `json:"status"`
}

// Accepted reports whether the charge box accepted the request.
func (s StatusResponse) Accepted() bool {
	return s.Status == StatusAccepted || s.Status == StatusUnlocked
}

func (StatusResponse) isResponse() {}

type RemoteStartTransactionResponse struct{ StatusResponse }

func (RemoteStartTransactionResponse) Kind() Kind { return KindRemoteStartTransaction }

type RemoteStopTransactionResponse struct{ StatusResponse }

func (RemoteStopTransactionResponse) Kind() Kind { return KindRemoteStopTransaction }

type SetChargingProfileResponse struct{ StatusResponse }

func (SetChargingProfileResponse) Kind() Kind { return KindSetChargingProfile }

type ClearChargingProfileResponse struct{ StatusResponse }

func (ClearChargingProfileResponse) Kind() Kind { return KindClearChargingProfile }

type ChangeConfigurationResponse struct{ StatusResponse }

func (ChangeConfigurationResponse) Kind() Kind { return KindChangeConfiguration }

type TriggerMessageResponse struct{ StatusResponse }

func (TriggerMessageResponse) Kind() Kind { return KindTriggerMessage }

type ResetResponse struct{ StatusResponse }

func (ResetResponse) Kind() Kind { return KindReset }

type UnlockConnectorResponse struct{ StatusResponse }

func (UnlockConnectorResponse) Kind() Kind { return KindUnlockConnector }

// KeyValue is one configuration entry reported by a charge box.
type KeyValue struct {
	Key      string  `json:"key"`
	ReadOnly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty"`
}

// GetConfigurationResponse lists known and unknown configuration keys.
type GetConfigurationResponse struct {
	ConfigurationKey []KeyValue `json:"configurationKey,omitempty"`
	UnknownKey       []string   `json:"unknownKey,omitempty"`
}

func (GetConfigurationResponse) Kind() Kind { return KindGetConfiguration }
func (GetConfigurationResponse) isResponse() {}

// DecodeResponse parses the raw answer to a command of the given kind.
func DecodeResponse(kind Kind, raw json.RawMessage) (Response, error) {
	switch kind {
	case KindRemoteStartTransaction:
		return decodeResponse[RemoteStartTransactionResponse](raw)
	case KindRemoteStopTransaction:
		return decodeResponse[RemoteStopTransactionResponse](raw)
	case KindSetChargingProfile:
		return decodeResponse[SetChargingProfileResponse](raw)
	case KindClearChargingProfile:
		return decodeResponse[ClearChargingProfileResponse](raw)
	case KindGetConfiguration:
		return decodeResponse[GetConfigurationResponse](raw)
	case KindChangeConfiguration:
		return decodeResponse[ChangeConfigurationResponse](raw)
	case KindTriggerMessage:
		return decodeResponse[TriggerMessageResponse](raw)
	case KindReset:
		return decodeResponse[ResetResponse](raw)
	case KindUnlockConnector:
		return decodeResponse[UnlockConnectorResponse](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func decodeResponse[T Response](raw json.RawMessage) (Response, error) {
	var r T
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", r.Kind(), err)
	}
	return r, nil
}

// ResponseAs decodes raw and returns it as T, failing when kind does not
// produce a T.
func ResponseAs[T Response](kind Kind, raw json.RawMessage) (T, error) {
	var zero T
	resp, err := DecodeResponse(kind, raw)
	if err != nil {
		return zero, err
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("response of %s is %T, not %T", kind, resp, zero)
	}
	return typed, nil
}
