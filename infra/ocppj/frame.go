// Package ocppj implements the OCPP-J 1.6 websocket transport: the frame
// codec, the charge point endpoint and the handling of inbound requests.
package ocppj

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is the first element of every OCPP-J frame.
type MessageType int

const (
	MessageTypeCall       MessageType = 2
	MessageTypeCallResult MessageType = 3
	MessageTypeCallError  MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeCall:
		return "CALL"
	case MessageTypeCallResult:
		return "CALLRESULT"
	case MessageTypeCallError:
		return "CALLERROR"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// CALLERROR codes.
const (
	ErrorNotImplemented     = "NotImplemented"
	ErrorNotSupported       = "NotSupported"
	ErrorInternalError      = "InternalError"
	ErrorProtocolError      = "ProtocolError"
	ErrorFormationViolation = "FormationViolation"
	ErrorGenericError       = "GenericError"
)

// ErrMalformedFrame is returned for frames that are not valid OCPP-J arrays.
var ErrMalformedFrame = errors.New("malformed ocpp-j frame")

// Frame is a decoded OCPP-J message. Action is set for CALL frames, the
// Error fields for CALLERROR frames.
type Frame struct {
	Type             MessageType
	UniqueID         string
	Action           string
	Payload          json.RawMessage
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// ParseFrame decodes a raw websocket message.
func ParseFrame(b []byte) (Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(parts) < 3 {
		return Frame{}, fmt.Errorf("%w: %d elements", ErrMalformedFrame, len(parts))
	}
	var f Frame
	if err := json.Unmarshal(parts[0], &f.Type); err != nil {
		return Frame{}, fmt.Errorf("%w: message type: %v", ErrMalformedFrame, err)
	}
	if err := json.Unmarshal(parts[1], &f.UniqueID); err != nil {
		return Frame{}, fmt.Errorf("%w: unique id: %v", ErrMalformedFrame, err)
	}
	switch f.Type {
	case MessageTypeCall:
		if len(parts) != 4 {
			return f, fmt.Errorf("%w: CALL needs 4 elements", ErrMalformedFrame)
		}
		if err := json.Unmarshal(parts[2], &f.Action); err != nil {
			return f, fmt.Errorf("%w: action: %v", ErrMalformedFrame, err)
		}
		f.Payload = parts[3]
	case MessageTypeCallResult:
		f.Payload = parts[2]
	case MessageTypeCallError:
		if len(parts) < 4 {
			return f, fmt.Errorf("%w: CALLERROR needs 5 elements", ErrMalformedFrame)
		}
		if err := json.Unmarshal(parts[2], &f.ErrorCode); err != nil {
			return f, fmt.Errorf("%w: error code: %v", ErrMalformedFrame, err)
		}
		if err := json.Unmarshal(parts[3], &f.ErrorDescription); err != nil {
			return f, fmt.Errorf("%w: error description: %v", ErrMalformedFrame, err)
		}
		if len(parts) > 4 {
			f.ErrorDetails = parts[4]
		}
	default:
		return f, fmt.Errorf("%w: message type %d", ErrMalformedFrame, f.Type)
	}
	return f, nil
}

// MarshalJSON encodes the frame as an OCPP-J array.
func (f Frame) MarshalJSON() ([]byte, error) {
	payload := f.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	switch f.Type {
	case MessageTypeCall:
		return json.Marshal([]any{f.Type, f.UniqueID, f.Action, payload})
	case MessageTypeCallResult:
		return json.Marshal([]any{f.Type, f.UniqueID, payload})
	case MessageTypeCallError:
		details := f.ErrorDetails
		if len(details) == 0 {
			details = json.RawMessage("{}")
		}
		return json.Marshal([]any{f.Type, f.UniqueID, f.ErrorCode, f.ErrorDescription, details})
	default:
		return nil, fmt.Errorf("%w: message type %d", ErrMalformedFrame, f.Type)
	}
}

// NewCall encodes a CALL frame.
func NewCall(uniqueID, action string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: MessageTypeCall, UniqueID: uniqueID, Action: action, Payload: raw})
}

// NewCallResult encodes a CALLRESULT frame.
func NewCallResult(uniqueID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: MessageTypeCallResult, UniqueID: uniqueID, Payload: raw})
}

// NewCallError encodes a CALLERROR frame.
func NewCallError(uniqueID, code, description string) ([]byte, error) {
	return json.Marshal(Frame{Type: MessageTypeCallError, UniqueID: uniqueID, ErrorCode: code, ErrorDescription: description})
}
