package model

import "strings"

// TransportKind identifies the channel flavour a charge box is connected with.
type TransportKind int

const (
	TransportJSON TransportKind = iota
	TransportSOAP
)

// String returns a human-readable representation of the transport kind.
func (k TransportKind) String() string {
	switch k {
	case TransportJSON:
		return "JSON"
	case TransportSOAP:
		return "SOAP"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k TransportKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ParseTransportKind maps a configuration string to a TransportKind.
// Unknown values fall back to TransportJSON.
func ParseTransportKind(s string) TransportKind {
	if strings.EqualFold(s, "soap") {
		return TransportSOAP
	}
	return TransportJSON
}

// Device represents a charge box known to the connection registry.
type Device struct {
	ID        string        `json:"id"`
	Transport TransportKind `json:"transport"`
	Connected bool          `json:"connected"`
}
