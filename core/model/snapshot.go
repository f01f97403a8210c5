package model

import "time"

// MetricSnapshot is the canonical per-connector reading forwarded downstream.
// Current and Voltage hold one entry per phase (L1..L3) when the batch
// carried such samples and are empty otherwise.
type MetricSnapshot struct {
	Current   []float64 `json:"current"`
	Energy    float64   `json:"energy"`
	Power     float64   `json:"power"`
	Voltage   []float64 `json:"voltage"`
	Frequency float64   `json:"frequency"`
	Timestamp time.Time `json:"timestamp"`
}

// Eligible reports whether the snapshot carries any information worth publishing.
func (s MetricSnapshot) Eligible() bool {
	return len(s.Current) > 0 || s.Energy != 0 || s.Power != 0 || len(s.Voltage) > 0 || s.Frequency != 0
}

// ConnectorStatus mirrors a status notification for one connector.
type ConnectorStatus struct {
	Status          string    `json:"status"`
	ErrorCode       string    `json:"errorCode"`
	Info            string    `json:"info,omitempty"`
	VendorErrorCode string    `json:"vendorErrorCode,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
