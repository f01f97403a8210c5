package ocppj

import (
	"time"

	"github.com/kilianp07/ocppbridge/core/model"
)

// Inbound actions handled by the central system.
const (
	ActionBootNotification   = "BootNotification"
	ActionHeartbeat          = "Heartbeat"
	ActionMeterValues        = "MeterValues"
	ActionStartTransaction   = "StartTransaction"
	ActionStopTransaction    = "StopTransaction"
	ActionStatusNotification = "StatusNotification"
)

// RegistrationStatus values of a BootNotification answer.
const (
	RegistrationAccepted = "Accepted"
)

// Authorization status values of an idTagInfo.
const (
	AuthorizationAccepted = "Accepted"
)

type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
}

type BootNotificationResponse struct {
	Status      string    `json:"status"`
	CurrentTime time.Time `json:"currentTime"`
	Interval    int       `json:"interval"`
}

type HeartbeatResponse struct {
	CurrentTime time.Time `json:"currentTime"`
}

type IDTagInfo struct {
	Status     string     `json:"status"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
}

type StartTransactionRequest struct {
	ConnectorID   int       `json:"connectorId"`
	IDTag         string    `json:"idTag"`
	MeterStart    int       `json:"meterStart"`
	ReservationID *int      `json:"reservationId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type StartTransactionResponse struct {
	TransactionID int       `json:"transactionId"`
	IDTagInfo     IDTagInfo `json:"idTagInfo"`
}

type StopTransactionRequest struct {
	TransactionID   int                `json:"transactionId"`
	IDTag           string             `json:"idTag,omitempty"`
	MeterStop       int                `json:"meterStop"`
	Timestamp       time.Time          `json:"timestamp"`
	Reason          string             `json:"reason,omitempty"`
	TransactionData []model.MeterValue `json:"transactionData,omitempty"`
}

type StopTransactionResponse struct {
	IDTagInfo *IDTagInfo `json:"idTagInfo,omitempty"`
}

type StatusNotificationRequest struct {
	ConnectorID     int        `json:"connectorId"`
	ErrorCode       string     `json:"errorCode"`
	Status          string     `json:"status"`
	Info            string     `json:"info,omitempty"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
	VendorID        string     `json:"vendorId,omitempty"`
	VendorErrorCode string     `json:"vendorErrorCode,omitempty"`
}

// emptyResponse answers requests whose confirmation carries no field.
type emptyResponse struct{}
