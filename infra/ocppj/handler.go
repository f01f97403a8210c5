package ocppj

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/ocppbridge/core/logger"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/core/task"
	"github.com/kilianp07/ocppbridge/core/transaction"
)

// Correlator receives device answers to dispatched commands.
type Correlator interface {
	OnDeviceResponse(taskID task.ID, deviceID string, raw json.RawMessage) string
	OnDeviceError(taskID task.ID, deviceID, code, message string) string
}

// Telemetry receives meter values, session boundaries and statuses.
type Telemetry interface {
	OnMeasurementBatch(ctx context.Context, deviceID string, connectorID int, values []model.MeterValue)
	OnSessionStart(ctx context.Context, deviceID string, tx transaction.Transaction)
	OnSessionStop(ctx context.Context, deviceID string, transactionID, meterStop int, ts time.Time) error
	OnStatus(ctx context.Context, deviceID string, connectorID int, st model.ConnectorStatus)
}

// Handler processes inbound frames of one or more connections.
type Handler struct {
	correlator Correlator
	telemetry  Telemetry
	txs        transaction.Store
	heartbeat  time.Duration
	now        func() time.Time
	log        logger.Logger
}

// NewHandler wires the inbound handler.
func NewHandler(c Correlator, t Telemetry, txs transaction.Store, cfg Config, log logger.Logger) (*Handler, error) {
	if c == nil || t == nil || txs == nil || log == nil {
		return nil, fmt.Errorf("ocppj: nil parameter provided to NewHandler")
	}
	cfg.SetDefaults()
	return &Handler{
		correlator: c,
		telemetry:  t,
		txs:        txs,
		heartbeat:  time.Duration(cfg.HeartbeatIntervalSeconds) * time.Second,
		now:        time.Now,
		log:        log,
	}, nil
}

// callError is the failure of an inbound CALL, answered with a CALLERROR.
type callError struct {
	code string
	desc string
}

func (e *callError) Error() string { return e.code + ": " + e.desc }

// HandleMessage processes one inbound message and returns the frame to send
// back, or nil when no answer is due.
func (h *Handler) HandleMessage(ctx context.Context, deviceID string, raw []byte) []byte {
	f, err := ParseFrame(raw)
	if err != nil {
		framesTotal.WithLabelValues("in", "malformed").Inc()
		h.log.Warnw("dropping malformed frame", map[string]any{"device_id": deviceID, "error": err.Error()})
		if f.Type == MessageTypeCall && f.UniqueID != "" {
			return h.encodeError(f.UniqueID, ErrorFormationViolation, err.Error())
		}
		return nil
	}
	framesTotal.WithLabelValues("in", f.Type.String()).Inc()

	switch f.Type {
	case MessageTypeCallResult, MessageTypeCallError:
		h.correlate(deviceID, f)
		return nil
	default:
		payload, cerr := h.handleCall(ctx, deviceID, f)
		if cerr != nil {
			callsTotal.WithLabelValues(f.Action, resultLabel(cerr)).Inc()
			h.log.Warnw("inbound call failed", map[string]any{"device_id": deviceID, "action": f.Action, "error": cerr.Error()})
			return h.encodeError(f.UniqueID, cerr.code, cerr.desc)
		}
		callsTotal.WithLabelValues(f.Action, "ok").Inc()
		out, err := NewCallResult(f.UniqueID, payload)
		if err != nil {
			h.log.Errorf("encode %s answer for %s: %v", f.Action, deviceID, err)
			return h.encodeError(f.UniqueID, ErrorInternalError, "encoding failure")
		}
		framesTotal.WithLabelValues("out", MessageTypeCallResult.String()).Inc()
		return out
	}
}

func resultLabel(e *callError) string {
	if e.code == ErrorNotImplemented {
		return "not_implemented"
	}
	return "error"
}

func (h *Handler) encodeError(uniqueID, code, desc string) []byte {
	out, err := NewCallError(uniqueID, code, desc)
	if err != nil {
		h.log.Errorf("encode call error: %v", err)
		return nil
	}
	framesTotal.WithLabelValues("out", MessageTypeCallError.String()).Inc()
	return out
}

func (h *Handler) correlate(deviceID string, f Frame) {
	id, err := task.ParseID(f.UniqueID)
	if err != nil {
		h.log.Warnw("answer with foreign unique id dropped", map[string]any{"device_id": deviceID, "unique_id": f.UniqueID})
		return
	}
	if f.Type == MessageTypeCallResult {
		h.correlator.OnDeviceResponse(id, deviceID, f.Payload)
		return
	}
	h.correlator.OnDeviceError(id, deviceID, f.ErrorCode, f.ErrorDescription)
}

func (h *Handler) handleCall(ctx context.Context, deviceID string, f Frame) (any, *callError) {
	switch f.Action {
	case ActionBootNotification:
		var req BootNotificationRequest
		if err := decode(f.Payload, &req); err != nil {
			return nil, err
		}
		h.log.Infow("boot notification", map[string]any{"device_id": deviceID, "vendor": req.ChargePointVendor, "model": req.ChargePointModel})
		return BootNotificationResponse{Status: RegistrationAccepted, CurrentTime: h.now().UTC(), Interval: int(h.heartbeat.Seconds())}, nil
	case ActionHeartbeat:
		return HeartbeatResponse{CurrentTime: h.now().UTC()}, nil
	case ActionMeterValues:
		var req model.MeterValuesRequest
		if err := decode(f.Payload, &req); err != nil {
			return nil, err
		}
		h.telemetry.OnMeasurementBatch(ctx, deviceID, req.ConnectorID, req.MeterValue)
		return emptyResponse{}, nil
	case ActionStartTransaction:
		return h.startTransaction(ctx, deviceID, f.Payload)
	case ActionStopTransaction:
		return h.stopTransaction(ctx, deviceID, f.Payload)
	case ActionStatusNotification:
		var req StatusNotificationRequest
		if err := decode(f.Payload, &req); err != nil {
			return nil, err
		}
		st := model.ConnectorStatus{
			Status:          req.Status,
			ErrorCode:       req.ErrorCode,
			Info:            req.Info,
			VendorErrorCode: req.VendorErrorCode,
			Timestamp:       h.now().UTC(),
		}
		if req.Timestamp != nil {
			st.Timestamp = *req.Timestamp
		}
		h.telemetry.OnStatus(ctx, deviceID, req.ConnectorID, st)
		return emptyResponse{}, nil
	default:
		return nil, &callError{code: ErrorNotImplemented, desc: fmt.Sprintf("action %q not implemented", f.Action)}
	}
}

func (h *Handler) startTransaction(ctx context.Context, deviceID string, payload json.RawMessage) (any, *callError) {
	var req StartTransactionRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = h.now().UTC()
	}
	tx, err := h.txs.Start(ctx, transaction.Transaction{
		DeviceID:    deviceID,
		ConnectorID: req.ConnectorID,
		IDTag:       req.IDTag,
		MeterStart:  req.MeterStart,
		StartedAt:   ts,
	})
	if err != nil {
		return nil, &callError{code: ErrorInternalError, desc: "transaction not recorded"}
	}
	h.log.Infow("transaction started", map[string]any{"device_id": deviceID, "transaction_id": tx.ID, "connector_id": tx.ConnectorID})
	h.telemetry.OnSessionStart(ctx, deviceID, tx)
	return StartTransactionResponse{TransactionID: tx.ID, IDTagInfo: IDTagInfo{Status: AuthorizationAccepted}}, nil
}

func (h *Handler) stopTransaction(ctx context.Context, deviceID string, payload json.RawMessage) (any, *callError) {
	var req StopTransactionRequest
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = h.now().UTC()
	}
	tx, err := transaction.Lookup(ctx, h.txs, deviceID, req.TransactionID)
	if errors.Is(err, transaction.ErrOtherDevice) {
		h.log.Warnw("stop for transaction of another device", map[string]any{"device_id": deviceID, "transaction_id": req.TransactionID})
		return stopResponse(req), nil
	}
	if err == nil {
		tx, err = h.txs.Stop(ctx, req.TransactionID, req.MeterStop, ts)
	}
	switch {
	case errors.Is(err, transaction.ErrNotFound):
		h.log.Warnw("stop for unknown transaction", map[string]any{"device_id": deviceID, "transaction_id": req.TransactionID})
	case err != nil:
		h.log.Errorf("record stop of transaction %d: %v", req.TransactionID, err)
	default:
		if len(req.TransactionData) > 0 {
			h.telemetry.OnMeasurementBatch(ctx, deviceID, tx.ConnectorID, req.TransactionData)
		}
	}
	if err := h.telemetry.OnSessionStop(ctx, deviceID, req.TransactionID, req.MeterStop, ts); err != nil {
		h.log.Warnw("stop bookend not published", map[string]any{"device_id": deviceID, "transaction_id": req.TransactionID, "error": err.Error()})
	}
	return stopResponse(req), nil
}

func stopResponse(req StopTransactionRequest) StopTransactionResponse {
	var resp StopTransactionResponse
	if req.IDTag != "" {
		resp.IDTagInfo = &IDTagInfo{Status: AuthorizationAccepted}
	}
	return resp
}

func decode(raw json.RawMessage, v any) *callError {
	if err := json.Unmarshal(raw, v); err != nil {
		return &callError{code: ErrorFormationViolation, desc: err.Error()}
	}
	return nil
}
