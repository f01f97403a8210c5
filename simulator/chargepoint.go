package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kilianp07/ocppbridge/core/command"
	"github.com/kilianp07/ocppbridge/core/logger"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/infra/ocppj"
)

const callTimeout = 10 * time.Second

// ErrDisconnected is returned by calls issued after the connection dropped.
var ErrDisconnected = errors.New("simulator: connection closed")

// ChargePoint connects to the central system, reports meter values and
// answers commands.
type ChargePoint struct {
	ID          string
	URL         string
	ConnectorID int
	IDTag       string
	Interval    time.Duration
	Meter       *Meter
	Strategy    AnswerStrategy

	log     logger.Logger
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}

	pendingMu sync.Mutex
	pending   map[string]chan ocppj.Frame

	stateMu sync.Mutex
	txID    int
	handled []string
}

// NewChargePoint creates a charge point from cfg.
func NewChargePoint(id string, cfg Config, strat AnswerStrategy, log logger.Logger) *ChargePoint {
	return &ChargePoint{
		ID:          id,
		URL:         cfg.URL,
		ConnectorID: cfg.ConnectorID,
		IDTag:       cfg.IDTag,
		Interval:    cfg.Interval,
		Meter:       &Meter{PowerW: cfg.PowerW, VoltageV: cfg.VoltageV, Phases: cfg.Phases},
		Strategy:    strat,
		log:         log,
		pending:     make(map[string]chan ocppj.Frame),
	}
}

// Run connects and reports until ctx is done. An active session is stopped
// before disconnecting.
func (cp *ChargePoint) Run(ctx context.Context, autoStart bool) error {
	if err := cp.connect(ctx); err != nil {
		return err
	}
	defer cp.close()

	if err := cp.boot(ctx); err != nil {
		return err
	}
	if autoStart {
		if err := cp.StartSession(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(cp.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cp.stopOnExit()
			return nil
		case <-cp.done:
			return ErrDisconnected
		case <-ticker.C:
			cp.Meter.Advance(cp.Interval)
			if err := cp.SendMeterValues(ctx); err != nil {
				cp.log.Warnf("%s: meter values: %v", cp.ID, err)
			}
		}
	}
}

func (cp *ChargePoint) stopOnExit() {
	if cp.TransactionID() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := cp.StopSession(ctx, "Local"); err != nil {
		cp.log.Warnf("%s: stop session: %v", cp.ID, err)
	}
}

func (cp *ChargePoint) connect(ctx context.Context) error {
	dialer := websocket.Dialer{Subprotocols: []string{ocppj.Subprotocol}, HandshakeTimeout: callTimeout}
	url := strings.TrimSuffix(cp.URL, "/") + "/" + cp.ID
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	cp.conn = conn
	cp.done = make(chan struct{})
	go cp.readLoop(ctx)
	cp.log.Infof("%s connected to %s", cp.ID, url)
	return nil
}

func (cp *ChargePoint) close() {
	cp.writeMu.Lock()
	_ = cp.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	cp.writeMu.Unlock()
	_ = cp.conn.Close()
	<-cp.done
}

func (cp *ChargePoint) boot(ctx context.Context) error {
	var resp ocppj.BootNotificationResponse
	if err := cp.call(ctx, ocppj.ActionBootNotification, ocppj.BootNotificationRequest{
		ChargePointVendor: "ocppbridge",
		ChargePointModel:  "simulator",
	}, &resp); err != nil {
		return err
	}
	if resp.Status != ocppj.RegistrationAccepted {
		return fmt.Errorf("boot notification %s", resp.Status)
	}
	return cp.SendStatus(ctx, "Available")
}

// StartSession opens a transaction and starts charging.
func (cp *ChargePoint) StartSession(ctx context.Context) error {
	var resp ocppj.StartTransactionResponse
	if err := cp.call(ctx, ocppj.ActionStartTransaction, ocppj.StartTransactionRequest{
		ConnectorID: cp.ConnectorID,
		IDTag:       cp.IDTag,
		MeterStart:  int(cp.Meter.EnergyWh()),
		Timestamp:   time.Now().UTC(),
	}, &resp); err != nil {
		return err
	}
	cp.stateMu.Lock()
	cp.txID = resp.TransactionID
	cp.stateMu.Unlock()
	cp.Meter.SetCharging(true)
	return cp.SendStatus(ctx, "Charging")
}

// StopSession closes the running transaction.
func (cp *ChargePoint) StopSession(ctx context.Context, reason string) error {
	cp.stateMu.Lock()
	id := cp.txID
	cp.txID = 0
	cp.stateMu.Unlock()
	if id == 0 {
		return nil
	}
	cp.Meter.SetCharging(false)
	if err := cp.call(ctx, ocppj.ActionStopTransaction, ocppj.StopTransactionRequest{
		TransactionID: id,
		IDTag:         cp.IDTag,
		MeterStop:     int(cp.Meter.EnergyWh()),
		Timestamp:     time.Now().UTC(),
		Reason:        reason,
	}, nil); err != nil {
		return err
	}
	return cp.SendStatus(ctx, "Available")
}

// SendMeterValues reports one meter value for the connector.
func (cp *ChargePoint) SendMeterValues(ctx context.Context) error {
	req := model.MeterValuesRequest{ConnectorID: cp.ConnectorID}
	if id := cp.TransactionID(); id != 0 {
		req.TransactionID = &id
	}
	req.MeterValue = append(req.MeterValue, cp.Meter.Sample(time.Now()))
	return cp.call(ctx, ocppj.ActionMeterValues, req, nil)
}

// SendStatus reports a connector status.
func (cp *ChargePoint) SendStatus(ctx context.Context, status string) error {
	now := time.Now().UTC()
	return cp.call(ctx, ocppj.ActionStatusNotification, ocppj.StatusNotificationRequest{
		ConnectorID: cp.ConnectorID,
		ErrorCode:   "NoError",
		Status:      status,
		Timestamp:   &now,
	}, nil)
}

// TransactionID returns the running transaction or 0.
func (cp *ChargePoint) TransactionID() int {
	cp.stateMu.Lock()
	defer cp.stateMu.Unlock()
	return cp.txID
}

// Handled returns the actions of the commands answered so far.
func (cp *ChargePoint) Handled() []string {
	cp.stateMu.Lock()
	defer cp.stateMu.Unlock()
	return append([]string(nil), cp.handled...)
}

func (cp *ChargePoint) call(ctx context.Context, action string, payload, out any) error {
	id := uuid.NewString()
	frame, err := ocppj.NewCall(id, action, payload)
	if err != nil {
		return err
	}
	ch := make(chan ocppj.Frame, 1)
	cp.pendingMu.Lock()
	cp.pending[id] = ch
	cp.pendingMu.Unlock()
	defer func() {
		cp.pendingMu.Lock()
		delete(cp.pending, id)
		cp.pendingMu.Unlock()
	}()

	if err := cp.write(frame); err != nil {
		return err
	}
	timer := time.NewTimer(callTimeout)
	defer timer.Stop()
	select {
	case f := <-ch:
		if f.Type == ocppj.MessageTypeCallError {
			return fmt.Errorf("%s rejected: %s %s", action, f.ErrorCode, f.ErrorDescription)
		}
		if out != nil {
			return json.Unmarshal(f.Payload, out)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%s: no answer after %s", action, callTimeout)
	case <-cp.done:
		return ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cp *ChargePoint) write(msg []byte) error {
	cp.writeMu.Lock()
	defer cp.writeMu.Unlock()
	_ = cp.conn.SetWriteDeadline(time.Now().Add(callTimeout))
	return cp.conn.WriteMessage(websocket.TextMessage, msg)
}

func (cp *ChargePoint) readLoop(ctx context.Context) {
	defer close(cp.done)
	for {
		_, msg, err := cp.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				cp.log.Debugf("%s read: %v", cp.ID, err)
			}
			return
		}
		f, err := ocppj.ParseFrame(msg)
		if err != nil {
			cp.log.Warnf("%s: %v", cp.ID, err)
			continue
		}
		if f.Type == ocppj.MessageTypeCall {
			go cp.handleCall(ctx, f)
			continue
		}
		cp.pendingMu.Lock()
		ch, ok := cp.pending[f.UniqueID]
		cp.pendingMu.Unlock()
		if ok {
			ch <- f
		}
	}
}

// handleCall answers a command and applies its side effects.
func (cp *ChargePoint) handleCall(ctx context.Context, f ocppj.Frame) {
	status, ok := cp.Strategy.Answer(ctx, f.Action)
	if !ok {
		cp.log.Debugf("%s: leaving %s %s unanswered", cp.ID, f.Action, f.UniqueID)
		return
	}
	var payload any = command.StatusResponse{Status: status}
	if command.Kind(f.Action) == command.KindGetConfiguration {
		interval := strconv.Itoa(int(cp.Interval.Seconds()))
		payload = command.GetConfigurationResponse{ConfigurationKey: []command.KeyValue{
			{Key: "MeterValueSampleInterval", Value: &interval},
		}}
	}
	reply, err := ocppj.NewCallResult(f.UniqueID, payload)
	if err != nil {
		cp.log.Errorf("%s: encode answer: %v", cp.ID, err)
		return
	}
	if err := cp.write(reply); err != nil {
		cp.log.Warnf("%s: answer %s: %v", cp.ID, f.Action, err)
		return
	}
	cp.stateMu.Lock()
	cp.handled = append(cp.handled, f.Action)
	cp.stateMu.Unlock()
	if status == "Accepted" {
		cp.afterAccept(ctx, f)
	}
}

func (cp *ChargePoint) afterAccept(ctx context.Context, f ocppj.Frame) {
	var err error
	switch command.Kind(f.Action) {
	case command.KindRemoteStartTransaction:
		if cp.TransactionID() == 0 {
			err = cp.StartSession(ctx)
		}
	case command.KindRemoteStopTransaction:
		err = cp.StopSession(ctx, "Remote")
	case command.KindTriggerMessage:
		var req command.TriggerMessage
		if err = json.Unmarshal(f.Payload, &req); err != nil {
			break
		}
		switch req.RequestedMessage {
		case ocppj.ActionMeterValues:
			err = cp.SendMeterValues(ctx)
		case ocppj.ActionStatusNotification:
			status := "Available"
			if cp.TransactionID() != 0 {
				status = "Charging"
			}
			err = cp.SendStatus(ctx, status)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		cp.log.Warnf("%s: after %s: %v", cp.ID, f.Action, err)
	}
}
