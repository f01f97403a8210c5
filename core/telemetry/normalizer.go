// Package telemetry normalizes vendor meter value reports into metric
// snapshots and forwards them to a publisher.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/ocppbridge/core/events"
	"github.com/kilianp07/ocppbridge/core/logger"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/core/monitoring"
	"github.com/kilianp07/ocppbridge/core/transaction"
	"github.com/kilianp07/ocppbridge/internal/eventbus"
)

// Publisher forwards snapshots and connector statuses downstream.
type Publisher interface {
	PublishSnapshot(ctx context.Context, deviceID string, connectorID int, s model.MetricSnapshot) error
	PublishStatus(ctx context.Context, deviceID string, connectorID int, st model.ConnectorStatus) error
}

// TransactionLookup resolves a recorded session.
type TransactionLookup interface {
	Get(ctx context.Context, id int) (transaction.Transaction, error)
}

// Gate selects which measurement snapshots are published.
type Gate string

const (
	// GateEligible suppresses snapshots that carry only zero defaults.
	GateEligible Gate = "eligible"
	// GateAlways publishes every snapshot.
	GateAlways Gate = "always"
)

// Config defines telemetry settings.
type Config struct {
	PublishGate Gate `json:"publish_gate"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.PublishGate == "" {
		c.PublishGate = GateEligible
	}
}

// Validate checks for invalid fields.
func (c Config) Validate() error {
	switch c.PublishGate {
	case GateEligible, GateAlways:
		return nil
	default:
		return fmt.Errorf("telemetry: unknown publish_gate %q", c.PublishGate)
	}
}

// Normalizer is safe for concurrent use.
type Normalizer struct {
	pub       Publisher
	txs       TransactionLookup
	cfg       Config
	logger    logger.Logger
	snapshots *eventbus.Bus[events.SnapshotEvent]
	statuses  *eventbus.Bus[events.StatusEvent]
}

// NewNormalizer creates a normalizer. txs may be nil when session stops are
// not reported.
func NewNormalizer(pub Publisher, txs TransactionLookup, cfg Config, log logger.Logger) (*Normalizer, error) {
	if pub == nil || log == nil {
		return nil, fmt.Errorf("telemetry: nil parameter provided to NewNormalizer")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Normalizer{pub: pub, txs: txs, cfg: cfg, logger: log}, nil
}

// SetEventBuses configures the buses receiving snapshot and status events.
// Either may be nil.
func (n *Normalizer) SetEventBuses(snapshots *eventbus.Bus[events.SnapshotEvent], statuses *eventbus.Bus[events.StatusEvent]) {
	n.snapshots = snapshots
	n.statuses = statuses
}

// Normalize converts mv without publishing it.
func (n *Normalizer) Normalize(deviceID string, connectorID int, mv model.MeterValue) model.MetricSnapshot {
	s := Normalize(mv)
	n.logger.Debugw("meter value normalized", map[string]any{"device_id": deviceID, "connector_id": connectorID, "samples": len(mv.SampledValue)})
	return s
}

// OnMeasurementBatch normalizes each meter value in order and publishes the
// snapshots allowed by the gate.
func (n *Normalizer) OnMeasurementBatch(ctx context.Context, deviceID string, connectorID int, values []model.MeterValue) {
	for _, mv := range values {
		s := n.Normalize(deviceID, connectorID, mv)
		if n.cfg.PublishGate == GateEligible && !s.Eligible() {
			snapshotsTotal.WithLabelValues(resultSuppressed).Inc()
			n.emit(events.SnapshotEvent{DeviceID: deviceID, ConnectorID: connectorID, Snapshot: s})
			continue
		}
		n.publish(ctx, deviceID, connectorID, s, false)
	}
}

// OnSessionBoundary publishes a bookend snapshot with zero power and the
// given energy register. Bookends bypass the gate.
func (n *Normalizer) OnSessionBoundary(ctx context.Context, deviceID string, connectorID int, ts time.Time, energyWh float64, isStart bool) {
	n.logger.Debugw("session boundary", map[string]any{"device_id": deviceID, "connector_id": connectorID, "start": isStart, "energy_wh": energyWh})
	n.publish(ctx, deviceID, connectorID, Normalize(boundary(ts, energyWh)), true)
}

// OnSessionStart publishes the start bookend of tx.
func (n *Normalizer) OnSessionStart(ctx context.Context, deviceID string, tx transaction.Transaction) {
	n.OnSessionBoundary(ctx, deviceID, tx.ConnectorID, tx.StartedAt, float64(tx.MeterStart), true)
}

// OnSessionStop publishes the stop bookend on the connector recorded for the
// transaction. Sessions of other devices are treated as unknown.
func (n *Normalizer) OnSessionStop(ctx context.Context, deviceID string, transactionID, meterStop int, ts time.Time) error {
	if n.txs == nil {
		return fmt.Errorf("telemetry: no transaction lookup configured")
	}
	tx, err := transaction.Lookup(ctx, n.txs, deviceID, transactionID)
	if err != nil {
		n.logger.Warnw("stop bookend skipped", map[string]any{"device_id": deviceID, "transaction_id": transactionID, "error": err.Error()})
		return fmt.Errorf("lookup transaction %d: %w", transactionID, err)
	}
	n.OnSessionBoundary(ctx, deviceID, tx.ConnectorID, ts, float64(meterStop), false)
	return nil
}

// OnStatus forwards a connector status.
func (n *Normalizer) OnStatus(ctx context.Context, deviceID string, connectorID int, st model.ConnectorStatus) {
	err := n.pub.PublishStatus(ctx, deviceID, connectorID, st)
	if err != nil {
		statusTotal.WithLabelValues(resultFailed).Inc()
		n.logger.Warnw("status publish failed", map[string]any{"device_id": deviceID, "connector_id": connectorID, "error": err.Error()})
		monitoring.CaptureException(err, map[string]string{"module": "telemetry", "device_id": deviceID})
	} else {
		statusTotal.WithLabelValues(resultPublished).Inc()
	}
	if n.statuses != nil {
		n.statuses.Publish(events.StatusEvent{DeviceID: deviceID, ConnectorID: connectorID, Status: st, Err: err})
	}
}

func (n *Normalizer) publish(ctx context.Context, deviceID string, connectorID int, s model.MetricSnapshot, bookend bool) {
	err := n.pub.PublishSnapshot(ctx, deviceID, connectorID, s)
	if err != nil {
		snapshotsTotal.WithLabelValues(resultFailed).Inc()
		n.logger.Warnw("snapshot publish failed", map[string]any{"device_id": deviceID, "connector_id": connectorID, "error": err.Error()})
		monitoring.CaptureException(err, map[string]string{"module": "telemetry", "device_id": deviceID})
	} else {
		snapshotsTotal.WithLabelValues(resultPublished).Inc()
	}
	n.emit(events.SnapshotEvent{DeviceID: deviceID, ConnectorID: connectorID, Snapshot: s, Bookend: bookend, Published: err == nil, Err: err})
}

func (n *Normalizer) emit(e events.SnapshotEvent) {
	if n.snapshots != nil {
		n.snapshots.Publish(e)
	}
}
