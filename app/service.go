// Package app wires the charge point endpoint, task dispatch, telemetry and
// HTTP API into one service.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/ocppbridge/api/tasks"
	"github.com/kilianp07/ocppbridge/config"
	"github.com/kilianp07/ocppbridge/core/correlate"
	"github.com/kilianp07/ocppbridge/core/dispatch"
	"github.com/kilianp07/ocppbridge/core/events"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/model"
	"github.com/kilianp07/ocppbridge/core/monitoring"
	"github.com/kilianp07/ocppbridge/core/registry"
	"github.com/kilianp07/ocppbridge/core/task"
	"github.com/kilianp07/ocppbridge/core/tasklog"
	"github.com/kilianp07/ocppbridge/core/telemetry"
	"github.com/kilianp07/ocppbridge/core/transaction"
	"github.com/kilianp07/ocppbridge/infra/logger"
	"github.com/kilianp07/ocppbridge/infra/metrics"
	inframon "github.com/kilianp07/ocppbridge/infra/monitoring"
	"github.com/kilianp07/ocppbridge/infra/mqtt"
	"github.com/kilianp07/ocppbridge/infra/ocppj"
	"github.com/kilianp07/ocppbridge/infra/txstore"
	"github.com/kilianp07/ocppbridge/internal/eventbus"
)

const busBuffer = 256

// Option customizes a Service.
type Option func(*options)

type options struct {
	publisher telemetry.Publisher
}

// WithPublisher replaces the MQTT publisher. The caller owns its lifecycle.
func WithPublisher(p telemetry.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// Service owns every long-lived component.
type Service struct {
	Registry   *registry.Registry
	Tasks      *task.Store
	Dispatcher *dispatch.Dispatcher
	Correlator *correlate.Correlator
	Normalizer *telemetry.Normalizer

	cfg       *config.Config
	mqtt      *mqtt.Publisher
	txs       transaction.Store
	taskLog   tasklog.Store
	sink      coremetrics.MetricsSink
	inbound   *ocppj.Handler
	ocpp      *ocppj.Server
	api       *tasks.Handler
	taskBus   *eventbus.Bus[events.TaskEvent]
	snapBus   *eventbus.Bus[events.SnapshotEvent]
	statusBus *eventbus.Bus[events.StatusEvent]
	log       logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil parameter provided to New")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logg := logger.New("service")

	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(mon)

	s := &Service{
		cfg:       cfg,
		log:       logg,
		taskBus:   eventbus.New[events.TaskEvent](eventbus.WithBuffer(busBuffer)),
		snapBus:   eventbus.New[events.SnapshotEvent](eventbus.WithBuffer(busBuffer)),
		statusBus: eventbus.New[events.StatusEvent](eventbus.WithBuffer(busBuffer)),
	}
	s.Registry = registry.New(logger.New("registry"))
	s.Tasks = task.NewStore(cfg.Tasks, logger.New("tasks"))

	s.Dispatcher, err = dispatch.NewDispatcher(s.Registry, s.Tasks,
		map[model.TransportKind]dispatch.Encoder{model.TransportJSON: ocppj.Encoder{}},
		cfg.Dispatch, s.taskBus, logger.New("dispatch"))
	if err != nil {
		return nil, err
	}
	s.Correlator = correlate.New(s.Tasks, s.taskBus, logger.New("correlate"))

	pub := o.publisher
	if pub == nil {
		s.mqtt, err = mqtt.NewPublisher(cfg.MQTT, logger.New("mqtt"))
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		pub = s.mqtt
	}

	if s.txs, err = txstore.Open(cfg.Transactions); err != nil {
		return nil, fmt.Errorf("transaction store: %w", err)
	}
	if s.taskLog, err = tasklog.Open(cfg.TaskLog); err != nil {
		s.closeStores()
		return nil, fmt.Errorf("task log: %w", err)
	}
	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		s.closeStores()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	s.Normalizer, err = telemetry.NewNormalizer(pub, s.txs, cfg.Telemetry, logger.New("telemetry"))
	if err != nil {
		s.closeStores()
		return nil, err
	}
	s.Normalizer.SetEventBuses(s.snapBus, s.statusBus)

	if s.inbound, err = ocppj.NewHandler(s.Correlator, s.Normalizer, s.txs, cfg.OCPP, logger.New("ocppj")); err != nil {
		s.closeStores()
		return nil, err
	}
	if s.ocpp, err = ocppj.NewServer(cfg.OCPP, s.Registry, s.inbound, logger.New("ocppj")); err != nil {
		s.closeStores()
		return nil, err
	}
	if s.api, err = tasks.NewHandler(s.Dispatcher, s.Tasks, s.Registry, cfg.API, logger.New("api"), tasks.WithTaskLog(s.taskLog)); err != nil {
		s.closeStores()
		return nil, err
	}

	s.Tasks.OnClose(s.onTaskClosed)
	return s, nil
}

// onTaskClosed appends the audit record and announces the result.
func (s *Service) onTaskClosed(v task.View) {
	rec := tasklog.FromView(v)
	if err := s.taskLog.Append(context.Background(), rec); err != nil {
		s.log.Errorf("append task log %s: %v", v.ID, err)
		monitoring.CaptureException(err, map[string]string{"module": "tasklog"})
	}
	s.taskBus.Publish(closedEvent(v, rec))
}

func closedEvent(v task.View, rec tasklog.Record) events.TaskEvent {
	counts := make(map[string]int, 4)
	for st, n := range v.Counts() {
		counts[st.String()] = n
	}
	return events.TaskEvent{
		TaskID:   uint64(v.ID),
		Kind:     v.Kind,
		Action:   events.ActionClosed,
		Targets:  rec.Targets,
		Result:   rec.Result,
		Counts:   counts,
		Duration: rec.Timestamp.Sub(v.Created),
		Time:     rec.Timestamp,
	}
}

// Run starts the service and blocks until the context is cancelled or a
// server fails.
func (s *Service) Run(ctx context.Context) error {
	if s.mqtt != nil {
		if err := s.mqtt.Connect(ctx); err != nil {
			return err
		}
	}
	wait := metrics.StartEventCollector(ctx, metrics.Buses{
		Tasks:     s.taskBus,
		Snapshots: s.snapBus,
		Statuses:  s.statusBus,
	}, s.sink, logger.New("metrics"))
	defer wait()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Tasks.Run(gctx, s.cfg.Tasks.SweepInterval)
		return nil
	})
	g.Go(func() error { return s.ocpp.ListenAndServe(gctx) })
	g.Go(func() error { return tasks.ListenAndServe(gctx, s.cfg.API.Addr, s.api, logger.New("api")) })
	g.Go(func() error {
		return metrics.StartPromServer(gctx, s.cfg.Metrics.PrometheusAddr, nil, logger.New("metrics"))
	})
	s.log.Infof("service started")
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		monitoring.CaptureException(err, map[string]string{"module": "service"})
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.mqtt != nil {
		errs = append(errs, s.mqtt.Close())
	}
	errs = append(errs, s.Registry.Close())
	errs = append(errs, s.closeStores())
	s.taskBus.Close()
	s.snapBus.Close()
	s.statusBus.Close()
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	monitoring.Flush(2 * time.Second)
	return errors.Join(errs...)
}

func (s *Service) closeStores() error {
	var errs []error
	if s.txs != nil {
		errs = append(errs, s.txs.Close())
	}
	if s.taskLog != nil {
		errs = append(errs, s.taskLog.Close())
	}
	return errors.Join(errs...)
}
