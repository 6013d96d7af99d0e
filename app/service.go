// Package app assembles the dispatch service from its parts: stores,
// engine, alert fan-out, game-server bridge, metrics and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openrp/cad/api/alerts"
	"github.com/openrp/cad/api/calls"
	"github.com/openrp/cad/api/dispatchapi"
	"github.com/openrp/cad/api/notifications"
	"github.com/openrp/cad/api/units"
	"github.com/openrp/cad/config"
	"github.com/openrp/cad/core/alert"
	"github.com/openrp/cad/core/bridge"
	"github.com/openrp/cad/core/dispatch"
	"github.com/openrp/cad/core/history"
	"github.com/openrp/cad/core/ledger"
	coremetrics "github.com/openrp/cad/core/metrics"
	"github.com/openrp/cad/core/model"
	"github.com/openrp/cad/core/monitoring"
	"github.com/openrp/cad/core/notify"
	"github.com/openrp/cad/core/registry"
	"github.com/openrp/cad/infra/logger"
	"github.com/openrp/cad/infra/metrics"
	infmon "github.com/openrp/cad/infra/monitoring"
	"github.com/openrp/cad/infra/mqtt"
)

// Service orchestrates the dispatch core and its adapters.
type Service struct {
	Engine *dispatch.Engine
	Alerts *alert.Service
	Units  registry.Registry
	Calls  ledger.Ledger
	Sink   *notify.Sink

	cfg     *config.Config
	bridge  bridge.Bridge
	store   history.LogStore
	mx      coremetrics.MetricsSink
	log     logger.Logger
	handler http.Handler
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	mon, err := infmon.NewSentryMonitor(infmon.Config{
		DSN:              cfg.Sentry.DSN,
		Environment:      cfg.Sentry.Environment,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Release:          cfg.Sentry.Release,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(mon)

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var mx coremetrics.MetricsSink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		mx = sinks[0]
	} else if len(sinks) > 1 {
		mx = metrics.NewMultiSink(sinks...)
	}

	store, err := newHistoryStore(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}

	unitStore := registry.NewMemoryStore()
	callStore := ledger.NewMemoryStore(cfg.Dispatch.CallNumberPrefix)
	sink := notify.NewSink()

	svc := &Service{
		Units: unitStore,
		Calls: callStore,
		Sink:  sink,
		cfg:   cfg,
		store: store,
		mx:    mx,
		log:   logg,
	}

	engineOpts := []dispatch.Option{
		dispatch.WithMetrics(mx),
		dispatch.WithHistory(store),
		dispatch.WithAckTimeout(time.Duration(cfg.Dispatch.AckTimeoutSeconds) * time.Second),
	}
	alertOpts := []alert.Option{
		alert.WithMetrics(mx),
		alert.WithHistory(store),
		alert.WithOverloadPolicy(alert.DefaultOverloadPolicy()),
	}

	if cfg.Bridge.Enabled {
		br, err := mqtt.NewPahoBridge(cfg.Bridge.Config)
		if err != nil {
			return nil, fmt.Errorf("mqtt bridge: %w", err)
		}
		svc.bridge = br
		engineOpts = append(engineOpts, dispatch.WithBridge(br))
		alertOpts = append(alertOpts, alert.WithBridge(br))
	}

	svc.Engine = dispatch.NewEngine(unitStore, callStore, logger.New("dispatch"), engineOpts...)
	svc.Alerts = alert.NewService(unitStore, sink, logger.New("alert"), alertOpts...)

	if svc.bridge != nil {
		svc.wireBridge()
	}
	svc.handler = svc.routes()
	return svc, nil
}

func newHistoryStore(cfg config.HistoryConfig) (history.LogStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return history.NewSQLiteStore(cfg.Path)
	case "jsonl":
		if cfg.MaxSizeMB > 0 {
			return history.NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		}
		return history.NewJSONLStore(cfg.Path)
	default:
		return history.NopStore{}, nil
	}
}

// wireBridge routes inbound game-server reports into the core.
func (s *Service) wireBridge() {
	s.bridge.OnLocation(func(rep bridge.LocationReport) {
		if _, err := s.Engine.ReportLocation(rep.UnitID, rep.Location); err != nil {
			s.log.Warnf("bridge location for unit %s: %v", rep.UnitID, err)
		}
	})
	s.bridge.OnStatus(func(rep bridge.StatusReport) {
		if rep.Status == model.UnitPanic {
			// A panic over the status topic still fans out as an alert.
			if _, _, err := s.Alerts.TriggerPanic(context.Background(), rep.UnitID); err != nil {
				s.log.Errorf("bridge panic for unit %s: %v", rep.UnitID, err)
			}
			return
		}
		if _, err := s.Engine.ReportStatus(context.Background(), rep.UnitID, rep.Status, nil); err != nil {
			s.log.Warnf("bridge status for unit %s: %v", rep.UnitID, err)
		}
	})
	s.bridge.OnPanic(func(sig bridge.PanicSignal) {
		if _, _, err := s.Alerts.TriggerPanic(context.Background(), sig.UnitID); err != nil {
			s.log.Errorf("bridge panic for unit %s: %v", sig.UnitID, err)
		}
	})
}

func (s *Service) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/calls", calls.NewHandler(s.Engine))
	mux.Handle("/api/calls/detail", calls.NewDetailHandler(s.Engine))
	mux.Handle("/api/calls/status", calls.NewStatusHandler(s.Engine))
	mux.Handle("/api/calls/note", calls.NewNoteHandler(s.Engine))
	mux.Handle("/api/calls/attach", calls.NewAttachHandler(s.Engine))
	mux.Handle("/api/units", units.NewHandler(s.Engine))
	mux.Handle("/api/units/status", units.NewStatusHandler(s.Engine))
	mux.Handle("/api/units/location", units.NewLocationHandler(s.Engine))
	mux.Handle("/api/units/deactivate", units.NewDeactivateHandler(s.Engine))
	mux.Handle("/api/units/nearest", units.NewNearestHandler(s.Engine, s.cfg.Dispatch.NearestLimit))
	mux.Handle("/api/dispatch/assign", dispatchapi.NewAssignHandler(s.Engine))
	mux.Handle("/api/dispatch/unassign", dispatchapi.NewUnassignHandler(s.Engine))
	mux.Handle("/api/dispatch/history", dispatchapi.NewHistoryHandler(s.store, s.cfg.API.Token))
	mux.Handle("/api/dispatch/integrity", dispatchapi.NewIntegrityHandler(s.Engine, s.cfg.API.Token))
	mux.Handle("/api/alerts", alerts.NewHandler(s.Alerts))
	mux.Handle("/api/alerts/detail", alerts.NewDetailHandler(s.Alerts))
	mux.Handle("/api/alerts/status", alerts.NewProgressHandler(s.Alerts))
	mux.Handle("/api/notifications", notifications.NewHandler(s.Sink))
	mux.Handle("/api/notifications/read", notifications.NewReadHandler(s.Sink))
	mux.Handle("/api/notifications/read_all", notifications.NewReadAllHandler(s.Sink))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Handler exposes the HTTP API, mainly for tests.
func (s *Service) Handler() http.Handler { return s.handler }

// Run starts the HTTP API and background loops and blocks until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	go s.gaugeLoop(ctx)
	go s.overloadLoop(ctx)

	srv := &http.Server{Addr: s.cfg.API.Addr, Handler: s.handler}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("api listening on %s", s.cfg.API.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.cfg.API.ShutdownSeconds)*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// gaugeLoop keeps the active-units gauge current.
func (s *Service) gaugeLoop(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := 0
			for _, u := range s.Units.Snapshot() {
				if !u.Inactive {
					n++
				}
			}
			if err := s.mx.RecordActiveUnits(n); err != nil {
				s.log.Warnf("metrics: %v", err)
			}
		}
	}
}

// overloadLoop raises supervisor alerts for overloaded departments.
func (s *Service) overloadLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Alerts.CheckOverload(ctx)
		}
	}
}

// Close releases resources held by the service. The history store is
// closed here and nowhere else: the service created it.
func (s *Service) Close() error {
	if s.bridge != nil {
		s.bridge.Close()
	}
	s.Sink.Close()
	err := s.Engine.Close()
	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	monitoring.Flush(2 * time.Second)
	return err
}
