// Package engine is the composition root: it constructs the services,
// bridges their events onto the bus and runs the background loops.
package engine

import (
	"context"
	"log"
	"time"

	"fieldcore/config"
	"fieldcore/guards"
	"fieldcore/lifecycle"
	"fieldcore/messaging"
	"fieldcore/optimize"
	"fieldcore/predict"
	"fieldcore/preventive"
	"fieldcore/store"
	"fieldcore/telemetry"
	"fieldcore/tracking"
	"fieldcore/vehiclestate"
)

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	Vehicles   *vehiclestate.Manager
	MsgClient  *messaging.Client
}

type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	vehicles   *vehiclestate.Manager
	msgClient  *messaging.Client

	Events *EventBus

	telemetrySvc *telemetry.Service
	predictSvc   *predict.Service
	preventSvc   *preventive.Service
	guardSvc     *guards.Service
	lifecycleSvc *lifecycle.Service
	optimizeSvc  *optimize.Service
	trackingSvc  *tracking.Service
	jobs         *JobPool

	stopChan chan struct{}
}

func New(c Config) *Engine {
	e := &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		vehicles:   c.Vehicles,
		msgClient:  c.MsgClient,
		Events:     NewEventBus(),
		stopChan:   make(chan struct{}),
	}
	em := &busEmitter{bus: e.Events}

	e.telemetrySvc = telemetry.NewService(e.db, em)
	e.predictSvc = predict.NewService(e.db, em,
		e.cfg.Predictor.AnomalyContamination, e.cfg.Predictor.ModelPath)
	e.preventSvc = preventive.NewService(e.db, e.cfg, em)
	e.guardSvc = guards.NewService(e.db)
	e.lifecycleSvc = lifecycle.NewService(e.db, e.guardSvc, em)
	e.optimizeSvc = optimize.NewService(e.db, e.cfg, e.lifecycleSvc)
	e.trackingSvc = tracking.NewService(e.db, e.cfg.Tracking.Secret, e.cfg.Tracking.TTLDays)
	e.jobs = NewJobPool(e.cfg.Scheduling.JobWorkers, e.Events)
	return e
}

func (e *Engine) Start() {
	e.wireEventHandlers()

	if e.vehicles != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := e.vehicles.SyncFromSQL(ctx); err != nil {
			log.Printf("engine: vehicle state sync: %v", err)
		}
		cancel()
	}

	go e.sweepLoop()
	log.Printf("engine: started")
}

func (e *Engine) Stop() {
	select {
	case e.stopChan <- struct{}{}:
	default:
	}
	e.jobs.Shutdown()
	log.Printf("engine: stopped")
}

// sweepLoop periodically deletes expired tracking tokens.
func (e *Engine) sweepLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			if _, err := e.trackingSvc.SweepExpired(); err != nil {
				log.Printf("engine: token sweep: %v", err)
			}
		}
	}
}

// SubmitOptimize offloads an optimizer run to the job pool.
func (e *Engine) SubmitOptimize(date time.Time, mode string, c optimize.Constraints) string {
	return e.jobs.Submit("optimize", func(ctx context.Context) (any, error) {
		return e.optimizeSvc.Optimize(ctx, date, mode, c)
	})
}

// SubmitRetrain offloads a predictor retrain to the job pool.
func (e *Engine) SubmitRetrain(force bool) string {
	return e.jobs.Submit("retrain", func(ctx context.Context) (any, error) {
		return e.predictSvc.Retrain(ctx, force)
	})
}

// Accessors
func (e *Engine) DB() *store.DB                   { return e.db }
func (e *Engine) AppConfig() *config.Config       { return e.cfg }
func (e *Engine) ConfigPath() string              { return e.configPath }
func (e *Engine) Telemetry() *telemetry.Service   { return e.telemetrySvc }
func (e *Engine) Predictor() *predict.Service     { return e.predictSvc }
func (e *Engine) Preventive() *preventive.Service { return e.preventSvc }
func (e *Engine) Guards() *guards.Service         { return e.guardSvc }
func (e *Engine) Lifecycle() *lifecycle.Service   { return e.lifecycleSvc }
func (e *Engine) Optimizer() *optimize.Service    { return e.optimizeSvc }
func (e *Engine) Tracking() *tracking.Service     { return e.trackingSvc }
func (e *Engine) Vehicles() *vehiclestate.Manager { return e.vehicles }
func (e *Engine) Jobs() *JobPool                  { return e.jobs }
