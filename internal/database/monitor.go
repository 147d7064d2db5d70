package database

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gormscope/gormscope/internal/engine"
)

const (
	// DefaultHealthCheckSchedule is the cron schedule used when none is configured
	DefaultHealthCheckSchedule = "*/5 * * * *"
	// healthCheckTimeout bounds one ping round
	healthCheckTimeout = 10 * time.Second
)

// EngineStatus is the result of the last check of one engine
type EngineStatus struct {
	Engine    string    `json:"engine"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	OpenConns int       `json:"open_connections"`
	InUse     int       `json:"in_use"`
	Idle      int       `json:"idle"`
	CheckedAt time.Time `json:"checked_at"`
}

// Monitor periodically pings every engine and keeps the last result
type Monitor struct {
	engines  *engine.Registry
	log      *zap.Logger
	cron     *cron.Cron
	schedule string
	entryID  cron.EntryID

	// ctx is cancelled by Stop; wg tracks the check run by Start
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	status []EngineStatus
}

// NewMonitor creates a monitor over the engines of registry
func NewMonitor(registry *engine.Registry, schedule string, log *zap.Logger) *Monitor {
	if schedule == "" {
		schedule = DefaultHealthCheckSchedule
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		engines:  registry,
		log:      log,
		cron:     cron.New(),
		schedule: schedule,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start schedules the checks and runs a first one in the background
func (m *Monitor) Start() error {
	entryID, err := m.cron.AddFunc(m.schedule, m.runCheck)
	if err != nil {
		m.log.Error("Failed to schedule engine health check", zap.Error(err))
		return err
	}
	m.entryID = entryID
	m.cron.Start()

	m.log.Info("Engine health monitor started", zap.String("schedule", m.schedule))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runCheck()
	}()
	return nil
}

func (m *Monitor) runCheck() {
	ctx, cancel := context.WithTimeout(m.ctx, healthCheckTimeout)
	defer cancel()
	m.Check(ctx)
}

// Stop stops the scheduler, cancels running checks and waits for them,
// the first check included, to return
func (m *Monitor) Stop() {
	m.log.Info("Stopping engine health monitor")
	m.cancel()
	<-m.cron.Stop().Done()
	m.wg.Wait()
	m.log.Info("Engine health monitor stopped")
}

// Check pings every engine, logs its pool statistics and stores the result
func (m *Monitor) Check(ctx context.Context) []EngineStatus {
	engines := m.engines.Engines()
	status := make([]EngineStatus, 0, len(engines))

	for _, e := range engines {
		st := EngineStatus{Engine: e.String(), Healthy: true, CheckedAt: time.Now()}
		if err := e.Ping(ctx); err != nil {
			st.Healthy = false
			st.Error = err.Error()
			m.log.Warn("Engine health check failed", zap.String("engine", st.Engine), zap.Error(err))
		}
		if sqlDB, err := e.DB().DB(); err == nil {
			stats := sqlDB.Stats()
			st.OpenConns = stats.OpenConnections
			st.InUse = stats.InUse
			st.Idle = stats.Idle
		}
		m.log.Debug("Engine health check",
			zap.String("engine", st.Engine),
			zap.Bool("healthy", st.Healthy),
			zap.Int("open", st.OpenConns),
			zap.Int("in_use", st.InUse),
		)
		status = append(status, st)
	}

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
	return status
}

// Status returns the result of the last check
func (m *Monitor) Status() []EngineStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EngineStatus, len(m.status))
	copy(out, m.status)
	return out
}

// StartMonitor starts the periodic engine health check using the configured
// schedule. Calling it again replaces the running monitor.
func (d *DB) StartMonitor() (*Monitor, error) {
	if d.monitor != nil {
		d.monitor.Stop()
		d.monitor = nil
	}
	m := NewMonitor(d.engines, d.cfg.HealthCheckCron, d.log.Named("monitor"))
	if err := m.Start(); err != nil {
		return nil, err
	}
	d.monitor = m
	return m, nil
}

// Monitor returns the running monitor, nil when none was started
func (d *DB) Monitor() *Monitor { return d.monitor }
