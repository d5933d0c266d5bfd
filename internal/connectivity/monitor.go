// Package connectivity decides when the device is online and schedules
// sync drains around connectivity changes.
package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	applog "github.com/wearesierraleone/frontend/internal/logger"
	"github.com/wearesierraleone/frontend/internal/metrics"
	"github.com/wearesierraleone/frontend/internal/syncer"
)

// ErrThrottled is returned by TriggerNow when on-demand drains come too fast.
var ErrThrottled = errors.New("sync requested too often, try again shortly")

// Drainer runs one drain cycle.
type Drainer interface {
	Drain(ctx context.Context) syncer.Result
}

// APIChecker reports whether the deployment has a remote API.
type APIChecker interface {
	Configured() bool
}

// Options holds the scheduling delays.
type Options struct {
	ReconnectDelay time.Duration
	StartupDelay   time.Duration
	Interval       time.Duration
	// TriggerRate and TriggerBurst throttle TriggerNow.
	TriggerRate  rate.Limit
	TriggerBurst int
}

// DefaultOptions mirrors the page behaviour: 1s settle after reconnect,
// 2s after start, a 5 minute safety net.
func DefaultOptions() Options {
	return Options{
		ReconnectDelay: time.Second,
		StartupDelay:   2 * time.Second,
		Interval:       5 * time.Minute,
		TriggerRate:    rate.Every(5 * time.Second),
		TriggerBurst:   2,
	}
}

type Monitor struct {
	net     NetworkStatus
	api     APIChecker
	opts    Options
	limiter *rate.Limiter
	log     *zap.Logger

	mu      sync.RWMutex
	drainer Drainer
}

func NewMonitor(net NetworkStatus, api APIChecker, opts Options) *Monitor {
	return &Monitor{
		net:     net,
		api:     api,
		opts:    opts,
		limiter: rate.NewLimiter(opts.TriggerRate, opts.TriggerBurst),
		log:     applog.Named("connectivity"),
	}
}

// SetDrainer attaches the engine. The engine itself needs the monitor as
// its status source, so it is wired after construction.
func (m *Monitor) SetDrainer(d Drainer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainer = d
}

// IsOffline is true without network access and also when the deployment
// has no API: a static site never syncs.
func (m *Monitor) IsOffline() bool {
	return !m.net.Online() || !m.api.Configured()
}

// Run schedules drains until ctx is done: once shortly after start, after
// every reconnect, and on a fixed interval.
func (m *Monitor) Run(ctx context.Context) {
	var settle <-chan time.Time
	if !m.IsOffline() {
		settle = time.After(m.opts.StartupDelay)
	}
	metrics.SetOnline(!m.IsOffline())

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case online := <-m.net.Changes():
			metrics.SetOnline(online && m.api.Configured())
			if online {
				m.log.Info("back online, sync scheduled", zap.Duration("in", m.opts.ReconnectDelay))
				// A later reconnect replaces the pending one.
				settle = time.After(m.opts.ReconnectDelay)
			} else {
				m.log.Info("offline, actions will queue")
				settle = nil
			}
		case <-settle:
			settle = nil
			go m.drain(ctx, "reconnect")
		case <-ticker.C:
			if !m.IsOffline() {
				go m.drain(ctx, "interval")
			}
		}
	}
}

// TriggerNow drains immediately on request, subject to a token bucket.
func (m *Monitor) TriggerNow(ctx context.Context) (syncer.Result, error) {
	if !m.limiter.Allow() {
		return syncer.Result{}, ErrThrottled
	}
	return m.drain(ctx, "manual"), nil
}

func (m *Monitor) drain(ctx context.Context, reason string) syncer.Result {
	m.mu.RLock()
	d := m.drainer
	m.mu.RUnlock()
	if d == nil {
		return syncer.Result{}
	}
	m.log.Debug("drain triggered", zap.String("reason", reason))
	return d.Drain(ctx)
}
