package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	applog "github.com/wearesierraleone/frontend/internal/logger"
)

// NetworkStatus reports whether the device has network access and
// publishes every transition on Changes.
type NetworkStatus interface {
	Online() bool
	Changes() <-chan bool
}

// StaticStatus is set by hand. The agent uses it for the connectivity
// override endpoint and tests use it to simulate transitions.
type StaticStatus struct {
	mu      sync.Mutex
	online  bool
	changes chan bool
}

func NewStaticStatus(online bool) *StaticStatus {
	return &StaticStatus{online: online, changes: make(chan bool, 8)}
}

func (s *StaticStatus) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *StaticStatus) Changes() <-chan bool { return s.changes }

// Set records the state and publishes it when it differs from the last one.
func (s *StaticStatus) Set(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online == online {
		return
	}
	s.online = online
	select {
	case s.changes <- online:
	default:
	}
}

// ProbeStatus polls a reachability check on a fixed interval.
type ProbeStatus struct {
	probe    func(ctx context.Context) error
	interval time.Duration

	mu       sync.Mutex
	online   bool
	override *bool
	changes  chan bool
	log      *zap.Logger
}

// NewProbeStatus starts out online; the first probe corrects it.
func NewProbeStatus(probe func(ctx context.Context) error, interval time.Duration) *ProbeStatus {
	return &ProbeStatus{
		probe:    probe,
		interval: interval,
		online:   true,
		changes:  make(chan bool, 8),
		log:      applog.Named("connectivity"),
	}
}

func (p *ProbeStatus) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.override != nil {
		return *p.override
	}
	return p.online
}

func (p *ProbeStatus) Changes() <-chan bool { return p.changes }

// Override pins the reported state regardless of probe results. A nil
// value returns control to the probe.
func (p *ProbeStatus) Override(online *bool) {
	p.mu.Lock()
	before := p.effective()
	p.override = online
	after := p.effective()
	p.mu.Unlock()
	if before != after {
		p.publish(after)
	}
}

// Run probes until ctx is done.
func (p *ProbeStatus) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *ProbeStatus) check(ctx context.Context) {
	online := p.probe(ctx) == nil

	p.mu.Lock()
	before := p.effective()
	p.online = online
	after := p.effective()
	p.mu.Unlock()

	if before != after {
		p.log.Info("network status changed", zap.Bool("online", after))
		p.publish(after)
	}
}

// effective must be called with p.mu held.
func (p *ProbeStatus) effective() bool {
	if p.override != nil {
		return *p.override
	}
	return p.online
}

func (p *ProbeStatus) publish(online bool) {
	select {
	case p.changes <- online:
	default:
		p.log.Warn("status change dropped, monitor is not keeping up")
	}
}
