package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	applog "github.com/wearesierraleone/frontend/internal/logger"
	"github.com/wearesierraleone/frontend/internal/metrics"
	"github.com/wearesierraleone/frontend/internal/models"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Minute
	// DefaultConcurrency stays below the data server's per-IP write burst.
	DefaultConcurrency = 4
)

// Result summarises one drain cycle.
type Result struct {
	// Attempted is false when the cycle was skipped: offline, no API, or
	// another cycle still running (Busy).
	Attempted bool `json:"attempted"`
	Busy      bool `json:"busy,omitempty"`
	Delivered int  `json:"delivered"`
	Retried   int  `json:"retried"`
	// Deferred counts items the API throttled or the engine abandoned on
	// shutdown. They stay queued without using up an attempt.
	Deferred  int  `json:"deferred"`
	Dropped   int  `json:"dropped"`
	// Unknown counts items of an unrecognised type, kept as they were.
	Unknown   int `json:"unknown"`
	Remaining int `json:"remaining"`
}

type outcome int

const (
	delivered outcome = iota
	retried
	deferred
	dropped
	unknown
)

// Option configures an Engine.
type Option func(*Engine)

func WithMaxAttempts(n int) Option {
	return func(e *Engine) { e.maxAttempts = n }
}

func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) { e.retryDelay = d }
}

// WithConcurrency caps how many deliveries a cycle has in flight.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// Engine runs drain cycles. Cycles never overlap and at most one follow-up
// drain is pending at any time.
type Engine struct {
	sc          Context
	maxAttempts int
	retryDelay  time.Duration
	concurrency int
	log         *zap.Logger

	running atomic.Bool

	timerMu  sync.Mutex
	followUp *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

func NewEngine(sc Context, opts ...Option) (*Engine, error) {
	if err := sc.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		sc:          sc,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		concurrency: DefaultConcurrency,
		log:         applog.Named("syncer"),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Drain runs one cycle. It never fails: every problem is logged and folded
// into the per-item retry accounting. The caller's ctx only carries values;
// deliveries run until the engine is stopped, so a caller that goes away
// never costs an item an attempt.
func (e *Engine) Drain(ctx context.Context) Result {
	ctx = context.WithoutCancel(ctx)

	if !e.running.CompareAndSwap(false, true) {
		metrics.DrainCycles.WithLabelValues("busy").Inc()
		return Result{Busy: true}
	}
	defer e.running.Store(false)

	if e.sc.Status.IsOffline() || !e.sc.Remote.Configured() {
		metrics.DrainCycles.WithLabelValues("not_attempted").Inc()
		e.log.Debug("sync skipped: offline or no remote API")
		return Result{}
	}

	start := time.Now()
	snapshot := e.sc.Queue.Drain(ctx)
	res := Result{Attempted: true}
	if len(snapshot) == 0 {
		e.cancelFollowUp()
		metrics.DrainCycles.WithLabelValues("completed").Inc()
		return res
	}
	e.log.Info("sync started", zap.Int("items", len(snapshot)))

	outcomes := make([]outcome, len(snapshot))
	settled := make([]models.SyncQueueItem, len(snapshot))
	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, item := range snapshot {
		g.Go(func() error {
			settled[i], outcomes[i] = e.deliver(e.ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	var retained []models.SyncQueueItem
	for i, o := range outcomes {
		typ := string(snapshot[i].Type)
		switch o {
		case delivered:
			res.Delivered++
			metrics.ItemsTotal.WithLabelValues(typ, "delivered").Inc()
		case retried:
			res.Retried++
			retained = append(retained, settled[i])
			metrics.ItemsTotal.WithLabelValues(typ, "retried").Inc()
		case deferred:
			res.Deferred++
			retained = append(retained, settled[i])
			metrics.ItemsTotal.WithLabelValues(typ, "deferred").Inc()
		case dropped:
			res.Dropped++
			metrics.ItemsTotal.WithLabelValues(typ, "dropped").Inc()
		case unknown:
			res.Unknown++
			retained = append(retained, settled[i])
			metrics.ItemsTotal.WithLabelValues(typ, "retained").Inc()
		}
	}

	if err := e.sc.Queue.Commit(ctx, snapshot, retained); err != nil {
		// Delivered items stay queued and will be sent again next cycle.
		e.log.Error("failed to commit sync results", zap.Error(err))
	}
	res.Remaining = e.sc.Queue.Len(ctx)

	if res.Delivered > 0 {
		e.sc.Notifier.Notify(ctx, SyncedMessage(res.Delivered))
	}
	if res.Remaining > 0 {
		e.scheduleFollowUp()
	} else {
		e.cancelFollowUp()
	}

	metrics.DrainCycles.WithLabelValues("completed").Inc()
	metrics.ObserveDrain(start)
	e.log.Info("sync finished",
		zap.Int("delivered", res.Delivered),
		zap.Int("retried", res.Retried),
		zap.Int("dropped", res.Dropped),
		zap.Int("remaining", res.Remaining),
	)
	return res
}

func (e *Engine) deliver(ctx context.Context, item models.SyncQueueItem) (models.SyncQueueItem, outcome) {
	path, ok := Endpoint(item)
	if !ok {
		e.log.Warn("unknown sync item type, keeping it queued",
			zap.String("type", string(item.Type)), zap.String("id", item.ID))
		return item, unknown
	}

	err := e.sc.Remote.PostJSON(ctx, path, item.Data)
	if err == nil {
		return item, delivered
	}
	if ctx.Err() != nil || throttled(err) {
		e.log.Info("sync attempt deferred",
			zap.String("type", string(item.Type)),
			zap.String("id", item.ID),
			zap.Error(err))
		return item, deferred
	}

	item.SyncAttempts++
	if item.SyncAttempts < e.maxAttempts {
		e.log.Warn("sync attempt failed, will retry",
			zap.String("type", string(item.Type)),
			zap.String("id", item.ID),
			zap.Int("attempts", item.SyncAttempts),
			zap.Error(err))
		return item, retried
	}
	e.log.Error("sync item dropped after max attempts",
		zap.String("type", string(item.Type)),
		zap.String("id", item.ID),
		zap.Int("attempts", item.SyncAttempts),
		zap.ByteString("data", item.Data),
		zap.Error(err))
	return item, dropped
}

// throttled reports whether the API asked the client to slow down.
func throttled(err error) bool {
	var t interface{ Throttled() bool }
	return errors.As(err, &t) && t.Throttled()
}

// Endpoint maps a queue item to its API path. Votes go to /upvote or
// /downvote depending on the vote's own type field.
func Endpoint(item models.SyncQueueItem) (string, bool) {
	switch item.Type {
	case models.ItemVote:
		var v struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(item.Data, &v)
		if vt, _ := models.ParseVoteType(v.Type); vt == models.VoteUp {
			return "/upvote", true
		}
		return "/downvote", true
	case models.ItemComment:
		return "/comment", true
	case models.ItemPost:
		return "/submit", true
	}
	return "", false
}

func (e *Engine) scheduleFollowUp() {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if e.ctx.Err() != nil {
		return
	}
	if e.followUp != nil {
		e.followUp.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(e.retryDelay, func() {
		e.timerMu.Lock()
		if e.followUp == t {
			e.followUp = nil
		}
		e.timerMu.Unlock()
		e.Drain(e.ctx)
	})
	e.followUp = t
	e.log.Debug("follow-up sync scheduled", zap.Duration("in", e.retryDelay))
}

func (e *Engine) cancelFollowUp() {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if e.followUp != nil {
		e.followUp.Stop()
		e.followUp = nil
	}
}

// FollowUpPending reports whether a follow-up drain is scheduled.
func (e *Engine) FollowUpPending() bool {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	return e.followUp != nil
}

// Stop cancels any pending follow-up and prevents new ones.
func (e *Engine) Stop() {
	e.cancel()
	e.cancelFollowUp()
}
