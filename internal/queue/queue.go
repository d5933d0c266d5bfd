// Package queue is the durable Action Queue of user actions that the remote
// API has not confirmed yet.
package queue

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	applog "github.com/wearesierraleone/frontend/internal/logger"
	"github.com/wearesierraleone/frontend/internal/metrics"
	"github.com/wearesierraleone/frontend/internal/models"
	"github.com/wearesierraleone/frontend/internal/store"
)

// Queue persists items under the sync_queue key. All mutations go through
// one mutex so a commit can never lose an item enqueued while a drain cycle
// was waiting on the network.
type Queue struct {
	store *store.Store
	mu    sync.Mutex
	log   *zap.Logger
}

func New(s *store.Store) *Queue {
	return &Queue{store: s, log: applog.Named("queue")}
}

// Enqueue appends an action with zero attempts. Failures are logged and
// swallowed: the action is already applied locally.
func (q *Queue) Enqueue(ctx context.Context, typ models.ItemType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		q.log.Error("failed to encode queued action", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	item := models.SyncQueueItem{
		ID:        uuid.NewString(),
		Type:      typ,
		Data:      raw,
		Timestamp: q.store.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	err = q.update(ctx, func(items *[]models.SyncQueueItem) {
		*items = append(*items, item)
	})
	if err != nil {
		q.log.Error("failed to enqueue action", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	q.log.Info("action queued for sync", zap.String("type", string(typ)), zap.String("id", item.ID))
}

// Drain returns the current contents without removing them. A read failure
// yields an empty queue.
func (q *Queue) Drain(ctx context.Context) []models.SyncQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	items, err := q.read(ctx)
	if err != nil {
		q.log.Error("failed to read sync queue", zap.Error(err))
		return nil
	}
	return items
}

// Len is the number of queued items.
func (q *Queue) Len(ctx context.Context) int {
	return len(q.Drain(ctx))
}

// Replace overwrites the persisted queue.
func (q *Queue) Replace(ctx context.Context, items []models.SyncQueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.write(ctx, items)
}

// Commit stores the outcome of a drain cycle. snapshot is what the cycle
// drained and retained is what it decided to keep. Items that reached the
// queue after the snapshot was taken are preserved behind retained.
func (q *Queue) Commit(ctx context.Context, snapshot, retained []models.SyncQueueItem) error {
	seen := make(map[string]bool, len(snapshot))
	for _, it := range snapshot {
		seen[itemKey(it)] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.update(ctx, func(items *[]models.SyncQueueItem) {
		next := append([]models.SyncQueueItem(nil), retained...)
		for _, it := range *items {
			if !seen[itemKey(it)] {
				next = append(next, it)
			}
		}
		*items = next
	})
}

func (q *Queue) read(ctx context.Context) ([]models.SyncQueueItem, error) {
	var items []models.SyncQueueItem
	if _, err := q.store.Load(ctx, store.KeySyncQueue, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// write persists items. An empty queue removes the key.
func (q *Queue) write(ctx context.Context, items []models.SyncQueueItem) error {
	var err error
	if len(items) == 0 {
		err = q.store.Delete(ctx, store.KeySyncQueue)
	} else {
		err = q.store.Save(ctx, store.KeySyncQueue, items)
	}
	if err != nil {
		return err
	}
	metrics.QueueDepth.Set(float64(len(items)))
	return nil
}

// update must be called with q.mu held.
func (q *Queue) update(ctx context.Context, fn func(*[]models.SyncQueueItem)) error {
	items, err := q.read(ctx)
	if err != nil {
		return err
	}
	fn(&items)
	return q.write(ctx, items)
}

// itemKey identifies an item across a cycle. Items written by older
// clients have no id and are matched on their content.
func itemKey(it models.SyncQueueItem) string {
	if it.ID != "" {
		return it.ID
	}
	return string(it.Type) + "|" + it.Timestamp.String() + "|" + string(it.Data)
}
