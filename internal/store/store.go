// Package store is the device-scoped Local Store: named collections of JSON
// documents kept under well-known keys in a db.Backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wearesierraleone/frontend/internal/db"
	applog "github.com/wearesierraleone/frontend/internal/logger"
	"github.com/wearesierraleone/frontend/internal/models"
)

// Well-known keys.
const (
	CollectionPrefix = "collection_"
	KeyLocalComments = "local_comments"
	KeyAnonID        = "anonId"
	KeySyncQueue     = "sync_queue"
	votedPrefix      = "voted-"
)

// Collection names used by the typed helpers.
const (
	Posts    = "posts"
	Comments = "comments"
	Votes    = "votes"
)

// Item is one schemaless document in a collection.
type Item map[string]any

// ID returns the item's id, or "" when it has none.
func (it Item) ID() string {
	s, _ := it["id"].(string)
	return s
}

// Store wraps a backend with JSON encoding and a single writer lock. Every
// mutation is a read-modify-write of a full document.
type Store struct {
	backend db.Backend
	mu      sync.Mutex
	now     func() time.Time
	log     *zap.Logger
}

func New(backend db.Backend) *Store {
	return &Store{
		backend: backend,
		now:     time.Now,
		log:     applog.Named("store"),
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Now is the store's clock.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// Load decodes the document under key into v. It reports false when the
// key is absent, leaving v untouched.
func (s *Store) Load(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return false, models.NewStorageFault("read "+key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, models.NewStorageFault("decode "+key, err)
	}
	return true, nil
}

// Save encodes v and writes it under key.
func (s *Store) Save(ctx context.Context, key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, key, v)
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return models.NewStorageFault("encode "+key, err)
	}
	if err := s.backend.Set(ctx, key, raw); err != nil {
		if errors.Is(err, db.ErrQuotaExceeded) {
			s.log.Warn("storage quota exceeded", zap.String("key", key), zap.Int("bytes", len(raw)))
		}
		return models.NewStorageFault("write "+key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(ctx, key); err != nil {
		return models.NewStorageFault("delete "+key, err)
	}
	return nil
}

// Update runs fn on the decoded document under key and persists the result,
// all under the store's writer lock. A missing key starts from T's zero value.
// If fn or the write fails nothing is persisted.
func Update[T any](ctx context.Context, s *Store, key string, fn func(cur *T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur T
	if _, err := s.Load(ctx, key, &cur); err != nil {
		return err
	}
	if err := fn(&cur); err != nil {
		return err
	}
	return s.save(ctx, key, cur)
}

// SaveToCollection appends item to the named collection and returns its id.
// A missing id or _timestamp is filled in. The caller's map is not modified.
func (s *Store) SaveToCollection(ctx context.Context, name string, item Item) (string, error) {
	stored := make(Item, len(item)+2)
	for k, v := range item {
		stored[k] = v
	}
	now := s.Now()
	if stored.ID() == "" {
		stored["id"] = newLocalID(now)
	}
	if _, ok := stored["_timestamp"]; !ok {
		stored["_timestamp"] = now.Format(time.RFC3339Nano)
	}

	err := Update(ctx, s, CollectionPrefix+name, func(items *[]Item) error {
		*items = append(*items, stored)
		return nil
	})
	if err != nil {
		s.log.Error("failed to save to collection", zap.String("collection", name), zap.Error(err))
		return "", err
	}
	return stored.ID(), nil
}

// GetCollection returns the items in stored order. A missing collection is
// empty.
func (s *Store) GetCollection(ctx context.Context, name string) ([]Item, error) {
	var items []Item
	if _, err := s.Load(ctx, CollectionPrefix+name, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SortByTimestampDesc orders items newest first by _timestamp, falling back
// to timestamp. Items without either sort last.
func SortByTimestampDesc(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return itemTime(items[i]).After(itemTime(items[j]))
	})
}

func itemTime(it Item) time.Time {
	for _, k := range []string{"_timestamp", "timestamp"} {
		if s, ok := it[k].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// newLocalID builds local_<millis>_<9 base36 chars>.
func newLocalID(now time.Time) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	var b strings.Builder
	b.WriteString("local_")
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('_')
	for range 9 {
		b.WriteByte(alphabet[rand.IntN(len(alphabet))])
	}
	return b.String()
}

func toItem(v any) (Item, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, models.NewStorageFault("encode item", err)
	}
	var it Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return nil, models.NewStorageFault("encode item", err)
	}
	return it, nil
}

func fromItems[T any](items []Item) ([]T, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, models.NewStorageFault("decode items", err)
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, models.NewStorageFault("decode items", fmt.Errorf("unexpected shape: %w", err))
	}
	return out, nil
}
