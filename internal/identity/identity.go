// Package identity provides the device's anonymous display identifier.
package identity

import (
	"context"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	applog "github.com/wearesierraleone/frontend/internal/logger"
	"github.com/wearesierraleone/frontend/internal/store"
)

// Provider hands out the anonymous id stored on this device.
type Provider struct {
	store *store.Store
	intn  func(n int) int
}

func New(s *store.Store) *Provider {
	return &Provider{store: s, intn: rand.IntN}
}

// GetOrCreateAnonID returns the persisted id, generating and saving
// "anon-<n>" with n in [0, 99999) on first use. Creation runs under the
// store's writer lock, so concurrent first calls agree on one id. If the id
// cannot be saved the generated value is still returned for this call.
func (p *Provider) GetOrCreateAnonID(ctx context.Context) string {
	log := applog.Named("identity")
	ctx = context.WithoutCancel(ctx)

	var id string
	ok, err := p.store.Load(ctx, store.KeyAnonID, &id)
	if err != nil {
		log.Warn("failed to read anonymous id", zap.Error(err))
	}
	if ok && id != "" {
		return id
	}

	generated := fmt.Sprintf("anon-%d", p.intn(99999))
	err = store.Update(ctx, p.store, store.KeyAnonID, func(cur *string) error {
		if *cur == "" {
			*cur = generated
		}
		id = *cur
		return nil
	})
	if err != nil {
		log.Warn("failed to persist anonymous id", zap.String("anonId", generated), zap.Error(err))
		return generated
	}
	return id
}
