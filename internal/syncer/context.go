// Package syncer delivers queued user actions to the remote API.
package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/wearesierraleone/frontend/internal/queue"
	"github.com/wearesierraleone/frontend/internal/store"
)

// ErrOffline reports that a write was not attempted because the device is
// offline or has no API to write to.
var ErrOffline = errors.New("offline")

// Status answers whether a drain may run at all.
type Status interface {
	IsOffline() bool
}

// Sender writes one action to the remote API.
type Sender interface {
	PostJSON(ctx context.Context, path string, body any) error
	Configured() bool
}

// Notifier shows the user a short message.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// NopNotifier discards messages. It stands in when no UI is attached.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) {}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, message string)

func (f NotifierFunc) Notify(ctx context.Context, message string) { f(ctx, message) }

// Context holds the collaborators shared by the sync subsystem. It is built
// once per process and handed to the engine explicitly.
type Context struct {
	Store    *store.Store
	Queue    *queue.Queue
	Status   Status
	Remote   Sender
	Notifier Notifier
}

func (c *Context) validate() error {
	switch {
	case c.Queue == nil:
		return fmt.Errorf("sync context: queue is required")
	case c.Status == nil:
		return fmt.Errorf("sync context: status is required")
	case c.Remote == nil:
		return fmt.Errorf("sync context: remote is required")
	}
	if c.Notifier == nil {
		c.Notifier = NopNotifier{}
	}
	return nil
}

// SyncedMessage is the notification text for n delivered items.
func SyncedMessage(n int) string {
	if n == 1 {
		return "Synced 1 item"
	}
	return fmt.Sprintf("Synced %d items", n)
}
