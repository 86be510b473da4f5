// Package events carries user-sync notifications to interested observers.
package events

import (
	"context"
	"sync"

	"github.com/gogotex/usersync/pkg/logger"
	"github.com/gogotex/usersync/pkg/metrics"
)

// SyncSucceeded is emitted once the directory accepted a create or update.
type SyncSucceeded struct {
	LocalUserID     string         `json:"local_user_id"`
	ProviderSubject string         `json:"keycloak_id"`
	Response        map[string]any `json:"response,omitempty"`
}

// SyncFailed is emitted when a sync gives up. Attempts is 0 for inline syncs.
type SyncFailed struct {
	LocalUserID     string `json:"local_user_id"`
	ProviderSubject string `json:"keycloak_id"`
	Message         string `json:"message"`
	Code            int    `json:"code"`
	Attempts        int    `json:"attempts,omitempty"`
}

// Notifier observes sync outcomes. Implementations must not block for long.
type Notifier interface {
	UserSynced(ctx context.Context, e SyncSucceeded)
	UserSyncFailed(ctx context.Context, e SyncFailed)
}

// Bus fans a notification out to every registered notifier, in order.
type Bus struct {
	mu        sync.RWMutex
	notifiers []Notifier
}

func NewBus(n ...Notifier) *Bus {
	return &Bus{notifiers: n}
}

// Subscribe adds n to the bus.
func (b *Bus) Subscribe(n Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifiers = append(b.notifiers, n)
}

func (b *Bus) snapshot() []Notifier {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Notifier(nil), b.notifiers...)
}

func (b *Bus) UserSynced(ctx context.Context, e SyncSucceeded) {
	for _, n := range b.snapshot() {
		n.UserSynced(ctx, e)
	}
}

func (b *Bus) UserSyncFailed(ctx context.Context, e SyncFailed) {
	for _, n := range b.snapshot() {
		n.UserSyncFailed(ctx, e)
	}
}

// LogNotifier writes outcomes to the service log.
type LogNotifier struct{}

func (LogNotifier) UserSynced(_ context.Context, e SyncSucceeded) {
	logger.WithFields(logger.Fields{"local_user_id": e.LocalUserID, "keycloak_sub": e.ProviderSubject}).Infof("user synced to User Service")
}

func (LogNotifier) UserSyncFailed(_ context.Context, e SyncFailed) {
	logger.WithFields(logger.Fields{
		"local_user_id": e.LocalUserID,
		"keycloak_sub":  e.ProviderSubject,
		"code":          e.Code,
		"attempts":      e.Attempts,
	}).Errorf("user sync failed: %s", e.Message)
}

// MetricsNotifier counts outcomes in usersync_sync_total.
type MetricsNotifier struct{}

func (MetricsNotifier) UserSynced(context.Context, SyncSucceeded) {
	metrics.SyncOutcomes.WithLabelValues("success").Inc()
}

func (MetricsNotifier) UserSyncFailed(context.Context, SyncFailed) {
	metrics.SyncOutcomes.WithLabelValues("failure").Inc()
}

// Nop discards every notification.
type Nop struct{}

func (Nop) UserSynced(context.Context, SyncSucceeded)  {}
func (Nop) UserSyncFailed(context.Context, SyncFailed) {}
