package events

import (
	"context"
	"sync"
)

// Recorder keeps every notification in memory. Safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	succeeded []SyncSucceeded
	failed    []SyncFailed
}

func (r *Recorder) UserSynced(_ context.Context, e SyncSucceeded) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded = append(r.succeeded, e)
}

func (r *Recorder) UserSyncFailed(_ context.Context, e SyncFailed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, e)
}

func (r *Recorder) Succeeded() []SyncSucceeded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SyncSucceeded(nil), r.succeeded...)
}

func (r *Recorder) Failed() []SyncFailed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SyncFailed(nil), r.failed...)
}
