package chat

import (
	"sync"
	"time"

	"github.com/itemwise/itemwise/internal/tools"
)

// DefaultPendingTTL bounds how long a destructive action waits for
// confirmation.
const DefaultPendingTTL = 5 * time.Minute

// PendingAction is one destructive call awaiting confirmation. Pending actions
// live only in memory; a restart discards them.
type PendingAction struct {
	ID          string
	InventoryID string
	Actor       string
	Call        tools.Call
	Description string
	ExpiresAt   time.Time
}

// pendingStore holds pending actions behind a mutex. Expiry is lazy: expired
// entries are dropped when looked up, and swept opportunistically on store.
type pendingStore struct {
	mu      sync.Mutex
	actions map[string]PendingAction
	ttl     time.Duration
	now     func() time.Time
}

func newPendingStore(ttl time.Duration, now func() time.Time) *pendingStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	if now == nil {
		now = time.Now
	}
	return &pendingStore{
		actions: make(map[string]PendingAction),
		ttl:     ttl,
		now:     now,
	}
}

func (p *pendingStore) put(action PendingAction) PendingAction {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.now()
	for id, existing := range p.actions {
		if !existing.ExpiresAt.After(current) {
			delete(p.actions, id)
		}
	}

	action.ExpiresAt = current.Add(p.ttl)
	p.actions[action.ID] = action
	return action
}

// take removes and returns the action: each pending id is usable exactly once.
func (p *pendingStore) take(actionID string) (PendingAction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	action, ok := p.actions[actionID]
	if !ok {
		return PendingAction{}, false
	}
	delete(p.actions, actionID)
	if !action.ExpiresAt.After(p.now()) {
		return PendingAction{}, false
	}
	return action, true
}
