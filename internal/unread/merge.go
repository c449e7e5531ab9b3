package unread

import "sync"

// SyncPoint names the client events after which the authoritative
// server count may replace the optimistic one outright.
type SyncPoint int

const (
	// SyncNone marks a background refetch not tied to any user action
	SyncNone SyncPoint = iota
	// SyncInitialLoad marks the first fetch after client startup
	SyncInitialLoad
	// SyncMarkRead marks a fetch triggered by viewing/marking the target read
	SyncMarkRead
	// SyncOwnSend marks a fetch triggered by the user sending into the target
	SyncOwnSend
)

// Merge reconciles an optimistic local unread count against an
// authoritative server recomputation. At a sync point the remote value
// wins, including moving the count down to zero. Outside sync points
// the remote may only raise the count: the send-based proxy can lag
// behind events the client already observed, and a background refetch
// must never clobber those optimistic increments.
func Merge(local, remote int64, syncPoint SyncPoint) int64 {
	switch syncPoint {
	case SyncInitialLoad, SyncMarkRead, SyncOwnSend:
		return remote
	default:
		if remote > local {
			return remote
		}
		return local
	}
}

// Tracker is the optimistic per-target counter built on Merge. It is
// the client-side half of unread accounting: increment on inbound
// events, reset on view/send, reconcile against server fetches.
type Tracker struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewTracker creates a new Tracker
func NewTracker() *Tracker {
	return &Tracker{counts: make(map[string]int64)}
}

// Incr bumps the count for target on an inbound event and returns the
// new value
func (t *Tracker) Incr(target string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[target]++
	return t.counts[target]
}

// Reset zeroes the count for target. Called when the user views the
// target or sends into it.
func (t *Tracker) Reset(target string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[target] = 0
}

// Reconcile merges an authoritative fetch result into the tracked
// count and returns the reconciled value
func (t *Tracker) Reconcile(target string, remote int64, syncPoint SyncPoint) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	merged := Merge(t.counts[target], remote, syncPoint)
	t.counts[target] = merged
	return merged
}

// Get returns the current count for target
func (t *Tracker) Get(target string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[target]
}
