package unread

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeSyncPointsTakeRemote(t *testing.T) {
	for _, sp := range []SyncPoint{SyncInitialLoad, SyncMarkRead, SyncOwnSend} {
		assert.Equal(t, int64(0), Merge(5, 0, sp))
		assert.Equal(t, int64(7), Merge(2, 7, sp))
	}
}

func TestMergeBackgroundRefetchNeverLowers(t *testing.T) {
	// The send-based proxy can report fewer than the client already saw
	assert.Equal(t, int64(5), Merge(5, 3, SyncNone))
	assert.Equal(t, int64(5), Merge(5, 0, SyncNone))

	// But a larger authoritative value is adopted
	assert.Equal(t, int64(9), Merge(5, 9, SyncNone))
	assert.Equal(t, int64(5), Merge(5, 5, SyncNone))
}

func TestTrackerMonotonicUnderBackgroundFetches(t *testing.T) {
	// Three inbound messages for a group the user is not viewing, with
	// stale background refetches interleaved. The badge goes 0-1-2-3 and
	// is never reset by a refetch.
	tr := NewTracker()

	var observed []int64
	observed = append(observed, tr.Incr("grp1"))
	observed = append(observed, tr.Reconcile("grp1", 0, SyncNone))
	observed = append(observed, tr.Incr("grp1"))
	observed = append(observed, tr.Reconcile("grp1", 1, SyncNone))
	observed = append(observed, tr.Incr("grp1"))

	assert.Equal(t, []int64{1, 1, 2, 2, 3}, observed)
	for i := 1; i < len(observed); i++ {
		assert.GreaterOrEqual(t, observed[i], observed[i-1])
	}
}

func TestTrackerResetAndSyncPoint(t *testing.T) {
	tr := NewTracker()
	tr.Incr("cv_1")
	tr.Incr("cv_1")

	// Viewing the target zeroes the local counter
	tr.Reset("cv_1")
	assert.Equal(t, int64(0), tr.Get("cv_1"))

	// The mark-read triggered fetch may lower the count authoritatively
	tr.Incr("cv_1")
	assert.Equal(t, int64(0), tr.Reconcile("cv_1", 0, SyncMarkRead))
}

func TestTrackerIndependentTargets(t *testing.T) {
	tr := NewTracker()
	tr.Incr("a")
	tr.Incr("b")
	tr.Incr("b")

	assert.Equal(t, int64(1), tr.Get("a"))
	assert.Equal(t, int64(2), tr.Get("b"))

	tr.Reset("b")
	assert.Equal(t, int64(1), tr.Get("a"))
}
