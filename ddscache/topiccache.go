package ddscache

import (
	"sort"

	"github.com/ddsmesh/rtpscore/change"
	"github.com/ddsmesh/rtpscore/qos"
	"github.com/ddsmesh/rtpscore/rtpstime"
)

// entry pairs a change record with the arrival instant it was inserted
// under, so changesInRange can binary-search without re-deriving the
// instant from the change itself.
type entry struct {
	instant rtpstime.Timestamp
	change  change.Change
}

// TopicCache is the per-topic ordered map from arrival instant to
// change record described in spec.md §3/§4.1 (component B). Entries are
// appended in strictly increasing instant order (enforced by the
// caller's rtpstime.Source), so the backing slice is always sorted and
// range queries are a pair of binary searches.
//
// TopicCache has no internal lock: it is always reached through
// DDSCache's single process-wide RWMutex, exactly as spec.md §4.1
// mandates ("one process-wide reader-writer lock ... protocol workers
// acquire exclusive only for add_change and evict").
type TopicCache struct {
	name    string
	entries []entry
	limits  qos.ResourceLimits
	history qos.History
	depth   int
	lifespan rtpstime.Timestamp // lifespan expressed in Timestamp units; 0 means infinite
}

// NewTopicCache creates an empty topic cache governed by the given QoS.
func NewTopicCache(name string, policies qos.Policies) *TopicCache {
	return &TopicCache{
		name:    name,
		history: policies.History,
		depth:   policies.HistoryDepth,
		limits:  policies.ResourceLimits,
	}
}

// Name returns the topic name this cache serves.
func (tc *TopicCache) Name() string { return tc.name }

// AddChange inserts c at instant, which must be strictly greater than
// every previously inserted instant (spec.md §4.1). The caller (the DDS
// cache, under its exclusive lock) is responsible for enforcing this;
// AddChange panics on violation since it signals a caller invariant
// break rather than a recoverable runtime condition.
func (tc *TopicCache) AddChange(instant rtpstime.Timestamp, c change.Change) {
	if n := len(tc.entries); n > 0 && instant <= tc.entries[n-1].instant {
		panic("ddscache: add_change instant did not strictly increase")
	}
	tc.entries = append(tc.entries, entry{instant: instant, change: c})
}

// ChangesInRange returns, in instant order, every change whose instant
// lies in (afterExclusive, upToInclusive].
func (tc *TopicCache) ChangesInRange(afterExclusive, upToInclusive rtpstime.Timestamp) []change.Change {
	lo := sort.Search(len(tc.entries), func(i int) bool {
		return tc.entries[i].instant > afterExclusive
	})
	hi := sort.Search(len(tc.entries), func(i int) bool {
		return tc.entries[i].instant > upToInclusive
	})
	if lo >= hi {
		return nil
	}
	out := make([]change.Change, 0, hi-lo)
	for _, e := range tc.entries[lo:hi] {
		out = append(out, e.change)
	}
	return out
}

// Len reports the number of retained changes.
func (tc *TopicCache) Len() int { return len(tc.entries) }

// Evict enforces the topic's history depth (KeepLast N per instance)
// and lifespan (age cap), removing the oldest per-instance records
// first, per spec.md §4.1.
func (tc *TopicCache) Evict(now rtpstime.Timestamp) {
	tc.evictExpired(now)
	if tc.history == qos.KeepLast && tc.depth > 0 {
		tc.evictOverDepth()
	}
}

func (tc *TopicCache) evictExpired(now rtpstime.Timestamp) {
	if tc.lifespan <= 0 {
		return
	}
	cutoff := now - tc.lifespan
	kept := tc.entries[:0:0]
	for _, e := range tc.entries {
		if e.instant > cutoff {
			kept = append(kept, e)
		}
	}
	tc.entries = kept
}

func (tc *TopicCache) evictOverDepth() {
	perInstance := make(map[change.KeyHash]int)
	kept := make([]entry, 0, len(tc.entries))
	// Walk newest-first so the *most recent* depth samples per instance
	// survive, then reverse back to instant order.
	for i := len(tc.entries) - 1; i >= 0; i-- {
		e := tc.entries[i]
		id := e.change.InstanceID
		if perInstance[id] < tc.depth {
			perInstance[id]++
			kept = append(kept, e)
		}
	}
	for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
		kept[l], kept[r] = kept[r], kept[l]
	}
	tc.entries = kept
}

// SetLifespan sets the age cap, expressed in the same Timestamp units
// used by the process's rtpstime.Source.
func (tc *TopicCache) SetLifespan(l rtpstime.Timestamp) { tc.lifespan = l }
