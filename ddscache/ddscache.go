// Package ddscache implements the shared sample cache: a per-topic
// ordered store of received change records (TopicCache, component B)
// registered by topic name under one process-wide reader-writer lock
// (DDSCache, component C), per spec.md §3/§4.1.
//
// The locking shape is grounded on the teacher's
// controller/destination/endpoints_watcher.go: a single
// map[key]*value registry behind one sync.RWMutex, where the map
// itself is protected by the lock but callers reach into the *value
// for further (lock-free, because single-writer) mutation once they
// hold it.
package ddscache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/ddsmesh/rtpscore/change"
	"github.com/ddsmesh/rtpscore/qos"
	"github.com/ddsmesh/rtpscore/rtpstime"
)

var (
	topicsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dds_cache_topics_registered",
		Help: "Number of topic caches currently registered in the DDS cache.",
	})
	changesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dds_cache_changes_added_total",
		Help: "Total number of change records added across all topic caches.",
	})
	evictionsRun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dds_cache_evictions_total",
		Help: "Total number of evict() passes run across all topic caches.",
	})
)

// DDSCache is the process-wide registry mapping topic name to
// TopicCache (component C). There is exactly one DDSCache per
// participant process; protocol workers call AddChange/Evict holding
// the exclusive lock, reader-side consumers call ChangesInRange
// holding the shared lock.
type DDSCache struct {
	mu     sync.RWMutex
	topics map[string]*TopicCache
	source *rtpstime.Source
	log    *log.Entry
}

// New creates an empty DDS cache. source mints the strictly increasing
// arrival instants used for every AddChange across every topic.
func New(source *rtpstime.Source) *DDSCache {
	return &DDSCache{
		topics: make(map[string]*TopicCache),
		source: source,
		log:    log.WithField("component", "dds-cache"),
	}
}

// EnsureTopic registers a topic cache for name if one does not already
// exist, returning the (possibly just-created) cache.
func (d *DDSCache) EnsureTopic(name string, policies qos.Policies) *TopicCache {
	d.mu.Lock()
	defer d.mu.Unlock()

	tc, ok := d.topics[name]
	if !ok {
		tc = NewTopicCache(name, policies)
		d.topics[name] = tc
		topicsRegistered.Set(float64(len(d.topics)))
		d.log.WithField("topic", name).Debug("registered topic cache")
	}
	return tc
}

// AddChange inserts c into the named topic's cache at a freshly minted
// arrival instant, creating the topic cache on first use. It acquires
// the cache's exclusive lock for the duration of the insert, per
// spec.md §4.1. A panic from a broken monotonicity invariant (see
// TopicCache.AddChange) is logged before being allowed to propagate;
// per spec.md §4.1/§7, that condition is fatal to the owning
// participant, not recoverable here.
func (d *DDSCache) AddChange(name string, policies qos.Policies, c change.Change) rtpstime.Timestamp {
	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			d.log.WithField("topic", name).Errorf("dds cache invariant violated, participant must abort: %v", r)
			panic(r)
		}
	}()

	tc, ok := d.topics[name]
	if !ok {
		tc = NewTopicCache(name, policies)
		d.topics[name] = tc
		topicsRegistered.Set(float64(len(d.topics)))
	}
	instant := d.source.Next()
	c.Arrival = instant
	tc.AddChange(instant, c)
	changesAdded.Inc()
	return instant
}

// ChangesInRange returns the changes in (afterExclusive, upToInclusive]
// for the named topic, acquiring the shared lock. An unknown topic
// yields an empty result, not an error: a reader created before its
// topic has ever been written to simply sees nothing yet.
func (d *DDSCache) ChangesInRange(name string, afterExclusive, upToInclusive rtpstime.Timestamp) []change.Change {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tc, ok := d.topics[name]
	if !ok {
		return nil
	}
	return tc.ChangesInRange(afterExclusive, upToInclusive)
}

// Evict runs history/lifespan eviction for the named topic, acquiring
// the exclusive lock.
func (d *DDSCache) Evict(name string, now rtpstime.Timestamp) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tc, ok := d.topics[name]
	if !ok {
		return
	}
	tc.Evict(now)
	evictionsRun.Inc()
}

// TopicNames returns the currently registered topic names, for
// diagnostics and tests. Order is unspecified.
func (d *DDSCache) TopicNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.topics))
	for name := range d.topics {
		names = append(names, name)
	}
	return names
}
