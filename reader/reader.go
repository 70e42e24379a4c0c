// Package reader implements the application-facing DataReader endpoint
// (component F): read/take/iterator/instance operations layered over a
// sample-state engine, the bounded notification/status channels, and
// discovery participation, per spec.md §4.4.
//
// The notification channel's "send = signal, overflow is benign,
// single consumer drains" shape, and the reader's status stream, are
// both grounded on the teacher's
// controller/api/destination/update_queue.go destinationUpdateQueue.
package reader

import (
	"cmp"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ddsmesh/rtpscore/change"
	"github.com/ddsmesh/rtpscore/ddscache"
	"github.com/ddsmesh/rtpscore/ddserror"
	"github.com/ddsmesh/rtpscore/discovery"
	"github.com/ddsmesh/rtpscore/guid"
	"github.com/ddsmesh/rtpscore/history"
	"github.com/ddsmesh/rtpscore/qos"
	"github.com/ddsmesh/rtpscore/rtpstime"
	"github.com/ddsmesh/rtpscore/serdes"
	"github.com/ddsmesh/rtpscore/statusevent"
)

// maxTimestamp bounds a ChangesInRange query's upper edge at "now", in
// the absence of a wall-clock-comparable instant to pass instead.
const maxTimestamp = rtpstime.Timestamp(math.MaxInt64)

// notification is the bounded, single-slot "readable" signal a reader
// exposes to an external poller. A full slot is left as-is on a second
// signal — the poller only needs to know "there is something new",
// not how many somethings.
type notification chan struct{}

func newNotification() notification { return make(notification, 1) }

func (n notification) signal() {
	select {
	case n <- struct{}{}:
	default:
	}
}

func (n notification) drain() {
	select {
	case <-n:
	default:
	}
}

// ThisOrNext selects between the supplied instance key and the next
// known key strictly greater than it, for read_instance/take_instance.
type ThisOrNext int

const (
	This ThisOrNext = iota
	Next
)

// Reader is a DataReader endpoint over keys of type K and decoded
// values of type V.
type Reader[K cmp.Ordered, V any] struct {
	mu sync.Mutex

	guid            guid.GUID
	participantGUID guid.GUID
	topic           string
	typeName        string
	policies        qos.Policies

	cache      *ddscache.DDSCache
	adapter    serdes.Adapter[V]
	keyAdapter serdes.KeyAdapter[K]

	engine        *history.Engine[K, V]
	lastProcessed rtpstime.Timestamp

	notify notification
	status *statusevent.Stream

	cmds *discovery.CommandChannel
	db   *discovery.Database

	log *log.Entry
}

// New creates a DataReader, registers its topic cache, and enqueues an
// AddLocalReader discovery command so the new reader can be matched
// against already-discovered remote writers.
func New[K cmp.Ordered, V any](
	id, participantGUID guid.GUID,
	topic, typeName string,
	policies qos.Policies,
	cache *ddscache.DDSCache,
	adapter serdes.Adapter[V],
	keyAdapter serdes.KeyAdapter[K],
	cmds *discovery.CommandChannel,
	db *discovery.Database,
	worker *discovery.Worker,
) (*Reader[K, V], error) {
	if id == (guid.GUID{}) || topic == "" {
		return nil, ddserror.PreconditionNotMet("reader requires a GUID and topic name")
	}

	cache.EnsureTopic(topic, policies)

	r := &Reader[K, V]{
		guid:            id,
		participantGUID: participantGUID,
		topic:           topic,
		typeName:        typeName,
		policies:        policies,
		cache:           cache,
		adapter:         adapter,
		keyAdapter:      keyAdapter,
		engine:          history.New[K, V](),
		notify:          newNotification(),
		status:          statusevent.NewStream(32, log.WithField("component", "reader-status").WithField("reader", id.String())),
		cmds:            cmds,
		db:              db,
		log:             log.WithField("component", "reader").WithField("reader", id.String()),
	}

	if worker != nil {
		worker.RegisterReaderStream(id, r.status)
	}
	if cmds != nil {
		if err := cmds.AddLocalReader(discovery.LocalSubscription{
			GUID:     id,
			Topic:    topic,
			TypeName: typeName,
			Qos:      policies,
		}, time.Now()); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// GUID returns the reader's own entity identity.
func (r *Reader[K, V]) GUID() guid.GUID { return r.guid }

// Notifications exposes the reader's readable-signal channel for an
// external poller to select on.
func (r *Reader[K, V]) Notifications() <-chan struct{} { return r.notify }

// Status exposes the reader's status event stream.
func (r *Reader[K, V]) Status() *statusevent.Stream { return r.status }

// Signal is called by the (out-of-scope) protocol/transport layer
// after it deposits a change for this reader's topic into the shared
// cache, raising the notification channel so an external poller wakes
// up within bounded time (spec.md S6). It does not itself pull data;
// the next read/take call performs that.
func (r *Reader[K, V]) Signal() {
	r.notify.signal()
}

// refresh performs spec.md §4.4's steps 1–2: it drains every change
// newer than lastProcessed out of the shared topic cache, decodes each
// with the adapter, and deposits the result into the sample-state
// engine. Must be called with r.mu held.
func (r *Reader[K, V]) refresh() {
	changes := r.cache.ChangesInRange(r.topic, r.lastProcessed, maxTimestamp)
	for _, c := range changes {
		r.applyChange(c)
		if c.Arrival > r.lastProcessed {
			r.lastProcessed = c.Arrival
		}
	}
}

func (r *Reader[K, V]) applyChange(c change.Change) {
	switch c.Kind {
	case change.KindData:
		var value V
		var err error
		if r.adapter != nil {
			value, err = r.adapter.FromBytes(c.Data.Bytes, c.Representation)
		}
		if err != nil {
			r.log.WithError(&serdes.DecodeError{Topic: r.topic, TypeName: r.typeName, Bytes: c.Data.Bytes, Err: err}).
				Warn("dropping sample that failed to decode")
			return
		}
		key, ok := r.resolveKey(c, c.Data.Bytes)
		if !ok {
			return
		}
		r.engine.RegisterKeyHash(c.InstanceID, key)
		r.engine.AddSample(key, false, value, c.Writer, c.SeqNum, c.Arrival, c.Arrival)

	case change.KindDataFragments:
		var value V
		var err error
		if r.adapter != nil {
			value, err = serdes.FromFragments(r.adapter, c.Fragments, c.Representation)
		}
		if err != nil {
			r.log.WithError(err).Warn("dropping fragmented sample that failed to decode")
			return
		}
		var joined []byte
		for _, f := range c.Fragments {
			joined = append(joined, f...)
		}
		key, ok := r.resolveKey(c, joined)
		if !ok {
			return
		}
		r.engine.RegisterKeyHash(c.InstanceID, key)
		r.engine.AddSample(key, false, value, c.Writer, c.SeqNum, c.Arrival, c.Arrival)

	case change.KindDisposeByKey:
		var zero V
		key, ok := r.resolveKey(c, c.Key)
		if !ok {
			return
		}
		r.engine.RegisterKeyHash(c.InstanceID, key)
		r.engine.AddSample(key, true, zero, c.Writer, c.SeqNum, c.Arrival, c.Arrival)

	case change.KindDisposeByKeyHash:
		var zero V
		key, ok := r.engine.KeyByHash(c.Hash)
		if !ok {
			r.log.WithField("writer", c.Writer.String()).Warn("dropping dispose-by-hash for unknown key hash")
			return
		}
		r.engine.AddSample(key, true, zero, c.Writer, c.SeqNum, c.Arrival, c.Arrival)
	}
}

// resolveKey extracts a key from raw bytes via the key adapter, if
// any; topics with no key adapter use the zero value of K as the
// single implicit instance of an unkeyed topic.
func (r *Reader[K, V]) resolveKey(c change.Change, raw []byte) (K, bool) {
	var zero K
	if r.keyAdapter == nil {
		return zero, true
	}
	key, err := r.keyAdapter.KeyFromBytes(raw, c.Representation)
	if err != nil {
		r.log.WithError(err).Warn("dropping sample whose key failed to decode")
		return zero, false
	}
	return key, true
}

// cycle performs the full atomic read/take cycle of spec.md §4.4:
// refresh, select, and drain the notification channel. It returns the
// ids matching cond among candidates (all samples, or one instance's).
func (r *Reader[K, V]) cycle(cond history.ReadCondition, instance *K) []history.SampleID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refresh()
	var ids []history.SampleID
	if instance != nil {
		ids = r.engine.SelectInstance(*instance, cond)
	} else {
		ids = r.engine.Select(cond)
	}
	r.notify.drain()
	return ids
}

func clamp(ids []history.SampleID, max int) []history.SampleID {
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}
	return ids
}

// Read returns up to max borrowed samples matching cond, marking them
// read.
func (r *Reader[K, V]) Read(max int, cond history.ReadCondition) []history.Sample[K, V] {
	ids := clamp(r.cycle(cond, nil), max)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.ReadByIDs(ids)
}

// Take returns up to max owned samples matching cond, removing them.
func (r *Reader[K, V]) Take(max int, cond history.ReadCondition) []history.Sample[K, V] {
	ids := clamp(r.cycle(cond, nil), max)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.TakeByIDs(ids)
}

// ReadNextSample is read(1, not-read).
func (r *Reader[K, V]) ReadNextSample() (history.Sample[K, V], bool) {
	samples := r.Read(1, history.NotReadCondition())
	if len(samples) == 0 {
		var zero history.Sample[K, V]
		return zero, false
	}
	return samples[0], true
}

// TakeNextSample is take(1, not-read).
func (r *Reader[K, V]) TakeNextSample() (history.Sample[K, V], bool) {
	samples := r.Take(1, history.NotReadCondition())
	if len(samples) == 0 {
		var zero history.Sample[K, V]
		return zero, false
	}
	return samples[0], true
}

// selectKey resolves the instance key for a read_instance/take_instance
// call: the supplied key when present, else the smallest known key;
// This uses the resolved key directly, Next advances to the next known
// key after it. Returns ok=false if no such key exists.
func (r *Reader[K, V]) selectKey(key *K, mode ThisOrNext) (K, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key == nil {
		return r.engine.FirstKey()
	}
	if mode == This {
		if _, ok := r.engine.InstanceState(*key); !ok {
			var zero K
			return zero, false
		}
		return *key, true
	}
	return r.engine.NextKey(*key)
}

// ReadInstance is the key-scoped variant of Read.
func (r *Reader[K, V]) ReadInstance(max int, cond history.ReadCondition, key *K, mode ThisOrNext) []history.Sample[K, V] {
	resolved, ok := r.selectKey(key, mode)
	if !ok {
		return nil
	}
	ids := clamp(r.cycleInstance(resolved, cond), max)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.ReadByIDs(ids)
}

// TakeInstance is the key-scoped variant of Take.
func (r *Reader[K, V]) TakeInstance(max int, cond history.ReadCondition, key *K, mode ThisOrNext) []history.Sample[K, V] {
	resolved, ok := r.selectKey(key, mode)
	if !ok {
		return nil
	}
	ids := clamp(r.cycleInstance(resolved, cond), max)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.TakeByIDs(ids)
}

func (r *Reader[K, V]) cycleInstance(key K, cond history.ReadCondition) []history.SampleID {
	return r.cycle(cond, &key)
}

// Iterator returns a lazy sequence of payload-only values matching
// cond, consumed eagerly into a buffer the returned function drains
// (spec.md §4.4: consumption is eager, iteration is lazy only from the
// caller's point of view).
func (r *Reader[K, V]) Iterator(cond history.ReadCondition) func() (V, bool) {
	samples := r.Read(0, cond)
	i := 0
	return func() (V, bool) {
		if i >= len(samples) {
			var zero V
			return zero, false
		}
		v := samples[i].Value
		i++
		return v, true
	}
}

// IntoIterator is Iterator's taking variant: samples are removed from
// the reader even if the returned function is only partially drained,
// because the take already happened eagerly.
func (r *Reader[K, V]) IntoIterator(cond history.ReadCondition) func() (V, bool) {
	samples := r.Take(0, cond)
	i := 0
	return func() (V, bool) {
		if i >= len(samples) {
			var zero V
			return zero, false
		}
		v := samples[i].Value
		i++
		return v, true
	}
}

// GetMatchedPublications returns the real matched-writer-proxy list
// from the discovery database (spec.md §9's design note: the source
// leaves this trivial, but a real implementation returns the actual
// list).
func (r *Reader[K, V]) GetMatchedPublications() []discovery.WriterProxy {
	if r.db == nil {
		return nil
	}
	return r.db.GetMatchedWriters(r.guid)
}

// WaitForHistoricalData polls, up to timeout, for every currently
// matched writer to report no sequence numbers beyond what this reader
// has already processed. It returns false on timeout, matching
// spec.md §9's instruction to implement the stub left in the source
// rather than leave it unspecified (see DESIGN.md).
func (r *Reader[K, V]) WaitForHistoricalData(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if r.historicalDataCaughtUp() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (r *Reader[K, V]) historicalDataCaughtUp() bool {
	r.mu.Lock()
	r.refresh()
	processed := r.lastProcessed
	r.mu.Unlock()

	latest := r.cache.ChangesInRange(r.topic, processed, maxTimestamp)
	return len(latest) == 0
}

// Close enqueues a REMOVE_LOCAL_READER discovery command. A failure to
// enqueue (a full or closed command channel) is logged, not returned,
// per spec.md §5's "best-effort REMOVE command" cancellation note.
func (r *Reader[K, V]) Close() {
	if r.cmds == nil {
		return
	}
	if err := r.cmds.RemoveLocalReader(r.guid); err != nil {
		r.log.WithError(err).Warn("failed to enqueue reader removal")
	}
}
