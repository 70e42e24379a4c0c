// Package history implements the per-reader sample-state engine
// (component E): it materializes decoded samples with DDS metadata
// (sample state, view state, instance state), a keyed instance index,
// and the select/read/take operations spec.md §4.3 describes.
//
// The per-consumer-projection-over-shared-state shape is grounded on
// the teacher's controller/api/destination/endpoint_view.go, which
// keeps its own materialized view derived from a shared watcher rather
// than sharing mutable state with it; here the "shared watcher" is the
// ddscache.DDSCache and the "view" is one Engine per DataReader.
package history

import (
	"cmp"
	"sync"

	"github.com/ddsmesh/rtpscore/change"
	"github.com/ddsmesh/rtpscore/guid"
	"github.com/ddsmesh/rtpscore/rtpstime"
)

// SampleState is read vs. not-read, per sample per reader.
type SampleState int

const (
	NotRead SampleState = iota
	Read
)

// ViewState is new vs. not-new, per instance per reader.
type ViewState int

const (
	NewView ViewState = iota
	NotNewView
)

// InstanceState tracks instance liveliness, per instance per reader.
type InstanceState int

const (
	Alive InstanceState = iota
	NotAliveDisposed
	NotAliveNoWriters
)

// SampleStateMask, ViewStateMask and InstanceStateMask are disjoint
// bitmasks, per spec.md §4.3.
type SampleStateMask uint8
type ViewStateMask uint8
type InstanceStateMask uint8

const (
	MaskRead    SampleStateMask = 1 << iota
	MaskNotRead
)

const (
	MaskNewView ViewStateMask = 1 << iota
	MaskNotNewView
)

const (
	MaskAlive InstanceStateMask = 1 << iota
	MaskNotAliveDisposed
	MaskNotAliveNoWriters
)

// ReadCondition selects samples by crossing the three masks: a sample
// matches iff each of its states is in the corresponding mask.
type ReadCondition struct {
	SampleState   SampleStateMask
	ViewState     ViewStateMask
	InstanceState InstanceStateMask
}

// Any matches every sample regardless of state.
func Any() ReadCondition {
	return ReadCondition{
		SampleState:   MaskRead | MaskNotRead,
		ViewState:     MaskNewView | MaskNotNewView,
		InstanceState: MaskAlive | MaskNotAliveDisposed | MaskNotAliveNoWriters,
	}
}

// NotReadCondition matches only not-read samples on alive or
// not-alive instances, the convenience constructor named in spec.md §6
// ("not_read()").
func NotReadCondition() ReadCondition {
	return ReadCondition{
		SampleState:   MaskNotRead,
		ViewState:     MaskNewView | MaskNotNewView,
		InstanceState: MaskAlive | MaskNotAliveDisposed | MaskNotAliveNoWriters,
	}
}

func (c ReadCondition) matchesSample(s SampleState) bool {
	switch s {
	case Read:
		return c.SampleState&MaskRead != 0
	default:
		return c.SampleState&MaskNotRead != 0
	}
}

func (c ReadCondition) matchesView(v ViewState) bool {
	switch v {
	case NewView:
		return c.ViewState&MaskNewView != 0
	default:
		return c.ViewState&MaskNotNewView != 0
	}
}

func (c ReadCondition) matchesInstance(i InstanceState) bool {
	switch i {
	case Alive:
		return c.InstanceState&MaskAlive != 0
	case NotAliveDisposed:
		return c.InstanceState&MaskNotAliveDisposed != 0
	default:
		return c.InstanceState&MaskNotAliveNoWriters != 0
	}
}

// SampleID is an internal, engine-scoped identifier for one sample.
type SampleID uint64

// Sample is a materialized DataSample: a decoded value (or, for
// dispose records, only the key) plus the DDS metadata spec.md §3
// requires.
type Sample[K cmp.Ordered, V any] struct {
	ID              SampleID
	WriterGUID      guid.GUID
	SeqNum          rtpstime.SequenceNumber
	Arrival         rtpstime.Timestamp
	SourceTimestamp rtpstime.Timestamp
	Key             K
	IsDispose       bool
	Value           V
	SampleState     SampleState
}

type instanceRecord[K cmp.Ordered] struct {
	key     K
	state   InstanceState
	view    ViewState
	seen    bool // this instance has received at least one data sample
	sampleIDs []SampleID // in arrival order
}

// Engine is the per-reader sample-state cache (component E). It is
// safe for concurrent use, though in the normal flow only the owning
// DataReader's goroutine touches it (spec.md §5 "per-endpoint state is
// accessed by its owning thread").
type Engine[K cmp.Ordered, V any] struct {
	mu        sync.Mutex
	nextID    SampleID
	order     []SampleID
	samples   map[SampleID]*Sample[K, V]
	instances map[K]*instanceRecord[K]
	hashToKey map[change.KeyHash]K
}

// New creates an empty sample-state engine.
func New[K cmp.Ordered, V any]() *Engine[K, V] {
	return &Engine[K, V]{
		samples:   make(map[SampleID]*Sample[K, V]),
		instances: make(map[K]*instanceRecord[K]),
		hashToKey: make(map[change.KeyHash]K),
	}
}

// AddSample appends a decoded value (isDispose=false) or a dispose
// record (isDispose=true, value is the zero V) to the engine, updating
// the instance index and view/instance state per the rules in spec.md
// §4.3. It returns the new sample's id.
func (e *Engine[K, V]) AddSample(key K, isDispose bool, value V, writer guid.GUID, seq rtpstime.SequenceNumber, arrival, sourceTimestamp rtpstime.Timestamp) SampleID {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.instances[key]
	if !ok {
		inst = &instanceRecord[K]{key: key, state: Alive, view: NewView}
		e.instances[key] = inst
	}

	if isDispose {
		inst.state = NotAliveDisposed
	} else {
		wasNotAlive := inst.state != Alive
		if !inst.seen || wasNotAlive {
			inst.view = NewView
		}
		inst.state = Alive
		inst.seen = true
	}

	e.nextID++
	id := e.nextID
	s := &Sample[K, V]{
		ID:              id,
		WriterGUID:      writer,
		SeqNum:          seq,
		Arrival:         arrival,
		SourceTimestamp: sourceTimestamp,
		Key:             key,
		IsDispose:       isDispose,
		Value:           value,
		SampleState:     NotRead,
	}
	e.samples[id] = s
	e.order = append(e.order, id)
	inst.sampleIDs = append(inst.sampleIDs, id)
	return id
}

// MarkNoWriters transitions key's instance state to not-alive-no-writers.
// The engine does not detect this condition itself (spec.md §4.3); the
// liveliness subsystem calls this when it determines a keyed instance's
// last writer has gone.
func (e *Engine[K, V]) MarkNoWriters(key K) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if inst, ok := e.instances[key]; ok {
		inst.state = NotAliveNoWriters
	}
}

// RegisterKeyHash records the mapping from a wire key hash to a
// decoded key, so a later DisposeByKeyHash record can be resolved via
// KeyByHash without redecoding (spec.md §4.3, §12 supplemented
// dispose-by-hash cache).
func (e *Engine[K, V]) RegisterKeyHash(hash change.KeyHash, key K) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hashToKey[hash] = key
}

// KeyByHash resolves a dispose-by-hash record to the key previously
// registered for it.
func (e *Engine[K, V]) KeyByHash(hash change.KeyHash) (K, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k, ok := e.hashToKey[hash]
	return k, ok
}

// Select returns, in arrival order, the ids of every retained sample
// matching cond.
func (e *Engine[K, V]) Select(cond ReadCondition) []SampleID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectLocked(cond, e.order)
}

// SelectInstance restricts Select to the single instance named by key.
func (e *Engine[K, V]) SelectInstance(key K, cond ReadCondition) []SampleID {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[key]
	if !ok {
		return nil
	}
	return e.selectLocked(cond, inst.sampleIDs)
}

func (e *Engine[K, V]) selectLocked(cond ReadCondition, candidates []SampleID) []SampleID {
	var out []SampleID
	for _, id := range candidates {
		s, ok := e.samples[id]
		if !ok {
			continue
		}
		inst := e.instances[s.Key]
		if !cond.matchesSample(s.SampleState) {
			continue
		}
		if !cond.matchesView(inst.view) {
			continue
		}
		if !cond.matchesInstance(inst.state) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// ReadByIDs returns borrowed copies of the named samples, marking each
// as read and each owning instance as not-new.
func (e *Engine[K, V]) ReadByIDs(ids []SampleID) []Sample[K, V] {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Sample[K, V], 0, len(ids))
	for _, id := range ids {
		s, ok := e.samples[id]
		if !ok {
			continue
		}
		s.SampleState = Read
		if inst, ok := e.instances[s.Key]; ok {
			inst.view = NotNewView
		}
		out = append(out, *s)
	}
	return out
}

// TakeByIDs removes and returns the named samples, marking the owning
// instances not-new. Not-alive instances left with no remaining
// samples are cleaned up entirely, per spec.md §4.3.
func (e *Engine[K, V]) TakeByIDs(ids []SampleID) []Sample[K, V] {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Sample[K, V], 0, len(ids))
	touched := make(map[K]bool)
	for _, id := range ids {
		s, ok := e.samples[id]
		if !ok {
			continue
		}
		out = append(out, *s)
		delete(e.samples, id)
		touched[s.Key] = true
	}
	if len(out) == 0 {
		return out
	}

	removed := make(map[SampleID]bool, len(out))
	for _, s := range out {
		removed[s.ID] = true
	}
	filtered := e.order[:0:0]
	for _, id := range e.order {
		if !removed[id] {
			filtered = append(filtered, id)
		}
	}
	e.order = filtered

	for key := range touched {
		inst, ok := e.instances[key]
		if !ok {
			continue
		}
		inst.view = NotNewView
		kept := inst.sampleIDs[:0:0]
		for _, id := range inst.sampleIDs {
			if !removed[id] {
				kept = append(kept, id)
			}
		}
		inst.sampleIDs = kept
		if len(inst.sampleIDs) == 0 && inst.state != Alive {
			delete(e.instances, key)
		}
	}
	return out
}

// FirstKey returns the smallest known instance key, or ok=false if the
// engine has no instances.
func (e *Engine[K, V]) FirstKey() (key K, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	first := true
	for k := range e.instances {
		if first || k < key {
			key = k
			first = false
		}
	}
	return key, !first
}

// NextKey returns the smallest known instance key strictly greater
// than k, or ok=false if none exists.
func (e *Engine[K, V]) NextKey(k K) (next K, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	found := false
	for candidate := range e.instances {
		if candidate <= k {
			continue
		}
		if !found || candidate < next {
			next = candidate
			found = true
		}
	}
	return next, found
}

// InstanceState reports the current state of the named instance.
func (e *Engine[K, V]) InstanceState(key K) (InstanceState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[key]
	if !ok {
		return Alive, false
	}
	return inst.state, true
}
