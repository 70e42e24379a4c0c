// Package statusevent implements the per-endpoint status event stream
// (component J): a single-consumer, bounded stream of status changes
// such as subscription-matched or requested-incompatible-QoS, per
// spec.md §4.4/§7.
//
// The bounded-channel-plus-overflow-is-benign shape is grounded on the
// teacher's controller/api/destination/update_queue.go
// destinationUpdateQueue: a single producer-facing Enqueue that never
// blocks the caller, paired with one consumer drain loop.
package statusevent

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Kind discriminates the status events spec.md §7 requires to be
// user-visible.
type Kind int

const (
	SubscriptionMatched Kind = iota
	RequestedIncompatibleQoS
	RequestedDeadlineMissed
	LivelinessChanged
	SampleLost
	SampleRejected
)

func (k Kind) String() string {
	switch k {
	case SubscriptionMatched:
		return "subscription-matched"
	case RequestedIncompatibleQoS:
		return "requested-incompatible-qos"
	case RequestedDeadlineMissed:
		return "requested-deadline-missed"
	case LivelinessChanged:
		return "liveliness-changed"
	case SampleLost:
		return "sample-lost"
	case SampleRejected:
		return "sample-rejected"
	default:
		return "unknown"
	}
}

// Event is one status change delivered on a Stream.
type Event struct {
	Kind   Kind
	Detail string
}

// Stream is a bounded, single-consumer event stream owned by one
// endpoint. Publish never blocks: a full stream drops the oldest
// pending notion of "more detail" by simply discarding the new event
// and counting the drop, consistent with spec.md §4.6's "overflow is
// benign (drained lazily)" policy for notification channels, applied
// here to status events as well.
type Stream struct {
	events  chan Event
	dropped uint64
	log     *log.Entry
}

// NewStream creates a Stream with the given buffer capacity.
func NewStream(capacity int, entry *log.Entry) *Stream {
	if capacity <= 0 {
		capacity = 1
	}
	if entry == nil {
		entry = log.WithField("component", "status-stream")
	}
	return &Stream{
		events: make(chan Event, capacity),
		log:    entry,
	}
}

// Publish enqueues an event without blocking. If the stream's buffer is
// full, the event is dropped and counted; the caller is not notified,
// matching spec.md's treatment of status/notification overflow as
// non-fatal.
func (s *Stream) Publish(e Event) {
	select {
	case s.events <- e:
	default:
		atomic.AddUint64(&s.dropped, 1)
		s.log.WithField("kind", e.Kind.String()).Warn("status stream full, dropping event")
	}
}

// Events exposes the consumer side of the stream for an application's
// external poller to range over or select on.
func (s *Stream) Events() <-chan Event { return s.events }

// Dropped reports how many events have been discarded due to overflow.
func (s *Stream) Dropped() uint64 { return atomic.LoadUint64(&s.dropped) }

// Drain removes and discards every currently queued event without
// blocking, for use after the owning endpoint processes a read/take
// cycle per spec.md §4.4 step 4.
func (s *Stream) Drain() int {
	n := 0
	for {
		select {
		case <-s.events:
			n++
		default:
			return n
		}
	}
}
