package discovery

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ddsmesh/rtpscore/guid"
	"github.com/ddsmesh/rtpscore/statusevent"
)

// Worker is the single goroutine that owns a Database and drains a
// CommandChannel in arrival order (component I). No other goroutine
// ever calls a Database mutator directly; this is what makes the
// discovery database's invariants (participant_cleanup idempotence,
// topic_cleanup preserving locally-referenced topics, matched-reader
// list dedup) hold without the Database itself needing a mutex bigger
// than the one protecting its read paths.
//
// Grounded on the teacher's controller/destination/server.go Update
// loop: one goroutine ranging over a channel of small event structs,
// applying each to a single in-memory model before the next is read.
type Worker struct {
	db   *Database
	cmds *CommandChannel

	mu            sync.Mutex
	readerStreams map[guid.GUID]*statusevent.Stream
	writerStreams map[guid.GUID]*statusevent.Stream

	log *log.Entry
}

// NewWorker builds a Worker over the given database and command
// channel.
func NewWorker(db *Database, cmds *CommandChannel) *Worker {
	return &Worker{
		db:            db,
		cmds:          cmds,
		readerStreams: make(map[guid.GUID]*statusevent.Stream),
		writerStreams: make(map[guid.GUID]*statusevent.Stream),
		log:           log.WithField("component", "discovery-worker"),
	}
}

// RegisterReaderStream associates a local reader's status stream so
// the worker can raise subscription-matched events for it. Callers
// remove the association with UnregisterReaderStream when the reader
// is deleted.
func (w *Worker) RegisterReaderStream(id guid.GUID, s *statusevent.Stream) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readerStreams[id] = s
}

// RegisterWriterStream is the symmetric registration for a local
// writer's status stream.
func (w *Worker) RegisterWriterStream(id guid.GUID, s *statusevent.Stream) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writerStreams[id] = s
}

// UnregisterReaderStream drops a reader's status stream association.
func (w *Worker) UnregisterReaderStream(id guid.GUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.readerStreams, id)
}

// UnregisterWriterStream drops a writer's status stream association.
func (w *Worker) UnregisterWriterStream(id guid.GUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.writerStreams, id)
}

func (w *Worker) publishMatched(streams map[guid.GUID]*statusevent.Stream, ids []guid.GUID) {
	if len(ids) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range ids {
		if s, ok := streams[id]; ok {
			s.Publish(statusevent.Event{Kind: statusevent.SubscriptionMatched})
		}
	}
}

// Run drains commands until ctx is cancelled. It is meant to be the
// body of the single goroutine a participant starts at creation time.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.cmds.ch:
			w.apply(cmd)
		}
	}
}

func (w *Worker) apply(cmd Command) {
	var err error
	switch cmd.Kind {
	case CmdUpdateParticipant:
		now := orNow(cmd.Now)
		w.db.UpdateParticipant(cmd.Participant, now)

	case CmdParticipantCleanup:
		w.db.ParticipantCleanup(orNow(cmd.Now))

	case CmdTopicCleanup:
		w.db.TopicCleanup(orNow(cmd.Now))

	case CmdAddLocalWriter:
		matched := w.db.UpdateLocalTopicWriter(cmd.LocalWriter, orNow(cmd.Now))
		if len(matched) > 0 {
			w.publishMatched(w.writerStreams, []guid.GUID{cmd.LocalWriter.GUID})
			w.log.WithField("writer", cmd.LocalWriter.GUID.String()).
				WithField("count", len(matched)).Debug("local writer matched remote readers")
		}

	case CmdAddLocalReader:
		matched := w.db.UpdateLocalTopicReader(cmd.LocalReader, orNow(cmd.Now))
		if len(matched) > 0 {
			w.publishMatched(w.readerStreams, []guid.GUID{cmd.LocalReader.GUID})
			w.log.WithField("reader", cmd.LocalReader.GUID.String()).
				WithField("count", len(matched)).Debug("local reader matched remote writers")
		}

	case CmdRemoveLocalWriter:
		w.db.RemoveLocalWriter(cmd.EndpointGUID)
		w.UnregisterWriterStream(cmd.EndpointGUID)

	case CmdRemoveLocalReader:
		w.db.RemoveLocalReader(cmd.EndpointGUID)
		w.UnregisterReaderStream(cmd.EndpointGUID)

	case CmdUpdatePublication:
		matchedReaders := w.db.UpdatePublication(cmd.RemoteWriter, orNow(cmd.Now))
		w.publishMatched(w.readerStreams, matchedReaders)

	case CmdUpdateSubscription:
		matchedWriters := w.db.UpdateSubscription(cmd.RemoteReader, orNow(cmd.Now))
		w.publishMatched(w.writerStreams, matchedWriters)
	}

	cmd.done <- err
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
