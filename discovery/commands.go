package discovery

import (
	"time"

	"github.com/ddsmesh/rtpscore/ddserror"
	"github.com/ddsmesh/rtpscore/guid"
)

// commandQueueDepth bounds the discovery command channel. Overflow is
// reported to the caller as ddserror.OutOfResources rather than
// blocking the sender, matching the bounded-channel stance taken for
// the notification and status channels elsewhere in this module.
const commandQueueDepth = 256

// CommandKind distinguishes the command variants the worker accepts.
type CommandKind int

const (
	CmdUpdateParticipant CommandKind = iota
	CmdParticipantCleanup
	CmdTopicCleanup
	CmdAddLocalWriter
	CmdAddLocalReader
	CmdRemoveLocalWriter
	CmdRemoveLocalReader
	CmdUpdatePublication
	CmdUpdateSubscription
)

// Command is a single unit of work for the discovery worker. Exactly
// one of the typed payload fields is populated, selected by Kind; this
// mirrors the teacher's destination/server.go pattern of a single
// update channel carrying a small closed set of event structs rather
// than one channel per verb.
type Command struct {
	Kind CommandKind
	Now  time.Time

	Participant  ParticipantProxy
	LocalWriter  LocalPublication
	LocalReader  LocalSubscription
	RemoteWriter WriterProxy
	RemoteReader ReaderProxy
	EndpointGUID guid.GUID

	done chan error
}

// CommandChannel is the ordered, single-consumer command queue that
// feeds a Worker (component I). Every public entry point blocks the
// caller only long enough to enqueue; the worker applies the command
// to the Database and, for commands that report success/failure,
// wakes the caller through an internal done channel.
type CommandChannel struct {
	ch chan Command
}

// NewCommandChannel allocates a bounded discovery command channel.
func NewCommandChannel() *CommandChannel {
	return &CommandChannel{ch: make(chan Command, commandQueueDepth)}
}

func (c *CommandChannel) send(cmd Command) error {
	cmd.done = make(chan error, 1)
	select {
	case c.ch <- cmd:
	default:
		return ddserror.OutOfResources("discovery command channel full")
	}
	return <-cmd.done
}

// UpdateParticipant enqueues a participant proxy upsert.
func (c *CommandChannel) UpdateParticipant(p ParticipantProxy, now time.Time) error {
	return c.send(Command{Kind: CmdUpdateParticipant, Participant: p, Now: now})
}

// ParticipantCleanup enqueues a lease-expiry sweep.
func (c *CommandChannel) ParticipantCleanup(now time.Time) error {
	return c.send(Command{Kind: CmdParticipantCleanup, Now: now})
}

// TopicCleanup enqueues a topic-lifespan sweep.
func (c *CommandChannel) TopicCleanup(now time.Time) error {
	return c.send(Command{Kind: CmdTopicCleanup, Now: now})
}

// AddLocalWriter enqueues a local publication upsert and matches it
// against discovered remote readers.
func (c *CommandChannel) AddLocalWriter(p LocalPublication, now time.Time) error {
	return c.send(Command{Kind: CmdAddLocalWriter, LocalWriter: p, Now: now})
}

// AddLocalReader enqueues a local subscription upsert and matches it
// against discovered remote writers.
func (c *CommandChannel) AddLocalReader(s LocalSubscription, now time.Time) error {
	return c.send(Command{Kind: CmdAddLocalReader, LocalReader: s, Now: now})
}

// RemoveLocalWriter enqueues removal of a local writer's record.
func (c *CommandChannel) RemoveLocalWriter(id guid.GUID) error {
	return c.send(Command{Kind: CmdRemoveLocalWriter, EndpointGUID: id})
}

// RemoveLocalReader enqueues removal of a local reader's record.
func (c *CommandChannel) RemoveLocalReader(id guid.GUID) error {
	return c.send(Command{Kind: CmdRemoveLocalReader, EndpointGUID: id})
}

// UpdatePublication enqueues a discovered remote writer for matching
// against local subscriptions.
func (c *CommandChannel) UpdatePublication(w WriterProxy, now time.Time) error {
	return c.send(Command{Kind: CmdUpdatePublication, RemoteWriter: w, Now: now})
}

// UpdateSubscription enqueues a discovered remote reader for matching
// against local publications.
func (c *CommandChannel) UpdateSubscription(r ReaderProxy, now time.Time) error {
	return c.send(Command{Kind: CmdUpdateSubscription, RemoteReader: r, Now: now})
}
