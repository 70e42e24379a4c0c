// Package change implements the immutable Change record: the unit of
// wire data deposited into a topic cache by a protocol worker, tagged
// with writer identity, sequence number, arrival instant, and a payload
// variant (component A of the core).
package change

import (
	"github.com/ddsmesh/rtpscore/guid"
	"github.com/ddsmesh/rtpscore/rtpstime"
)

// RepresentationID is the 2-byte wire tag selecting a serialization
// encoding, per the RTPS specification referenced in spec.md §6.
type RepresentationID [2]byte

// Representation identifiers recognized by serialization adapters.
// Encapsulation options following the identifier are currently always
// zero (consistent with the PL-CDR adapter notes in the retrieved
// RustDDS source).
var (
	CDRBigEndian    = RepresentationID{0x00, 0x00}
	CDRLittleEndian = RepresentationID{0x00, 0x01}
	PLCDRBigEndian  = RepresentationID{0x00, 0x02}
	PLCDRLittleEndian = RepresentationID{0x00, 0x03}
)

// Kind discriminates the payload variant of a Change.
type Kind int

const (
	// KindData carries a fully serialized value.
	KindData Kind = iota
	// KindDataFragments carries a value split across byte chunks,
	// reassembled on read.
	KindDataFragments
	// KindDisposeByKey carries a serialized key for an instance being
	// disposed.
	KindDisposeByKey
	// KindDisposeByKeyHash carries a 16-byte hash identifying an
	// instance previously seen by the reader resolving it.
	KindDisposeByKeyHash
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "Data"
	case KindDataFragments:
		return "DataFragments"
	case KindDisposeByKey:
		return "DisposeByKey"
	case KindDisposeByKeyHash:
		return "DisposeByKeyHash"
	default:
		return "Unknown"
	}
}

// SerializedPayload is a fully serialized value: a representation
// identifier, reserved options, and the encoded bytes.
type SerializedPayload struct {
	Representation RepresentationID
	Options        [2]byte
	Bytes          []byte
}

// KeyHash is the 16-byte hash RTPS uses to identify an instance when a
// DisposeByKeyHash record is received without the original key bytes.
type KeyHash [16]byte

// Change is the immutable unit of wire data stored in a topic cache.
// Exactly one of the payload fields is meaningful, selected by Kind.
type Change struct {
	Writer  guid.GUID
	SeqNum  rtpstime.SequenceNumber
	Arrival rtpstime.Timestamp
	Kind    Kind

	// InstanceID is the key hash of the instance this change belongs
	// to, computed by the (out of scope) RTPS submessage layer the way
	// real implementations compute an instance handle without
	// decoding the full payload. The zero value names the single
	// implicit instance of an unkeyed topic.
	InstanceID KeyHash

	// Data / DataFragments representation identifier (valid for both
	// KindData and KindDataFragments).
	Representation RepresentationID

	// Data payload (KindData only).
	Data SerializedPayload

	// Fragments (KindDataFragments only): ordered byte chunks to
	// reassemble before decoding.
	Fragments [][]byte

	// Key (KindDisposeByKey only): serialized key bytes.
	Key []byte

	// Hash (KindDisposeByKeyHash only).
	Hash KeyHash
}

// NewData builds a KindData change.
func NewData(writer guid.GUID, seq rtpstime.SequenceNumber, arrival rtpstime.Timestamp, payload SerializedPayload) Change {
	return Change{
		Writer:          writer,
		SeqNum:          seq,
		Arrival:         arrival,
		Kind:            KindData,
		Representation:  payload.Representation,
		Data:            payload,
	}
}

// NewDataFragments builds a KindDataFragments change.
func NewDataFragments(writer guid.GUID, seq rtpstime.SequenceNumber, arrival rtpstime.Timestamp, rep RepresentationID, chunks [][]byte) Change {
	return Change{
		Writer:          writer,
		SeqNum:          seq,
		Arrival:         arrival,
		Kind:            KindDataFragments,
		Representation:  rep,
		Fragments:       chunks,
	}
}

// NewDisposeByKey builds a KindDisposeByKey change.
func NewDisposeByKey(writer guid.GUID, seq rtpstime.SequenceNumber, arrival rtpstime.Timestamp, key []byte) Change {
	return Change{
		Writer:  writer,
		SeqNum:  seq,
		Arrival: arrival,
		Kind:    KindDisposeByKey,
		Key:     key,
	}
}

// NewDisposeByKeyHash builds a KindDisposeByKeyHash change.
func NewDisposeByKeyHash(writer guid.GUID, seq rtpstime.SequenceNumber, arrival rtpstime.Timestamp, hash KeyHash) Change {
	return Change{
		Writer:  writer,
		SeqNum:  seq,
		Arrival: arrival,
		Kind:    KindDisposeByKeyHash,
		Hash:    hash,
	}
}

// WithInstanceID attaches an instance key hash, returning the updated
// Change. Call sites that know the key (most real usage, since the
// RTPS layer computes it alongside the submessage) chain this onto the
// constructors above.
func (c Change) WithInstanceID(id KeyHash) Change {
	c.InstanceID = id
	return c
}

// IsDispose reports whether this change transitions an instance toward
// not-alive-disposed (either dispose variant).
func (c Change) IsDispose() bool {
	return c.Kind == KindDisposeByKey || c.Kind == KindDisposeByKeyHash
}
