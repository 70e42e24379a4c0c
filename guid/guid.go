// Package guid implements RTPS entity identity: the 16-byte GUID that
// names every participant, writer, and reader on the wire, decomposed
// into a 12-byte participant prefix and a 4-byte entity id.
package guid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Prefix identifies a participant; every entity owned by that
// participant shares its prefix.
type Prefix [12]byte

// EntityID is the 4-byte suffix of a GUID. Its low byte encodes the
// entity kind (writer-with-key, reader-no-key, built-in, ...).
type EntityID [4]byte

// Kind bytes for the low byte of an EntityID, per the RTPS specification.
const (
	KindUnknown              byte = 0x00
	KindWriterWithKey        byte = 0x02
	KindWriterNoKey          byte = 0x03
	KindReaderNoKey          byte = 0x04
	KindReaderWithKey        byte = 0x07
	KindBuiltinParticipant   byte = 0xc1
	KindBuiltinWriterWithKey byte = 0xc2
	KindBuiltinWriterNoKey   byte = 0xc3
	KindBuiltinReaderNoKey   byte = 0xc4
	KindBuiltinReaderWithKey byte = 0xc7
)

// Well-known entity ids for the SPDP/SEDP built-in endpoints.
var (
	EntityIDParticipant          = EntityID{0x00, 0x00, 0x01, KindBuiltinParticipant}
	EntityIDSPDPBuiltinWriter    = EntityID{0x00, 0x01, 0x00, KindBuiltinWriterWithKey}
	EntityIDSPDPBuiltinReader    = EntityID{0x00, 0x01, 0x00, KindBuiltinReaderWithKey}
	EntityIDSEDPPublicationsW    = EntityID{0x00, 0x03, 0x00, KindBuiltinWriterWithKey}
	EntityIDSEDPPublicationsR    = EntityID{0x00, 0x03, 0x00, KindBuiltinReaderWithKey}
	EntityIDSEDPSubscriptionsW   = EntityID{0x00, 0x04, 0x00, KindBuiltinWriterWithKey}
	EntityIDSEDPSubscriptionsR   = EntityID{0x00, 0x04, 0x00, KindBuiltinReaderWithKey}
	EntityIDSEDPTopicsW          = EntityID{0x00, 0x02, 0x00, KindBuiltinWriterWithKey}
	EntityIDSEDPTopicsR          = EntityID{0x00, 0x02, 0x00, KindBuiltinReaderWithKey}
)

// Well-known built-in topic names for the discovery protocols.
const (
	TopicDCPSParticipant  = "DCPSParticipant"
	TopicDCPSSubscription = "DCPSSubscription"
	TopicDCPSPublication  = "DCPSPublication"
	TopicDCPSTopic        = "DCPSTopic"
)

// Kind reports the entity kind byte of this id.
func (e EntityID) Kind() byte { return e[3] }

// IsBuiltin reports whether this entity id names a built-in (discovery)
// endpoint rather than a user endpoint.
func (e EntityID) IsBuiltin() bool { return e.Kind()&0xc0 == 0xc0 }

// HasKey reports whether the entity kind carries key semantics.
func (e EntityID) HasKey() bool {
	switch e.Kind() {
	case KindWriterWithKey, KindReaderWithKey, KindBuiltinWriterWithKey, KindBuiltinReaderWithKey:
		return true
	default:
		return false
	}
}

// GUID is the 16-byte identity of an RTPS entity: a 12-byte participant
// prefix followed by a 4-byte entity id.
type GUID struct {
	Prefix Prefix
	Entity EntityID
}

// New builds a GUID from a participant prefix and entity id.
func New(prefix Prefix, entity EntityID) GUID {
	return GUID{Prefix: prefix, Entity: entity}
}

// ParticipantGUID builds the GUID of the built-in participant endpoint
// for the given prefix.
func ParticipantGUID(prefix Prefix) GUID {
	return GUID{Prefix: prefix, Entity: EntityIDParticipant}
}

// Bytes returns the 16-byte wire representation.
func (g GUID) Bytes() [16]byte {
	var out [16]byte
	copy(out[:12], g.Prefix[:])
	copy(out[12:], g.Entity[:])
	return out
}

// FromBytes decodes a 16-byte wire representation into a GUID.
func FromBytes(b [16]byte) GUID {
	var g GUID
	copy(g.Prefix[:], b[:12])
	copy(g.Entity[:], b[12:])
	return g
}

// String renders the GUID as hex, grouped prefix.entity, matching the
// conventional RTPS debug representation.
func (g GUID) String() string {
	return fmt.Sprintf("%s.%s", hex.EncodeToString(g.Prefix[:]), hex.EncodeToString(g.Entity[:]))
}

// Less provides the lexicographic order used as the tie-break in
// spec.md §4.3 when two samples share an arrival instant.
func (g GUID) Less(other GUID) bool {
	b1 := g.Bytes()
	b2 := other.Bytes()
	for i := range b1 {
		if b1[i] != b2[i] {
			return b1[i] < b2[i]
		}
	}
	return false
}

// PrefixFromUint64 is a test/demo convenience that derives a
// deterministic participant prefix from two 64-bit halves, avoiding
// hand-written byte arrays in call sites that only need distinct,
// reproducible identities.
func PrefixFromUint64(hi, lo uint64) Prefix {
	var p Prefix
	binary.BigEndian.PutUint64(p[:8], hi)
	binary.BigEndian.PutUint32(p[8:], uint32(lo))
	return p
}
