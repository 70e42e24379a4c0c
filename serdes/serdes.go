// Package serdes defines the abstract serialization adapter boundary
// (component D). The core never implements CDR/PL-CDR itself; it calls
// out to an application-supplied adapter through this interface, per
// spec.md §4.2 and §9 ("polymorphism over codec").
package serdes

import (
	"bytes"
	"fmt"

	"github.com/ddsmesh/rtpscore/change"
)

// Adapter decodes wire bytes for one data type. Implementations are
// supplied by the application per topic.
type Adapter[T any] interface {
	// SupportedEncodings returns the representation identifiers this
	// adapter accepts, in preference order.
	SupportedEncodings() []change.RepresentationID

	// FromBytes decodes a fully serialized payload.
	FromBytes(data []byte, encoding change.RepresentationID) (T, error)
}

// FragmentAdapter is implemented by adapters that can decode
// fragmented data directly (e.g. a streaming CDR reader). Adapters
// that do not implement it get the default concatenate-then-decode
// behavior via FromFragments.
type FragmentAdapter[T any] interface {
	Adapter[T]
	FromFragmentBytes(chunks [][]byte, encoding change.RepresentationID) (T, error)
}

// KeyAdapter is implemented by adapters for keyed topics: it extracts
// the key value from either a full payload or a standalone key
// encoding (as used by DisposeByKey records).
type KeyAdapter[K comparable] interface {
	KeyFromBytes(data []byte, encoding change.RepresentationID) (K, error)
}

// FromFragments reassembles chunks and delegates to FromBytes, unless
// the adapter implements FragmentAdapter itself, matching spec.md
// §4.2's "default implementation concatenates then delegates".
func FromFragments[T any](a Adapter[T], chunks [][]byte, encoding change.RepresentationID) (T, error) {
	if fa, ok := a.(FragmentAdapter[T]); ok {
		return fa.FromFragmentBytes(chunks, encoding)
	}
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c)
	}
	return a.FromBytes(buf.Bytes(), encoding)
}

// SupportsEncoding reports whether encoding appears in the adapter's
// declared supported list.
func SupportsEncoding[T any](a Adapter[T], encoding change.RepresentationID) bool {
	for _, e := range a.SupportedEncodings() {
		if e == encoding {
			return true
		}
	}
	return false
}

// DecodeError carries diagnostic context for a dropped sample, per
// spec.md §4.2 ("reported as a dropped sample with diagnostic context:
// topic, type, byte dump").
type DecodeError struct {
	Topic    string
	TypeName string
	Bytes    []byte
	Err      error
}

func (e *DecodeError) Error() string {
	dump := e.Bytes
	if len(dump) > 32 {
		dump = dump[:32]
	}
	return fmt.Sprintf("serdes: decode failed for topic %q type %q (%d bytes, head=%x): %v",
		e.Topic, e.TypeName, len(e.Bytes), dump, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
