// Package qos models the DDS QosPolicies record and the
// requested-vs-offered compatibility relation used to match a local
// reader against a remote writer (spec.md §3, §6).
package qos

import "time"

// Reliability orders best-effort below reliable, so a requested
// reliability is compatible with an offered reliability of equal or
// greater strength.
type Reliability int

const (
	BestEffort Reliability = iota
	Reliable
)

// Durability orders volatile below transient-local below transient
// below persistent.
type Durability int

const (
	Volatile Durability = iota
	TransientLocal
	Transient
	Persistent
)

// History selects retention policy for a topic cache.
type History int

const (
	KeepLast History = iota
	KeepAll
)

// OwnershipKind selects single- or shared-ownership semantics.
type OwnershipKind int

const (
	SharedOwnership OwnershipKind = iota
	ExclusiveOwnership
)

// LivelinessKind selects how liveliness is asserted.
type LivelinessKind int

const (
	Automatic LivelinessKind = iota
	ManualByParticipant
	ManualByTopic
)

// Policies is the full per-endpoint QoS record. Zero-value Policies
// corresponds to the DDS "volatile, best-effort, keep-last-1" defaults
// used when a caller does not override qos at create_datareader/writer
// time.
type Policies struct {
	Reliability   Reliability
	Durability    Durability
	History       History
	HistoryDepth  int
	Deadline      time.Duration // 0 means infinite
	LatencyBudget time.Duration
	Liveliness    LivelinessKind
	LeaseDuration time.Duration
	Ownership     OwnershipKind
	Lifespan      time.Duration // 0 means infinite
	ResourceLimits ResourceLimits
}

// ResourceLimits bounds cache growth per spec.md §3 "resource limits".
type ResourceLimits struct {
	MaxSamples         int // 0 means unlimited
	MaxInstances       int
	MaxSamplesPerInstance int
}

// Default returns the DDS default QoS: volatile, best-effort,
// keep-last depth 1, automatic liveliness with a 100 second lease
// (spec.md §4.5 default lease when unspecified).
func Default() Policies {
	return Policies{
		Reliability:   BestEffort,
		Durability:    Volatile,
		History:       KeepLast,
		HistoryDepth:  1,
		Liveliness:    Automatic,
		LeaseDuration: 100 * time.Second,
		Ownership:     SharedOwnership,
	}
}

// CompatibleRequestedOffered reports whether a reader requesting
// `requested` QoS may match a writer offering `offered` QoS, per the
// "requested <= offered" relation of spec.md §6: reliability,
// durability, ownership kind, liveliness kind, and deadline must all be
// satisfiable by the offer.
func CompatibleRequestedOffered(requested, offered Policies) bool {
	if requested.Reliability == Reliable && offered.Reliability != Reliable {
		return false
	}
	if durabilityRank(requested.Durability) > durabilityRank(offered.Durability) {
		return false
	}
	if requested.Ownership != offered.Ownership {
		return false
	}
	if requested.Liveliness != offered.Liveliness {
		return false
	}
	// Reader deadline must be >= writer deadline (spec.md §6): a reader
	// that demands tighter updates than the writer can promise is
	// incompatible. Zero means infinite (no requirement).
	if requested.Deadline != 0 {
		if offered.Deadline == 0 || requested.Deadline < offered.Deadline {
			return false
		}
	}
	return true
}

func durabilityRank(d Durability) int {
	switch d {
	case Volatile:
		return 0
	case TransientLocal:
		return 1
	case Transient:
		return 2
	case Persistent:
		return 3
	default:
		return 0
	}
}
