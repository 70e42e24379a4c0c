// Package discovery implements the discovery database (component H),
// the matched-writer/matched-reader proxy state it maintains
// (component G), and the ordered command channel endpoints use to
// reach it (component I), per spec.md §4.5/§4.6.
//
// The indexing and locking shape is grounded on the teacher's
// controller/destination/endpoints_watcher.go (a value-keyed map
// behind one sync.RWMutex, add/update/delete handlers that look up a
// sub-object and mutate it) and controller/destination/profile_watcher.go
// (a second, independently-locked index of entries that track their
// own staleness). Lease-duration eviction and the SPDP "seed a
// synthetic reader proxy at the multicast discovery port" bootstrap are
// grounded on _examples/original_source/src/discovery/discovery_db.rs.
package discovery

import (
	"time"

	"github.com/ddsmesh/rtpscore/guid"
	"github.com/ddsmesh/rtpscore/qos"
)

// defaultLeaseDuration is used when a participant proxy arrives with no
// lease duration set, per spec.md §4.5.
const defaultLeaseDuration = 100 * time.Second

// ParticipantProxy is the local record of a remote participant:
// identity, QoS, locators, and liveness (spec.md §3).
type ParticipantProxy struct {
	GUID                  guid.GUID
	Qos                   qos.Policies
	UnicastLocators       []string
	MulticastLocators     []string
	MetaUnicastLocators   []string
	MetaMulticastLocators []string
	LeaseDuration         time.Duration
	LastHeard             time.Time
}

func (p ParticipantProxy) leaseDuration() time.Duration {
	if p.LeaseDuration <= 0 {
		return defaultLeaseDuration
	}
	return p.LeaseDuration
}

// expired reports whether now-LastHeard exceeds the proxy's lease.
func (p ParticipantProxy) expired(now time.Time) bool {
	return now.Sub(p.LastHeard) > p.leaseDuration()
}

// WriterProxy is the local record of a remote writer endpoint.
type WriterProxy struct {
	GUID              guid.GUID
	ParticipantGUID    guid.GUID
	Topic             string
	TypeName          string
	Qos               qos.Policies
	UnicastLocators   []string
	MulticastLocators []string
	ExpectsInlineQos  bool
}

// ReaderProxy is the local record of a remote reader endpoint.
type ReaderProxy struct {
	GUID              guid.GUID
	ParticipantGUID    guid.GUID
	Topic             string
	TypeName          string
	Qos               qos.Policies
	UnicastLocators   []string
	MulticastLocators []string
	ExpectsInlineQos  bool
}

// LocalPublication is a local writer's record in the discovery
// database.
type LocalPublication struct {
	GUID     guid.GUID
	Topic    string
	TypeName string
	Qos      qos.Policies
}

// LocalSubscription is a local reader's record in the discovery
// database.
type LocalSubscription struct {
	GUID     guid.GUID
	Topic    string
	TypeName string
	Qos      qos.Policies
}

// TopicData is a discovered or locally referenced topic record.
type TopicData struct {
	Name        string
	TypeName    string
	Lifespan    time.Duration
	LastUpdated time.Time
}

func (t TopicData) expired(now time.Time) bool {
	if t.Lifespan <= 0 {
		return false
	}
	return now.Sub(t.LastUpdated) > t.Lifespan
}
