package discovery

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/ddsmesh/rtpscore/guid"
	"github.com/ddsmesh/rtpscore/qos"
)

var (
	participantsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dds_discovery_participants",
		Help: "Number of participant proxies currently tracked by the discovery database.",
	})
	participantEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dds_discovery_participant_evictions_total",
		Help: "Total number of participant proxies evicted for exceeding their lease.",
	})
	topicEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dds_discovery_topic_evictions_total",
		Help: "Total number of topic records evicted for exceeding their lifespan.",
	})
	matchesFormed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dds_discovery_matches_formed_total",
		Help: "Total number of reader-writer matches formed.",
	})
)

// Database is the in-memory model of remote participants, local
// publications/subscriptions, discovered topics, and the matched-proxy
// lists that drive endpoint matching (components G+H). All mutation
// goes through its exported methods; per spec.md §4.6 these are only
// ever called from the single discovery worker goroutine, but the
// internal RWMutex (mirroring the teacher's endpointsWatcher) also lets
// read-only queries (GetMatchedWriters/GetMatchedReaders) run safely
// from a DataReader/DataWriter's own goroutine concurrently.
type Database struct {
	mu sync.RWMutex

	participants map[guid.GUID]*ParticipantProxy

	localPublications  map[guid.GUID]LocalPublication
	localSubscriptions map[guid.GUID]LocalSubscription

	matchedReadersByWriter map[guid.GUID][]ReaderProxy
	matchedWritersByReader map[guid.GUID][]WriterProxy

	remoteWriters map[guid.GUID]WriterProxy
	remoteReaders map[guid.GUID]ReaderProxy

	topics map[string]*TopicData

	writersUpdated bool
	readersUpdated bool

	log *log.Entry
}

// NewDatabase creates an empty discovery database.
func NewDatabase() *Database {
	return &Database{
		participants:           make(map[guid.GUID]*ParticipantProxy),
		localPublications:      make(map[guid.GUID]LocalPublication),
		localSubscriptions:     make(map[guid.GUID]LocalSubscription),
		matchedReadersByWriter: make(map[guid.GUID][]ReaderProxy),
		matchedWritersByReader: make(map[guid.GUID][]WriterProxy),
		remoteWriters:          make(map[guid.GUID]WriterProxy),
		remoteReaders:          make(map[guid.GUID]ReaderProxy),
		topics:                 make(map[string]*TopicData),
		log:                    log.WithField("component", "discovery-db"),
	}
}

// UpdateParticipant upserts a participant proxy, resetting its
// last-heard instant to now. It returns false, leaving state
// unchanged, if data carries no participant GUID (the zero GUID is
// used as the "absent" sentinel, since a real RTPS prefix is never
// all-zero in practice).
func (d *Database) UpdateParticipant(data ParticipantProxy, now time.Time) bool {
	if data.GUID == (guid.GUID{}) {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	data.LastHeard = now
	d.participants[data.GUID] = &data
	participantsGauge.Set(float64(len(d.participants)))
	d.log.WithField("participant", data.GUID.String()).Debug("updated participant proxy")
	return true
}

// ParticipantCleanup evicts every participant proxy whose lease has
// elapsed relative to now. It is idempotent: a second call with no
// intervening updates evicts nothing further (invariant 6).
func (d *Database) ParticipantCleanup(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	expired := make(map[guid.GUID]bool)
	for id, p := range d.participants {
		if p.expired(now) {
			expired[id] = true
			delete(d.participants, id)
			participantEvictions.Inc()
			d.log.WithField("participant", id.String()).Info("evicting expired participant")
		}
	}
	if len(expired) == 0 {
		return
	}

	for id, rp := range d.remoteReaders {
		if expired[rp.ParticipantGUID] {
			delete(d.remoteReaders, id)
		}
	}
	for id, wp := range d.remoteWriters {
		if expired[wp.ParticipantGUID] {
			delete(d.remoteWriters, id)
		}
	}
	for writer, readers := range d.matchedReadersByWriter {
		d.matchedReadersByWriter[writer] = filterReaders(readers, expired)
	}
	for reader, writers := range d.matchedWritersByReader {
		d.matchedWritersByReader[reader] = filterWriters(writers, expired)
	}
	participantsGauge.Set(float64(len(d.participants)))
}

func filterReaders(in []ReaderProxy, expiredParticipant map[guid.GUID]bool) []ReaderProxy {
	out := in[:0]
	for _, r := range in {
		if !expiredParticipant[r.ParticipantGUID] {
			out = append(out, r)
		}
	}
	return out
}

func filterWriters(in []WriterProxy, expiredParticipant map[guid.GUID]bool) []WriterProxy {
	out := in[:0]
	for _, w := range in {
		if !expiredParticipant[w.ParticipantGUID] {
			out = append(out, w)
		}
	}
	return out
}

// GetParticipants returns a snapshot of currently tracked participant
// proxies.
func (d *Database) GetParticipants() []ParticipantProxy {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]ParticipantProxy, 0, len(d.participants))
	for _, p := range d.participants {
		out = append(out, *p)
	}
	return out
}

func (d *Database) participantLive(id guid.GUID, now time.Time) bool {
	p, ok := d.participants[id]
	if !ok {
		return false
	}
	return !p.expired(now)
}

// touchTopic upserts a topic record's last-updated instant without
// changing its referenced-by-local-endpoint status; topic_cleanup
// decides eviction from the local publication/subscription indexes
// directly, not from a reference count kept here.
func (d *Database) touchTopic(name, typeName string, lifespan time.Duration, now time.Time) {
	t, ok := d.topics[name]
	if !ok {
		t = &TopicData{Name: name, TypeName: typeName, Lifespan: lifespan}
		d.topics[name] = t
	}
	t.LastUpdated = now
	if lifespan > 0 {
		t.Lifespan = lifespan
	}
}

// TopicCleanup evicts topic records whose lifespan has elapsed and
// that are not referenced by any local publication or subscription;
// locally referenced topics are immortal regardless of age (invariant
// 7).
func (d *Database) TopicCleanup(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	referenced := make(map[string]bool)
	for _, p := range d.localPublications {
		referenced[p.Topic] = true
	}
	for _, s := range d.localSubscriptions {
		referenced[s.Topic] = true
	}

	for name, t := range d.topics {
		if referenced[name] {
			continue
		}
		if t.expired(now) {
			delete(d.topics, name)
			topicEvictions.Inc()
			d.log.WithField("topic", name).Info("evicting expired topic record")
		}
	}
}

// UpdateLocalTopicWriter upserts a local writer's record, sets the
// writers-updated flag so the discovery worker knows to advertise it,
// and matches it against every already-discovered remote reader on its
// topic (SEDP data can arrive before or after the local endpoint is
// created). It returns the GUIDs of remote readers matched. Returns
// nil with no state change if data carries a zero GUID or empty topic
// name.
func (d *Database) UpdateLocalTopicWriter(data LocalPublication, now time.Time) []guid.GUID {
	if data.GUID == (guid.GUID{}) || data.Topic == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.localPublications[data.GUID] = data
	d.touchTopic(data.Topic, data.TypeName, data.Qos.Lifespan, now)
	d.writersUpdated = true

	var matched []guid.GUID
	for _, rp := range d.remoteReaders {
		if rp.Topic != data.Topic || !d.participantLive(rp.ParticipantGUID, now) {
			continue
		}
		if !match(data.TypeName, data.Qos, rp.TypeName, rp.Qos, false) {
			continue
		}
		d.upsertReaderProxy(data.GUID, rp)
		matchesFormed.Inc()
		matched = append(matched, rp.GUID)
	}
	return matched
}

// UpdateLocalTopicReader is the symmetric operation for local readers,
// returning the GUIDs of remote writers matched.
func (d *Database) UpdateLocalTopicReader(data LocalSubscription, now time.Time) []guid.GUID {
	if data.GUID == (guid.GUID{}) || data.Topic == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.localSubscriptions[data.GUID] = data
	d.touchTopic(data.Topic, data.TypeName, data.Qos.Lifespan, now)
	d.readersUpdated = true

	var matched []guid.GUID
	for _, wp := range d.remoteWriters {
		if wp.Topic != data.Topic || !d.participantLive(wp.ParticipantGUID, now) {
			continue
		}
		if !match(data.TypeName, data.Qos, wp.TypeName, wp.Qos, true) {
			continue
		}
		d.upsertWriterProxy(data.GUID, wp)
		matchesFormed.Inc()
		matched = append(matched, wp.GUID)
	}
	return matched
}

// RemoveLocalWriter drops a local writer's record and its matched-reader
// list.
func (d *Database) RemoveLocalWriter(id guid.GUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.localPublications, id)
	delete(d.matchedReadersByWriter, id)
}

// RemoveLocalReader drops a local reader's record and its matched-writer
// list.
func (d *Database) RemoveLocalReader(id guid.GUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.localSubscriptions, id)
	delete(d.matchedWritersByReader, id)
}

// WritersUpdated reports and clears the writers-updated flag.
func (d *Database) WritersUpdated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.writersUpdated
	d.writersUpdated = false
	return v
}

// ReadersUpdated reports and clears the readers-updated flag.
func (d *Database) ReadersUpdated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.readersUpdated
	d.readersUpdated = false
	return v
}

// Match reports whether a remote endpoint and a local endpoint on the
// same topic are QoS-compatible, per spec.md §4.5's match predicate:
// topic name equality (checked by the caller, which only considers
// same-topic pairs), type name equality, and QoS compatibility.
func match(localTypeName string, localQos qos.Policies, remoteTypeName string, remoteQos qos.Policies, localIsReader bool) bool {
	if localTypeName != remoteTypeName {
		return false
	}
	if localIsReader {
		return qos.CompatibleRequestedOffered(localQos, remoteQos)
	}
	return qos.CompatibleRequestedOffered(remoteQos, localQos)
}

// UpdatePublication matches a discovered remote writer against every
// local subscription sharing its topic name; for each compatible match
// whose participant is live, it inserts (or replaces, by writer GUID)
// the proxy in that reader's matched-writer list. It returns the GUIDs
// of local readers newly or re-matched, so the worker can raise a
// subscription-matched status event on their streams.
func (d *Database) UpdatePublication(data WriterProxy, now time.Time) []guid.GUID {
	if data.GUID == (guid.GUID{}) || data.Topic == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.remoteWriters[data.GUID] = data

	if !d.participantLive(data.ParticipantGUID, now) {
		return nil
	}

	var matched []guid.GUID
	for _, sub := range d.localSubscriptions {
		if sub.Topic != data.Topic {
			continue
		}
		if !match(sub.TypeName, sub.Qos, data.TypeName, data.Qos, true) {
			continue
		}
		d.upsertWriterProxy(sub.GUID, data)
		matchesFormed.Inc()
		matched = append(matched, sub.GUID)
	}
	return matched
}

// UpdateSubscription is the symmetric operation for a discovered
// remote reader against local publications, returning the GUIDs of
// local writers newly or re-matched.
func (d *Database) UpdateSubscription(data ReaderProxy, now time.Time) []guid.GUID {
	if data.GUID == (guid.GUID{}) || data.Topic == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.remoteReaders[data.GUID] = data

	if !d.participantLive(data.ParticipantGUID, now) {
		return nil
	}

	var matched []guid.GUID
	for _, pub := range d.localPublications {
		if pub.Topic != data.Topic {
			continue
		}
		if !match(pub.TypeName, pub.Qos, data.TypeName, data.Qos, false) {
			continue
		}
		d.upsertReaderProxy(pub.GUID, data)
		matchesFormed.Inc()
		matched = append(matched, pub.GUID)
	}
	return matched
}

func (d *Database) upsertWriterProxy(readerGUID guid.GUID, proxy WriterProxy) {
	list := d.matchedWritersByReader[readerGUID]
	for i, existing := range list {
		if existing.GUID == proxy.GUID {
			list[i] = proxy
			return
		}
	}
	d.matchedWritersByReader[readerGUID] = append(list, proxy)
}

func (d *Database) upsertReaderProxy(writerGUID guid.GUID, proxy ReaderProxy) {
	list := d.matchedReadersByWriter[writerGUID]
	for i, existing := range list {
		if existing.GUID == proxy.GUID {
			list[i] = proxy
			return
		}
	}
	d.matchedReadersByWriter[writerGUID] = append(list, proxy)
}

// GetMatchedReaders returns the matched-reader-proxy list for a local
// writer. Per spec.md §9's design note, this is a real lookup, not the
// trivially-empty placeholder the original source left in place.
func (d *Database) GetMatchedReaders(writerGUID guid.GUID) []ReaderProxy {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ReaderProxy, len(d.matchedReadersByWriter[writerGUID]))
	copy(out, d.matchedReadersByWriter[writerGUID])
	return out
}

// GetMatchedWriters returns the matched-writer-proxy list for a local
// reader (spec.md §9 "get_matched_publications").
func (d *Database) GetMatchedWriters(readerGUID guid.GUID) []WriterProxy {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]WriterProxy, len(d.matchedWritersByReader[readerGUID]))
	copy(out, d.matchedWritersByReader[readerGUID])
	return out
}

// InitializeParticipantReaderProxy seeds the matched-reader list of a
// local built-in SPDP writer with a synthetic reader proxy targeting
// the multicast discovery port, so a new participant can announce
// itself to peers before any real SEDP exchange has happened
// (spec.md §4.5).
func (d *Database) InitializeParticipantReaderProxy(localWriter guid.GUID, multicastAddr string, port int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	seed := ReaderProxy{
		GUID:              guid.New(guid.Prefix{}, guid.EntityIDSPDPBuiltinReader),
		Topic:             guid.TopicDCPSParticipant,
		TypeName:          "SPDPDiscoveredParticipantData",
		MulticastLocators: []string{formatLocator(multicastAddr, port)},
	}
	d.matchedReadersByWriter[localWriter] = append(d.matchedReadersByWriter[localWriter], seed)
}

func formatLocator(addr string, port int) string {
	if addr == "" {
		return ""
	}
	return addr + ":" + strconv.Itoa(port)
}
