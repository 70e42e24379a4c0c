// Command ddscore-demo wires the cache, sample-state engine, discovery
// database, and DataReader into one process, standing in for the RTPS
// transport and protocol workers that spec.md treats as external
// collaborators. It injects synthetic change records the way a
// protocol worker would after decoding a datagram, and periodically
// drains them through a DataReader the way an application would.
//
// Flag/admin-server shape follows the teacher's
// controller/cmd/destination/main.go: a flag.FlagSet configured by
// flagsutil, an admin.NewServer metrics endpoint, and a blocking run
// until interrupted.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"github.com/ddsmesh/rtpscore/admin"
	"github.com/ddsmesh/rtpscore/change"
	"github.com/ddsmesh/rtpscore/ddscache"
	"github.com/ddsmesh/rtpscore/discovery"
	"github.com/ddsmesh/rtpscore/guid"
	"github.com/ddsmesh/rtpscore/history"
	"github.com/ddsmesh/rtpscore/internal/flagsutil"
	"github.com/ddsmesh/rtpscore/qos"
	"github.com/ddsmesh/rtpscore/reader"
	"github.com/ddsmesh/rtpscore/rtpstime"
)

// telemetrySample is the demo's one data type: an integer key and a
// string payload, matching the (a int, b string) fixture spec.md §8's
// scenarios use.
type telemetrySample struct {
	A int
	B string
}

// cdrLiteAdapter is a minimal stand-in codec: 4 bytes big-endian A,
// then the raw bytes of B. Real CDR/PL-CDR encoding is out of scope of
// this core per spec.md §1; an application supplies whatever adapter
// its IDL compiler generates.
type cdrLiteAdapter struct{}

func (cdrLiteAdapter) SupportedEncodings() []change.RepresentationID {
	return []change.RepresentationID{change.CDRLittleEndian}
}

func (cdrLiteAdapter) FromBytes(data []byte, _ change.RepresentationID) (telemetrySample, error) {
	if len(data) < 4 {
		return telemetrySample{}, errors.New("ddscore-demo: short telemetry payload")
	}
	return telemetrySample{A: int(binary.BigEndian.Uint32(data[:4])), B: string(data[4:])}, nil
}

func (cdrLiteAdapter) KeyFromBytes(data []byte, _ change.RepresentationID) (int, error) {
	if len(data) < 4 {
		return 0, errors.New("ddscore-demo: short telemetry key")
	}
	return int(binary.BigEndian.Uint32(data[:4])), nil
}

func encodeTelemetry(a int, b string) []byte {
	buf := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(buf[:4], uint32(a))
	copy(buf[4:], b)
	return buf
}

// keyHashOf derives a topic-cache instance hash from the demo's
// integer key. Real RTPS implementations compute this via the type's
// MD5 key hash algorithm; the demo only needs distinct hashes per key.
func keyHashOf(key int) change.KeyHash {
	var h change.KeyHash
	binary.BigEndian.PutUint32(h[:4], uint32(key))
	return h
}

// newParticipantPrefix mints a participant prefix from a random UUID
// rather than a hand-written byte array, matching SPEC_FULL.md's
// DOMAIN STACK note that google/uuid synthesizes demo/test GUIDs.
func newParticipantPrefix() guid.Prefix {
	u := uuid.New()
	var p guid.Prefix
	copy(p[:], u[:12])
	return p
}

func main() {
	cmd := flag.NewFlagSet("ddscore-demo", flag.ExitOnError)
	metricsAddr := cmd.String("metrics-addr", ":9998", "address to serve /metrics, /ping, /ready on")
	topic := cmd.String("topic", "Telemetry", "demo topic name")
	participantName := cmd.String("participant-name", "ddscore-demo", "logical participant name, for logging only")
	tickInterval := cmd.Duration("tick-interval", 2*time.Second, "interval between synthetic writer injections")
	flagsutil.ConfigureAndParse(cmd, os.Args[1:])

	entry := log.WithField("component", "ddscore-demo").WithField("participant", *participantName)

	adminServer := admin.NewServer(*metricsAddr, false)
	go func() {
		if err := adminServer.ListenAndServe(); err != nil {
			entry.WithError(err).Info("admin server stopped")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := discovery.NewDatabase()
	cmds := discovery.NewCommandChannel()
	worker := discovery.NewWorker(db, cmds)
	go worker.Run(ctx)

	participantPrefix := newParticipantPrefix()
	participantGUID := guid.ParticipantGUID(participantPrefix)
	now := time.Now()
	if err := cmds.UpdateParticipant(discovery.ParticipantProxy{
		GUID:          participantGUID,
		Qos:           qos.Default(),
		LeaseDuration: 30 * time.Second,
	}, now); err != nil {
		entry.WithError(err).Fatal("failed to register participant")
	}

	source := &rtpstime.Source{}
	cache := ddscache.New(source)
	policies := qos.Default()

	readerGUID := guid.New(participantPrefix, guid.EntityID{0, 0, 1, guid.KindReaderWithKey})
	dr, err := reader.New[int, telemetrySample](
		readerGUID, participantGUID,
		*topic, "TelemetrySample",
		policies,
		cache, cdrLiteAdapter{}, cdrLiteAdapter{},
		cmds, db, worker,
	)
	if err != nil {
		entry.WithError(err).Fatal("failed to create reader")
	}
	defer dr.Close()

	// seenWriters dedupes the "new synthetic writer" log line per
	// writer GUID for a few ticks, exercising go-cache's TTL/janitor
	// idiom (carried from the teacher's ephemeral-lookup use of the
	// same package) rather than a hand-rolled map+timestamp.
	seenWriters := gocache.New(5*tickIntervalOr(*tickInterval), 10*time.Second)

	writerPrefix := newParticipantPrefix()
	writerGUID := guid.New(writerPrefix, guid.EntityID{0, 0, 1, guid.KindWriterWithKey})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*tickInterval)
	defer ticker.Stop()

	seq := rtpstime.SequenceNumber(0)
	key := 1

	entry.Info("ddscore-demo running, injecting synthetic telemetry samples")

	for {
		select {
		case <-stop:
			entry.Info("shutting down")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			adminServer.Shutdown(shutdownCtx)
			return

		case <-ticker.C:
			if _, found := seenWriters.Get(writerGUID.String()); !found {
				seenWriters.SetDefault(writerGUID.String(), true)
				entry.WithField("writer", writerGUID.String()).Info("synthetic writer producing telemetry")
			}

			payload := change.SerializedPayload{Representation: change.CDRLittleEndian, Bytes: encodeTelemetry(key, fmt.Sprintf("sample-%d", seq))}
			c := change.NewData(writerGUID, seq, 0, payload).WithInstanceID(keyHashOf(key))
			cache.AddChange(*topic, policies, c)
			seq++
			key = (key % 3) + 1

			samples := dr.Take(10, history.NotReadCondition())
			for _, s := range samples {
				entry.WithFields(log.Fields{
					"key":   s.Key,
					"value": s.Value.B,
				}).Info("delivered sample")
			}
			for drained := false; !drained; {
				select {
				case evt := <-dr.Status().Events():
					entry.WithField("kind", evt.Kind.String()).Info("status event")
				default:
					drained = true
				}
			}
		}
	}
}

func tickIntervalOr(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return d
}
