// Package output implements the kernel's observable output record sink
// (§6): a per-entity, per-tick store, one record per (tick, entity), that
// the kernel writes to but never interprets. It is backed by github.com/df-mc/goleveldb, an
// embedded key-value store, keyed by tick and entity id rather than by
// chunk position.
package output

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"

	"github.com/simmobility/kernel/clock"
	"github.com/simmobility/kernel/entity"
)

// recordKind tags a key so role-defined output records and the
// kernel's own per-entity profiling records never collide even though
// both are keyed by (tick, id).
type recordKind byte

const (
	kindOutput  recordKind = 'o'
	kindProfile recordKind = 'p'
)

// Sink is the narrow interface the kernel writes FrameOutput records
// and per-entity profiling samples through. Entities themselves never
// see a Sink; only the code that drives FrameOutput (worker.Worker)
// does.
type Sink interface {
	Write(tick clock.Tick, id entity.ID, payload []byte) error
	WriteProfile(tick clock.Tick, id entity.ID, d time.Duration) error
	Close() error
}

// LevelDBSink stores one record per (tick, entity) pair, keyed by record
// kind first, so a scan within one kind yields tick-major order.
type LevelDBSink struct {
	db *leveldb.DB
}

// Open creates or reuses a LevelDB database at path for output records.
func Open(path string) (*LevelDBSink, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("output: opening %s: %w", path, err)
	}
	return &LevelDBSink{db: db}, nil
}

// Write stores payload under the key for (tick, id), overwriting any
// existing record for that pair. The kernel never decodes payload: it
// is whatever bytes the entity's FrameOutput produced.
func (s *LevelDBSink) Write(tick clock.Tick, id entity.ID, payload []byte) error {
	return s.db.Put(recordKey(kindOutput, tick, id), payload, nil)
}

// WriteProfile stores a frame-tick duration sample for (tick, id), kept
// in a separate key range from Write's role-defined records (§3S's
// frame-tick profiling: the original's ProfileBuilder.cpp per-entity
// timing, here appended to the same store instead of a separate file).
func (s *LevelDBSink) WriteProfile(tick clock.Tick, id entity.ID, d time.Duration) error {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(d.Nanoseconds()))
	return s.db.Put(recordKey(kindProfile, tick, id), payload, nil)
}

// Read returns the record stored for (tick, id), or nil with
// leveldb.ErrNotFound if no such record exists.
func (s *LevelDBSink) Read(tick clock.Tick, id entity.ID) ([]byte, error) {
	return s.db.Get(recordKey(kindOutput, tick, id), nil)
}

// ForEachInTick calls fn for every output record written at tick, in
// ascending entity id order, stopping early if fn returns false.
// Profiling records written via WriteProfile are not visited.
func (s *LevelDBSink) ForEachInTick(tick clock.Tick, fn func(id entity.ID, payload []byte) bool) error {
	prefix := tickPrefix(kindOutput, tick)
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	for ok := iter.Seek(prefix); ok; ok = iter.Next() {
		key := iter.Key()
		if len(key) < 9 || string(key[:9]) != string(prefix) {
			break
		}
		id := entity.ID(int64(binary.BigEndian.Uint64(key[9:17])))
		payload := append([]byte(nil), iter.Value()...)
		if !fn(id, payload) {
			break
		}
	}
	return iter.Error()
}

// Close flushes and closes the underlying database.
func (s *LevelDBSink) Close() error {
	return s.db.Close()
}

// recordKey lays out (kind, tick, id) big-endian so iteration order
// matches numeric tick then numeric id order within each kind.
func recordKey(kind recordKind, tick clock.Tick, id entity.ID) []byte {
	key := make([]byte, 17)
	key[0] = byte(kind)
	binary.BigEndian.PutUint64(key[1:9], uint64(tick))
	binary.BigEndian.PutUint64(key[9:17], uint64(id))
	return key
}

func tickPrefix(kind recordKind, tick clock.Tick) []byte {
	key := make([]byte, 9)
	key[0] = byte(kind)
	binary.BigEndian.PutUint64(key[1:9], uint64(tick))
	return key
}
