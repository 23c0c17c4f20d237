// Package archive provides the optional durable backing of the CDC journal:
// every event is written to BadgerDB keyed by its big-endian event id, so
// the on-disk layout is exactly an eventId-indexed append-only log. The
// archive serves replay beyond the in-memory ring's retention; it is never
// on the mutation path.
package archive

import (
	"encoding/binary"
	"encoding/json"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	domainevents "codegraph-backend/internal/domain/events"
	"codegraph-backend/internal/errors"
)

const keyPrefix = "evt:"

// Archive is an eventId-indexed Badger store of CDC events.
type Archive struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens (or creates) the archive at path.
func Open(path string, logger *zap.Logger) (*Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "open event archive")
	}
	return &Archive{db: db, logger: logger}, nil
}

// OpenInMemory opens a non-persistent archive, used by tests.
func OpenInMemory(logger *zap.Logger) (*Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "open in-memory event archive")
	}
	return &Archive{db: db, logger: logger}, nil
}

func eventKey(id uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], id)
	return key
}

// Write persists one event. Events arrive in id order from the async tap;
// a write failure is the caller's to count, the journal remains the source
// for live consumers.
func (a *Archive) Write(evt domainevents.ChangeEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "marshal event")
	}
	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(evt.EventID), data)
	})
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "archive event")
	}
	return nil
}

// Replay invokes fn for every archived event with id > fromID, in id order.
// fn returning an error stops the scan and propagates.
func (a *Archive) Replay(fromID uint64, fn func(domainevents.ChangeEvent) error) error {
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(eventKey(fromID + 1)); it.Valid(); it.Next() {
			var evt domainevents.ChangeEvent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &evt)
			}); err != nil {
				return err
			}
			if err := fn(evt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "replay archive")
	}
	return nil
}

// LastID returns the highest archived event id, or 0 when empty.
func (a *Archive) LastID() (uint64, error) {
	var last uint64
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the prefix range, then step back to the last key.
		it.Seek(append([]byte(keyPrefix), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff))
		if it.Valid() {
			key := it.Item().Key()
			last = binary.BigEndian.Uint64(key[len(keyPrefix):])
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, errors.KindInternal, "read archive tail")
	}
	return last, nil
}

// Close flushes and closes the underlying store.
func (a *Archive) Close() error {
	return a.db.Close()
}
