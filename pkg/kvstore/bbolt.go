package kvstore

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/cuemby/collabcore/pkg/cerrors"
	bolt "go.etcd.io/bbolt"
)

var recordsBucket = []byte("records")

// BoltStore implements Store on top of a single bbolt database file, with
// every key of every (tenant, object) sharing one bucket — the ordering
// guarantees in pkg/keys make that safe and is what lets NextBackEntry
// reverse-seek across the whole bucket cheaply.
type BoltStore struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt-backed store at
// <dataDir>/collabcore.db.
func Open(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "collabcore.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindBackend, err, "open bbolt database")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, cerrors.Wrap(cerrors.KindBackend, err, "create records bucket")
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return cerrors.Wrap(cerrors.KindBackend, err, "close bbolt database")
	}
	return nil
}

func (s *BoltStore) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		v := b.Get(key)
		if v != nil {
			// v is only valid for the lifetime of the transaction; copy it out.
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, cerrors.Wrap(cerrors.KindBackend, err, "get key")
	}
	return value, value != nil, nil
}

func (s *BoltStore) Insert(_ context.Context, key, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put(key, value)
	})
	if err != nil {
		return cerrors.Wrap(cerrors.KindBackend, err, "insert key")
	}
	return nil
}

func (s *BoltStore) Remove(_ context.Context, key []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Delete(key)
	})
	if err != nil {
		return cerrors.Wrap(cerrors.KindBackend, err, "remove key")
	}
	return nil
}

func (s *BoltStore) RemoveRange(_ context.Context, from, to []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek(from); k != nil && bytes.Compare(k, to) < 0; k, _ = c.Next() {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return cerrors.Wrap(cerrors.KindBackend, err, "remove key range")
	}
	return nil
}

func (s *BoltStore) Range(_ context.Context, from, to []byte, fn func(Entry) error) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()
		for k, v := c.Seek(from); k != nil && bytes.Compare(k, to) < 0; k, v = c.Next() {
			entry := Entry{
				Key:   append([]byte(nil), k...),
				Value: append([]byte(nil), v...),
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("range scan: %w", err)
	}
	return nil
}

func (s *BoltStore) NextBackEntry(_ context.Context, probe []byte) (Entry, bool, error) {
	var (
		found bool
		entry Entry
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()
		k, v := c.Seek(probe)
		switch {
		case k == nil:
			// Seek ran past the end of the bucket; the predecessor of
			// probe, if any, is the last key in the bucket.
			k, v = c.Last()
		case bytes.Compare(k, probe) > 0:
			// Seek landed on the first key greater than probe; step back
			// one entry to find the predecessor.
			k, v = c.Prev()
		}
		if k == nil {
			return nil
		}
		found = true
		entry = Entry{
			Key:   append([]byte(nil), k...),
			Value: append([]byte(nil), v...),
		}
		return nil
	})
	if err != nil {
		return Entry{}, false, cerrors.Wrap(cerrors.KindBackend, err, "reverse seek")
	}
	return entry, found, nil
}
