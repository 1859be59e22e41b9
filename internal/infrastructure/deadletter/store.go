package deadletter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const defaultBucket = "deadletters"

// Store keeps undecodable envelopes in BoltDB so operators can inspect them
// after the subscriber has moved on.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

// Open initializes the BoltDB file and ensures the bucket exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open dead-letter store: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(defaultBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		bucket: []byte(defaultBucket),
	}, nil
}

// Put records a raw payload together with the decode failure.
func (s *Store) Put(channel string, payload []byte, cause error) error {
	letter := Letter{
		Channel: channel,
		Payload: string(payload),
	}
	if cause != nil {
		letter.Error = cause.Error()
	}
	return s.Add(letter)
}

// Add stores a letter under a time-ordered key.
func (s *Store) Add(letter Letter) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	letter.normalize()
	key := buildKey(letter)

	raw, err := json.Marshal(letter)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(key, raw)
	})
}

// List returns up to limit letters, oldest first.
func (s *Store) List(limit int) ([]Letter, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}

	letters := make([]Letter, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil && len(letters) < limit; k, v = c.Next() {
			var letter Letter
			if err := json.Unmarshal(v, &letter); err != nil {
				continue
			}
			letter.bucketKey = append([]byte(nil), k...)
			letters = append(letters, letter)
		}
		return nil
	})
	return letters, err
}

// Remove deletes the letter with the given id. Unknown ids are ignored.
func (s *Store) Remove(id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, bolt.ErrDatabaseNotOpen
	}
	if id == "" {
		return false, nil
	}
	removed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var letter Letter
			if err := json.Unmarshal(v, &letter); err != nil {
				continue
			}
			if letter.ID == id {
				removed = true
				return c.Delete()
			}
		}
		return nil
	})
	return removed, err
}

// Size returns the number of stored letters.
func (s *Store) Size() (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(s.bucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Cleanup removes letters recorded before olderThan and reports how many went.
func (s *Store) Cleanup(olderThan time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	cutoff := []byte(fmt.Sprintf("%020d", olderThan.UnixNano()))
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k, cutoff) < 0; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Stats exposes Bolt statistics for monitoring endpoints.
func (s *Store) Stats() bolt.Stats {
	if s == nil || s.db == nil {
		return bolt.Stats{}
	}
	return s.db.Stats()
}

func buildKey(letter Letter) []byte {
	return []byte(fmt.Sprintf("%020d_%s", letter.Timestamp.UnixNano(), letter.ID))
}
