package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	valuesBucket = []byte("values")
	setsBucket   = []byte("sets")
)

// BBoltBackend stores values in a "values" bucket and each set as a nested
// bucket of "sets" whose keys are the members.
type BBoltBackend struct {
	db *bolt.DB
}

func NewBBoltBackend(path string) (*BBoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open bbolt store at %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(valuesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(setsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not ensure root buckets exist: %w", err)
	}
	return &BBoltBackend{db: db}, nil
}

func (b *BBoltBackend) Close() error {
	return b.db.Close()
}

func boltSet(tx *bolt.Tx, key string, value []byte) error {
	return tx.Bucket(valuesBucket).Put([]byte(key), value)
}

func boltAdd(tx *bolt.Tx, key, member string) error {
	set, err := tx.Bucket(setsBucket).CreateBucketIfNotExists([]byte(key))
	if err != nil {
		return err
	}
	return set.Put([]byte(member), []byte{})
}

func (b *BBoltBackend) Set(_ context.Context, key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return boltSet(tx, key, value)
	})
}

func (b *BBoltBackend) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(valuesBucket).Get([]byte(key))
		if v == nil {
			return ErrNil
		}
		// Values are only valid for the life of the transaction.
		out = copyBytes(v)
		return nil
	})
	return out, err
}

func (b *BBoltBackend) MGet(_ context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(valuesBucket)
		for i, k := range keys {
			out[i] = copyBytes(bucket.Get([]byte(k)))
		}
		return nil
	})
	return out, err
}

func (b *BBoltBackend) SAdd(_ context.Context, key, member string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return boltAdd(tx, key, member)
	})
}

func (b *BBoltBackend) SMembers(_ context.Context, key string) ([]string, error) {
	members := []string{}
	err := b.db.View(func(tx *bolt.Tx) error {
		set := tx.Bucket(setsBucket).Bucket([]byte(key))
		if set == nil {
			return nil
		}
		return set.ForEach(func(k, _ []byte) error {
			members = append(members, string(k))
			return nil
		})
	})
	return members, err
}

// SetAndAdd writes the value and the set member in one update transaction.
func (b *BBoltBackend) SetAndAdd(_ context.Context, key string, value []byte, set, member string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := boltSet(tx, key, value); err != nil {
			return err
		}
		return boltAdd(tx, set, member)
	})
}
