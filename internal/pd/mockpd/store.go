package mockpd

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	bolt "go.etcd.io/bbolt"

	regionpkg "nyxstore/internal/region"
)

// ErrDirInUse is returned when another process holds the data directory.
var ErrDirInUse = errors.New("mockpd: data directory is in use")

const (
	boltFileName    = "mockpd.db"
	lockFileName    = "flock"
	regionsBucket   = "regions"
	metaBucket      = "meta"
	nextIDKey       = "next_id"
	regionKeyPrefix = "region/"
)

// regionStore persists what a Client knows across restarts.
type regionStore interface {
	Put(regionpkg.Region) error
	Delete(regionpkg.ID) error
	ForEach(func(regionpkg.Region) error) error
	LoadNextID() (uint64, error)
	SaveNextID(uint64) error
	Close() error
}

type boltStore struct {
	db   *bolt.DB
	lock *flock.Flock
}

func openBoltStore(dir string) (*boltStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("mockpd: data directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lock := flock.New(filepath.Join(dir, lockFileName))
	held, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, ErrDirInUse
	}

	db, err := bolt.Open(filepath.Join(dir, boltFileName), 0o600, &bolt.Options{Timeout: 0})
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(regionsBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		return err
	}); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return &boltStore{db: db, lock: lock}, nil
}

func regionKey(id regionpkg.ID) []byte {
	return []byte(fmt.Sprintf("%s%d", regionKeyPrefix, id))
}

func (b *boltStore) Put(region regionpkg.Region) error {
	data, err := json.Marshal(region)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(regionsBucket)).Put(regionKey(region.ID), data)
	})
}

func (b *boltStore) Delete(id regionpkg.ID) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(regionsBucket)).Delete(regionKey(id))
	})
}

func (b *boltStore) ForEach(fn func(regionpkg.Region) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(regionsBucket)).ForEach(func(_, v []byte) error {
			var region regionpkg.Region
			if err := json.Unmarshal(v, &region); err != nil {
				return err
			}
			return fn(region)
		})
	})
}

func (b *boltStore) LoadNextID() (uint64, error) {
	var id uint64
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(metaBucket)).Get([]byte(nextIDKey))
		if len(data) == 8 {
			id = binary.BigEndian.Uint64(data)
		}
		return nil
	})
	return id, err
}

func (b *boltStore) SaveNextID(id uint64) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], id)
		return tx.Bucket([]byte(metaBucket)).Put([]byte(nextIDKey), buf[:])
	})
}

func (b *boltStore) Close() error {
	err := b.db.Close()
	if uerr := b.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}
