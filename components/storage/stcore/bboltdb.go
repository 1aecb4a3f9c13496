package stcore

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/open-control-systems/device-poller/components/status"
)

// NewBboltDB opens the bbolt database.
//
// Parameters:
//   - dbPath - database file path, if it doesn't exist then it will be created automatically.
//
// References:
//   - https://github.com/etcd-io/bbolt
func NewBboltDB(dbPath string, opts *bbolt.Options) (*bbolt.DB, error) {
	db, err := bbolt.Open(dbPath, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("stcore: failed to open bbolt: path=%s: %w", dbPath, err)
	}

	return db, nil
}

// BboltDBBucket operates on a single bucket of the bbolt database.
//
// Remarks:
//   - The database is owned by the caller, Close doesn't close it.
type BboltDBBucket struct {
	db     *bbolt.DB
	bucket []byte
}

// NewBboltDBBucket initialization.
//
// Parameters:
//   - db - bbolt database instance.
//   - bucket - bbolt bucket, created on first write.
func NewBboltDBBucket(db *bbolt.DB, bucket string) *BboltDBBucket {
	return &BboltDBBucket{
		db:     db,
		bucket: []byte(bucket),
	}
}

// Read reads a blob of data from the bucket.
func (b *BboltDBBucket) Read(key string) (Blob, error) {
	var blob Blob

	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return status.StatusNoData
		}

		data := bucket.Get([]byte(key))
		if data == nil {
			return status.StatusNoData
		}

		// bbolt memory is valid only during the transaction.
		blob.Data = append([]byte(nil), data...)

		return nil
	})
	if err != nil {
		return Blob{}, err
	}

	return blob, nil
}

// Write writes a blob to the bucket.
func (b *BboltDBBucket) Write(key string, blob Blob) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(b.bucket)
		if err != nil {
			return err
		}

		return bucket.Put([]byte(key), blob.Data)
	})
}

// Remove removes a blob from the bucket.
func (b *BboltDBBucket) Remove(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return nil
		}

		return bucket.Delete([]byte(key))
	})
}

// Replace replaces the bucket content in a single transaction.
func (b *BboltDBBucket) Replace(blobs map[string]Blob) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(b.bucket)
		if err != nil {
			return err
		}

		var stale [][]byte

		if err := bucket.ForEach(func(k, _ []byte) error {
			if _, ok := blobs[string(k)]; !ok {
				stale = append(stale, append([]byte(nil), k...))
			}

			return nil
		}); err != nil {
			return err
		}

		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}

		for key, blob := range blobs {
			if err := bucket.Put([]byte(key), blob.Data); err != nil {
				return err
			}
		}

		return nil
	})
}

// ForEach iterates over all blobs in the bucket.
func (b *BboltDBBucket) ForEach(fn func(key string, b Blob) error) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			return fn(string(k), Blob{Data: append([]byte(nil), v...)})
		})
	})
}

// Close is non-operational.
func (*BboltDBBucket) Close() error {
	return nil
}
