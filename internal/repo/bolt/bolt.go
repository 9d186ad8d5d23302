// Package bolt is an embedded repo.Store on top of bbolt. Records are JSON
// values keyed by ID; results are keyed by recording time so range scans are
// cursor seeks.
package bolt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/hamed0406/infrawatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

var (
	assetsBucket     = []byte("assets")
	assetNamesBucket = []byte("asset_names")
	checksBucket     = []byte("checks")
	checkNamesBucket = []byte("check_names")
	resultsBucket    = []byte("results")
	alertsBucket     = []byte("alerts")
	openAlertsBucket = []byte("open_alerts")
)

type Store struct {
	db  *bbolt.DB
	log *zap.Logger
}

func Open(path string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{assetsBucket, assetNamesBucket, checksBucket, checkNamesBucket, resultsBucket, alertsBucket, openAlertsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func get[T any](b *bbolt.Bucket, key []byte) (*T, error) {
	v := b.Get(key)
	if v == nil {
		return nil, repo.ErrNotFound
	}
	var out T
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &out, nil
}

func put(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Put(key, data)
}

// resultKey orders results by time, then insertion sequence.
func resultKey(at time.Time, seq uint64) []byte {
	k := make([]byte, 16)
	binary.BigEndian.PutUint64(k[:8], uint64(at.UnixNano()))
	binary.BigEndian.PutUint64(k[8:], seq)
	return k
}

func timePrefix(at time.Time) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(at.UnixNano()))
	return k
}

func checkNameKey(assetID, name string) []byte {
	return []byte(assetID + "\x00" + name)
}
