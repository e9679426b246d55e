package jobs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.etcd.io/bbolt"
)

var (
	bucketIngested = []byte("ingested")
	bucketFailed   = []byte("failed")
)

// LedgerEntry records what happened to one version of a dropped file.
type LedgerEntry struct {
	Hash      string    `json:"hash"`
	Chunks    int       `json:"chunks,omitempty"`
	Retries   int       `json:"retries,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ledger remembers which files were ingested, keyed by source and content
// hash, so restarts do not ingest the same bytes twice.
type Ledger struct {
	db *bbolt.DB
}

func OpenLedger(path string) (*Ledger, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketIngested, bucketFailed} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// ContentHash is the ledger key for a file's bytes.
func ContentHash(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// Ingested reports whether source was ingested with exactly this hash.
func (l *Ledger) Ingested(source, hash string) (bool, error) {
	e, ok, err := l.get(bucketIngested, source)
	if err != nil || !ok {
		return false, err
	}
	return e.Hash == hash, nil
}

// Failure returns the failure record of source at hash, if any.
func (l *Ledger) Failure(source, hash string) (LedgerEntry, bool, error) {
	e, ok, err := l.get(bucketFailed, source)
	if err != nil || !ok || e.Hash != hash {
		return LedgerEntry{}, false, err
	}
	return e, true, nil
}

// MarkIngested records success and clears any failure record.
func (l *Ledger) MarkIngested(source, hash string, chunks int) error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(LedgerEntry{Hash: hash, Chunks: chunks, UpdatedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketFailed).Delete([]byte(source)); err != nil {
			return err
		}
		return tx.Bucket(bucketIngested).Put([]byte(source), data)
	})
}

// MarkFailed increments the retry count of source at hash and returns it.
// A new hash starts counting from one again.
func (l *Ledger) MarkFailed(source, hash string, cause error) (int, error) {
	var retries int
	err := l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFailed)
		var e LedgerEntry
		if data := b.Get([]byte(source)); data != nil {
			if err := json.Unmarshal(data, &e); err != nil {
				return err
			}
		}
		if e.Hash != hash {
			e = LedgerEntry{Hash: hash}
		}
		e.Retries++
		e.LastError = cause.Error()
		e.UpdatedAt = time.Now().UTC()
		retries = e.Retries

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put([]byte(source), data)
	})
	return retries, err
}

// Entries lists ingested sources.
func (l *Ledger) Entries() (map[string]LedgerEntry, error) {
	out := make(map[string]LedgerEntry)
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIngested).ForEach(func(k, v []byte) error {
			var e LedgerEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out[string(k)] = e
			return nil
		})
	})
	return out, err
}

// Reset forgets everything, e.g. after the store was cleared.
func (l *Ledger) Reset() error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketIngested, bucketFailed} {
			if err := tx.DeleteBucket(b); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Ledger) get(bucket []byte, source string) (LedgerEntry, bool, error) {
	var (
		e  LedgerEntry
		ok bool
	)
	err := l.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(source))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &e)
	})
	return e, ok, err
}
