// Package journal keeps a history of upload attempts per image in badger.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Entry describes one finished upload attempt.
type Entry struct {
	SessionID  string    `json:"session_id" yaml:"session_id"`
	Name       string    `json:"name" yaml:"name"`
	URL        string    `json:"url" yaml:"url"`
	StatusCode int       `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

type Journal struct {
	db *badger.DB
}

func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable badger logging
	return open(opts)
}

// OpenInMemory returns a journal that is lost on Close.
func OpenInMemory() (*Journal, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*Journal, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Journal{db: db}, nil
}

func key(entry Entry) []byte {
	return []byte(fmt.Sprintf("%s/%020d/%s", entry.Name, entry.StartedAt.UnixNano(), entry.SessionID))
}

func (j *Journal) Record(entry Entry) error {
	if entry.Name == "" || strings.Contains(entry.Name, "/") {
		return fmt.Errorf("invalid image name %q", entry.Name)
	}

	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal entry: %w", marshalErr)
	}

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(entry), data)
	})
}

// List returns the attempts for one image, oldest first.
func (j *Journal) List(name string) ([]Entry, error) {
	return j.scan([]byte(name + "/"))
}

// All returns every attempt grouped by image name.
func (j *Journal) All() ([]Entry, error) {
	return j.scan(nil)
}

func (j *Journal) scan(prefix []byte) ([]Entry, error) {
	entries := []Entry{}
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry Entry
			if valueErr := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); valueErr != nil {
				return valueErr
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// Forget drops every attempt recorded for name.
func (j *Journal) Forget(name string) error {
	prefix := []byte(name + "/")
	return j.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false // Only need keys
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
