// Package history stores optimize run reports in Badger DB.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/sysopt/pkg/sysopt/tuning"
)

// Key prefixes
const (
	prefixRun  = "r:" // r:<started_at>:<uuid> -> RunReport JSON
	prefixMeta = "m:"
)

const schemaKey = prefixMeta + "__schema__"

// Schema versions:
// 1 - run reports keyed by start time
const CurrentSchemaVersion = 1

// keyTime sorts lexically in chronological order.
const keyTime = "20060102T150405.000000000"

var (
	// ErrNotFound is returned when no report matches an id.
	ErrNotFound = errors.New("run report not found")

	// ErrAmbiguous is returned when an id prefix matches several reports.
	ErrAmbiguous = errors.New("run id prefix is ambiguous")
)

// Schema holds database schema information.
type Schema struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the run history backed by Badger DB.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store at the given directory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	s := &Store{db: db}
	if s.schema() == nil {
		if err := s.setSchema(&Schema{Version: CurrentSchemaVersion, UpdatedAt: time.Now()}); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func runKey(r *tuning.RunReport) []byte {
	return []byte(prefixRun + r.StartedAt.UTC().Format(keyTime) + ":" + r.ID.String())
}

// Record stores a run report.
func (s *Store) Record(r *tuning.RunReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding run report: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(r), data)
	})
}

// List returns up to limit reports, newest first. A limit of zero or less
// returns every report.
func (s *Store) List(limit int) ([]*tuning.RunReport, error) {
	var reports []*tuning.RunReport

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefixRun)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts from the last key under the prefix.
		for it.Seek([]byte(prefixRun + "\xff")); it.ValidForPrefix([]byte(prefixRun)); it.Next() {
			if limit > 0 && len(reports) >= limit {
				break
			}
			var r tuning.RunReport
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			reports = append(reports, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// Get returns the report whose id equals or starts with id.
func (s *Store) Get(id string) (*tuning.RunReport, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, ErrNotFound
	}

	var found []*tuning.RunReport
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixRun)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			runID := key[strings.LastIndexByte(key, ':')+1:]
			if !strings.HasPrefix(runID, id) {
				continue
			}
			var r tuning.RunReport
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			found = append(found, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s matches %d runs", ErrAmbiguous, id, len(found))
	}
}

// Prune deletes reports started before cutoff and returns how many were
// removed.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	limit := []byte(prefixRun + cutoff.UTC().Format(keyTime))
	var removed int

	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixRun)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(limit) {
				break
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Count returns the number of stored reports.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixRun)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) schema() *Schema {
	var schema *Schema

	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			schema = &Schema{}
			return json.Unmarshal(val, schema)
		})
	})

	return schema
}

func (s *Store) setSchema(schema *Schema) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(schemaKey), data)
	})
}

// Version returns the stored schema version, 0 when unset.
func (s *Store) Version() int {
	if schema := s.schema(); schema != nil {
		return schema.Version
	}
	return 0
}
