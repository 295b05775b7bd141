// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists vehicle positions in BadgerDB. The store holds
// exactly one record per bus number; every successful write replaces the
// previous position. Reads after a successful write always observe the
// written value.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/citygrid/bustracker/internal/logging"
	"github.com/citygrid/bustracker/internal/metrics"
	"github.com/citygrid/bustracker/internal/models"
)

// ErrNotFound is returned when no position is recorded for a bus number.
var ErrNotFound = errors.New("position not found")

const (
	positionKeyPrefix = "position:"

	// maxTxnRetries bounds retries when concurrent writers conflict on
	// the same key. Badger aborts one of two conflicting transactions;
	// the write itself is a blind overwrite, so retrying preserves
	// last-write-wins semantics.
	maxTxnRetries = 3
)

// Options configures a Store.
type Options struct {
	// Path is the on-disk directory. Ignored when InMemory is set.
	Path string

	// InMemory runs badger without persistence.
	InMemory bool

	// PositionTTL expires records not refreshed within the duration.
	// Zero disables expiry.
	PositionTTL time.Duration
}

// Store is a BadgerDB-backed vehicle position store. It is safe for
// concurrent use.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens or creates the store at the configured location.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithLogger(newBadgerLogger())

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening position store: %w", err)
	}

	return &Store{db: db, ttl: opts.PositionTTL}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the store is usable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return nil
	})
}

// Upsert stores the latest position for a vehicle, creating the record if
// it does not exist and overwriting it if it does. The write is durable
// before Upsert returns.
func (s *Store) Upsert(ctx context.Context, pos models.VehiclePosition) error {
	start := time.Now()
	err := s.upsert(ctx, pos)
	metrics.RecordStoreOperation("upsert", time.Since(start), err)
	return err
}

func (s *Store) upsert(ctx context.Context, pos models.VehiclePosition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encoding position: %w", err)
	}
	key := positionKey(pos.BusNumber)

	for attempt := 0; ; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			entry := badger.NewEntry(key, value)
			if s.ttl > 0 {
				entry = entry.WithTTL(s.ttl)
			}
			return txn.SetEntry(entry)
		})
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxTxnRetries {
			break
		}
		logging.Debug().
			Str("bus_number", pos.BusNumber).
			Int("attempt", attempt+1).
			Msg("retrying conflicting position write")
	}

	if err != nil {
		return fmt.Errorf("storing position for %s: %w", pos.BusNumber, err)
	}
	return nil
}

// Get returns the latest position for a bus number. Returns ErrNotFound
// when no record exists.
func (s *Store) Get(ctx context.Context, busNumber string) (models.VehiclePosition, error) {
	start := time.Now()
	pos, err := s.get(ctx, busNumber)
	if errors.Is(err, ErrNotFound) {
		metrics.RecordStoreOperation("get", time.Since(start), nil)
	} else {
		metrics.RecordStoreOperation("get", time.Since(start), err)
	}
	return pos, err
}

func (s *Store) get(ctx context.Context, busNumber string) (models.VehiclePosition, error) {
	var pos models.VehiclePosition
	if err := ctx.Err(); err != nil {
		return pos, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(positionKey(busNumber))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &pos)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return pos, ErrNotFound
	}
	if err != nil {
		return pos, fmt.Errorf("reading position for %s: %w", busNumber, err)
	}
	return pos, nil
}

// GetAll returns the latest position of every tracked vehicle. An empty
// store yields an empty slice, not an error.
func (s *Store) GetAll(ctx context.Context) ([]models.VehiclePosition, error) {
	start := time.Now()
	positions, err := s.getAll(ctx)
	metrics.RecordStoreOperation("get_all", time.Since(start), err)
	if err == nil {
		metrics.StoredPositions.Set(float64(len(positions)))
	}
	return positions, err
}

func (s *Store) getAll(ctx context.Context) ([]models.VehiclePosition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	positions := []models.VehiclePosition{}
	prefix := []byte(positionKeyPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var pos models.VehiclePosition
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &pos)
			})
			if err != nil {
				return err
			}
			positions = append(positions, pos)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}
	return positions, nil
}

func positionKey(busNumber string) []byte {
	return []byte(positionKeyPrefix + busNumber)
}
