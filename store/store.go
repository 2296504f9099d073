// Package store persists speaker profiles in a Badger database, so a
// speaker is fit once and paired with any other speaker later.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// ErrNotFound is returned for an unknown speaker.
var ErrNotFound = errors.New("profile not found")

const profilePrefix = "profile:"

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens the database at path. An empty path opens an in-memory
// database that is discarded on Close.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts.SyncWrites = true
		opts.CompactL0OnClose = true
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	logger.Debug("profile store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func profileKey(speaker string) []byte {
	return []byte(profilePrefix + speaker)
}

// Put stores p, replacing any profile of the same speaker.
func (s *Store) Put(ctx context.Context, p Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(p.Speaker), data)
	})
	if err != nil {
		return fmt.Errorf("put profile %q: %w", p.Speaker, err)
	}
	s.logger.Info("profile stored",
		zap.String("speaker", p.Speaker),
		zap.Int("clusters", len(p.Durations)),
		zap.Int("utterances", p.Utterances))
	return nil
}

// Get returns the profile of speaker.
func (s *Store) Get(ctx context.Context, speaker string) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	var p Profile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profileKey(speaker))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Profile{}, fmt.Errorf("%w: %q", ErrNotFound, speaker)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile %q: %w", speaker, err)
	}
	return p, nil
}

// Delete removes the profile of speaker.
func (s *Store) Delete(ctx context.Context, speaker string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := profileKey(speaker)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %q", ErrNotFound, speaker)
	}
	if err != nil {
		return fmt.Errorf("delete profile %q: %w", speaker, err)
	}
	s.logger.Info("profile deleted", zap.String("speaker", speaker))
	return nil
}

// List returns the stored speaker names in key order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(profilePrefix)
	var speakers []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			speakers = append(speakers, strings.TrimPrefix(string(it.Item().Key()), profilePrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return speakers, nil
}
