// Package local persists the client's copy of the transactions as one JSON
// array held in a named blob.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"spndr/internal/core"
	"spndr/internal/log"
)

// DefaultKey is the blob name the transactions are kept under.
const DefaultKey = "@transactions"

// Store reads and writes the whole collection on every call. A mutex keeps
// read-modify-write cycles from interleaving inside one process.
type Store struct {
	mu     sync.Mutex
	blob   Blob
	key    string
	logger *log.Logger
}

func NewStore(blob Blob, key string, logger *log.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{
		blob:   blob,
		key:    key,
		logger: logger.WithComponent(log.ComponentLocal),
	}
}

// All returns the stored transactions in insertion order.
func (s *Store) All(ctx context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Get returns one transaction or core.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.load(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	if i := indexOf(txs, id); i >= 0 {
		return txs[i], nil
	}
	return core.Transaction{}, core.ErrNotFound
}

// Upsert replaces the record with the same id in place, or appends it.
func (s *Store) Upsert(ctx context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.load(ctx)
	if err != nil {
		return err
	}
	if i := indexOf(txs, tx.ID); i >= 0 {
		txs[i] = tx
	} else {
		txs = append(txs, tx)
	}
	return s.save(ctx, txs)
}

// Modify applies fn to the record with the given id and persists the result.
// The blob is left untouched when the id is unknown.
func (s *Store) Modify(ctx context.Context, id string, fn func(core.Transaction) core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.load(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	i := indexOf(txs, id)
	if i < 0 {
		return core.Transaction{}, core.ErrNotFound
	}
	txs[i] = fn(txs[i])
	if err := s.save(ctx, txs); err != nil {
		return core.Transaction{}, err
	}
	return txs[i], nil
}

// Delete removes the record with the given id. Unknown ids are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := txs[:0]
	for _, tx := range txs {
		if tx.ID != id {
			kept = append(kept, tx)
		}
	}
	if len(kept) == len(txs) {
		return nil
	}
	return s.save(ctx, kept)
}

// Clear drops the whole collection.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.blob.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear local transactions: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.blob.Close()
}

// load reads the blob. Content that does not parse counts as an empty
// collection; the next write replaces it.
func (s *Store) load(ctx context.Context) ([]core.Transaction, error) {
	raw, err := s.blob.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load local transactions: %w", err)
	}
	if len(raw) == 0 {
		return []core.Transaction{}, nil
	}

	var txs []core.Transaction
	if err := json.Unmarshal(raw, &txs); err != nil {
		s.logger.WarnContext(ctx, "Discarding unreadable local transactions",
			"key", s.key,
			"bytes", len(raw),
			log.FieldError, err)
		return []core.Transaction{}, nil
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	return txs, nil
}

func (s *Store) save(ctx context.Context, txs []core.Transaction) error {
	raw, err := json.Marshal(txs)
	if err != nil {
		return fmt.Errorf("encode local transactions: %w", err)
	}
	if err := s.blob.Put(ctx, s.key, raw); err != nil {
		return fmt.Errorf("save local transactions: %w", err)
	}
	s.logger.DebugContext(ctx, "Saved local transactions", log.FieldCount, len(txs))
	return nil
}

func indexOf(txs []core.Transaction, id string) int {
	for i, tx := range txs {
		if tx.ID == id {
			return i
		}
	}
	return -1
}
