package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"spndr/internal/core"
	"spndr/internal/log"
)

// RemoteStore is the authoritative copy of the transactions, reached over
// the network. Every error it returns sends the coordinator to the local
// store.
type RemoteStore interface {
	List(ctx context.Context) ([]core.Transaction, error)
	Create(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	Update(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// LocalStore is the on-device copy. It is always reachable; its errors are
// returned to the caller.
type LocalStore interface {
	All(ctx context.Context) ([]core.Transaction, error)
	Upsert(ctx context.Context, tx core.Transaction) error
	Modify(ctx context.Context, id string, fn func(core.Transaction) core.Transaction) (core.Transaction, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// Source names the store an operation's result came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Outcome records the path an operation took.
type Outcome struct {
	Source Source
	// RemoteErr is the failure that caused the fallback, nil when the
	// remote call succeeded.
	RemoteErr error
}

// FellBack reports whether the local store answered instead of the remote.
func (o Outcome) FellBack() bool {
	return o.Source == SourceLocal
}

type syncState int

const (
	stateAttemptRemote syncState = iota
	stateCommitLocalCache
	stateAttemptLocalFallback
	stateReturn
)

func (s syncState) String() string {
	switch s {
	case stateAttemptRemote:
		return "attempt_remote"
	case stateCommitLocalCache:
		return "commit_local_cache"
	case stateAttemptLocalFallback:
		return "attempt_local_fallback"
	default:
		return "return"
	}
}

// SyncCoordinatorConfig carries the identity and clock the coordinator
// stamps on records it creates by itself.
type SyncCoordinatorConfig struct {
	UserID string
	Now    func() time.Time
	NewID  func() string
}

// DefaultSyncCoordinatorConfig uses the wall clock and time-ordered UUIDs.
func DefaultSyncCoordinatorConfig(userID string) SyncCoordinatorConfig {
	return SyncCoordinatorConfig{
		UserID: userID,
		Now:    time.Now,
		NewID:  newTimeOrderedID,
	}
}

func newTimeOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SyncCoordinator presents the remote and local stores as one. The remote
// store wins whenever it answers; the local store keeps a copy of what the
// remote returns and stands in for it when it does not.
type SyncCoordinator struct {
	remote RemoteStore
	local  LocalStore
	config SyncCoordinatorConfig
	logger *log.Logger
}

func NewSyncCoordinator(remote RemoteStore, local LocalStore, config SyncCoordinatorConfig, logger *log.Logger) *SyncCoordinator {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewID == nil {
		config.NewID = newTimeOrderedID
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncCoordinator{
		remote: remote,
		local:  local,
		config: config,
		logger: logger.WithComponent(log.ComponentSync),
	}
}

// plan lists what one operation does in each state.
type plan[T any] struct {
	op       string
	remote   func(ctx context.Context) (T, error)
	commit   func(ctx context.Context, remote T) (T, error)
	fallback func(ctx context.Context) (T, error)
}

func run[T any](ctx context.Context, c *SyncCoordinator, p plan[T]) (T, Outcome, error) {
	var (
		value T
		out   Outcome
		err   error
	)

	for state := stateAttemptRemote; state != stateReturn; {
		c.logger.DebugContext(ctx, "Sync step", log.FieldOperation, p.op, "state", state.String())

		switch state {
		case stateAttemptRemote:
			value, out.RemoteErr = p.remote(ctx)
			if out.RemoteErr != nil {
				c.logger.WarnContext(ctx, "Remote store failed, using local store",
					log.FieldOperation, p.op,
					log.FieldError, out.RemoteErr)
				state = stateAttemptLocalFallback
			} else {
				state = stateCommitLocalCache
			}

		case stateCommitLocalCache:
			out.Source = SourceRemote
			value, err = p.commit(ctx, value)
			state = stateReturn

		case stateAttemptLocalFallback:
			out.Source = SourceLocal
			value, err = p.fallback(ctx)
			state = stateReturn
		}
	}

	if err != nil {
		c.logger.Failure(ctx, "Sync operation failed", p.op, err, log.FieldSource, string(out.Source))
	}
	return value, out, err
}

// List returns the remote collection when reachable and the local one
// otherwise. The two are never merged.
func (c *SyncCoordinator) List(ctx context.Context) ([]core.Transaction, Outcome, error) {
	return run(ctx, c, plan[[]core.Transaction]{
		op:     log.OpList,
		remote: c.remote.List,
		commit: func(_ context.Context, txs []core.Transaction) ([]core.Transaction, error) {
			if txs == nil {
				txs = []core.Transaction{}
			}
			return txs, nil
		},
		fallback: func(ctx context.Context) ([]core.Transaction, error) {
			txs, err := c.local.All(ctx)
			if err != nil {
				return nil, fmt.Errorf("list local transactions: %w", err)
			}
			return txs, nil
		},
	})
}

// Create stores a new transaction. Without the remote it is saved only
// locally under a generated id and is not pushed later.
func (c *SyncCoordinator) Create(ctx context.Context, draft core.Transaction) (core.Transaction, Outcome, error) {
	if strings.TrimSpace(draft.UserID) == "" {
		draft.UserID = c.config.UserID
	}
	if err := draft.Validate(); err != nil {
		return core.Transaction{}, Outcome{}, fmt.Errorf("invalid transaction: %w", err)
	}

	return run(ctx, c, plan[core.Transaction]{
		op: log.OpCreate,
		remote: func(ctx context.Context) (core.Transaction, error) {
			return c.remote.Create(ctx, draft)
		},
		commit: c.cache,
		fallback: func(ctx context.Context) (core.Transaction, error) {
			now := c.config.Now().UTC()
			tx := draft
			tx.ID = c.config.NewID()
			tx.CreatedAt = now
			tx.UpdatedAt = now
			if err := c.local.Upsert(ctx, tx); err != nil {
				return core.Transaction{}, fmt.Errorf("save local transaction: %w", err)
			}
			return tx, nil
		},
	})
}

// Update applies patch to the transaction with the given id. Without the
// remote the local copy is patched; core.ErrNotFound is returned when there
// is none.
func (c *SyncCoordinator) Update(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, Outcome, error) {
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, Outcome{}, fmt.Errorf("invalid update: %w", err)
	}

	return run(ctx, c, plan[core.Transaction]{
		op: log.OpUpdate,
		remote: func(ctx context.Context) (core.Transaction, error) {
			return c.remote.Update(ctx, id, patch)
		},
		commit: c.cache,
		fallback: func(ctx context.Context) (core.Transaction, error) {
			tx, err := c.local.Modify(ctx, id, func(tx core.Transaction) core.Transaction {
				tx = patch.Apply(tx)
				tx.UpdatedAt = c.config.Now().UTC()
				return tx
			})
			if err != nil {
				return core.Transaction{}, fmt.Errorf("update local transaction %s: %w", id, err)
			}
			return tx, nil
		},
	})
}

// Delete removes the transaction from the remote if it can and from the
// local store in every case.
func (c *SyncCoordinator) Delete(ctx context.Context, id string) (Outcome, error) {
	removeLocal := func(ctx context.Context) (struct{}, error) {
		if err := c.local.Delete(ctx, id); err != nil {
			return struct{}{}, fmt.Errorf("delete local transaction %s: %w", id, err)
		}
		return struct{}{}, nil
	}

	_, out, err := run(ctx, c, plan[struct{}]{
		op: log.OpDelete,
		remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.remote.Delete(ctx, id)
		},
		commit:   func(ctx context.Context, _ struct{}) (struct{}, error) { return removeLocal(ctx) },
		fallback: removeLocal,
	})
	return out, err
}

// ClearAll empties the remote if it can and the local store in every case.
func (c *SyncCoordinator) ClearAll(ctx context.Context) (Outcome, error) {
	clearLocal := func(ctx context.Context) (struct{}, error) {
		if err := c.local.Clear(ctx); err != nil {
			return struct{}{}, fmt.Errorf("clear local transactions: %w", err)
		}
		return struct{}{}, nil
	}

	_, out, err := run(ctx, c, plan[struct{}]{
		op: log.OpClearAll,
		remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.remote.Clear(ctx)
		},
		commit:   func(ctx context.Context, _ struct{}) (struct{}, error) { return clearLocal(ctx) },
		fallback: clearLocal,
	})
	return out, err
}

// Summary aggregates whatever List returns.
func (c *SyncCoordinator) Summary(ctx context.Context) (core.TransactionSummary, Outcome, error) {
	txs, out, err := c.List(ctx)
	if err != nil {
		return core.TransactionSummary{}, out, err
	}
	return core.Summarize(txs), out, nil
}

// Categories breaks whatever List returns down by category.
func (c *SyncCoordinator) Categories(ctx context.Context) ([]core.CategorySummary, Outcome, error) {
	txs, out, err := c.List(ctx)
	if err != nil {
		return nil, out, err
	}
	return core.Categorize(txs), out, nil
}

// cache writes a record the remote returned into the local store.
func (c *SyncCoordinator) cache(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := c.local.Upsert(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("cache remote transaction %s: %w", tx.ID, err)
	}
	return tx, nil
}
