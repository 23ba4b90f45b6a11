package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"spndr/internal/amqp"
	"spndr/internal/cache"
	"spndr/internal/core"
	"spndr/internal/log"
	"spndr/internal/storage"
)

// TransactionRepository is the server-side store.
type TransactionRepository interface {
	List(ctx context.Context, filter storage.ListFilter) ([]core.Transaction, error)
	Get(ctx context.Context, id string) (core.Transaction, error)
	Create(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	Update(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) (int64, error)
}

// EventPublisher sends transaction events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.TransactionEvent) error
}

const (
	summaryCacheSize = 64
	summaryCacheTTL  = 5 * time.Minute
)

// TransactionService orchestrates transaction writes across the repository,
// the summary caches and the message bus.
type TransactionService struct {
	repo       TransactionRepository
	publisher  EventPublisher
	summaries  *cache.Loader[core.TransactionSummary]
	categories *cache.Loader[[]core.CategorySummary]
	logger     *log.Logger
}

// NewTransactionService wires the service. publisher may be nil, in which
// case no events are sent. manager, when non-nil, gets the caches registered
// for periodic cleanup.
func NewTransactionService(repo TransactionRepository, publisher EventPublisher, manager *cache.Manager, logger *log.Logger) *TransactionService {
	if logger == nil {
		logger = log.Discard()
	}

	summaryCache := cache.NewLRUCache[core.TransactionSummary](summaryCacheSize, summaryCacheTTL)
	categoryCache := cache.NewLRUCache[[]core.CategorySummary](summaryCacheSize, summaryCacheTTL)
	if manager != nil {
		manager.Register(summaryCache)
		manager.Register(categoryCache)
	}

	return &TransactionService{
		repo:       repo,
		publisher:  publisher,
		summaries:  cache.NewLoader[core.TransactionSummary](summaryCache),
		categories: cache.NewLoader[[]core.CategorySummary](categoryCache),
		logger:     logger.WithComponent(log.ComponentStorage),
	}
}

// List returns transactions newest first.
func (s *TransactionService) List(ctx context.Context, filter storage.ListFilter) ([]core.Transaction, error) {
	return s.repo.List(ctx, filter)
}

func (s *TransactionService) Get(ctx context.Context, id string) (core.Transaction, error) {
	return s.repo.Get(ctx, id)
}

// Create saves the transaction and announces it.
func (s *TransactionService) Create(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	created, err := s.repo.Create(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	s.invalidate()
	s.publish(ctx, amqp.NewCreatedEvent(created))
	return created, nil
}

func (s *TransactionService) Update(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.invalidate()
	s.publish(ctx, amqp.NewUpdatedEvent(updated))
	return updated, nil
}

func (s *TransactionService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.invalidate()
	s.publish(ctx, amqp.NewDeletedEvent(id))
	return nil
}

// Clear removes every transaction and returns how many there were.
func (s *TransactionService) Clear(ctx context.Context) (int64, error) {
	n, err := s.repo.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear transactions: %w", err)
	}
	s.invalidate()
	s.publish(ctx, amqp.NewClearedEvent(n))
	return n, nil
}

// Summary totals the transactions of userID, or of everyone when empty.
func (s *TransactionService) Summary(ctx context.Context, userID string) (core.TransactionSummary, error) {
	return s.summaries.Get(ctx, "summary:"+userID, func(ctx context.Context) (core.TransactionSummary, error) {
		txs, err := s.repo.List(ctx, storage.ListFilter{UserID: userID})
		if err != nil {
			return core.TransactionSummary{}, err
		}
		return core.Summarize(txs), nil
	})
}

// Categories breaks the transactions down by category and keeps the first
// top entries (all of them when top <= 0).
func (s *TransactionService) Categories(ctx context.Context, userID string, top int) ([]core.CategorySummary, error) {
	cats, err := s.categories.Get(ctx, "categories:"+userID, func(ctx context.Context) ([]core.CategorySummary, error) {
		txs, err := s.repo.List(ctx, storage.ListFilter{UserID: userID})
		if err != nil {
			return nil, err
		}
		return core.Categorize(txs), nil
	})
	if err != nil {
		return nil, err
	}
	return core.TopCategories(cats, top), nil
}

func (s *TransactionService) invalidate() {
	s.summaries.Invalidate()
	s.categories.Invalidate()
}

func (s *TransactionService) publish(ctx context.Context, event *amqp.TransactionEvent) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No event publisher configured, skipping event", log.FieldType, event.Type)
		return
	}
	// The write already succeeded; a lost event must not fail the request.
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			log.FieldType, event.Type,
			log.FieldTransactionID, event.TransactionID,
			log.FieldError, err)
	}
}

// Close closes the repository and the publisher when they support it.
func (s *TransactionService) Close() error {
	var errs []error

	if c, ok := s.repo.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close transaction service: %v", errs)
	}
	return nil
}
