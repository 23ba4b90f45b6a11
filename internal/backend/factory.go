package backend

import (
	"context"
	"fmt"
	"path/filepath"

	"spndr/internal/local"
	"spndr/internal/log"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		blob local.Blob
		err  error
	)
	switch config.Type {
	case FileBackend:
		blob, err = local.NewFileBlob(config.DataPath)
	case SQLiteBackend:
		blob, err = local.NewSQLiteBlob(filepath.Join(config.DataPath, SQLiteFileName))
	case MemoryBackend:
		blob = local.NewMemoryBlob()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s backend: %w", config.Type, err)
	}

	store := local.NewStore(blob, config.storageKey(), f.logger)

	f.logger.InfoContext(ctx, "Initialized local backend",
		"backend", config.Type,
		"data_path", config.DataPath,
		"key", config.storageKey())

	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}
