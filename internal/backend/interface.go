package backend

import (
	"context"

	"spndr/internal/local"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the local store and its cleanup function
type BackendResult struct {
	Store   *local.Store
	Cleanup CleanupFunc
}

// Factory creates local stores based on configuration
type Factory interface {
	// CreateBackend opens the blob backend named by config and wraps it in a store
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// DataPath is a directory for the file backend and the directory
	// holding the database file for the sqlite backend.
	DataPath string

	// StorageKey names the blob holding the transactions
	StorageKey string
}

// BackendType represents the type of local blob backend
type BackendType string

const (
	FileBackend   BackendType = "file"
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// SQLiteFileName is the database file the sqlite backend creates inside DataPath.
const SQLiteFileName = "local.db"

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case FileBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
