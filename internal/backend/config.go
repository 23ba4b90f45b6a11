package backend

import (
	"fmt"

	"spndr/internal/config"
	"spndr/internal/local"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.LocalBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.LocalBackend)
	}

	return Config{
		Type:       backendType,
		DataPath:   appConfig.LocalDataPath,
		StorageKey: appConfig.LocalStorageKey,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case FileBackend, SQLiteBackend:
		if c.DataPath == "" {
			return fmt.Errorf("data path is required for %s backend", c.Type)
		}
	case MemoryBackend:
		// Nothing to check; the store lives and dies with the process.
	}

	return nil
}

func (c Config) storageKey() string {
	if c.StorageKey == "" {
		return local.DefaultKey
	}
	return c.StorageKey
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{FileBackend, SQLiteBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
