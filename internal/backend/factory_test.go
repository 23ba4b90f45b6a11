package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"spndr/internal/config"
	"spndr/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{LocalBackend: "redis"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	cfg, err := FromAppConfig(&config.Config{LocalBackend: "sqlite", LocalDataPath: "/tmp/x", LocalStorageKey: "@k"})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.DataPath != "/tmp/x" || cfg.StorageKey != "@k" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"file with path", Config{Type: FileBackend, DataPath: "data"}, false},
		{"file without path", Config{Type: FileBackend}, true},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"memory without path", Config{Type: MemoryBackend}, false},
		{"unknown type", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend(t *testing.T) {
	for _, typ := range GetBackendTypes() {
		t.Run(typ.String(), func(t *testing.T) {
			dir := t.TempDir()
			res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: typ, DataPath: dir})
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			defer res.Cleanup()

			tx := core.Transaction{
				ID: "1", UserID: "user_1", Title: "Rent", Amount: decimal.NewFromInt(900),
				Category: "Housing", Type: core.Expense, Date: core.NewDate(2024, 2, 1),
			}
			if err := res.Store.Upsert(context.Background(), tx); err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			txs, err := res.Store.All(context.Background())
			if err != nil || len(txs) != 1 {
				t.Fatalf("All = %v, %v", txs, err)
			}

			if typ == SQLiteBackend {
				if _, err := os.Stat(filepath.Join(dir, SQLiteFileName)); err != nil {
					t.Fatalf("expected database file: %v", err)
				}
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	want := []string{"file", "sqlite", "memory"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
