package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_TableNames(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   TableNames
	}{
		{name: "default", prefix: "", want: TableNames{Ledger: "checkin_ledger", Credentials: "checkin_credentials"}},
		{name: "blank", prefix: "  ", want: TableNames{Ledger: "checkin_ledger", Credentials: "checkin_credentials"}},
		{name: "prefixed", prefix: "home", want: TableNames{Ledger: "home_ledger", Credentials: "home_credentials"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Config{TablePrefix: tt.prefix}).TableNames(); got != tt.want {
				t.Errorf("TableNames() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOpen_File(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(Config{Dir: dir}, nil, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = c.Close() }()
	if err := c.SaveRecord(context.Background(), Record{Date: "2024-05-01", Target: "a", Status: StatusSuccess}); err != nil {
		t.Fatalf("SaveRecord() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "signin_status.json")); err != nil {
		t.Fatalf("ledger file not written: %v", err)
	}
}

func TestOpen_SQLiteDefaultsToDir(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(Config{Type: "sqlite3", Dir: dir, TablePrefix: "t"}, nil, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = c.Close() }()
	if _, err := c.LoadRecord(context.Background(), "2024-05-01", "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadRecord() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "checkin.db")); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open(Config{Type: "mongo"}, nil, nil); err == nil {
		t.Error("unknown type should fail")
	}
	if _, err := Open(Config{Type: "postgres"}, nil, nil); err == nil {
		t.Error("postgres without dsn should fail")
	}
}
