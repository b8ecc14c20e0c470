// Package store opens the persistence backend shared by the daily ledger
// and the credential store.
package store

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/loykin/checkin/internal/common"
	"github.com/loykin/checkin/internal/constants"
	"github.com/loykin/checkin/internal/retry"
	"github.com/loykin/checkin/internal/store/connector"
	"github.com/loykin/checkin/internal/store/file"
	"github.com/loykin/checkin/internal/store/postgresql"
	"github.com/loykin/checkin/internal/store/sqlite"
	"github.com/loykin/checkin/internal/util"
)

type (
	Record     = connector.Record
	Credential = connector.Credential
	Connector  = connector.Connector
	TableNames = connector.TableNames
)

var ErrNotFound = connector.ErrNotFound

const (
	StatusSuccess = connector.StatusSuccess
	StatusFailed  = connector.StatusFailed
)

// Backend types
const (
	TypeFile       = "file"
	TypeSQLite     = "sqlite"
	TypePostgreSQL = "postgresql"
)

// Config selects and configures a backend.
type Config struct {
	Type        string            `mapstructure:"type"`
	Dir         string            `mapstructure:"dir"`
	SQLite      sqlite.Config     `mapstructure:"sqlite"`
	Postgres    postgresql.Config `mapstructure:"postgres"`
	TablePrefix string            `mapstructure:"table_prefix"`
}

// TableNames returns the table names, honouring TablePrefix.
func (c Config) TableNames() TableNames {
	prefix, ok := util.TrimEmptyCheck(c.TablePrefix)
	if !ok {
		return TableNames{Ledger: constants.DefaultLedgerTable, Credentials: constants.DefaultCredentialTable}
	}
	return TableNames{Ledger: prefix + constants.LedgerSuffix, Credentials: prefix + constants.CredentialSuffix}
}

func normalizeType(t string) string {
	switch util.TrimAndLower(t) {
	case "", "file", "json":
		return TypeFile
	case "sqlite", "sqlite3":
		return TypeSQLite
	case "postgres", "postgresql", "pg":
		return TypePostgreSQL
	default:
		return strings.TrimSpace(t)
	}
}

// Open connects the configured backend and ensures its schema.
func Open(cfg Config, retryCfg *retry.Config, logger *common.Logger) (Connector, error) {
	if logger == nil {
		logger = common.Discard()
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}

	switch normalizeType(cfg.Type) {
	case TypeFile:
		return file.Open(dir, logger)

	case TypeSQLite:
		sc := cfg.SQLite
		if sc.Path == "" && sc.DSN == "" {
			sc.Path = filepath.Join(dir, constants.DBFileName)
		}
		s := sqlite.NewStore()
		s.Retry, s.Logger = retryCfg, logger
		if err := s.Load(sc.ToMap()); err != nil {
			return nil, err
		}
		if _, err := s.Connect(); err != nil {
			return nil, err
		}
		if err := s.Ensure(cfg.TableNames()); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil

	case TypePostgreSQL:
		pc := cfg.Postgres
		s := postgresql.NewStore()
		s.Retry, s.Logger = retryCfg, logger
		if err := s.Load(pc.ToMap()); err != nil {
			return nil, err
		}
		if _, err := s.Connect(); err != nil {
			return nil, err
		}
		if err := s.Ensure(cfg.TableNames()); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported store type: %q", cfg.Type)
	}
}
