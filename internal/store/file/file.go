// Package file keeps the ledger and credential records in two JSON
// documents inside a directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/loykin/checkin/internal/common"
	"github.com/loykin/checkin/internal/constants"
	"github.com/loykin/checkin/internal/store/connector"
)

// Store is a JSON file backend. Both documents are held in memory and
// rewritten atomically after every change.
type Store struct {
	mu          sync.Mutex
	ledgerPath  string
	credPath    string
	ledger      map[string]map[string]connector.Record
	credentials map[string]connector.Credential
	logger      *common.Logger
}

// Open loads (or creates) the documents in dir.
func Open(dir string, logger *common.Logger) (*Store, error) {
	if logger == nil {
		logger = common.Discard()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s := &Store{
		ledgerPath:  filepath.Join(dir, constants.LedgerFileName),
		credPath:    filepath.Join(dir, constants.CredentialFileName),
		ledger:      map[string]map[string]connector.Record{},
		credentials: map[string]connector.Credential{},
		logger:      logger.WithStore("file"),
	}
	if err := s.read(s.ledgerPath, &s.ledger); err != nil {
		return nil, err
	}
	if err := s.read(s.credPath, &s.credentials); err != nil {
		return nil, err
	}
	if s.ledger == nil {
		s.ledger = map[string]map[string]connector.Record{}
	}
	if s.credentials == nil {
		s.credentials = map[string]connector.Credential{}
	}
	return s, nil
}

// read decodes path into v. A missing file is empty; a corrupt one is
// logged and treated as empty.
func (s *Store) read(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		s.logger.Warn("ignoring unreadable store file", "path", path, "error", err)
	}
	return nil
}

func writeAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return nil
}

// commitDay writes the ledger with date replaced by day (removed when
// empty) and only then swaps it in, so a failed write changes nothing.
func (s *Store) commitDay(date string, day map[string]connector.Record) error {
	next := make(map[string]map[string]connector.Record, len(s.ledger)+1)
	for d, recs := range s.ledger {
		next[d] = recs
	}
	if len(day) == 0 {
		delete(next, date)
	} else {
		next[date] = day
	}
	if err := writeAtomic(s.ledgerPath, next); err != nil {
		s.logger.Error("failed to write ledger", "error", err)
		return fmt.Errorf("write ledger: %w", err)
	}
	s.ledger = next
	return nil
}

// dayCopy returns a private copy of the records of date.
func (s *Store) dayCopy(date string) map[string]connector.Record {
	day := make(map[string]connector.Record, len(s.ledger[date])+1)
	for t, r := range s.ledger[date] {
		day[t] = r
	}
	return day
}

func (s *Store) LoadRecord(_ context.Context, date, target string) (connector.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ledger[date][target]
	if !ok {
		return connector.Record{}, connector.ErrNotFound
	}
	r.Date, r.Target = date, target
	return r, nil
}

func (s *Store) SaveRecord(_ context.Context, r connector.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := s.dayCopy(r.Date)
	day[r.Target] = r
	return s.commitDay(r.Date, day)
}

func (s *Store) DeleteRecord(_ context.Context, date, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledger[date][target]; !ok {
		return nil
	}
	day := s.dayCopy(date)
	delete(day, target)
	return s.commitDay(date, day)
}

func (s *Store) ListRecords(_ context.Context, date string) ([]connector.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := s.ledger[date]
	out := make([]connector.Record, 0, len(day))
	for target, r := range day {
		r.Date, r.Target = date, target
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out, nil
}

func (s *Store) Dates(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ledger))
	for d := range s.ledger {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DeleteDate(_ context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledger[date]; !ok {
		return nil
	}
	return s.commitDay(date, nil)
}

func (s *Store) LoadCredential(_ context.Context, target string) (connector.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[target]
	if !ok {
		return connector.Credential{}, connector.ErrNotFound
	}
	c.Target = target
	return c, nil
}

func (s *Store) SaveCredential(_ context.Context, c connector.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]connector.Credential, len(s.credentials)+1)
	for t, v := range s.credentials {
		next[t] = v
	}
	next[c.Target] = c
	if err := writeAtomic(s.credPath, next); err != nil {
		s.logger.Error("failed to write credentials", "error", err)
		return fmt.Errorf("write credentials: %w", err)
	}
	s.credentials = next
	return nil
}

func (s *Store) Close() error { return nil }
