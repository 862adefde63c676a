package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileName is used when no path is configured.
const DefaultFileName = ".near-intents-history.json"

// FileStore keeps every record in one JSON file, rewritten atomically.
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	users    map[string]map[string]Record
}

type fileLayout struct {
	Users map[string]map[string]Record `json:"users"`
}

func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultFileName)
	}

	s := &FileStore{
		filePath: filePath,
		users:    make(map[string]map[string]Record),
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var layout fileLayout
	if err := json.Unmarshal(data, &layout); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}
	if layout.Users != nil {
		s.users = layout.Users
	}
	return nil
}

// save must be called with mu held.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(fileLayout{Users: s.users}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (s *FileStore) Put(_ context.Context, userID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trades, ok := s.users[userID]
	if !ok {
		trades = make(map[string]Record)
		s.users[userID] = trades
	}
	trades[rec.TradeID] = rec
	return s.save()
}

func (s *FileStore) Get(_ context.Context, userID, tradeID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[userID][tradeID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, tradeID)
	}
	return rec, nil
}

func (s *FileStore) List(_ context.Context, userID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.users[userID]))
	for _, rec := range s.users[userID] {
		out = append(out, rec)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *FileStore) Delete(_ context.Context, userID, tradeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID][tradeID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, tradeID)
	}
	delete(s.users[userID], tradeID)
	if len(s.users[userID]) == 0 {
		delete(s.users, userID)
	}
	return s.save()
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.filePath
}

func (s *FileStore) Close() error { return nil }
