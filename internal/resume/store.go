// Package resume persists the action to retry after the external payment
// gateway redirects back to the application. The intent survives the full
// page navigation to the gateway and is consumed exactly once on return.
package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Kind identifies which workflow the intent resumes.
type Kind string

const (
	KindOrderPayment   Kind = "ORDER_PAYMENT"
	KindAuctionDeposit Kind = "AUCTION_DEPOSIT"
)

// Intent is the durable record of a suspended action.
type Intent struct {
	Kind      Kind      `json:"kind"`
	TargetID  string    `json:"target_id"`
	Amount    int64     `json:"amount,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds at most one pending intent.
type Store interface {
	// Put replaces the pending intent.
	Put(intent Intent) error
	// Take removes and returns the pending intent. The second result is
	// false when none is pending.
	Take() (Intent, bool, error)
}

// FileStore keeps the pending intent as a JSON file on disk.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the well-known intent location under the user config
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "liveauction", "pending_intent.json"), nil
}

func (s *FileStore) Put(intent Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal resume intent: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create resume intent dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write resume intent: %w", err)
	}
	return nil
}

func (s *FileStore) Take() (Intent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Intent{}, false, nil
	}
	if err != nil {
		return Intent{}, false, fmt.Errorf("read resume intent: %w", err)
	}

	// Remove before decoding so the intent is consumed even when corrupt.
	if err := os.Remove(s.path); err != nil {
		return Intent{}, false, fmt.Errorf("clear resume intent: %w", err)
	}

	var intent Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		return Intent{}, false, fmt.Errorf("decode resume intent: %w", err)
	}
	return intent, true, nil
}
