// Package persist keeps the session state that must survive a restart:
// credentials, the agent profile, and small UI leftovers like recent
// search queries. Everything is stored as JSON values in a local pebble
// database.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"agentsync/pkg/logger"
	"agentsync/pkg/models"
)

const (
	keyCredentials   = "session:credentials"
	keyProfile       = "session:profile"
	keyRecentQueries = "search:recent_queries"
	keySelectedChat  = "ui:selected_chat"
	keyUIPrefs       = "ui:prefs"
)

// UIPrefs are the display preferences that follow the agent across
// restarts.
type UIPrefs struct {
	ColorMode          string `json:"color_mode"`
	ShowDetailsSection bool   `json:"show_details_section"`
}

// Store is an open persistence handle. Safe for concurrent use; pebble
// serializes the writes.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("persist: open failed", "path", path, "err", err)
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	logger.Debug("persist: opened", "path", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.db.Set([]byte(key), data, pebble.Sync); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// getJSON loads key into v. Returns false with a nil error when the key
// has never been written.
func (s *Store) getJSON(key string, v any) (bool, error) {
	data, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) delete(key string) error {
	return s.db.Delete([]byte(key), pebble.Sync)
}

// SaveCredentials stores the access credentials.
func (s *Store) SaveCredentials(c models.Credentials) error {
	return s.putJSON(keyCredentials, c)
}

// LoadCredentials loads the stored credentials, reporting whether any
// were present.
func (s *Store) LoadCredentials() (models.Credentials, bool, error) {
	var c models.Credentials
	ok, err := s.getJSON(keyCredentials, &c)
	return c, ok, err
}

// ClearCredentials drops the stored credentials, e.g. on logout.
func (s *Store) ClearCredentials() error {
	return s.delete(keyCredentials)
}

// SaveProfile stores the agent's own profile.
func (s *Store) SaveProfile(p models.MyProfile) error {
	return s.putJSON(keyProfile, p)
}

// LoadProfile loads the stored profile.
func (s *Store) LoadProfile() (models.MyProfile, bool, error) {
	var p models.MyProfile
	ok, err := s.getJSON(keyProfile, &p)
	return p, ok, err
}

// SaveRecentQueries stores the archive-search history, newest first.
func (s *Store) SaveRecentQueries(queries []string) error {
	const max = 20
	if len(queries) > max {
		queries = queries[:max]
	}
	return s.putJSON(keyRecentQueries, queries)
}

// LoadRecentQueries loads the archive-search history.
func (s *Store) LoadRecentQueries() ([]string, error) {
	var q []string
	if _, err := s.getJSON(keyRecentQueries, &q); err != nil {
		return nil, err
	}
	return q, nil
}

// SaveSelectedChat remembers which chat was open.
func (s *Store) SaveSelectedChat(chatID string) error {
	return s.putJSON(keySelectedChat, chatID)
}

// LoadSelectedChat restores the previously open chat, if any.
func (s *Store) LoadSelectedChat() (string, error) {
	var id string
	if _, err := s.getJSON(keySelectedChat, &id); err != nil {
		return "", err
	}
	return id, nil
}

// SaveUIPrefs stores the display preferences.
func (s *Store) SaveUIPrefs(p UIPrefs) error {
	return s.putJSON(keyUIPrefs, p)
}

// LoadUIPrefs loads the display preferences, reporting whether any were
// stored.
func (s *Store) LoadUIPrefs() (UIPrefs, bool, error) {
	var p UIPrefs
	ok, err := s.getJSON(keyUIPrefs, &p)
	return p, ok, err
}

// Touchpoint for tests and the inspect tool: a stable timestamped marker
// of the last clean shutdown.
func (s *Store) MarkCleanShutdown(at time.Time) error {
	return s.putJSON("session:clean_shutdown", at.UTC().Format(time.RFC3339Nano))
}

// LastCleanShutdown reads the marker written by MarkCleanShutdown.
func (s *Store) LastCleanShutdown() (time.Time, bool, error) {
	var raw string
	ok, err := s.getJSON("session:clean_shutdown", &raw)
	if !ok || err != nil {
		return time.Time{}, false, err
	}
	t, perr := time.Parse(time.RFC3339Nano, raw)
	if perr != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}
