package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"iganalyzer/pkg/config"
	"iganalyzer/pkg/logger"
)

// Credentials are the browser cookies that let upstream requests run as a
// logged-in Instagram user. They are optional: anonymous requests work for
// many public profiles but are rate limited harder.
type Credentials struct {
	Username  string    `json:"username"`
	SessionID string    `json:"session_id"`
	CSRFToken string    `json:"csrf_token"`
	UserAgent string    `json:"user_agent,omitempty"`
	SavedAt   time.Time `json:"saved_at"`
}

// Validate checks the cookie values look plausible
func (c *Credentials) Validate() error {
	if c == nil {
		return ErrInvalidCredentials
	}
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidCredentials)
	}
	if len(c.SessionID) < 20 {
		return fmt.Errorf("%w: sessionid cookie looks truncated", ErrInvalidCredentials)
	}
	if n := len(c.CSRFToken); n < 20 || n > 64 {
		return fmt.Errorf("%w: csrftoken cookie should be about 32 characters", ErrInvalidCredentials)
	}
	return nil
}

// Masked returns a copy safe to print
func (c *Credentials) Masked() *Credentials {
	if c == nil {
		return nil
	}
	out := *c
	out.SessionID = mask(c.SessionID)
	out.CSRFToken = mask(c.CSRFToken)
	return &out
}

func mask(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Store persists credentials by username
type Store interface {
	Name() string
	Save(c *Credentials) error
	Load(username string) (*Credentials, error)
	List() ([]*Credentials, error)
	Delete(username string) error
}

// Errors
var (
	ErrNotFound           = errors.New("credentials not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrReadOnly           = errors.New("credential store is read-only")
)

// Manager tries its stores in order: the first writable store wins on
// save, the first store holding a username wins on load.
type Manager struct {
	stores []Store
	logger logger.Logger
}

// NewManager wraps explicit stores
func NewManager(log logger.Logger, stores ...Store) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{stores: stores, logger: log}
}

// NewDefaultManager uses the system keyring when it works, an encrypted
// file under dir, and IGANALYZER_* environment variables.
func NewDefaultManager(dir string, log logger.Logger) (*Manager, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}
	var stores []Store
	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	} else if log != nil {
		log.WithError(err).Debug("System keyring unavailable")
	}

	fs, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"), "")
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted store: %w", err)
	}
	stores = append(stores, fs, NewEnvironmentStore())
	return NewManager(log, stores...), nil
}

// Stores lists the backend names in lookup order
func (m *Manager) Stores() []string {
	names := make([]string, len(m.stores))
	for i, s := range m.stores {
		names[i] = s.Name()
	}
	return names
}

// Save validates c and writes it to the first store that accepts it
func (m *Manager) Save(c *Credentials) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	c.Username = strings.ToLower(strings.TrimSpace(c.Username))
	c.SavedAt = time.Now().UTC()

	var errs []error
	for _, s := range m.stores {
		err := s.Save(c)
		if err == nil {
			m.logger.InfoWithFields("Credentials saved", map[string]interface{}{
				"username": c.Username,
				"store":    s.Name(),
			})
			return s.Name(), nil
		}
		if !errors.Is(err, ErrReadOnly) {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) == 0 {
		return "", errors.New("no writable credential store")
	}
	return "", fmt.Errorf("failed to save credentials: %w", errors.Join(errs...))
}

// Load returns credentials for username from the first store that has them
func (m *Manager) Load(username string) (*Credentials, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	for _, s := range m.stores {
		c, err := s.Load(username)
		if err == nil && c != nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNotFound, username)
}

// Default returns the most recently saved credentials across all stores
func (m *Manager) Default() (*Credentials, error) {
	all := m.List()
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	return all[0], nil
}

// List merges every store, keeping the newest copy of each username,
// newest first
func (m *Manager) List() []*Credentials {
	byName := make(map[string]*Credentials)
	for _, s := range m.stores {
		list, err := s.List()
		if err != nil {
			m.logger.WithError(err).WarnWithFields("Failed to list credentials", map[string]interface{}{
				"store": s.Name(),
			})
			continue
		}
		for _, c := range list {
			if cur, ok := byName[c.Username]; !ok || c.SavedAt.After(cur.SavedAt) {
				byName[c.Username] = c
			}
		}
	}

	out := make([]*Credentials, 0, len(byName))
	for _, c := range byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SavedAt.Equal(out[j].SavedAt) {
			return out[i].SavedAt.After(out[j].SavedAt)
		}
		return out[i].Username < out[j].Username
	})
	return out
}

// Delete removes username from every writable store
func (m *Manager) Delete(username string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	deleted := false
	var errs []error
	for _, s := range m.stores {
		err := s.Delete(username)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrReadOnly):
		default:
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to delete credentials: %w", errors.Join(errs...))
	}
	if !deleted {
		return fmt.Errorf("%w for %s", ErrNotFound, username)
	}
	return nil
}

// Resolve picks the cookies upstream requests should carry. Values set in
// cfg win; otherwise the named or most recent stored account is used.
// Returns nil with no error when nothing is configured.
func (m *Manager) Resolve(cfg *config.InstagramConfig, username string) (*Credentials, error) {
	if cfg != nil && cfg.SessionID != "" && cfg.CSRFToken != "" {
		return &Credentials{
			Username:  "config",
			SessionID: cfg.SessionID,
			CSRFToken: cfg.CSRFToken,
			UserAgent: cfg.UserAgent,
		}, nil
	}
	var (
		c   *Credentials
		err error
	)
	if username != "" {
		c, err = m.Load(username)
	} else {
		c, err = m.Default()
	}
	if errors.Is(err, ErrNotFound) && username == "" {
		return nil, nil
	}
	return c, err
}

// DefaultDir is the per-user directory holding the encrypted store
func DefaultDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "iganalyzer"), nil
}
