package auth

import (
	"os"

	"iganalyzer/pkg/config"
)

// Environment variables read by EnvironmentStore
const (
	EnvSessionID = config.EnvPrefix + "INSTAGRAM_SESSION_ID"
	EnvCSRFToken = config.EnvPrefix + "INSTAGRAM_CSRF_TOKEN"
	EnvUserAgent = config.EnvPrefix + "INSTAGRAM_USER_AGENT"
	EnvUsername  = config.EnvPrefix + "INSTAGRAM_USERNAME"
)

// EnvironmentStore exposes cookies set in the environment as a read-only
// account, for containers where neither a keyring nor a writable home
// directory exist
type EnvironmentStore struct {
	getenv func(string) string
}

// NewEnvironmentStore reads the process environment
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{getenv: os.Getenv}
}

func (e *EnvironmentStore) Name() string { return "environment" }

func (e *EnvironmentStore) Save(*Credentials) error { return ErrReadOnly }

func (e *EnvironmentStore) Delete(string) error { return ErrReadOnly }

func (e *EnvironmentStore) current() *Credentials {
	sid, csrf := e.getenv(EnvSessionID), e.getenv(EnvCSRFToken)
	if sid == "" || csrf == "" {
		return nil
	}
	name := e.getenv(EnvUsername)
	if name == "" {
		name = "environment"
	}
	return &Credentials{
		Username:  name,
		SessionID: sid,
		CSRFToken: csrf,
		UserAgent: e.getenv(EnvUserAgent),
	}
}

func (e *EnvironmentStore) Load(username string) (*Credentials, error) {
	c := e.current()
	if c == nil || (username != "" && username != c.Username) {
		return nil, ErrNotFound
	}
	return c, nil
}

func (e *EnvironmentStore) List() ([]*Credentials, error) {
	if c := e.current(); c != nil {
		return []*Credentials{c}, nil
	}
	return nil, nil
}
