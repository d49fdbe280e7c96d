package auth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"iganalyzer/pkg/config"
	"iganalyzer/pkg/logger"
)

const (
	testSessionID = "12345678%3AabcdefGHIJ%3A26%3Axyz"
	testCSRF      = "YTQHujAgMhyveLvvuwCfw9CPI8ROAHoy"
)

func testCreds(name string) *Credentials {
	return &Credentials{Username: name, SessionID: testSessionID, CSRFToken: testCSRF}
}

// memStore is an in-memory Store with error injection
type memStore struct {
	mu      sync.Mutex
	name    string
	data    map[string]Credentials
	saveErr error
}

func newMemStore(name string) *memStore {
	return &memStore{name: name, data: map[string]Credentials{}}
}

func (m *memStore) Name() string { return m.name }

func (m *memStore) Save(c *Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[c.Username] = *c
	return nil
}

func (m *memStore) Load(username string) (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.data[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *memStore) List() ([]*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Credentials
	for _, c := range m.data {
		c := c
		out = append(out, &c)
	}
	return out, nil
}

func (m *memStore) Delete(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[username]; !ok {
		return ErrNotFound
	}
	delete(m.data, username)
	return nil
}

func fakeEnv(vars map[string]string) *EnvironmentStore {
	return &EnvironmentStore{getenv: func(k string) string { return vars[k] }}
}

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name  string
		creds *Credentials
		ok    bool
	}{
		{"valid", testCreds("alice"), true},
		{"nil", nil, false},
		{"no username", &Credentials{SessionID: testSessionID, CSRFToken: testCSRF}, false},
		{"short session", &Credentials{Username: "a", SessionID: "abc", CSRFToken: testCSRF}, false},
		{"short csrf", &Credentials{Username: "a", SessionID: testSessionID, CSRFToken: "abc"}, false},
		{"long csrf", &Credentials{Username: "a", SessionID: testSessionID, CSRFToken: strings.Repeat("x", 65)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
			}
		})
	}
}

func TestMasked(t *testing.T) {
	c := testCreds("alice")
	m := c.Masked()
	assert.Equal(t, "1234...Axyz", m.SessionID)
	assert.Equal(t, "YTQH...AHoy", m.CSRFToken)
	assert.Equal(t, "alice", m.Username)
	assert.Equal(t, testSessionID, c.SessionID, "original untouched")
	assert.Equal(t, "********", mask("short"))
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "credentials.enc")
	store, err := NewEncryptedFileStore(path, "correct horse")
	require.NoError(t, err)

	_, err = store.Load("alice")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(testCreds("alice")))
	require.NoError(t, store.Save(testCreds("bob")))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), testSessionID)
	assert.NotContains(t, string(raw), testCSRF)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewEncryptedFileStore(path, "correct horse")
	require.NoError(t, err)
	got, err := reopened.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, testSessionID, got.SessionID)

	list, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Username)

	wrong, err := NewEncryptedFileStore(path, "battery staple")
	require.NoError(t, err)
	_, err = wrong.Load("alice")
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	require.NoError(t, store.Delete("alice"))
	assert.ErrorIs(t, store.Delete("alice"), ErrNotFound)
	require.NoError(t, store.Delete("bob"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "empty store removes its file")
}

func TestEncryptedFileStoreGeneratedPassphrase(t *testing.T) {
	t.Setenv(EnvPassphrase, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.enc")

	first, err := NewEncryptedFileStore(path, "")
	require.NoError(t, err)
	require.NoError(t, first.Save(testCreds("alice")))
	assert.FileExists(t, filepath.Join(dir, ".passphrase"))

	second, err := NewEncryptedFileStore(path, "")
	require.NoError(t, err)
	got, err := second.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, testCSRF, got.CSRFToken)
}

func TestEnvironmentStore(t *testing.T) {
	empty := fakeEnv(nil)
	_, err := empty.Load("")
	assert.ErrorIs(t, err, ErrNotFound)
	list, err := empty.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	env := fakeEnv(map[string]string{
		EnvSessionID: testSessionID,
		EnvCSRFToken: testCSRF,
		EnvUserAgent: "TestAgent/1.0",
	})
	c, err := env.Load("")
	require.NoError(t, err)
	assert.Equal(t, "environment", c.Username)
	assert.Equal(t, "TestAgent/1.0", c.UserAgent)

	_, err = env.Load("someone-else")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, env.Save(testCreds("x")), ErrReadOnly)
	assert.ErrorIs(t, env.Delete("environment"), ErrReadOnly)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Save(testCreds("bob")))
	require.NoError(t, store.Save(testCreds("alice")))
	require.NoError(t, store.Save(testCreds("alice")))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Username)
	assert.Equal(t, "bob", list[1].Username)

	require.NoError(t, store.Delete("alice"))
	assert.ErrorIs(t, store.Delete("alice"), ErrNotFound)
	_, err = store.Load("alice")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err = store.List()
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.Delete("bob"))
	list, err = store.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestKeyringUnavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("no dbus"))
	t.Cleanup(keyring.MockInit)

	_, err := NewKeyringStore()
	assert.Error(t, err)
}

func TestManagerSaveLoad(t *testing.T) {
	log := logger.NewTestLogger()
	broken := newMemStore("broken")
	broken.saveErr = errors.New("disk full")
	backup := newMemStore("backup")
	m := NewManager(log, fakeEnv(nil), broken, backup)

	assert.Equal(t, []string{"environment", "broken", "backup"}, m.Stores())

	_, err := m.Save(&Credentials{Username: "alice"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	where, err := m.Save(testCreds("  Alice "))
	require.NoError(t, err)
	assert.Equal(t, "backup", where)
	assert.True(t, log.HasMessage("Credentials saved"))

	got, err := m.Load("ALICE")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.False(t, got.SavedAt.IsZero())

	_, err = m.Load("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerSaveFailsEverywhere(t *testing.T) {
	broken := newMemStore("broken")
	broken.saveErr = errors.New("disk full")
	m := NewManager(logger.NewNopLogger(), broken)

	_, err := m.Save(testCreds("alice"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, err = NewManager(logger.NewNopLogger(), fakeEnv(nil)).Save(testCreds("alice"))
	assert.EqualError(t, err, "no writable credential store")
}

func TestManagerListAndDefault(t *testing.T) {
	a, b := newMemStore("a"), newMemStore("b")
	m := NewManager(logger.NewNopLogger(), a, b)

	_, err := m.Default()
	assert.ErrorIs(t, err, ErrNotFound)

	old := testCreds("alice")
	old.SavedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := testCreds("alice")
	newer.SavedAt = old.SavedAt.Add(time.Hour)
	newer.UserAgent = "newer"
	bob := testCreds("bob")
	bob.SavedAt = old.SavedAt.Add(30 * time.Minute)
	require.NoError(t, a.Save(old))
	require.NoError(t, b.Save(newer))
	require.NoError(t, b.Save(bob))

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Username)
	assert.Equal(t, "newer", list[0].UserAgent)
	assert.Equal(t, "bob", list[1].Username)

	def, err := m.Default()
	require.NoError(t, err)
	assert.Equal(t, "newer", def.UserAgent)

	require.NoError(t, m.Delete("alice"))
	_, err = a.Load("alice")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = b.Load("alice")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete("alice"), ErrNotFound)
}

func TestManagerResolve(t *testing.T) {
	store := newMemStore("mem")
	m := NewManager(logger.NewNopLogger(), store)

	c, err := m.Resolve(&config.InstagramConfig{}, "")
	require.NoError(t, err)
	assert.Nil(t, c, "nothing configured means anonymous")

	_, err = m.Resolve(nil, "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Save(testCreds("alice"))
	require.NoError(t, err)
	c, err = m.Resolve(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "alice", c.Username)

	c, err = m.Resolve(&config.InstagramConfig{SessionID: "cfg-session", CSRFToken: "cfg-csrf", UserAgent: "ua"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "cfg-session", c.SessionID)
	assert.Equal(t, "ua", c.UserAgent)
}

func TestNewDefaultManager(t *testing.T) {
	keyring.MockInitWithError(errors.New("no keyring"))
	t.Cleanup(keyring.MockInit)
	t.Setenv(EnvPassphrase, "test passphrase")

	m, err := NewDefaultManager(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"encrypted-file", "environment"}, m.Stores())

	where, err := m.Save(testCreds("alice"))
	require.NoError(t, err)
	assert.Equal(t, "encrypted-file", where)
}
