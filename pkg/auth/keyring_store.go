package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "iganalyzer"
	keyringPrefix  = "instagram_"
	// keyringIndex lists saved usernames; the keyring API cannot enumerate
	keyringIndex = "index"
)

// KeyringStore keeps credentials in the OS keychain
type KeyringStore struct{}

// NewKeyringStore probes the keyring and fails when it is unusable
func NewKeyringStore() (*KeyringStore, error) {
	const probe = "probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{}, nil
}

func (k *KeyringStore) Name() string { return "keyring" }

func (k *KeyringStore) Save(c *Credentials) error {
	if c == nil || c.Username == "" {
		return ErrInvalidCredentials
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+c.Username, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	names, err := k.index()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == c.Username {
			return nil
		}
	}
	return k.writeIndex(append(names, c.Username))
}

func (k *KeyringStore) Load(username string) (*Credentials, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}
	data, err := keyring.Get(keyringService, keyringPrefix+username)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("failed to decode keyring entry: %w", err)
	}
	return &c, nil
}

func (k *KeyringStore) List() ([]*Credentials, error) {
	names, err := k.index()
	if err != nil {
		return nil, err
	}
	out := make([]*Credentials, 0, len(names))
	for _, n := range names {
		c, err := k.Load(n)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (k *KeyringStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}
	err := keyring.Delete(keyringService, keyringPrefix+username)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	names, err := k.index()
	if err != nil {
		return err
	}
	kept := names[:0]
	for _, n := range names {
		if n != username {
			kept = append(kept, n)
		}
	}
	return k.writeIndex(kept)
}

func (k *KeyringStore) index() ([]string, error) {
	data, err := keyring.Get(keyringService, keyringIndex)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("failed to decode keyring index: %w", err)
	}
	return names, nil
}

func (k *KeyringStore) writeIndex(names []string) error {
	if len(names) == 0 {
		err := keyring.Delete(keyringService, keyringIndex)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to clear keyring index: %w", err)
		}
		return nil
	}
	sort.Strings(names)
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring index: %w", err)
	}
	return nil
}
