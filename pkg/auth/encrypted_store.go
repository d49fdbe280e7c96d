package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"iganalyzer/pkg/config"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// EnvPassphrase overrides the generated passphrase file
	EnvPassphrase = config.EnvPrefix + "PASSPHRASE"
)

// ErrWrongPassphrase is returned when the file cannot be decrypted
var ErrWrongPassphrase = errors.New("credentials file cannot be decrypted with this passphrase")

// EncryptedFileStore keeps every account in one AES-GCM sealed file. The
// key is derived from a passphrase with PBKDF2-SHA256 and a per-file salt.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

type sealedFile struct {
	Version   int       `json:"version"`
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedFileStore opens the store at path. An empty passphrase is
// taken from IGANALYZER_PASSPHRASE or a generated .passphrase file next to
// path.
func NewEncryptedFileStore(path, passphrase string) (*EncryptedFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if passphrase == "" {
		passphrase = os.Getenv(EnvPassphrase)
	}
	if passphrase == "" {
		var err error
		if passphrase, err = loadOrCreatePassphrase(filepath.Join(filepath.Dir(path), ".passphrase")); err != nil {
			return nil, err
		}
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

func (e *EncryptedFileStore) Name() string { return "encrypted-file" }

func (e *EncryptedFileStore) Save(c *Credentials) error {
	if c == nil || c.Username == "" {
		return ErrInvalidCredentials
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, salt, err := e.read()
	if err != nil {
		return err
	}
	accounts[c.Username] = *c
	return e.write(accounts, salt)
}

func (e *EncryptedFileStore) Load(username string) (*Credentials, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, _, err := e.read()
	if err != nil {
		return nil, err
	}
	c, ok := accounts[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (e *EncryptedFileStore) List() ([]*Credentials, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, _, err := e.read()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(accounts))
	for n := range accounts {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*Credentials, 0, len(names))
	for _, n := range names {
		c := accounts[n]
		out = append(out, &c)
	}
	return out, nil
}

func (e *EncryptedFileStore) Delete(username string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, salt, err := e.read()
	if err != nil {
		return err
	}
	if _, ok := accounts[username]; !ok {
		return ErrNotFound
	}
	delete(accounts, username)
	if len(accounts) == 0 {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove credentials file: %w", err)
		}
		return nil
	}
	return e.write(accounts, salt)
}

// read returns an empty map and a nil salt when the file does not exist yet
func (e *EncryptedFileStore) read() (map[string]Credentials, []byte, error) {
	content, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		return map[string]Credentials{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var file sealedFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(file.Encrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	plain, err := decrypt(sealed, e.key(salt))
	if err != nil {
		return nil, nil, ErrWrongPassphrase
	}
	accounts := map[string]Credentials{}
	if err := json.Unmarshal(plain, &accounts); err != nil {
		return nil, nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	return accounts, salt, nil
}

func (e *EncryptedFileStore) write(accounts map[string]Credentials, salt []byte) error {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}
	plain, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}
	sealed, err := encrypt(plain, e.key(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt accounts: %w", err)
	}

	content, err := json.MarshalIndent(sealedFile{
		Version:   1,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Modified:  time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(e.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, e.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

func loadOrCreatePassphrase(path string) (string, error) {
	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	pass := base64.URLEncoding.EncodeToString(b)
	if err := os.WriteFile(path, []byte(pass), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}
