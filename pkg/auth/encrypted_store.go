package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// PassphraseEnv overrides the generated passphrase file
const PassphraseEnv = "NOTECRAWLER_PASSPHRASE"

const (
	saltSize        = 32
	keySize         = 32
	kdfIterations   = 100000
	passphraseFile  = ".passphrase"
	vaultFileFormat = 1
)

// vaultFile is the on-disk envelope. Sealed holds the AES-GCM nonce followed
// by the ciphertext of the JSON encoded identity map.
type vaultFile struct {
	Version  int       `json:"version"`
	Salt     []byte    `json:"salt"`
	Sealed   []byte    `json:"sealed"`
	Modified time.Time `json:"modified"`
}

// EncryptedFileStore keeps every identity in one passphrase-encrypted file
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// NewEncryptedFileStore opens the store at path. The passphrase comes from
// NOTECRAWLER_PASSPHRASE, else from a .passphrase file next to path, which
// is generated on first use.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	passphrase, err := loadPassphrase(filepath.Join(filepath.Dir(path), passphraseFile))
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

func (e *EncryptedFileStore) Store(identity *Identity) error {
	if identity == nil || identity.Name == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(vault map[string]Identity) error {
		vault[identity.Name] = *identity
		return nil
	})
}

func (e *EncryptedFileStore) Retrieve(name string) (*Identity, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	vault, err := e.read()
	if err != nil {
		return nil, err
	}
	identity, ok := vault[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &identity, nil
}

func (e *EncryptedFileStore) List() ([]*Identity, error) {
	vault, err := e.read()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(vault))
	for name := range vault {
		names = append(names, name)
	}
	sort.Strings(names)

	identities := make([]*Identity, 0, len(names))
	for _, name := range names {
		identity := vault[name]
		identities = append(identities, &identity)
	}
	return identities, nil
}

// Delete removes one identity; the file goes away with the last one
func (e *EncryptedFileStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(vault map[string]Identity) error {
		if _, ok := vault[name]; !ok {
			return ErrCredentialsNotFound
		}
		delete(vault, name)
		return nil
	})
}

func (e *EncryptedFileStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}

func (e *EncryptedFileStore) read() (map[string]Identity, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	vault, _, err := e.open()
	return vault, err
}

// update applies fn to the decrypted identities and writes the result back
func (e *EncryptedFileStore) update(fn func(map[string]Identity) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	vault, salt, err := e.open()
	if err != nil {
		return err
	}
	if err := fn(vault); err != nil {
		return err
	}

	if len(vault) == 0 {
		if err := os.Remove(e.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove credential file: %w", err)
		}
		return nil
	}
	return e.seal(vault, salt)
}

// open decrypts the file. A missing file is an empty vault with a nil salt.
func (e *EncryptedFileStore) open() (map[string]Identity, []byte, error) {
	vault := make(map[string]Identity)

	content, err := os.ReadFile(e.path)
	if errors.Is(err, os.ErrNotExist) {
		return vault, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var file vaultFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse credential file: %w", err)
	}

	gcm, err := newGCM(e.passphrase, file.Salt)
	if err != nil {
		return nil, nil, err
	}
	if len(file.Sealed) < gcm.NonceSize() {
		return nil, nil, errors.New("credential file is truncated")
	}
	nonce, sealed := file.Sealed[:gcm.NonceSize()], file.Sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt credential file (wrong passphrase?): %w", err)
	}

	if err := json.Unmarshal(plaintext, &vault); err != nil {
		return nil, nil, fmt.Errorf("failed to parse identities: %w", err)
	}
	return vault, file.Salt, nil
}

func (e *EncryptedFileStore) seal(vault map[string]Identity, salt []byte) error {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	plaintext, err := json.Marshal(vault)
	if err != nil {
		return fmt.Errorf("failed to marshal identities: %w", err)
	}

	gcm, err := newGCM(e.passphrase, salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	content, err := json.MarshalIndent(vaultFile{
		Version:  vaultFileFormat,
		Salt:     salt,
		Sealed:   gcm.Seal(nonce, nonce, plaintext, nil),
		Modified: time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential file: %w", err)
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, kdfIterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func loadPassphrase(path string) (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}

	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := fmt.Sprintf("%x", b)
	if err := os.WriteFile(path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}
