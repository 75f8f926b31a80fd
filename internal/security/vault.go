// Package security provides the encrypted session vault, audit logging,
// role checks and secret masking.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"greeks-dashboard/internal/errors"
)

const (
	// EncryptionKeySize is the size of the AES-256 key in bytes.
	EncryptionKeySize = 32
	// SaltSize is the size of the salt for key derivation.
	SaltSize = 16
	// NonceSize is the size of the GCM nonce.
	NonceSize = 12
	// PBKDF2Iterations is the number of iterations for key derivation.
	PBKDF2Iterations = 100000

	vaultVersion = 1

	// PassphraseEnv overrides the machine-bound vault passphrase.
	PassphraseEnv = "GREEKS_VAULT_PASSPHRASE"
)

// sealedFile is the on-disk vault format.
type sealedFile struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	Version    int    `json:"version"`
}

// Vault stores one JSON document encrypted with AES-256-GCM.
type Vault struct {
	path       string
	passphrase string
	mu         sync.Mutex
}

// NewVault creates a vault at path. An empty passphrase resolves to
// $GREEKS_VAULT_PASSPHRASE or, failing that, a machine-bound secret.
func NewVault(path, passphrase string) *Vault {
	if passphrase == "" {
		passphrase = DefaultPassphrase()
	}
	return &Vault{path: path, passphrase: passphrase}
}

// DefaultPassphrase returns the passphrase used when none is configured.
func DefaultPassphrase() string {
	if p := os.Getenv(PassphraseEnv); p != "" {
		return p
	}
	host, _ := os.Hostname()
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username + ":" + u.Uid
	}
	return "greeks-dashboard|" + host + "|" + username
}

// Path returns the vault file path.
func (v *Vault) Path() string {
	return v.path
}

// Exists reports whether the vault file is present.
func (v *Vault) Exists() bool {
	_, err := os.Stat(v.path)
	return err == nil
}

// Save encrypts doc as JSON and writes it atomically with 0600 permissions.
func (v *Vault) Save(doc interface{}) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	plaintext, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling vault document: %w", err)
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}

	nonce, ciphertext, err := encrypt(plaintext, deriveKey(v.passphrase, salt))
	if err != nil {
		return errors.NewSecurityError("vault_save", "encryption failed", err)
	}

	data, err := json.MarshalIndent(sealedFile{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Version:    vaultVersion,
	}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(v.path), 0700); err != nil {
		return fmt.Errorf("creating vault directory: %w", err)
	}
	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing vault: %w", err)
	}
	return os.Rename(tmp, v.path)
}

// Load decrypts the vault into doc. A missing vault yields ErrDataNotFound.
func (v *Vault) Load(doc interface{}) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	data, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewDataError("vault", v.path, "no vault", errors.ErrDataNotFound)
		}
		return fmt.Errorf("reading vault: %w", err)
	}

	var sealed sealedFile
	if err := json.Unmarshal(data, &sealed); err != nil {
		return errors.NewSecurityError("vault_load", "corrupt vault file", err)
	}
	if sealed.Version != vaultVersion {
		return errors.NewSecurityError("vault_load", fmt.Sprintf("unsupported vault version %d", sealed.Version), nil)
	}

	salt, err := base64.StdEncoding.DecodeString(sealed.Salt)
	if err != nil {
		return errors.NewSecurityError("vault_load", "corrupt salt", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	if err != nil {
		return errors.NewSecurityError("vault_load", "corrupt nonce", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil {
		return errors.NewSecurityError("vault_load", "corrupt ciphertext", err)
	}

	plaintext, err := decrypt(ciphertext, deriveKey(v.passphrase, salt), nonce)
	if err != nil {
		return errors.NewSecurityError("vault_load", "wrong passphrase or tampered vault", err)
	}

	return json.Unmarshal(plaintext, doc)
}

// Clear removes the vault file, overwriting it first.
func (v *Vault) Clear() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := secureDelete(v.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// deriveKey derives an encryption key from a password using PBKDF2.
func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, EncryptionKeySize, sha256.New)
}

// encrypt encrypts plaintext using AES-256-GCM.
func encrypt(plaintext, key []byte) (nonce, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("creating GCM: %w", err)
	}

	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

// decrypt decrypts ciphertext using AES-256-GCM.
func decrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	return plaintext, nil
}

// secureDelete overwrites a file with zeros before removing it.
func secureDelete(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err == nil {
		zeros := make([]byte, info.Size())
		_, _ = f.Write(zeros)
		_ = f.Sync()
		f.Close()
	}

	return os.Remove(path)
}
