// Package credential implements the credential resolver from spec §4.2:
// an AEAD envelope format (spec §6) with key-id based rotation, and a
// cache-first resolver in front of a repository collaborator.
//
// The envelope itself is grounded on
// _examples/smilemakc-mbflow/go/pkg/crypto/encryption.go's AES-256-GCM
// scheme, since the teacher (aipilotbyjd-linkflow-v2) references a
// crypto.Encryptor type from its credential service but never defines
// it anywhere in the tree.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	ErrInvalidKey        = errors.New("credential: encryption key must be 32 bytes for AES-256")
	ErrInvalidCiphertext = errors.New("credential: invalid ciphertext envelope")
	ErrUnknownKeyID      = errors.New("credential: unknown key id")
)

const aes256KeySize = 32

// Envelope is the sealed-secret wire format from spec §6:
// base64(aead_seal(master_key, nonce, plaintext_json)), with a key id
// prefix enabling rotation.
type Envelope struct {
	KeyID      string
	Ciphertext string // base64(nonce || ciphertext || tag)
}

// String renders the envelope as "<key_id>:<base64 ciphertext>", the
// persisted form of Credential.DataEncrypted.
func (e Envelope) String() string {
	return e.KeyID + ":" + e.Ciphertext
}

// ParseEnvelope splits a persisted envelope string back into its parts.
func ParseEnvelope(s string) (Envelope, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return Envelope{KeyID: s[:i], Ciphertext: s[i+1:]}, nil
		}
	}
	return Envelope{}, ErrInvalidCiphertext
}

// KeyRing holds one or more AES-256-GCM keys by id. Seal always uses the
// active key; Open uses the key named by the envelope's KeyID, enabling
// rotation: publish a new active key while old ciphertexts sealed under
// retired keys still open, as long as those keys stay registered.
type KeyRing struct {
	mu        sync.RWMutex
	keys      map[string][]byte
	activeID  string
}

func NewKeyRing() *KeyRing {
	return &KeyRing{keys: make(map[string][]byte)}
}

// AddKey registers a 32-byte AES-256 key under id and, if this is the
// first key added, makes it active.
func (k *KeyRing) AddKey(id string, key []byte) error {
	if len(key) != aes256KeySize {
		return ErrInvalidKey
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[id] = key
	if k.activeID == "" {
		k.activeID = id
	}
	return nil
}

// SetActive designates id (already added via AddKey) as the key used for
// future Seal calls — the rotation operation.
func (k *KeyRing) SetActive(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[id]; !ok {
		return ErrUnknownKeyID
	}
	k.activeID = id
	return nil
}

func (k *KeyRing) Seal(plaintext []byte) (Envelope, error) {
	k.mu.RLock()
	id := k.activeID
	key := k.keys[id]
	k.mu.RUnlock()

	if key == nil {
		return Envelope{}, ErrUnknownKeyID
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Envelope{}, fmt.Errorf("credential: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Envelope{}, fmt.Errorf("credential: new gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Envelope{}, fmt.Errorf("credential: nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return Envelope{KeyID: id, Ciphertext: base64.StdEncoding.EncodeToString(sealed)}, nil
}

// Open decrypts env using the key named by env.KeyID. Errors here must
// never be surfaced to callers with plaintext details (spec §4.2/§7);
// wrap with ErrDecryptionFailed at the resolver layer.
func (k *KeyRing) Open(env Envelope) ([]byte, error) {
	k.mu.RLock()
	key, ok := k.keys[env.KeyID]
	k.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownKeyID
	}

	raw, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credential: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credential: new gcm: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// GenerateKey returns a fresh random 32-byte AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, aes256KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("credential: generate key: %w", err)
	}
	return key, nil
}
