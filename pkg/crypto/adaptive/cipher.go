// Package adaptive seals small records with an AEAD picked for the host.
//
// AES-GCM is used where the CPU accelerates it and ChaCha20-Poly1305
// elsewhere. Sealed output starts with a one-byte algorithm tag followed
// by the nonce, so a record sealed on one machine opens on any other
// given the same key.
package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// CipherType identifies the cipher algorithm.
type CipherType string

const (
	CipherAESGCM   CipherType = "aes-gcm"
	CipherChaCha20 CipherType = "chacha20-poly1305"
)

// KeySize is the key length every cipher in this package takes.
const KeySize = 32

const (
	tagAESGCM   byte = 0x01
	tagChaCha20 byte = 0x02
)

var (
	ErrInvalidKey  = errors.New("adaptive: key must be 32 bytes")
	ErrShortInput  = errors.New("adaptive: sealed input too short")
	ErrUnknownType = errors.New("adaptive: unknown cipher tag")
)

// Cipher seals and opens records with authenticated encryption.
type Cipher struct {
	typ  CipherType
	tag  byte
	key  []byte
	aead cipher.AEAD
}

// New picks the preferred cipher for this architecture.
func New(key []byte) (*Cipher, error) {
	if hasAESNI() {
		return NewWithType(key, CipherAESGCM)
	}
	return NewWithType(key, CipherChaCha20)
}

// NewWithType creates a cipher of the given type.
func NewWithType(key []byte, t CipherType) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	aead, tag, err := newAEAD(key, t)
	if err != nil {
		return nil, err
	}
	return &Cipher{typ: t, tag: tag, key: append([]byte(nil), key...), aead: aead}, nil
}

func newAEAD(key []byte, t CipherType) (cipher.AEAD, byte, error) {
	switch t {
	case CipherAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, 0, err
		}
		aead, err := cipher.NewGCM(block)
		return aead, tagAESGCM, err
	case CipherChaCha20:
		aead, err := chacha20poly1305.New(key)
		return aead, tagChaCha20, err
	default:
		return nil, 0, fmt.Errorf("adaptive: unknown cipher type %q", t)
	}
}

// Type returns the cipher used for sealing.
func (c *Cipher) Type() CipherType {
	return c.typ
}

// Overhead returns the number of bytes Seal adds to a plaintext.
func (c *Cipher) Overhead() int {
	return 1 + c.aead.NonceSize() + c.aead.Overhead()
}

// Seal encrypts plaintext bound to additionalData.
func (c *Cipher) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, c.Overhead()+len(plaintext))
	out = append(out, c.tag)
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, plaintext, additionalData), nil
}

// Open decrypts a record produced by Seal with the same key.
// The algorithm is taken from the record's tag, not from c.
func (c *Cipher) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < 1 {
		return nil, ErrShortInput
	}
	aead := c.aead
	if sealed[0] != c.tag {
		var t CipherType
		switch sealed[0] {
		case tagAESGCM:
			t = CipherAESGCM
		case tagChaCha20:
			t = CipherChaCha20
		default:
			return nil, ErrUnknownType
		}
		var err error
		if aead, _, err = newAEAD(c.key, t); err != nil {
			return nil, err
		}
	}
	body := sealed[1:]
	if len(body) < aead.NonceSize() {
		return nil, ErrShortInput
	}
	nonce, ct := body[:aead.NonceSize()], body[aead.NonceSize():]
	return aead.Open(nil, nonce, ct, additionalData)
}

// DeriveKey stretches a configured secret into a KeySize key.
// info separates keys derived from one secret for different uses.
func DeriveKey(secret, info string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("adaptive: empty secret")
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// hasAESNI reports whether Go's AES is hardware accelerated here.
func hasAESNI() bool {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return true
	default:
		return false
	}
}
