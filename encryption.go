package apack

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Encryption provider ids recorded in the archive header. Protocol
// constants; changing them breaks format compatibility.
const (
	encryptionNoneID    uint8 = 0
	encryptionAESGCMID  uint8 = 1
	encryptionXChaChaID uint8 = 2
)

// EncryptionProvider is the capability contract for an authenticated
// encryption algorithm. Implementations are stateless values and safe for
// concurrent use.
//
// Ciphertext is framed as nonce || sealed bytes (integrity tag included).
// Nonces are generated randomly per call, so a (key, nonce) pair is never
// reused by callers.
type EncryptionProvider interface {
	// ID returns the provider id recorded in the archive header.
	ID() uint8

	// Name returns the human-readable provider name.
	Name() string

	// KeySize returns the required key length in bytes.
	KeySize() int

	// GenerateKey returns fresh random key material of KeySize bytes.
	GenerateKey() ([]byte, error)

	// Encrypt seals plaintext under key and returns nonce || ciphertext+tag.
	Encrypt(plaintext, key []byte) ([]byte, error)

	// Decrypt opens ciphertext produced by Encrypt. It fails with
	// ErrAuthentication when the tag does not verify (wrong key or
	// tampered data).
	Decrypt(ciphertext, key []byte) ([]byte, error)
}

// AESGCM returns the AES-256-GCM encryption provider (32-byte keys,
// 12-byte random nonce per call).
func AESGCM() EncryptionProvider { return aesgcmProvider{} }

// XChaCha20 returns the XChaCha20-Poly1305 encryption provider (32-byte
// keys, 24-byte random nonce per call).
func XChaCha20() EncryptionProvider { return xchachaProvider{} }

// encryptionByID resolves a header provider id when reconstructing a
// reader-side pipeline.
func encryptionByID(id uint8) (EncryptionProvider, error) {
	switch id {
	case encryptionAESGCMID:
		return AESGCM(), nil
	case encryptionXChaChaID:
		return XChaCha20(), nil
	default:
		return nil, fmt.Errorf("unknown encryption provider id %d", id)
	}
}

func randomKey(size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return key, nil
}

// seal encrypts plaintext with the given AEAD, prefixing a fresh random nonce.
func seal(aead cipher.AEAD, plaintext []byte) ([]byte, error) {
	nonceSize := aead.NonceSize()
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return aead.Seal(out, out[:nonceSize], plaintext, nil), nil
}

// open decrypts nonce-prefixed ciphertext. Tag mismatches surface as
// ErrAuthentication.
func open(aead cipher.AEAD, ciphertext []byte) ([]byte, error) {
	minLen := aead.NonceSize() + aead.Overhead()
	if len(ciphertext) < minLen {
		return nil, fmt.Errorf("%w: ciphertext is %d bytes, minimum is %d (nonce + tag)",
			ErrAuthentication, len(ciphertext), minLen)
	}
	nonce := ciphertext[:aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, ciphertext[aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return plaintext, nil
}

// AES-256-GCM.

type aesgcmProvider struct{}

func (aesgcmProvider) ID() uint8    { return encryptionAESGCMID }
func (aesgcmProvider) Name() string { return "aes-256-gcm" }
func (aesgcmProvider) KeySize() int { return 32 }

func (p aesgcmProvider) GenerateKey() ([]byte, error) {
	return randomKey(p.KeySize())
}

func (p aesgcmProvider) aead(key []byte) (cipher.AEAD, error) {
	if len(key) != p.KeySize() {
		return nil, fmt.Errorf("aes-256-gcm: key must be %d bytes, got %d", p.KeySize(), len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes-256-gcm: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes-256-gcm: %w", err)
	}
	return aead, nil
}

func (p aesgcmProvider) Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := p.aead(key)
	if err != nil {
		return nil, err
	}
	return seal(aead, plaintext)
}

func (p aesgcmProvider) Decrypt(ciphertext, key []byte) ([]byte, error) {
	aead, err := p.aead(key)
	if err != nil {
		return nil, err
	}
	return open(aead, ciphertext)
}

// XChaCha20-Poly1305.

type xchachaProvider struct{}

func (xchachaProvider) ID() uint8    { return encryptionXChaChaID }
func (xchachaProvider) Name() string { return "xchacha20-poly1305" }
func (xchachaProvider) KeySize() int { return chacha20poly1305.KeySize }

func (p xchachaProvider) GenerateKey() ([]byte, error) {
	return randomKey(p.KeySize())
}

func (p xchachaProvider) Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha20-poly1305: %w", err)
	}
	return seal(aead, plaintext)
}

func (p xchachaProvider) Decrypt(ciphertext, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha20-poly1305: %w", err)
	}
	return open(aead, ciphertext)
}
