// Package vault manages the cryptographic material protecting per-user
// cloud credentials. Each user owns an age X25519 keypair; the private key
// is encrypted at rest with XChaCha20-Poly1305 under a master key derived
// from the user's password with argon2id. Credential fields are encrypted
// to the user's public key, so nothing in the system can read a user's
// secrets without the caller-supplied master key.
//
// Private keys and master keys exist in memory only for the duration of a
// call; callers zero them afterwards (see Zero).
package vault

import (
	"crypto/rand"
	"errors"
	"fmt"

	"filippo.io/age"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrAuthentication is returned when a master key fails to decrypt a
// private key blob. Decryption is authenticated: a wrong key always fails,
// it never yields garbage plaintext.
var ErrAuthentication = errors.New("vault: authentication failed")

// KDFVersion tags the derivation parameters in effect when a key was
// derived. Bump it whenever the cost parameters below change so stored
// material can be migrated on next login.
const KDFVersion = 1

// argon2id cost parameters, fixed per KDFVersion.
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024 // KiB
	kdfThreads = 4
	kdfKeyLen  = chacha20poly1305.KeySize
	saltLen    = 16
)

// KeyPair is a user's asymmetric key material. PublicKey is safe to store
// and publish; PrivateKey must be encrypted with EncryptPrivateKey before
// it is persisted anywhere.
type KeyPair struct {
	// PublicKey is the age recipient string (age1...).
	PublicKey string

	// PrivateKey is the age identity string (AGE-SECRET-KEY-1...).
	PrivateKey string
}

// DeriveMasterKey derives the user's master key from a password. A nil salt
// requests a fresh random salt (new user); logins pass the stored salt so
// the same key is derived.
func DeriveMasterKey(password string, salt []byte) (key, outSalt []byte, err error) {
	if password == "" {
		return nil, nil, fmt.Errorf("vault: password must not be empty")
	}
	if salt == nil {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, fmt.Errorf("vault: generating salt: %w", err)
		}
	} else if len(salt) != saltLen {
		return nil, nil, fmt.Errorf("vault: salt must be %d bytes, got %d", saltLen, len(salt))
	}

	key = argon2.IDKey([]byte(password), salt, kdfTime, kdfMemory, kdfThreads, kdfKeyLen)
	return key, salt, nil
}

// GenerateKeyPair creates a new age X25519 keypair for a user.
func GenerateKeyPair() (*KeyPair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("vault: generating keypair: %w", err)
	}
	return &KeyPair{
		PublicKey:  identity.Recipient().String(),
		PrivateKey: identity.String(),
	}, nil
}

// EncryptPrivateKey seals a private key under the master key with
// XChaCha20-Poly1305. The random nonce is prepended to the ciphertext.
func EncryptPrivateKey(privateKey string, masterKey []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(masterKey)
	if err != nil {
		return nil, fmt.Errorf("vault: bad master key: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: generating nonce: %w", err)
	}

	blob := aead.Seal(nonce, nonce, []byte(privateKey), nil)
	return blob, nil
}

// DecryptPrivateKey opens a private key blob. A wrong master key (or a
// tampered blob) yields ErrAuthentication.
func DecryptPrivateKey(blob, masterKey []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(masterKey)
	if err != nil {
		return "", fmt.Errorf("vault: bad master key: %w", err)
	}
	if len(blob) < aead.NonceSize() {
		return "", ErrAuthentication
	}

	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plaintext), nil
}

// RekeyResult is the replacement key material produced by Rekey. The caller
// persists Blob, Salt, and KDFVersion in a single write so a failure
// anywhere before that write leaves the old material fully intact.
type RekeyResult struct {
	// Blob is the private key re-encrypted under the new master key.
	Blob []byte

	// Salt is the new KDF salt.
	Salt []byte

	// KDFVersion is the derivation version the new material uses.
	KDFVersion int
}

// Rekey re-encrypts a private key blob for a password change: decrypt with
// the old master key, derive a new key and salt from the new password, and
// seal again. Rekey is pure: it never mutates stored state, so an error at
// any step leaves the original blob decryptable with the old password.
func Rekey(blob, oldMasterKey []byte, newPassword string) (*RekeyResult, error) {
	privateKey, err := DecryptPrivateKey(blob, oldMasterKey)
	if err != nil {
		return nil, err
	}

	newKey, newSalt, err := DeriveMasterKey(newPassword, nil)
	if err != nil {
		return nil, err
	}
	defer Zero(newKey)

	newBlob, err := EncryptPrivateKey(privateKey, newKey)
	if err != nil {
		return nil, err
	}

	return &RekeyResult{Blob: newBlob, Salt: newSalt, KDFVersion: KDFVersion}, nil
}

// Zero overwrites sensitive byte material in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
