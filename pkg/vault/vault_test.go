package vault

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveMasterKeyRoundTrip(t *testing.T) {
	key1, salt, err := DeriveMasterKey("correct horse battery staple", nil)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if len(key1) != kdfKeyLen || len(salt) != saltLen {
		t.Fatalf("unexpected key/salt length: %d/%d", len(key1), len(salt))
	}

	// Same password and salt derive the same key (login path).
	key2, _, err := DeriveMasterKey("correct horse battery staple", salt)
	if err != nil {
		t.Fatalf("re-derive failed: %v", err)
	}
	if !bytes.Equal(key1, key2) {
		t.Error("same password and salt derived different keys")
	}

	// A fresh salt derives a different key.
	key3, salt3, err := DeriveMasterKey("correct horse battery staple", nil)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if bytes.Equal(salt, salt3) {
		t.Error("fresh salts collide")
	}
	if bytes.Equal(key1, key3) {
		t.Error("different salts derived the same key")
	}
}

func TestDeriveMasterKeyRejectsEmptyPassword(t *testing.T) {
	if _, _, err := DeriveMasterKey("", nil); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestPrivateKeyEncryptionWrongKeyFailsAuthentication(t *testing.T) {
	pair, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("keypair generation failed: %v", err)
	}

	key, _, err := DeriveMasterKey("password-one", nil)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}

	blob, err := EncryptPrivateKey(pair.PrivateKey, key)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	got, err := DecryptPrivateKey(blob, key)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if got != pair.PrivateKey {
		t.Error("round-tripped private key differs")
	}

	wrongKey, _, err := DeriveMasterKey("password-two", nil)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if _, err := DecryptPrivateKey(blob, wrongKey); !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication for wrong key, got %v", err)
	}

	// Tampered blob also fails closed.
	blob[len(blob)-1] ^= 0xff
	if _, err := DecryptPrivateKey(blob, key); !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication for tampered blob, got %v", err)
	}
}

func TestDecryptPrivateKeyShortBlob(t *testing.T) {
	key, _, _ := DeriveMasterKey("pw", nil)
	if _, err := DecryptPrivateKey([]byte("short"), key); !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication for truncated blob, got %v", err)
	}
}

func TestRekeyIsAtomic(t *testing.T) {
	pair, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("keypair generation failed: %v", err)
	}
	oldKey, oldSalt, err := DeriveMasterKey("old-password", nil)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	oldBlob, err := EncryptPrivateKey(pair.PrivateKey, oldKey)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	// Wrong old key: Rekey fails and produces nothing. The stored blob is
	// untouched by construction; Rekey never mutates its inputs.
	wrongKey, _, _ := DeriveMasterKey("not-the-old-password", nil)
	if _, err := Rekey(oldBlob, wrongKey, "new-password"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if got, err := DecryptPrivateKey(oldBlob, oldKey); err != nil || got != pair.PrivateKey {
		t.Fatal("old blob no longer decryptable after failed rekey")
	}

	// Successful rekey: the new blob opens with the new password's key,
	// and the old material still works until the caller commits.
	result, err := Rekey(oldBlob, oldKey, "new-password")
	if err != nil {
		t.Fatalf("rekey failed: %v", err)
	}
	newKey, _, err := DeriveMasterKey("new-password", result.Salt)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	got, err := DecryptPrivateKey(result.Blob, newKey)
	if err != nil || got != pair.PrivateKey {
		t.Fatalf("new blob not decryptable with new key: %v", err)
	}
	if bytes.Equal(result.Salt, oldSalt) {
		t.Error("rekey reused the old salt")
	}
	if got, err := DecryptPrivateKey(oldBlob, oldKey); err != nil || got != pair.PrivateKey {
		t.Fatal("old blob corrupted by rekey")
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	if !bytes.Equal(b, []byte{0, 0, 0}) {
		t.Errorf("Zero left data behind: %v", b)
	}
}
