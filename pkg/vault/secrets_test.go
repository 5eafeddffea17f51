package vault

import (
	"strings"
	"testing"
)

func TestFieldEncryptionRoundTrip(t *testing.T) {
	pair, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("keypair generation failed: %v", err)
	}

	fields := Fields{
		FieldAWSAccessKeyID:     "AKIAEXAMPLE",
		FieldAWSSecretAccessKey: "wJalrXUtnFEMI/K7MDENG",
		FieldAzureClientID:      "", // sparse: azure not configured
	}

	encrypted, err := EncryptFields(fields, pair.PublicKey)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	// Non-empty fields are ciphertext, empty fields pass through as empty.
	if encrypted[FieldAWSAccessKeyID] == fields[FieldAWSAccessKeyID] {
		t.Error("access key was not encrypted")
	}
	if encrypted[FieldAzureClientID] != "" {
		t.Errorf("empty field was not passed through: %q", encrypted[FieldAzureClientID])
	}

	decrypted, err := DecryptFields(encrypted, pair.PrivateKey)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	for name, want := range fields {
		if decrypted[name] != want {
			t.Errorf("field %s: got %q, want %q", name, decrypted[name], want)
		}
	}
}

func TestDecryptFieldsAllOrNothing(t *testing.T) {
	pair, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("keypair generation failed: %v", err)
	}

	encrypted, err := EncryptFields(Fields{
		FieldAWSAccessKeyID:     "AKIAEXAMPLE",
		FieldAWSSecretAccessKey: "secret",
	}, pair.PublicKey)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	// Corrupt one field: the whole decrypt must fail, not return a partial map.
	encrypted[FieldAWSSecretAccessKey] = "bm90IGEgcmVhbCBjaXBoZXJ0ZXh0"

	if _, err := DecryptFields(encrypted, pair.PrivateKey); err == nil {
		t.Fatal("expected decrypt to abort on corrupted field")
	}
}

func TestDecryptFieldsWrongIdentity(t *testing.T) {
	owner, _ := GenerateKeyPair()
	intruder, _ := GenerateKeyPair()

	encrypted, err := EncryptFields(Fields{FieldAWSAccessKeyID: "AKIA"}, owner.PublicKey)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	_, err = DecryptFields(encrypted, intruder.PrivateKey)
	if err == nil {
		t.Fatal("expected decrypt failure with wrong identity")
	}
	if !strings.Contains(err.Error(), FieldAWSAccessKeyID) {
		t.Errorf("error should name the failing field: %v", err)
	}
}

func TestEncryptFieldsInvalidPublicKey(t *testing.T) {
	if _, err := EncryptFields(Fields{"x": "y"}, "not-a-key"); err == nil {
		t.Fatal("expected error for invalid public key")
	}
}
