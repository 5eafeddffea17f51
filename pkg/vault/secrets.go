package vault

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"filippo.io/age"
)

// Fields is a sparse map of credential field names to values. A user who
// has only configured one provider simply leaves the other provider's
// fields absent or empty.
type Fields map[string]string

// Canonical credential field names, shared between the vault and the
// provider drivers.
const (
	FieldAWSAccessKeyID     = "aws_access_key_id"
	FieldAWSSecretAccessKey = "aws_secret_access_key"
	FieldAzureClientID      = "azure_client_id"
	FieldAzureClientSecret  = "azure_client_secret"
	FieldAzureTenantID      = "azure_tenant_id"
	FieldAzureSubscription  = "azure_subscription_id"
)

// EncryptFields encrypts every non-empty field to the user's public key.
// Empty fields pass through as empty: sparse secrets stay sparse and an
// empty string is never mistaken for ciphertext.
func EncryptFields(fields Fields, publicKey string) (Fields, error) {
	recipient, err := age.ParseX25519Recipient(publicKey)
	if err != nil {
		return nil, fmt.Errorf("vault: invalid public key: %w", err)
	}

	out := make(Fields, len(fields))
	for name, value := range fields {
		if value == "" {
			out[name] = ""
			continue
		}
		sealed, err := sealField(value, recipient)
		if err != nil {
			return nil, fmt.Errorf("vault: encrypting field %s: %w", name, err)
		}
		out[name] = sealed
	}
	return out, nil
}

// DecryptFields decrypts every non-empty field with the user's private key.
// Any single field that fails to decrypt aborts the whole call; partially
// decrypted credential sets are never returned.
func DecryptFields(encrypted Fields, privateKey string) (Fields, error) {
	identity, err := age.ParseX25519Identity(privateKey)
	if err != nil {
		return nil, fmt.Errorf("vault: invalid private key: %w", err)
	}

	out := make(Fields, len(encrypted))
	for name, value := range encrypted {
		if value == "" {
			out[name] = ""
			continue
		}
		plain, err := openField(value, identity)
		if err != nil {
			return nil, fmt.Errorf("vault: decrypting field %s: %w", name, err)
		}
		out[name] = plain
	}
	return out, nil
}

// sealField age-encrypts one value and base64-encodes the ciphertext for
// storage in a text column.
func sealField(value string, recipient age.Recipient) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(w, value); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// openField reverses sealField.
func openField(encoded string, identity age.Identity) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	r, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return "", err
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
