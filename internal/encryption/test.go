package encryption

import (
	"bytes"
	"fmt"
	"io"

	"seren/internal/capture"
)

// testHeader marks data "encrypted" by TestEncryptor.
var testHeader = []byte("SERENC\x00\x00")

// TestEncryptor is a deterministic stand-in for AgeEncryptor. Encrypt
// prepends a fixed header and Decrypt strips it, so ciphertext differs from
// plaintext without any key material.
type TestEncryptor struct {
	passphrase string
	configured bool
}

var _ capture.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a TestEncryptor that is already configured with
// an empty passphrase.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{configured: true}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = passphrase
	e.configured = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

// Unlock fails when passphrase differs from the one given to Setup.
func (e *TestEncryptor) Unlock(passphrase string) (capture.DecryptionContext, error) {
	if passphrase != e.passphrase {
		return nil, fmt.Errorf("decrypting private key (wrong passphrase?)")
	}
	return TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return e.configured
}

// TestDecryptionContext strips the header written by TestEncryptor.
type TestDecryptionContext struct{}

func (TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
