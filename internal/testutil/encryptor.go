package testutil

import (
	"seren/internal/capture"
	"seren/internal/encryption"
)

// NewTestEncryptor returns a deterministic encryptor whose passphrase is "".
func NewTestEncryptor() capture.Encryptor {
	return encryption.NewTestEncryptor()
}
