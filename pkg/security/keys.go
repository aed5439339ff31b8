package security

import (
	"errors"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	derivedKeyLn = 32
)

// DeriveKey stretches a device secret into an AES-256 key. The salt must be
// stable per installation so that previously written cache entries remain
// decryptable across restarts.
func DeriveKey(secret, salt []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("secret is required")
	}
	if len(salt) < 8 {
		return nil, errors.New("salt must be at least 8 bytes")
	}
	return scrypt.Key(secret, salt, scryptN, scryptR, scryptP, derivedKeyLn)
}
