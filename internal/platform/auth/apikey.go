package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidAPIKey = errors.New("invalid api key")

// GenerateAPIKey returns the raw key (shown once) and its bcrypt hash.
// The first 12 characters double as a lookup prefix so verification does not
// have to bcrypt-compare against every stored key.
func GenerateAPIKey() (raw, hash, prefix string, err error) {
	buf := make([]byte, 24)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", err
	}
	raw = "slk_" + hex.EncodeToString(buf)

	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", err
	}

	return raw, string(hashed), raw[:12], nil
}

func VerifyAPIKey(hash, raw string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)); err != nil {
		return ErrInvalidAPIKey
	}
	return nil
}
