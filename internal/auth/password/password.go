// Package password implements the credential codec used by ReelComic
// authentication. Hashes are self-describing so the iteration count can be
// raised later without invalidating stored credentials.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	algoTag = "pbkdf2_sha256"

	defaultIterations = 120000
	saltLen           = 16
	keyLen            = 32
)

// Hash derives a salted PBKDF2-SHA256 hash encoded as
// pbkdf2_sha256$<iterations>$<salt>$<key> with base64url fields.
func Hash(password string) (string, error) {
	return hashWithIterations(password, defaultIterations)
}

func hashWithIterations(password string, iterations int) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)

	saltB64 := base64.RawURLEncoding.EncodeToString(salt)
	keyB64 := base64.RawURLEncoding.EncodeToString(key)
	return fmt.Sprintf("%s$%d$%s$%s", algoTag, iterations, saltB64, keyB64), nil
}

// Verify checks whether a password matches the encoded hash. A malformed
// encoding verifies as false; it never surfaces an error into the caller's
// auth decision.
func Verify(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != algoTag {
		return false
	}

	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return false
	}

	salt, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	expected, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil || len(expected) == 0 {
		return false
	}

	check := pbkdf2.Key([]byte(password), salt, iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(expected, check) == 1
}
