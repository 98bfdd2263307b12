package smallbin

import (
	"crypto/sha1"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters. All three are part of the on-disk format:
// a database written with one set of parameters cannot be opened with
// another, so they are fixed rather than configurable.
const (
	// keySize is the derived AES-256 key length in bytes
	keySize = 32
	// keyIterations is the PBKDF2 work factor
	keyIterations = 10000
)

// keySalt is the fixed 13-byte key derivation salt shared by every
// database file.
var keySalt = []byte("SmallBinSalt1")

// DeriveKey derives the 32-byte AES-256 key for a password using
// PBKDF2-HMAC-SHA1 with the fixed salt and iteration count. The
// derivation is deterministic: the same password always yields the
// same key.
func DeriveKey(password string) []byte {
	return pbkdf2.Key([]byte(password), keySalt, keyIterations, keySize, sha1.New)
}
