package smallbin

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"
)

// ComputeChecksum returns the lowercase hex digest of data under the
// given algorithm. Checksums are always taken over the original
// plaintext, before compression or encryption.
func ComputeChecksum(data []byte, algo ChecksumAlgorithm) (string, error) {
	h, err := newDigest(algo)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum recomputes the digest of data with the algorithm the
// stored sum was produced by and compares the hex strings
// case-insensitively. Verifying against an empty stored sum is a
// StateError.
func VerifyChecksum(data []byte, storedSum string, algo ChecksumAlgorithm) (bool, error) {
	if storedSum == "" {
		return false, &StateError{
			Operation: "verify checksum",
			Message:   ErrMissingChecksum.Error(),
		}
	}

	sum, err := ComputeChecksum(data, algo)
	if err != nil {
		return false, err
	}

	return strings.EqualFold(sum, storedSum), nil
}

// newDigest maps an algorithm to its hash constructor
func newDigest(algo ChecksumAlgorithm) (hash.Hash, error) {
	switch algo {
	case ChecksumSHA256:
		return sha256.New(), nil
	case ChecksumSHA512:
		return sha512.New(), nil
	case ChecksumSHA1:
		return sha1.New(), nil
	case ChecksumMD5:
		return md5.New(), nil
	default:
		return nil, &ValidationError{
			Field:   "checksum algorithm",
			Value:   string(algo),
			Message: "unsupported checksum algorithm",
		}
	}
}
