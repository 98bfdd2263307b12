package smallbin

import (
	"fmt"
	"strings"
	"time"

	"github.com/absfs/absfs"
	"go.uber.org/zap"
)

// ChecksumAlgorithm identifies the digest used for content checksums.
// The value is stored by name in the catalog, so the constants are the
// serialized form.
type ChecksumAlgorithm string

const (
	// ChecksumSHA256 is the default content digest
	ChecksumSHA256 ChecksumAlgorithm = "SHA256"
	// ChecksumSHA512 provides a longer digest at a higher cost
	ChecksumSHA512 ChecksumAlgorithm = "SHA512"
	// ChecksumSHA1 is kept for compatibility with existing databases
	ChecksumSHA1 ChecksumAlgorithm = "SHA1"
	// ChecksumMD5 is kept for compatibility with existing databases
	ChecksumMD5 ChecksumAlgorithm = "MD5"
)

// String returns the serialized name of the algorithm
func (a ChecksumAlgorithm) String() string {
	return string(a)
}

// Valid reports whether the algorithm is one of the supported digests
func (a ChecksumAlgorithm) Valid() bool {
	switch a {
	case ChecksumSHA256, ChecksumSHA512, ChecksumSHA1, ChecksumMD5:
		return true
	default:
		return false
	}
}

// ParseChecksumAlgorithm converts a name to a ChecksumAlgorithm.
// Matching is case-insensitive; an unknown name is a ValidationError.
func ParseChecksumAlgorithm(name string) (ChecksumAlgorithm, error) {
	algo := ChecksumAlgorithm(strings.ToUpper(strings.TrimSpace(name)))
	if !algo.Valid() {
		return "", &ValidationError{
			Field:   "checksum algorithm",
			Value:   name,
			Message: fmt.Sprintf("unsupported algorithm %q (want SHA256, SHA512, SHA1 or MD5)", name),
		}
	}
	return algo, nil
}

// Default option values.
const (
	// DefaultContentType is assigned when a save does not name one
	DefaultContentType = "application/octet-stream"
	// DefaultCacheMaxBytes bounds the plaintext read cache
	DefaultCacheMaxBytes = 32 << 20
	// DefaultCacheTTL is how long a cached payload stays valid
	DefaultCacheTTL = 5 * time.Minute
	// MinPasswordLength is the weakest password Open accepts
	MinPasswordLength = 8
)

// Options configures a database handle. The zero value gives the
// defaults: compression on, manual save, SHA256 checksums, no logging,
// the operating-system filesystem, and a 32 MiB / 5 minute read cache.
type Options struct {
	// DisableCompression stores payloads without the compression pass
	DisableCompression bool

	// AutoSave persists the catalog after every successful mutation
	AutoSave bool

	// Checksum selects the digest for new entries (default SHA256)
	Checksum ChecksumAlgorithm

	// Logger receives engine diagnostics (default: a no-op logger)
	Logger *zap.Logger

	// FS is the filesystem the database file lives on (default: the
	// operating system's)
	FS absfs.FileSystem

	// DisableCache turns off the plaintext read cache
	DisableCache bool

	// CacheMaxBytes bounds the read cache (default 32 MiB)
	CacheMaxBytes int64

	// CacheTTL expires cached payloads (default 5 minutes)
	CacheTTL time.Duration
}

// withDefaults returns a copy of opts with zero values replaced by the
// documented defaults. A nil opts means all defaults.
func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.Checksum == "" {
		opts.Checksum = ChecksumSHA256
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.FS == nil {
		opts.FS = newOSFS()
	}
	if opts.CacheMaxBytes == 0 {
		opts.CacheMaxBytes = DefaultCacheMaxBytes
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	return opts
}

// validate checks option values that have no sensible fallback
func (o *Options) validate() error {
	if !o.Checksum.Valid() {
		return &ValidationError{
			Field:   "Checksum",
			Value:   string(o.Checksum),
			Message: "unsupported checksum algorithm",
		}
	}
	if o.CacheMaxBytes < 0 {
		return &ValidationError{
			Field:   "CacheMaxBytes",
			Value:   o.CacheMaxBytes,
			Message: "cache size cannot be negative",
		}
	}
	if o.CacheTTL < 0 {
		return &ValidationError{
			Field:   "CacheTTL",
			Value:   o.CacheTTL,
			Message: "cache TTL cannot be negative",
		}
	}
	return nil
}
