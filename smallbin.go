package smallbin

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DB is a single-file encrypted store for small files. All content and
// metadata live in one catalog that is held in memory while the
// database is open and written back through a crash-safe save
// protocol.
//
// A DB is not safe for concurrent use. Callers that share one across
// goroutines must serialize access themselves; the only component with
// internal locking is the read cache.
type DB struct {
	path    string
	fs      absfs.FileSystem
	engine  CipherEngine
	logger  *zap.Logger
	cache   *Cache
	catalog *Catalog

	checksum ChecksumAlgorithm
	compress bool
	autoSave bool

	dirty  bool
	closed bool
}

// Open loads the database at path, creating a fresh empty catalog if
// no file exists there yet. A freshly created database is dirty and is
// written out by the first Save or Close. The password must satisfy
// ValidatePassword; opening an existing file with the wrong password
// fails with an EncryptionError.
func Open(path, password string, opts *Options) (*DB, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	o := opts.withDefaults()
	if err := o.validate(); err != nil {
		return nil, err
	}

	engine, err := NewAESCBCEngine(DeriveKey(password))
	if err != nil {
		return nil, err
	}
	p := newPersister(o.FS, path, engine, o.Logger)

	var cat *Catalog
	dirty := false
	if p.exists(path) {
		cat, err = p.load()
		if err != nil {
			return nil, err
		}
		o.Logger.Info("database opened",
			zap.String("path", path),
			zap.Int("entries", len(cat.Files)))
	} else {
		cat = newCatalog()
		dirty = true
		if p.exists(path + backupSuffix) {
			o.Logger.Warn("no database file but a backup exists; RestoreFromBackup can recover it",
				zap.String("path", path))
		}
		o.Logger.Info("created new database", zap.String("path", path))
	}

	var cache *Cache
	if !o.DisableCache {
		cache = NewCache(o.CacheMaxBytes, o.CacheTTL, o.Logger)
	}

	return &DB{
		path:     path,
		fs:       o.FS,
		engine:   engine,
		logger:   o.Logger,
		cache:    cache,
		catalog:  cat,
		checksum: o.Checksum,
		compress: !o.DisableCompression,
		autoSave: o.AutoSave,
		dirty:    dirty,
	}, nil
}

// SaveFile reads the file at path through the database's filesystem
// and stores its content under the file's base name. It returns the id
// of the new entry.
func (db *DB) SaveFile(path string, tags []string, contentType string) (string, error) {
	if err := db.checkOpen("save file"); err != nil {
		return "", err
	}
	if strings.TrimSpace(path) == "" {
		return "", NewArgumentError("path", "source path cannot be empty")
	}

	f, err := db.fs.Open(path)
	if err != nil {
		return "", NewOperationError("save file", fmt.Errorf("open source %s: %w", path, err))
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return "", NewOperationError("save file", fmt.Errorf("read source %s: %w", path, err))
	}

	return db.SaveBytes(filepath.Base(path), data, tags, contentType)
}

// SaveBytes stores an in-memory payload under the given name and
// returns the id of the new entry. Content whose checksum matches an
// existing entry is deduplicated: the new entry references the
// original's blob instead of carrying its own, and the original
// records the new id among its duplicates. An empty contentType
// defaults to application/octet-stream.
func (db *DB) SaveBytes(name string, data []byte, tags []string, contentType string) (string, error) {
	if err := db.checkOpen("save bytes"); err != nil {
		return "", err
	}
	if err := validateEntryName(name); err != nil {
		return "", err
	}
	if err := validateSourceData(data); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	entry, err := db.storeContent(name, data, tags, contentType)
	if err != nil {
		return "", err
	}

	db.logger.Debug("entry stored",
		zap.String("id", entry.ID),
		zap.String("name", entry.FileName),
		zap.Int64("bytes", entry.FileSize),
		zap.Bool("deduplicated", entry.IsDuplicate()))

	if err := db.flushAfterMutation(); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// storeContent builds a catalog entry for the payload and inserts it,
// either aliasing an existing entry's blob when the checksum matches
// or sealing a blob of its own.
func (db *DB) storeContent(name string, data []byte, tags []string, contentType string) (*FileEntry, error) {
	sum, err := ComputeChecksum(data, db.checksum)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &FileEntry{
		ID:                uuid.NewString(),
		FileName:          name,
		Tags:              normalizeTags(tags),
		CreatedAt:         now,
		UpdatedAt:         now,
		FileSize:          int64(len(data)),
		ContentType:       contentType,
		CustomMetadata:    make(map[string]string),
		Checksum:          sum,
		ChecksumAlgorithm: db.checksum,
		VersionNumber:     1,
	}

	if orig := db.catalog.findDedupTarget(sum, db.checksum); orig != nil {
		entry.OriginalFileID = orig.ID
		entry.IsCompressed = orig.IsCompressed
		orig.DuplicateFileIDs = append(orig.DuplicateFileIDs, entry.ID)
		db.logger.Debug("content deduplicated",
			zap.String("id", entry.ID),
			zap.String("original", orig.ID))
	} else {
		ciphertext, iv, compressed, err := db.sealContent(data)
		if err != nil {
			return nil, err
		}
		entry.EncryptedData = ciphertext
		entry.IV = iv
		entry.IsCompressed = compressed
	}

	db.catalog.Files[entry.ID] = entry
	db.dirty = true
	return entry, nil
}

// sealContent compresses (when enabled) and encrypts a payload,
// returning the blob fields for a new entry.
func (db *DB) sealContent(data []byte) (ciphertext, iv []byte, compressed bool, err error) {
	payload := data
	if db.compress {
		payload, err = compressBytes(data)
		if err != nil {
			return nil, nil, false, NewOperationError("compress", err)
		}
		compressed = true
	}
	ciphertext, iv, err = db.engine.Encrypt(payload)
	if err != nil {
		return nil, nil, false, err
	}
	return ciphertext, iv, compressed, nil
}

// GetFile returns the decrypted content of the entry with the given
// id. Reads are served from the cache when possible; on a miss the
// blob is decrypted, decompressed and checked against the stored
// checksum before being returned and cached.
func (db *DB) GetFile(id string) ([]byte, error) {
	if err := db.checkOpen("get file"); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	if db.cache != nil {
		if data, ok := db.cache.Get(id); ok {
			return data, nil
		}
	}

	entry, ok := db.catalog.lookup(id)
	if !ok {
		return nil, NewNotFoundError(id)
	}
	data, err := db.contentOf(entry)
	if err != nil {
		return nil, err
	}

	if db.cache != nil {
		db.cache.Put(id, data)
	}
	return data, nil
}

// contentOf decrypts, decompresses and verifies an entry's payload.
// Duplicates resolve to the original's blob first; the checksum is
// always the entry's own.
func (db *DB) contentOf(entry *FileEntry) ([]byte, error) {
	owner := entry
	if entry.IsDuplicate() {
		o, ok := db.catalog.lookup(entry.OriginalFileID)
		if !ok {
			return nil, &CorruptionError{
				ID:      entry.ID,
				Message: fmt.Sprintf("duplicate references missing original %s", entry.OriginalFileID),
			}
		}
		owner = o
	}

	plaintext, err := db.engine.Decrypt(owner.EncryptedData, owner.IV)
	if err != nil {
		return nil, err
	}
	if owner.IsCompressed {
		plaintext, err = decompressBytes(plaintext)
		if err != nil {
			return nil, err
		}
	}

	ok, err := VerifyChecksum(plaintext, entry.Checksum, entry.ChecksumAlgorithm)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &CorruptionError{
			ID:      entry.ID,
			Message: "content does not match its stored checksum",
		}
	}
	return plaintext, nil
}

// GetEntry returns a copy of the catalog entry for the given id.
// Mutating the copy does not touch the catalog; use UpdateMetadata for
// that.
func (db *DB) GetEntry(id string) (*FileEntry, error) {
	if err := db.checkOpen("get entry"); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	entry, ok := db.catalog.lookup(id)
	if !ok {
		return nil, NewNotFoundError(id)
	}
	return entry.Clone(), nil
}

// ListFiles returns copies of every entry in the catalog, sorted by
// file name and then id.
func (db *DB) ListFiles() ([]*FileEntry, error) {
	if err := db.checkOpen("list files"); err != nil {
		return nil, err
	}
	return db.Search(SearchCriteria{})
}

// DeleteFile removes the entry with the given id from the catalog and
// drops its cached content. Deletion does not cascade: duplicates that
// alias the deleted entry's blob become unreadable, and version links
// naming the id are skipped during history resolution.
func (db *DB) DeleteFile(id string) error {
	if err := db.checkOpen("delete file"); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	entry, ok := db.catalog.lookup(id)
	if !ok {
		return NewNotFoundError(id)
	}

	delete(db.catalog.Files, id)
	if db.cache != nil {
		db.cache.Remove(id)
	}
	db.dirty = true

	db.logger.Debug("entry deleted",
		zap.String("id", id),
		zap.String("name", entry.FileName),
		zap.Int("duplicates", len(entry.DuplicateFileIDs)))

	return db.flushAfterMutation()
}

// UpdateMetadata applies mutate to the live catalog entry for id. The
// mutator sees the entry itself, so any change it makes sticks, but
// blob fields it overwrites are its own responsibility; the usual use
// is tags, file name, content type, and CustomMetadata. UpdatedAt is
// stamped only when the mutator succeeds. A mutator that returns an
// error or panics leaves whatever it already changed in memory, and
// the catalog is marked dirty either way.
func (db *DB) UpdateMetadata(id string, mutate func(*FileEntry) error) (err error) {
	if err := db.checkOpen("update metadata"); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	if mutate == nil {
		return NewArgumentError("mutate", "mutator cannot be nil")
	}
	entry, ok := db.catalog.lookup(id)
	if !ok {
		return NewNotFoundError(id)
	}

	db.dirty = true
	defer func() {
		if r := recover(); r != nil {
			err = &OperationError{
				Operation: "update metadata",
				Message:   fmt.Sprintf("metadata mutator panicked: %v", r),
			}
		}
	}()

	if merr := mutate(entry); merr != nil {
		return NewOperationError("update metadata", merr)
	}
	entry.UpdatedAt = time.Now().UTC()

	db.logger.Debug("metadata updated", zap.String("id", id))
	return db.flushAfterMutation()
}

// Save writes the catalog to disk through the safe-save protocol. A
// clean catalog is a no-op; the dirty flag is cleared only after the
// file is fully in place.
func (db *DB) Save() error {
	if err := db.checkOpen("save"); err != nil {
		return err
	}
	if !db.dirty {
		db.logger.Debug("save skipped, catalog unchanged", zap.String("path", db.path))
		return nil
	}
	p := newPersister(db.fs, db.path, db.engine, db.logger)
	if err := p.save(db.catalog); err != nil {
		return err
	}
	db.dirty = false
	return nil
}

// Close flushes any unsaved changes and marks the handle closed. Close
// never returns an error: a failed final save is logged and the
// in-memory state discarded, since the handle is unusable afterwards
// either way. Closing twice is harmless; every other method fails with
// a StateError once the handle is closed.
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true

	if db.dirty {
		p := newPersister(db.fs, db.path, db.engine, db.logger)
		if err := p.save(db.catalog); err != nil {
			db.logger.Error("final save on close failed, unsaved changes lost",
				zap.String("path", db.path),
				zap.Error(err))
		} else {
			db.dirty = false
		}
	}
	db.logger.Debug("database closed", zap.String("path", db.path))
	return nil
}

// CacheStats reports the read cache's counters. A database opened with
// DisableCache reports zeroes.
func (db *DB) CacheStats() (CacheStats, error) {
	if err := db.checkOpen("cache stats"); err != nil {
		return CacheStats{}, err
	}
	if db.cache == nil {
		return CacheStats{}, nil
	}
	return db.cache.Stats(), nil
}

// flushAfterMutation persists the catalog when the database was opened
// with AutoSave.
func (db *DB) flushAfterMutation() error {
	if !db.autoSave {
		return nil
	}
	return db.Save()
}

func (db *DB) checkOpen(op string) error {
	if db.closed {
		return &StateError{Operation: op, Message: ErrClosed.Error()}
	}
	return nil
}

// normalizeTags trims, drops empties and deduplicates while keeping
// first-seen order.
func normalizeTags(tags []string) []string {
	out := []string{}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		seen := false
		for _, have := range out {
			if have == tag {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, tag)
		}
	}
	return out
}
