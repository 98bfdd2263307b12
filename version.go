package smallbin

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateVersion stores data as a new version of the entry with id
// baseID and returns the id of the version entry. Version chains are
// linear: versions hang off the base entry only, and creating a
// version of a version fails with a StateError. The base keeps
// version number 1; the first revision is number 2.
//
// A version entry inherits the base's file name, tags and content
// type, starts with empty custom metadata, and always seals a blob of
// its own; version content is never deduplicated.
func (db *DB) CreateVersion(baseID string, data []byte, comment string) (string, error) {
	if err := db.checkOpen("create version"); err != nil {
		return "", err
	}
	if err := validateID(baseID); err != nil {
		return "", err
	}
	if err := validateSourceData(data); err != nil {
		return "", err
	}

	base, ok := db.catalog.lookup(baseID)
	if !ok {
		return "", NewNotFoundError(baseID)
	}
	if base.IsVersion() {
		return "", NewStateError("create version",
			fmt.Sprintf("entry %s is itself a version of %s; versions chain off the base entry only", baseID, base.BaseFileID))
	}

	sum, err := ComputeChecksum(data, db.checksum)
	if err != nil {
		return "", err
	}
	ciphertext, iv, compressed, err := db.sealContent(data)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	entry := &FileEntry{
		ID:                uuid.NewString(),
		FileName:          base.FileName,
		Tags:              cloneStrings(base.Tags),
		CreatedAt:         now,
		UpdatedAt:         now,
		FileSize:          int64(len(data)),
		ContentType:       base.ContentType,
		IsCompressed:      compressed,
		CustomMetadata:    make(map[string]string),
		EncryptedData:     ciphertext,
		IV:                iv,
		Checksum:          sum,
		ChecksumAlgorithm: db.checksum,
		BaseFileID:        base.ID,
		VersionComment:    comment,
		VersionNumber:     len(base.VersionIDs) + 2,
	}

	base.VersionIDs = append(base.VersionIDs, entry.ID)
	base.UpdatedAt = now
	db.catalog.Files[entry.ID] = entry
	db.dirty = true

	db.logger.Debug("version created",
		zap.String("id", entry.ID),
		zap.String("base", base.ID),
		zap.Int("version", entry.VersionNumber))

	if err := db.flushAfterMutation(); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// GetVersionHistory returns copies of every surviving entry in the
// version chain that id belongs to, base first and then ascending by
// version number. The id may name the base or any version. Chain
// links that point at deleted entries are skipped.
func (db *DB) GetVersionHistory(id string) ([]*FileEntry, error) {
	if err := db.checkOpen("version history"); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	entry, ok := db.catalog.lookup(id)
	if !ok {
		return nil, NewNotFoundError(id)
	}
	return db.historyOf(entry), nil
}

// historyOf resolves the full chain for an entry. A version whose base
// was deleted has no reachable chain and yields just itself.
func (db *DB) historyOf(entry *FileEntry) []*FileEntry {
	base := entry
	if entry.IsVersion() {
		b, ok := db.catalog.lookup(entry.BaseFileID)
		if !ok {
			db.logger.Warn("version's base entry no longer exists",
				zap.String("id", entry.ID),
				zap.String("base", entry.BaseFileID))
			return []*FileEntry{entry.Clone()}
		}
		base = b
	}

	history := []*FileEntry{base.Clone()}
	for _, vid := range base.VersionIDs {
		v, ok := db.catalog.lookup(vid)
		if !ok {
			db.logger.Debug("skipping deleted version",
				zap.String("base", base.ID),
				zap.String("version", vid))
			continue
		}
		history = append(history, v.Clone())
	}
	sort.Slice(history[1:], func(i, j int) bool {
		return history[i+1].VersionNumber < history[j+1].VersionNumber
	})
	return history
}

// GetVersion returns the content of the given version of the chain
// that id belongs to. Version 1 is the base entry itself.
func (db *DB) GetVersion(id string, version int) ([]byte, error) {
	if err := db.checkOpen("get version"); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	if version < 1 {
		return nil, NewArgumentError("version", fmt.Sprintf("version numbers start at 1, got %d", version))
	}
	entry, ok := db.catalog.lookup(id)
	if !ok {
		return nil, NewNotFoundError(id)
	}
	for _, member := range db.historyOf(entry) {
		if member.VersionNumber == version {
			return db.GetFile(member.ID)
		}
	}
	return nil, &NotFoundError{ID: id, Version: version}
}

// GetLatestVersion returns the content of the newest version in the
// chain that id belongs to, or the base content when no versions
// exist.
func (db *DB) GetLatestVersion(id string) ([]byte, error) {
	if err := db.checkOpen("get latest version"); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	entry, ok := db.catalog.lookup(id)
	if !ok {
		return nil, NewNotFoundError(id)
	}
	history := db.historyOf(entry)
	return db.GetFile(history[len(history)-1].ID)
}
