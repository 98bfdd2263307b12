package smallbin

import (
	"crypto/aes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/absfs/absfs"
	"go.uber.org/zap"
)

// Suffixes of the sidecar files the save protocol works with. For a
// database at P, the protocol writes P.tmp, keeps the previous good
// copy at P.bak, and parks the prior backup at P.bak.old while
// rotating.
const (
	tempSuffix      = ".tmp"
	backupSuffix    = ".bak"
	oldBackupSuffix = ".bak.old"
)

// persister owns the on-disk lifecycle of a single database file:
// writing it safely, reading it back, and recovering it from its
// backup. It holds no catalog state of its own.
type persister struct {
	fs     absfs.FileSystem
	path   string
	engine CipherEngine
	logger *zap.Logger
}

func newPersister(fs absfs.FileSystem, path string, engine CipherEngine, logger *zap.Logger) *persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &persister{
		fs:     fs,
		path:   path,
		engine: engine,
		logger: logger,
	}
}

// save writes the catalog to disk without ever leaving the database in
// an unloadable state. The full envelope is first written to P.tmp and
// validated, then the existing backup chain is rotated (P.bak becomes
// P.bak.old, the live file is copied to P.bak), and only then is the
// live file replaced by the temp file. At every point at least one of
// P and P.bak holds a loadable catalog.
//
// Sidecar files (P.tmp, P.bak.old) are removed on the way out whether
// the save succeeded or not. If the live file was lost mid-protocol,
// it is restored from P.bak before returning; a failure of that
// restore as well is reported as an OperationError carrying both
// errors.
func (p *persister) save(c *Catalog) (err error) {
	tmpPath := p.path + tempSuffix
	bakPath := p.path + backupSuffix
	oldBakPath := p.path + oldBackupSuffix

	defer func() {
		p.removeQuiet(tmpPath)
		p.removeQuiet(oldBakPath)
		if err != nil {
			err = p.restoreAfterFailure(err, bakPath)
		}
	}()

	if err = p.writeCatalogFile(tmpPath, c); err != nil {
		return err
	}

	info, statErr := p.fs.Stat(tmpPath)
	if statErr != nil {
		return NewOperationError("save", fmt.Errorf("stat temp file %s: %w", tmpPath, statErr))
	}
	if info.Size() <= int64(aes.BlockSize) {
		return NewStateError("save", fmt.Sprintf("temp file %s is only %d bytes, not a valid database", tmpPath, info.Size()))
	}

	if p.exists(p.path) {
		if p.exists(bakPath) {
			if p.exists(oldBakPath) {
				if err = p.fs.Remove(oldBakPath); err != nil {
					return NewOperationError("save", fmt.Errorf("remove stale backup %s: %w", oldBakPath, err))
				}
			}
			if err = p.fs.Rename(bakPath, oldBakPath); err != nil {
				return NewOperationError("save", fmt.Errorf("rotate backup %s: %w", bakPath, err))
			}
		}
		if err = p.copyFile(p.path, bakPath); err != nil {
			return NewOperationError("save", fmt.Errorf("back up database to %s: %w", bakPath, err))
		}
		if err = p.fs.Remove(p.path); err != nil {
			return NewOperationError("save", fmt.Errorf("remove old database %s: %w", p.path, err))
		}
	}

	if err = p.fs.Rename(tmpPath, p.path); err != nil {
		return NewOperationError("save", fmt.Errorf("move %s into place: %w", tmpPath, err))
	}

	p.logger.Debug("database saved",
		zap.String("path", p.path),
		zap.Int("entries", len(c.Files)),
		zap.Int64("bytes", info.Size()))
	return nil
}

// restoreAfterFailure puts the live file back from its backup when a
// failed save left no live file behind. The original save error is
// always returned; a restore failure on top of it is folded into an
// OperationError that reports both.
func (p *persister) restoreAfterFailure(saveErr error, bakPath string) error {
	if p.exists(p.path) || !p.exists(bakPath) {
		return saveErr
	}
	p.logger.Warn("save failed with no live database file, restoring from backup",
		zap.String("path", p.path),
		zap.Error(saveErr))
	if rerr := p.copyFile(bakPath, p.path); rerr != nil {
		var opErr *OperationError
		if errors.As(saveErr, &opErr) {
			opErr.RestoreErr = rerr
			return opErr
		}
		return &OperationError{
			Operation:  "save",
			Message:    saveErr.Error(),
			Err:        saveErr,
			RestoreErr: rerr,
		}
	}
	p.logger.Info("database restored from backup", zap.String("path", p.path))
	return saveErr
}

// writeCatalogFile serializes, encrypts and writes the catalog to the
// given path as [IV || ciphertext], syncing before close so the bytes
// are durable by the time the save protocol starts renaming files.
func (p *persister) writeCatalogFile(path string, c *Catalog) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return NewOperationError("save", fmt.Errorf("serialize catalog: %w", err))
	}
	ciphertext, iv, err := p.engine.Encrypt(raw)
	if err != nil {
		return err
	}

	f, err := p.fs.Create(path)
	if err != nil {
		return NewOperationError("save", fmt.Errorf("create %s: %w", path, err))
	}
	if _, err := f.Write(iv); err != nil {
		f.Close()
		return NewOperationError("save", fmt.Errorf("write %s: %w", path, err))
	}
	if _, err := f.Write(ciphertext); err != nil {
		f.Close()
		return NewOperationError("save", fmt.Errorf("write %s: %w", path, err))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return NewOperationError("save", fmt.Errorf("sync %s: %w", path, err))
	}
	if err := f.Close(); err != nil {
		return NewOperationError("save", fmt.Errorf("close %s: %w", path, err))
	}
	return nil
}

// load reads and decrypts the live database file.
func (p *persister) load() (*Catalog, error) {
	return p.loadFrom(p.path)
}

// loadFrom reads a catalog envelope from an arbitrary path. Anything
// shorter than one IV cannot have been written by save and is reported
// as corruption; a decryption failure usually means a wrong password;
// a decrypted payload that is not valid catalog JSON is corruption
// again.
func (p *persister) loadFrom(path string) (*Catalog, error) {
	f, err := p.fs.Open(path)
	if err != nil {
		return nil, NewOperationError("load", fmt.Errorf("open %s: %w", path, err))
	}
	raw, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, NewOperationError("load", fmt.Errorf("read %s: %w", path, err))
	}

	if len(raw) < aes.BlockSize {
		return nil, &CorruptionError{
			Path:    path,
			Message: fmt.Sprintf("file is %d bytes, shorter than a single IV", len(raw)),
		}
	}

	iv := raw[:aes.BlockSize]
	plaintext, err := p.engine.Decrypt(raw[aes.BlockSize:], iv)
	if err != nil {
		return nil, err
	}

	var cat Catalog
	if err := json.Unmarshal(plaintext, &cat); err != nil {
		return nil, &CorruptionError{
			Path:    path,
			Message: "decrypted payload is not a valid catalog",
			Err:     err,
		}
	}
	cat.normalize()
	return &cat, nil
}

// exists reports whether a path can be stat'd. Errors other than
// non-existence also count as absent, which errs on the safe side for
// the protocol: a file we cannot stat is a file we do not touch.
func (p *persister) exists(path string) bool {
	_, err := p.fs.Stat(path)
	return err == nil
}

// copyFile duplicates src to dst through the configured filesystem,
// syncing dst before close.
func (p *persister) copyFile(src, dst string) error {
	in, err := p.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := p.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}

// removeQuiet deletes a sidecar file if present, logging rather than
// failing when it cannot.
func (p *persister) removeQuiet(path string) {
	if !p.exists(path) {
		return
	}
	if err := p.fs.Remove(path); err != nil {
		p.logger.Warn("failed to remove sidecar file",
			zap.String("path", path),
			zap.Error(err))
	}
}

// RestoreFromBackup replaces the database file at path with its .bak
// sibling. The backup is decrypted with the given password first so a
// bad backup or wrong password never clobbers the live file. The live
// file does not need to exist; this is the recovery path for a crash
// that struck between the removal of the old database and the rename
// of its replacement.
//
// Restoring is deliberately explicit rather than an automatic fallback
// inside Open: silently reading stale data would mask the corruption
// of the live file.
func RestoreFromBackup(path, password string, opts *Options) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	o := opts.withDefaults()

	engine, err := NewAESCBCEngine(DeriveKey(password))
	if err != nil {
		return err
	}
	p := newPersister(o.FS, path, engine, o.Logger)

	bakPath := path + backupSuffix
	if !p.exists(bakPath) {
		return &NotFoundError{Message: fmt.Sprintf("no backup file at %s", bakPath)}
	}
	if _, err := p.loadFrom(bakPath); err != nil {
		return NewOperationError("restore", fmt.Errorf("backup %s is not loadable: %w", bakPath, err))
	}
	if err := p.copyFile(bakPath, path); err != nil {
		return NewOperationError("restore", err)
	}
	o.Logger.Info("database restored from backup",
		zap.String("path", path),
		zap.String("backup", bakPath))
	return nil
}
