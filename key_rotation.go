package smallbin

import (
	"fmt"

	"go.uber.org/zap"
)

// sealedBlob snapshots an entry's blob fields so a failed password
// change can put them back.
type sealedBlob struct {
	ciphertext []byte
	iv         []byte
}

// ChangePassword re-encrypts every blob in the catalog under a key
// derived from newPassword and writes the database out immediately, so
// the old password stops working as soon as the call returns. The
// rotation is staged: every blob is decrypted and re-encrypted in
// memory first, and nothing is committed until all of them succeed.
// If the final save fails, the in-memory state is rolled back to the
// old key and the old password remains the valid one.
//
// Stored checksums are computed over plaintext, so rotation does not
// touch them; compressed payloads are re-encrypted as they are, with-
// out a decompress round trip.
func (db *DB) ChangePassword(newPassword string) error {
	if err := db.checkOpen("change password"); err != nil {
		return err
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	newEngine, err := NewAESCBCEngine(DeriveKey(newPassword))
	if err != nil {
		return err
	}

	staged := make(map[string]sealedBlob)
	for id, entry := range db.catalog.Files {
		if len(entry.EncryptedData) == 0 {
			continue
		}
		payload, err := db.engine.Decrypt(entry.EncryptedData, entry.IV)
		if err != nil {
			return NewOperationError("change password",
				fmt.Errorf("re-encrypt entry %s: %w", id, err))
		}
		ciphertext, iv, err := newEngine.Encrypt(payload)
		if err != nil {
			return NewOperationError("change password",
				fmt.Errorf("re-encrypt entry %s: %w", id, err))
		}
		staged[id] = sealedBlob{ciphertext: ciphertext, iv: iv}
	}

	previous := make(map[string]sealedBlob, len(staged))
	for id, blob := range staged {
		entry := db.catalog.Files[id]
		previous[id] = sealedBlob{ciphertext: entry.EncryptedData, iv: entry.IV}
		entry.EncryptedData = blob.ciphertext
		entry.IV = blob.iv
	}
	oldEngine := db.engine
	db.engine = newEngine
	db.dirty = true

	if err := db.Save(); err != nil {
		for id, blob := range previous {
			entry := db.catalog.Files[id]
			entry.EncryptedData = blob.ciphertext
			entry.IV = blob.iv
		}
		db.engine = oldEngine
		db.dirty = true
		db.logger.Error("password change rolled back, save failed",
			zap.String("path", db.path),
			zap.Error(err))
		return err
	}

	db.logger.Info("password changed, database re-encrypted",
		zap.String("path", db.path),
		zap.Int("blobs", len(staged)))
	return nil
}
