// Package smallbin stores many small files inside a single encrypted
// database file. Content and metadata live together in one catalog
// that is loaded into memory on Open, mutated there, and written back
// atomically, which makes the on-disk format a single opaque blob that
// can be copied or backed up as one unit.
//
// # Overview
//
// A database is opened with a path and a password:
//
//	db, err := smallbin.Open("vault.sdb", "correct horse staple", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	id, err := db.SaveFile("report.pdf", []string{"reports"}, "application/pdf")
//	if err != nil {
//		log.Fatal(err)
//	}
//	data, err := db.GetFile(id)
//
// The password is stretched into a 256-bit AES key with PBKDF2; every
// payload and the catalog itself are encrypted with AES-256 in CBC
// mode under a fresh random IV. Nothing readable ever touches the
// disk.
//
// # The catalog
//
// Every stored payload becomes a FileEntry carrying its name, tags,
// timestamps, custom metadata, checksum and encrypted blob. Entries
// are addressed by generated UUIDs, not by path, so many entries may
// share a name. Changes accumulate in memory and reach the disk when
// Save or Close runs, or after every mutation when the database was
// opened with AutoSave.
//
// # Deduplication and versions
//
// Payloads are checksummed before compression. Saving content whose
// checksum already exists in the catalog creates a lightweight entry
// that references the original's blob instead of storing the bytes
// twice; the original keeps a list of its duplicates. Independently of
// that, CreateVersion hangs revisions off a base entry in a flat
// chain: the base is version 1, revisions count up from 2, and
// versioning a version is refused.
//
// # Crash safety
//
// Save never overwrites the database in place. The new catalog is
// written to a temp file and validated, the previous file is kept as a
// .bak sibling, and only then is the temp file moved into place. At
// every step at least one of the database and its backup holds a
// loadable catalog; RestoreFromBackup recovers from the one crash
// window where the live file is missing. Load is strict and never
// falls back to the backup on its own.
//
// # Caching
//
// Reads go through a bounded LRU cache with a TTL so repeated GetFile
// calls skip the decrypt work. The cache is the only concurrency-safe
// component in the package; the DB itself must not be used from
// multiple goroutines without external locking.
package smallbin
