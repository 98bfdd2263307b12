package smallbin

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// VerifyResult describes one entry that failed an integrity sweep.
type VerifyResult struct {
	ID       string
	FileName string
	Err      error
}

// VerifyAll decrypts and checksums every entry in the catalog and
// returns one result per entry that failed, sorted by file name and
// id. An empty slice means the whole catalog verified clean. The
// sweep reads the catalog without modifying it and bypasses the read
// cache, so every blob is checked as it exists on the page, not as it
// was last served.
//
// Entries are verified on a small worker pool; the catalog itself is
// only read, which is safe as long as the caller honors the no-
// concurrent-mutation contract.
func (db *DB) VerifyAll() ([]VerifyResult, error) {
	if err := db.checkOpen("verify"); err != nil {
		return nil, err
	}

	entries := make([]*FileEntry, 0, len(db.catalog.Files))
	for _, entry := range db.catalog.Files {
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return []VerifyResult{}, nil
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > len(entries) {
		numWorkers = len(entries)
	}

	jobChan := make(chan int, len(entries))
	resultChan := make(chan VerifyResult, len(entries))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobChan {
				entry := entries[idx]
				if err := db.verifyEntry(entry); err != nil {
					resultChan <- VerifyResult{
						ID:       entry.ID,
						FileName: entry.FileName,
						Err:      err,
					}
				}
			}
		}()
	}

	for i := range entries {
		jobChan <- i
	}
	close(jobChan)
	wg.Wait()
	close(resultChan)

	failed := []VerifyResult{}
	for r := range resultChan {
		failed = append(failed, r)
	}
	sort.Slice(failed, func(i, j int) bool {
		if failed[i].FileName != failed[j].FileName {
			return failed[i].FileName < failed[j].FileName
		}
		return failed[i].ID < failed[j].ID
	})

	db.logger.Info("integrity sweep finished",
		zap.Int("entries", len(entries)),
		zap.Int("failed", len(failed)))
	return failed, nil
}

// verifyEntry runs one entry through decrypt, decompress and checksum,
// converting a worker panic into an error so a single bad blob cannot
// take down the sweep.
func (db *DB) verifyEntry(entry *FileEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CorruptionError{
				ID:      entry.ID,
				Message: fmt.Sprintf("verification panicked: %v", r),
			}
		}
	}()
	_, err = db.contentOf(entry)
	return err
}
