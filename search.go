package smallbin

import (
	"sort"
	"strings"
	"time"
)

// SearchCriteria narrows a catalog search. Zero-valued fields do not
// constrain: the zero criteria matches every entry.
type SearchCriteria struct {
	// FileName matches entries whose name contains this string,
	// case-insensitively.
	FileName string

	// Tags matches entries carrying at least one of these tags.
	Tags []string

	// ContentType matches exactly, ignoring case.
	ContentType string

	// CreatedAfter and CreatedBefore bound the creation time
	// exclusively. A zero time leaves that side open.
	CreatedAfter  time.Time
	CreatedBefore time.Time

	// Metadata matches entries whose CustomMetadata contains every
	// one of these key/value pairs.
	Metadata map[string]string
}

// matches reports whether an entry satisfies every set field.
func (c SearchCriteria) matches(entry *FileEntry) bool {
	if c.FileName != "" &&
		!strings.Contains(strings.ToLower(entry.FileName), strings.ToLower(c.FileName)) {
		return false
	}
	if c.ContentType != "" && !strings.EqualFold(entry.ContentType, c.ContentType) {
		return false
	}
	if len(c.Tags) > 0 {
		any := false
		for _, tag := range c.Tags {
			if entry.HasTag(tag) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	if !c.CreatedAfter.IsZero() && !entry.CreatedAt.After(c.CreatedAfter) {
		return false
	}
	if !c.CreatedBefore.IsZero() && !entry.CreatedAt.Before(c.CreatedBefore) {
		return false
	}
	for key, want := range c.Metadata {
		if got, ok := entry.CustomMetadata[key]; !ok || got != want {
			return false
		}
	}
	return true
}

// Search returns copies of every catalog entry matching the criteria,
// sorted by file name and then by id so results are stable across
// runs. Duplicates and versions are ordinary entries here; filter on
// IsDuplicate or IsVersion afterwards if they are not wanted.
func (db *DB) Search(criteria SearchCriteria) ([]*FileEntry, error) {
	if err := db.checkOpen("search"); err != nil {
		return nil, err
	}

	results := []*FileEntry{}
	for _, entry := range db.catalog.Files {
		if criteria.matches(entry) {
			results = append(results, entry.Clone())
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].FileName != results[j].FileName {
			return results[i].FileName < results[j].FileName
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}
