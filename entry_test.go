package smallbin

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestFileEntryTags(t *testing.T) {
	e := &FileEntry{}

	if !e.AddTag("reports") {
		t.Error("AddTag(reports) = false, want true for a new tag")
	}
	if e.AddTag("reports") {
		t.Error("AddTag(reports) = true for a tag already present")
	}
	if !e.AddTag("  archive  ") {
		t.Error("AddTag should trim whitespace and add the tag")
	}
	if !e.HasTag("archive") {
		t.Error("trimmed tag should be stored without padding")
	}
	if e.AddTag("") || e.AddTag("   ") {
		t.Error("blank tags must not be added")
	}

	if e.HasTag("Reports") {
		t.Error("HasTag must match exactly, not case-insensitively")
	}

	if !e.RemoveTag("reports") {
		t.Error("RemoveTag(reports) = false, want true")
	}
	if e.HasTag("reports") {
		t.Error("removed tag still present")
	}
	if e.RemoveTag("reports") {
		t.Error("RemoveTag(reports) = true for an absent tag")
	}
	if len(e.Tags) != 1 || e.Tags[0] != "archive" {
		t.Errorf("Tags = %v, want [archive]", e.Tags)
	}
}

func TestFileEntryPredicates(t *testing.T) {
	plain := &FileEntry{ID: "a"}
	if plain.IsDuplicate() || plain.IsVersion() {
		t.Error("plain entry should be neither duplicate nor version")
	}

	dup := &FileEntry{ID: "b", OriginalFileID: "a"}
	if !dup.IsDuplicate() {
		t.Error("entry with OriginalFileID should be a duplicate")
	}
	if dup.IsVersion() {
		t.Error("duplicate should not report as version")
	}

	ver := &FileEntry{ID: "c", BaseFileID: "a", VersionNumber: 2}
	if !ver.IsVersion() {
		t.Error("entry with BaseFileID should be a version")
	}
	if ver.IsDuplicate() {
		t.Error("version should not report as duplicate")
	}
}

func TestFileEntryClone(t *testing.T) {
	now := time.Now().UTC()
	orig := &FileEntry{
		ID:                "id-1",
		FileName:          "report.pdf",
		Tags:              []string{"reports", "2026"},
		CreatedAt:         now,
		UpdatedAt:         now,
		FileSize:          1234,
		ContentType:       "application/pdf",
		IsCompressed:      true,
		CustomMetadata:    map[string]string{"owner": "finance"},
		EncryptedData:     []byte{1, 2, 3},
		IV:                []byte{4, 5, 6},
		Checksum:          "abc",
		ChecksumAlgorithm: ChecksumSHA256,
		DuplicateFileIDs:  []string{"id-2"},
		VersionIDs:        []string{"id-3"},
		VersionNumber:     1,
	}

	c := orig.Clone()
	if c == orig {
		t.Fatal("Clone returned the same pointer")
	}

	c.Tags[0] = "changed"
	c.CustomMetadata["owner"] = "changed"
	c.EncryptedData[0] = 0xFF
	c.IV[0] = 0xFF
	c.DuplicateFileIDs[0] = "changed"
	c.VersionIDs[0] = "changed"

	if orig.Tags[0] != "reports" {
		t.Error("mutating clone Tags changed the original")
	}
	if orig.CustomMetadata["owner"] != "finance" {
		t.Error("mutating clone CustomMetadata changed the original")
	}
	if orig.EncryptedData[0] != 1 {
		t.Error("mutating clone EncryptedData changed the original")
	}
	if orig.IV[0] != 4 {
		t.Error("mutating clone IV changed the original")
	}
	if orig.DuplicateFileIDs[0] != "id-2" {
		t.Error("mutating clone DuplicateFileIDs changed the original")
	}
	if orig.VersionIDs[0] != "id-3" {
		t.Error("mutating clone VersionIDs changed the original")
	}

	var nilEntry *FileEntry
	if nilEntry.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestCatalogFindDedupTarget(t *testing.T) {
	cat := newCatalog()
	cat.Files["plain"] = &FileEntry{
		ID:                "plain",
		Checksum:          "AABBCC",
		ChecksumAlgorithm: ChecksumSHA256,
		EncryptedData:     []byte{1},
	}
	cat.Files["dup"] = &FileEntry{
		ID:                "dup",
		Checksum:          "aabbcc",
		ChecksumAlgorithm: ChecksumSHA256,
		OriginalFileID:    "plain",
	}
	cat.Files["ver"] = &FileEntry{
		ID:                "ver",
		Checksum:          "aabbcc",
		ChecksumAlgorithm: ChecksumSHA256,
		BaseFileID:        "plain",
		VersionNumber:     2,
		EncryptedData:     []byte{2},
	}

	t.Run("matches the blob owner", func(t *testing.T) {
		got := cat.findDedupTarget("aabbcc", ChecksumSHA256)
		if got == nil || got.ID != "plain" {
			t.Errorf("findDedupTarget = %v, want the plain entry", got)
		}
	})

	t.Run("checksum compare ignores case", func(t *testing.T) {
		if got := cat.findDedupTarget("AABBCC", ChecksumSHA256); got == nil {
			t.Error("findDedupTarget should match case-insensitively")
		}
	})

	t.Run("algorithm must match", func(t *testing.T) {
		if got := cat.findDedupTarget("aabbcc", ChecksumMD5); got != nil {
			t.Errorf("findDedupTarget matched across algorithms: %v", got)
		}
	})

	t.Run("no match", func(t *testing.T) {
		if got := cat.findDedupTarget("ffffff", ChecksumSHA256); got != nil {
			t.Errorf("findDedupTarget = %v, want nil", got)
		}
	})
}

func TestCatalogNormalize(t *testing.T) {
	cat := &Catalog{
		Files: map[string]*FileEntry{
			"a": {ID: "a"},
		},
	}
	cat.normalize()

	if cat.Version != catalogVersion {
		t.Errorf("normalize Version = %q, want %q", cat.Version, catalogVersion)
	}
	if cat.Files["a"].CustomMetadata == nil {
		t.Error("normalize should repair nil CustomMetadata")
	}
	if cat.Files["a"].Tags == nil {
		t.Error("normalize should repair nil Tags")
	}

	empty := &Catalog{}
	empty.normalize()
	if empty.Files == nil {
		t.Error("normalize should repair a nil Files map")
	}
}

func TestCatalogJSONShape(t *testing.T) {
	cat := newCatalog()
	cat.Files["owner"] = &FileEntry{
		ID:                "owner",
		FileName:          "a.txt",
		EncryptedData:     []byte{1, 2, 3},
		IV:                []byte{4, 5, 6},
		Checksum:          "abc",
		ChecksumAlgorithm: ChecksumSHA256,
		VersionNumber:     1,
		DuplicateFileIDs:  []string{"alias"},
	}
	cat.Files["alias"] = &FileEntry{
		ID:                "alias",
		FileName:          "b.txt",
		Checksum:          "abc",
		ChecksumAlgorithm: ChecksumSHA256,
		VersionNumber:     1,
		OriginalFileID:    "owner",
	}

	raw, err := json.Marshal(cat)
	if err != nil {
		t.Fatalf("marshal catalog: %v", err)
	}
	s := string(raw)

	if !strings.Contains(s, `"Files"`) || !strings.Contains(s, `"Version":"1.0"`) {
		t.Errorf("catalog JSON missing envelope fields: %s", s)
	}

	// The alias entry owns no blob, so its EncryptedData and IV must
	// be omitted entirely rather than serialized as null.
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	var files map[string]map[string]json.RawMessage
	if err := json.Unmarshal(decoded["Files"], &files); err != nil {
		t.Fatal(err)
	}
	if _, found := files["alias"]["EncryptedData"]; found {
		t.Error("duplicate entry serialized an EncryptedData field")
	}
	if _, found := files["alias"]["IV"]; found {
		t.Error("duplicate entry serialized an IV field")
	}
	if _, found := files["owner"]["EncryptedData"]; !found {
		t.Error("blob owner is missing its EncryptedData field")
	}

	var back Catalog
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal catalog: %v", err)
	}
	if len(back.Files) != 2 {
		t.Errorf("round-tripped catalog has %d entries, want 2", len(back.Files))
	}
	if back.Files["alias"].OriginalFileID != "owner" {
		t.Error("dedup link lost in round trip")
	}
}
