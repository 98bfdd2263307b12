package smallbin

import (
	"errors"
	"testing"
)

func TestCreateVersion(t *testing.T) {
	db, _ := openTestDB(t, nil)

	baseID, err := db.SaveBytes("config.yaml", []byte("version one"), []string{"config"}, "text/yaml")
	if err != nil {
		t.Fatal(err)
	}

	v2ID, err := db.CreateVersion(baseID, []byte("version two"), "tightened timeouts")
	if err != nil {
		t.Fatalf("CreateVersion error = %v", err)
	}
	v3ID, err := db.CreateVersion(baseID, []byte("version three"), "")
	if err != nil {
		t.Fatalf("second CreateVersion error = %v", err)
	}

	v2, err := db.GetEntry(v2ID)
	if err != nil {
		t.Fatal(err)
	}
	if v2.VersionNumber != 2 {
		t.Errorf("first version number = %d, want 2", v2.VersionNumber)
	}
	if v2.BaseFileID != baseID {
		t.Errorf("BaseFileID = %q, want %q", v2.BaseFileID, baseID)
	}
	if v2.VersionComment != "tightened timeouts" {
		t.Errorf("VersionComment = %q", v2.VersionComment)
	}
	if v2.FileName != "config.yaml" {
		t.Errorf("version FileName = %q, want inherited config.yaml", v2.FileName)
	}
	if !v2.HasTag("config") {
		t.Error("version did not inherit the base tags")
	}
	if v2.ContentType != "text/yaml" {
		t.Errorf("version ContentType = %q, want inherited text/yaml", v2.ContentType)
	}
	if len(v2.CustomMetadata) != 0 {
		t.Error("version should start with empty custom metadata")
	}
	if len(v2.EncryptedData) == 0 {
		t.Error("version must own its blob")
	}

	v3, err := db.GetEntry(v3ID)
	if err != nil {
		t.Fatal(err)
	}
	if v3.VersionNumber != 3 {
		t.Errorf("second version number = %d, want 3", v3.VersionNumber)
	}

	base, err := db.GetEntry(baseID)
	if err != nil {
		t.Fatal(err)
	}
	if base.VersionNumber != 1 {
		t.Errorf("base version number = %d, want 1", base.VersionNumber)
	}
	if len(base.VersionIDs) != 2 || base.VersionIDs[0] != v2ID || base.VersionIDs[1] != v3ID {
		t.Errorf("base VersionIDs = %v, want [%s %s]", base.VersionIDs, v2ID, v3ID)
	}

	got, err := db.GetFile(v2ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "version two" {
		t.Errorf("version content = %q, want version two", got)
	}
}

func TestCreateVersionOfVersionFails(t *testing.T) {
	db, _ := openTestDB(t, nil)

	baseID := mustSaveBytes(t, db, "doc.txt", []byte("base"))
	vID, err := db.CreateVersion(baseID, []byte("revised"), "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := db.CreateVersion(vID, []byte("revised again"), ""); !IsStateError(err) {
		t.Errorf("CreateVersion on a version = %v, want StateError", err)
	}
}

func TestCreateVersionErrors(t *testing.T) {
	db, _ := openTestDB(t, nil)
	baseID := mustSaveBytes(t, db, "doc.txt", []byte("base"))

	if _, err := db.CreateVersion("", []byte("x"), ""); !IsArgumentError(err) {
		t.Errorf("empty id = %v, want ArgumentError", err)
	}
	if _, err := db.CreateVersion("no-such-id", []byte("x"), ""); !IsNotFoundError(err) {
		t.Errorf("unknown id = %v, want NotFoundError", err)
	}
	if _, err := db.CreateVersion(baseID, nil, ""); !IsValidationError(err) {
		t.Errorf("empty data = %v, want ValidationError", err)
	}
}

func TestCreateVersionBypassesDedup(t *testing.T) {
	db, _ := openTestDB(t, nil)
	content := []byte("bytes shared between an entry and a version")

	mustSaveBytes(t, db, "standalone.txt", content)
	baseID := mustSaveBytes(t, db, "doc.txt", []byte("original doc"))

	vID, err := db.CreateVersion(baseID, content, "now matches standalone")
	if err != nil {
		t.Fatal(err)
	}
	v, err := db.GetEntry(vID)
	if err != nil {
		t.Fatal(err)
	}
	if v.IsDuplicate() {
		t.Error("version content was deduplicated")
	}
	if len(v.EncryptedData) == 0 {
		t.Error("version must seal its own blob even for known content")
	}
}

func TestGetVersionHistory(t *testing.T) {
	db, _ := openTestDB(t, nil)

	baseID := mustSaveBytes(t, db, "notes.md", []byte("v1"))
	v2ID, err := db.CreateVersion(baseID, []byte("v2"), "")
	if err != nil {
		t.Fatal(err)
	}
	v3ID, err := db.CreateVersion(baseID, []byte("v3"), "")
	if err != nil {
		t.Fatal(err)
	}

	wantOrder := []string{baseID, v2ID, v3ID}
	for _, from := range []string{baseID, v2ID, v3ID} {
		history, err := db.GetVersionHistory(from)
		if err != nil {
			t.Fatalf("GetVersionHistory(%s) error = %v", from, err)
		}
		if len(history) != 3 {
			t.Fatalf("history from %s has %d members, want 3", from, len(history))
		}
		for i, want := range wantOrder {
			if history[i].ID != want {
				t.Errorf("history[%d].ID = %s, want %s", i, history[i].ID, want)
			}
		}
	}

	if _, err := db.GetVersionHistory("no-such-id"); !IsNotFoundError(err) {
		t.Errorf("unknown id = %v, want NotFoundError", err)
	}
}

func TestGetVersion(t *testing.T) {
	db, _ := openTestDB(t, nil)

	baseID := mustSaveBytes(t, db, "notes.md", []byte("first draft"))
	if _, err := db.CreateVersion(baseID, []byte("second draft"), ""); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetVersion(baseID, 1)
	if err != nil {
		t.Fatalf("GetVersion(1) error = %v", err)
	}
	if string(got) != "first draft" {
		t.Errorf("GetVersion(1) = %q, want the base content", got)
	}

	got, err = db.GetVersion(baseID, 2)
	if err != nil {
		t.Fatalf("GetVersion(2) error = %v", err)
	}
	if string(got) != "second draft" {
		t.Errorf("GetVersion(2) = %q, want the revision", got)
	}

	_, err = db.GetVersion(baseID, 5)
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		t.Fatalf("GetVersion(5) = %v, want NotFoundError", err)
	}
	if nfe.Version != 5 {
		t.Errorf("NotFoundError.Version = %d, want 5", nfe.Version)
	}

	if _, err := db.GetVersion(baseID, 0); !IsArgumentError(err) {
		t.Errorf("GetVersion(0) = %v, want ArgumentError", err)
	}
}

func TestGetLatestVersion(t *testing.T) {
	db, _ := openTestDB(t, nil)

	baseID := mustSaveBytes(t, db, "notes.md", []byte("only draft"))

	got, err := db.GetLatestVersion(baseID)
	if err != nil {
		t.Fatalf("GetLatestVersion without versions error = %v", err)
	}
	if string(got) != "only draft" {
		t.Errorf("GetLatestVersion = %q, want the base content", got)
	}

	if _, err := db.CreateVersion(baseID, []byte("newer draft"), ""); err != nil {
		t.Fatal(err)
	}
	v3ID, err := db.CreateVersion(baseID, []byte("newest draft"), "")
	if err != nil {
		t.Fatal(err)
	}

	got, err = db.GetLatestVersion(baseID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "newest draft" {
		t.Errorf("GetLatestVersion = %q, want the newest revision", got)
	}

	// The newest content is also reachable from a version id.
	got, err = db.GetLatestVersion(v3ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "newest draft" {
		t.Errorf("GetLatestVersion from a version id = %q", got)
	}
}

func TestVersionChainSurvivesReopen(t *testing.T) {
	db, fs := openTestDB(t, nil)

	baseID := mustSaveBytes(t, db, "chain.txt", []byte("v1"))
	if _, err := db.CreateVersion(baseID, []byte("v2"), "second"); err != nil {
		t.Fatal(err)
	}
	if err := db.Save(); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db2, err := Open("/db.sdb", testPassword, &Options{FS: fs})
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()

	history, err := db2.GetVersionHistory(baseID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history after reopen has %d members, want 2", len(history))
	}
	got, err := db2.GetVersion(baseID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v2" {
		t.Errorf("GetVersion(2) after reopen = %q, want v2", got)
	}
}

func TestDeletedVersionSkippedInHistory(t *testing.T) {
	db, _ := openTestDB(t, nil)

	baseID := mustSaveBytes(t, db, "doc.txt", []byte("v1"))
	v2ID, err := db.CreateVersion(baseID, []byte("v2"), "")
	if err != nil {
		t.Fatal(err)
	}
	v3ID, err := db.CreateVersion(baseID, []byte("v3"), "")
	if err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteFile(v2ID); err != nil {
		t.Fatal(err)
	}

	history, err := db.GetVersionHistory(baseID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d members after deleting a version, want 2", len(history))
	}
	if history[0].ID != baseID || history[1].ID != v3ID {
		t.Errorf("history = [%s %s], want the base and the surviving version", history[0].ID, history[1].ID)
	}

	got, err := db.GetLatestVersion(baseID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v3" {
		t.Errorf("GetLatestVersion = %q, want v3", got)
	}
}

func TestVersionOfDuplicate(t *testing.T) {
	db, _ := openTestDB(t, nil)
	content := []byte("shared content")

	mustSaveBytes(t, db, "first.txt", content)
	dupID := mustSaveBytes(t, db, "second.txt", content)

	vID, err := db.CreateVersion(dupID, []byte("revised copy"), "")
	if err != nil {
		t.Fatalf("CreateVersion on a duplicate error = %v", err)
	}

	history, err := db.GetVersionHistory(dupID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[1].ID != vID {
		t.Errorf("duplicate's history = %d members, want base and one version", len(history))
	}
	got, err := db.GetLatestVersion(dupID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "revised copy" {
		t.Errorf("GetLatestVersion = %q, want the revision", got)
	}
}
