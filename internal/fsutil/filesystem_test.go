package fsutil

import (
	"testing"
)

func TestMemoryFileSystem_ReadWrite(t *testing.T) {
	fs := NewMemoryFileSystem()

	if err := fs.WriteFile("/data/session1/accelerometer_data.csv", []byte("ns_since_reboot,x,y,z\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := fs.ReadFile("/data/session1/accelerometer_data.csv")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "ns_since_reboot,x,y,z\n" {
		t.Errorf("unexpected contents: %q", data)
	}

	if !fs.Exists("/data/session1/accelerometer_data.csv") {
		t.Error("Exists returned false for written file")
	}
	if fs.Exists("/data/session1/gyroscope_data.csv") {
		t.Error("Exists returned true for missing file")
	}
}

func TestMemoryFileSystem_DirExists(t *testing.T) {
	fs := NewMemoryFileSystem()

	if err := fs.MkdirAll("/data/project/session.1", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	if !fs.DirExists("/data/project/session.1") {
		t.Error("DirExists returned false for created directory")
	}
	if !fs.DirExists("/data/project") {
		t.Error("DirExists returned false for implicit parent")
	}
	if fs.DirExists("/data/project/session.2") {
		t.Error("DirExists returned true for missing directory")
	}
}

func TestMemoryFileSystem_RenameDirectory(t *testing.T) {
	fs := NewMemoryFileSystem()

	if err := fs.MkdirAll("/data/.staging/session.1", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := fs.WriteFile("/data/.staging/session.1/labels.json", []byte("[]"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := fs.Rename("/data/.staging/session.1", "/data/session.1"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	if fs.Exists("/data/.staging/session.1/labels.json") {
		t.Error("old path still exists after rename")
	}
	data, err := fs.ReadFile("/data/session.1/labels.json")
	if err != nil {
		t.Fatalf("ReadFile after rename failed: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("unexpected contents after rename: %q", data)
	}
}

func TestMemoryFileSystem_RenameMissing(t *testing.T) {
	fs := NewMemoryFileSystem()
	if err := fs.Rename("/nope", "/data"); err == nil {
		t.Error("expected error renaming missing path, got nil")
	}
}

func TestMemoryFileSystem_RemoveAll(t *testing.T) {
	fs := NewMemoryFileSystem()

	fs.MkdirAll("/data/session", 0755)
	fs.WriteFile("/data/session/a.csv", []byte("a"), 0644)
	fs.WriteFile("/data/session/b.csv", []byte("b"), 0644)

	if err := fs.RemoveAll("/data/session"); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}

	if fs.Exists("/data/session/a.csv") || fs.Exists("/data/session") {
		t.Error("RemoveAll left entries behind")
	}
}

func TestMemoryFileSystem_ReadDir(t *testing.T) {
	fs := NewMemoryFileSystem()

	fs.MkdirAll("/root/sess-b", 0755)
	fs.MkdirAll("/root/sess-a", 0755)
	fs.WriteFile("/root/notes.txt", []byte("x"), 0644)

	entries, err := fs.ReadDir("/root")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ReadDir returned %d entries, want 3", len(entries))
	}
	// Sorted by name: notes.txt, sess-a, sess-b
	if entries[0].Name() != "notes.txt" || entries[0].IsDir() {
		t.Errorf("entry 0 = %s (dir=%v), want notes.txt file", entries[0].Name(), entries[0].IsDir())
	}
	if entries[1].Name() != "sess-a" || !entries[1].IsDir() {
		t.Errorf("entry 1 = %s (dir=%v), want sess-a dir", entries[1].Name(), entries[1].IsDir())
	}
}

func TestOSFileSystem_RoundTrip(t *testing.T) {
	fs := OSFileSystem{}
	dir := t.TempDir()

	path := dir + "/labels.json"
	if err := fs.WriteFile(path, []byte(`[{"start":1,"end":2}]`), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !fs.Exists(path) {
		t.Error("Exists returned false")
	}
	if !fs.DirExists(dir) {
		t.Error("DirExists returned false for temp dir")
	}
	if fs.DirExists(path) {
		t.Error("DirExists returned true for a file")
	}
}
