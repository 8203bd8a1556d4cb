package project

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindMetadataRootFrom_Found(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, GroupsDirName, "openshift-3.9"), 0755); err != nil {
		t.Fatal(err)
	}

	found, err := FindMetadataRootFrom(root)
	if err != nil {
		t.Fatalf("FindMetadataRootFrom() error = %v", err)
	}
	if found != root {
		t.Errorf("FindMetadataRootFrom() = %q, want %q", found, root)
	}
}

func TestFindMetadataRootFrom_FoundFromSubdir(t *testing.T) {
	root := t.TempDir()
	subdir := filepath.Join(root, GroupsDirName, "openshift-3.9", "images")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	found, err := FindMetadataRootFrom(subdir)
	if err != nil {
		t.Fatalf("FindMetadataRootFrom() error = %v", err)
	}
	if found != root {
		t.Errorf("FindMetadataRootFrom() = %q, want %q", found, root)
	}
}

func TestFindMetadataRootFrom_GroupsFileIgnored(t *testing.T) {
	root := t.TempDir()
	// A regular file named groups does not mark a metadata root.
	if err := os.WriteFile(filepath.Join(root, GroupsDirName), nil, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := FindMetadataRootFrom(root); err != ErrNoMetadataRoot {
		t.Errorf("FindMetadataRootFrom() error = %v, want ErrNoMetadataRoot", err)
	}
}

func TestNewWorkspace_Explicit(t *testing.T) {
	meta := t.TempDir()
	work := filepath.Join(t.TempDir(), "work")

	ws, err := NewWorkspace(meta, work)
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}
	if err := ws.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	for _, dir := range []string{ws.DistgitsDir(), ws.LogsDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s not created", dir)
		}
	}
	if got, want := ws.DistgitDir("containers", "ose"), filepath.Join(work, DistgitsDirName, "containers", "ose"); got != want {
		t.Errorf("DistgitDir() = %q, want %q", got, want)
	}
	if got, want := ws.RecordLogPath(), filepath.Join(work, RecordLogName); got != want {
		t.Errorf("RecordLogPath() = %q, want %q", got, want)
	}
}

func TestNewWorkspace_TempWorkingDir(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewWorkspace() error = %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(ws.WorkingDir) })

	if _, err := os.Stat(ws.WorkingDir); err != nil {
		t.Errorf("temp working dir missing: %v", err)
	}
}

func TestWorkspace_Cleanup(t *testing.T) {
	ws := &Workspace{MetadataDir: t.TempDir(), WorkingDir: t.TempDir()}
	if err := ws.Ensure(); err != nil {
		t.Fatal(err)
	}
	clone := ws.DistgitDir("rpms", "openshift")
	if err := os.MkdirAll(clone, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ws.RecordLogPath(), []byte("x|\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := ws.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, err := os.Stat(ws.DistgitsDir()); !os.IsNotExist(err) {
		t.Error("distgits dir should be removed")
	}
	if _, err := os.Stat(ws.RecordLogPath()); !os.IsNotExist(err) {
		t.Error("record log should be removed")
	}
	if info, err := os.Stat(ws.WorkingDir); err != nil || !info.IsDir() {
		t.Error("working dir should be recreated")
	}
}
