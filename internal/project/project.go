package project

import (
	"fmt"
	"os"
	"path/filepath"
)

// Working directory layout.
const (
	DistgitsDirName = "distgits"
	LogsDirName     = "logs"
	RecordLogName   = "record.log"
	DebugLogName    = "debug.log"
)

// Workspace pairs the metadata root with the per-run working directory.
type Workspace struct {
	MetadataDir string
	WorkingDir  string
}

// NewWorkspace resolves a workspace. An empty metadataDir is discovered by
// walking up from the cwd; an empty workingDir gets a fresh temp directory.
func NewWorkspace(metadataDir, workingDir string) (*Workspace, error) {
	if metadataDir == "" {
		root, err := FindMetadataRoot()
		if err != nil {
			return nil, err
		}
		metadataDir = root
	}

	if workingDir == "" {
		dir, err := os.MkdirTemp("", "fleetbuild-working-")
		if err != nil {
			return nil, fmt.Errorf("create working dir: %w", err)
		}
		workingDir = dir
	}

	absMeta, err := filepath.Abs(metadataDir)
	if err != nil {
		return nil, err
	}
	absWork, err := filepath.Abs(workingDir)
	if err != nil {
		return nil, err
	}

	return &Workspace{MetadataDir: absMeta, WorkingDir: absWork}, nil
}

// Ensure creates the working directory subtree.
func (w *Workspace) Ensure() error {
	for _, dir := range []string{w.WorkingDir, w.DistgitsDir(), w.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// DistgitsDir is where distgit clones live, one subdirectory per namespace.
func (w *Workspace) DistgitsDir() string {
	return filepath.Join(w.WorkingDir, DistgitsDirName)
}

// DistgitDir returns the clone directory for namespace/name.
func (w *Workspace) DistgitDir(namespace, name string) string {
	return filepath.Join(w.DistgitsDir(), namespace, name)
}

// LogsDir holds per-target command logs.
func (w *Workspace) LogsDir() string {
	return filepath.Join(w.WorkingDir, LogsDirName)
}

// RecordLogPath is the default file-backed audit store location.
func (w *Workspace) RecordLogPath() string {
	return filepath.Join(w.WorkingDir, RecordLogName)
}

// Path joins elem onto the working directory.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.WorkingDir}, elem...)...)
}

// Cleanup clears the working directory content and recreates the empty
// directory.
func (w *Workspace) Cleanup() error {
	if err := os.RemoveAll(w.WorkingDir); err != nil {
		return fmt.Errorf("remove %s: %w", w.WorkingDir, err)
	}
	return os.MkdirAll(w.WorkingDir, 0755)
}
