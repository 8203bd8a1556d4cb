// Package project locates the metadata directory and lays out the working
// directory used by a run.
package project

import (
	"errors"
	"os"
	"path/filepath"
)

// GroupsDirName is the directory that marks a metadata root.
const GroupsDirName = "groups"

// ErrNoMetadataRoot is returned when no groups/ directory is found.
var ErrNoMetadataRoot = errors.New("groups/ not found: not a metadata directory (or any parent up to the root)")

// FindMetadataRoot walks up from the current working directory until it finds
// a directory containing groups/.
func FindMetadataRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return FindMetadataRootFrom(cwd)
}

// FindMetadataRootFrom walks up from startDir until it finds a directory
// containing groups/.
func FindMetadataRootFrom(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		info, err := os.Stat(filepath.Join(dir, GroupsDirName))
		if err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoMetadataRoot
		}
		dir = parent
	}
}
