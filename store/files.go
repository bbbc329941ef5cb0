package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
)

// FileInfo is the path and last modified time of a note.
type FileInfo struct {
	Path    string    // Path relative to the notes root, slash separated.
	ModTime time.Time // Last modified time.
}

// ListNotes returns the paths, relative to root, of all files with one of
// the given extensions. Subdirectories are only searched when recursive.
func ListNotes(root string, extensions []string, recursive bool) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !HasExtension(path, extensions) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list notes in %s: %w", root, err)
	}
	return paths, nil
}

// HasExtension reports whether path ends in one of extensions, ignoring
// case.
func HasExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	return lo.ContainsBy(extensions, func(e string) bool { return strings.EqualFold(e, ext) })
}

// ReadNote returns the content and modification time of the note at path
// relative to root.
func ReadNote(root, path string) (string, time.Time, error) {
	full := filepath.Join(root, filepath.FromSlash(path))
	info, err := os.Stat(full)
	if err != nil {
		return "", time.Time{}, err
	}
	if info.IsDir() {
		return "", time.Time{}, fmt.Errorf("%s is a directory", path)
	}
	body, err := os.ReadFile(full)
	if err != nil {
		return "", time.Time{}, err
	}
	return string(body), info.ModTime(), nil
}

// Stat returns the FileInfo of every path, skipping files that vanished.
func Stat(root string, paths []string) []FileInfo {
	infos := make([]FileInfo, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(p)))
		if err != nil {
			continue
		}
		infos = append(infos, FileInfo{Path: p, ModTime: info.ModTime()})
	}
	return infos
}

// CompareFileInfos compares the old and current FileInfos and returns the
// deleted, modified and created ones.
func CompareFileInfos(old, current []FileInfo) (deleted, modified, created []FileInfo) {
	deleted = make([]FileInfo, 0)
	modified = make([]FileInfo, 0)
	created = make([]FileInfo, 0)

	byPath := lo.KeyBy(current, func(fi FileInfo) string { return fi.Path })
	seen := make(map[string]bool, len(old))

	for _, f1 := range old {
		seen[f1.Path] = true
		f2, found := byPath[f1.Path]
		switch {
		case !found:
			deleted = append(deleted, f1)
		case !f1.ModTime.Equal(f2.ModTime):
			modified = append(modified, f2)
		}
	}

	for _, f2 := range current {
		if !seen[f2.Path] {
			created = append(created, f2)
		}
	}

	return deleted, modified, created
}
