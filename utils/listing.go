package utils

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
)

type Entry struct {
	Name  string
	Size  int64
	IsDir bool
}

// Listing is a point-in-time snapshot of one directory. Completion predicates are
// evaluated against it instead of touching the filesystem again.
type Listing struct {
	Dir     string
	Exists  bool
	Entries map[string]Entry
}

// ListDir snapshots dir. A missing directory is not an error.
func ListDir(dir string) (Listing, error) {
	l := Listing{Dir: dir, Entries: map[string]Entry{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return l, nil
		}
		return l, err
	}
	l.Exists = true
	for _, e := range entries {
		info, iErr := e.Info()
		if iErr != nil {
			continue
		}
		l.Entries[e.Name()] = Entry{Name: e.Name(), Size: info.Size(), IsDir: e.IsDir()}
	}
	return l, nil
}

func (l Listing) Has(name string) bool {
	_, ok := l.Entries[name]
	return ok
}

// HasNonEmpty reports a regular entry of non-zero size; an empty marker counts as absent.
func (l Listing) HasNonEmpty(name string) bool {
	e, ok := l.Entries[name]
	return ok && !e.IsDir && e.Size > 0
}

func (l Listing) HasSuffix(suffix string) bool {
	for name := range l.Entries {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Files returns the sorted names of non-directory entries.
func (l Listing) Files() []string {
	var names []string
	for name, e := range l.Entries {
		if !e.IsDir {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Dirs returns the sorted names of directory entries.
func (l Listing) Dirs() []string {
	var names []string
	for name, e := range l.Entries {
		if e.IsDir {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Matching returns the sorted names of file entries ending in suffix.
func (l Listing) Matching(suffix string) []string {
	var names []string
	for _, name := range l.Files() {
		if strings.HasSuffix(name, suffix) {
			names = append(names, name)
		}
	}
	return names
}

func (l Listing) Count() int { return len(l.Entries) }
