package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// WorkItem is one input discovered at the start of a stage.
type WorkItem struct {
	Path     string
	Name     string
	Stem     string
	Resolved string // one-level symlink target, empty for regular files
}

func (w WorkItem) IsSymlink() bool { return w.Resolved != "" }

// ItemFilter decides whether a discovered item stays in the work list.
type ItemFilter func(WorkItem) bool

// ExcludeSubstring drops items whose file name contains sub (case-insensitive).
func ExcludeSubstring(sub string) ItemFilter {
	sub = strings.ToLower(sub)
	return func(w WorkItem) bool {
		return sub == "" || !strings.Contains(strings.ToLower(w.Name), sub)
	}
}

// RegularFilesOnly keeps items that are, or point to, regular files.
func RegularFilesOnly() ItemFilter {
	return func(w WorkItem) bool {
		info, err := os.Stat(w.Path)
		return err == nil && info.Mode().IsRegular()
	}
}

// DirsOnly keeps directories.
func DirsOnly() ItemFilter {
	return func(w WorkItem) bool {
		info, err := os.Stat(w.Path)
		return err == nil && info.IsDir()
	}
}

// Discover globs root/pattern once and returns the matches sorted by path.
// ext is trimmed from the file name to form the stem ("" trims the last extension).
func Discover(root, pattern, ext string, filters ...ItemFilter) ([]WorkItem, error) {
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)

	items := make([]WorkItem, 0, len(matches))
	for _, m := range matches {
		item := WorkItem{Path: m, Name: filepath.Base(m)}
		item.Stem = StemOf(item.Name, ext)
		if info, lErr := os.Lstat(m); lErr == nil && info.Mode()&os.ModeSymlink != 0 {
			target, rErr := os.Readlink(m)
			if rErr == nil {
				if !filepath.IsAbs(target) {
					target = filepath.Join(filepath.Dir(m), target)
				}
				item.Resolved = target
			}
		}
		items = append(items, item)
	}

	for _, f := range filters {
		items = lo.Filter(items, func(w WorkItem, _ int) bool { return f(w) })
	}
	return items, nil
}

// StemOf removes ext from name, or the final extension when ext is empty.
func StemOf(name, ext string) string {
	if ext == "" {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return strings.TrimSuffix(name, ext)
}
