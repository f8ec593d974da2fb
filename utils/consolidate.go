package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ConsolidationError marks a per-item directory that did not hold exactly one result
// archive, or whose archive would replace one already in the output root. The
// directory is left as found.
type ConsolidationError struct {
	Dir     string
	Matches []string
	Exists  string // destination that is already taken
}

func (e *ConsolidationError) Error() string {
	if e.Exists != "" {
		return fmt.Sprintf("%s: %s already exists in the output root", e.Dir, filepath.Base(e.Exists))
	}
	if len(e.Matches) == 0 {
		return fmt.Sprintf("%s: no result archive found", e.Dir)
	}
	return fmt.Sprintf("%s: expected one result archive, found %d (%s)", e.Dir, len(e.Matches), strings.Join(e.Matches, ", "))
}

type MovedArchive struct {
	Dir  string // per-item directory the archive came from, now removed
	Dest string
}

type Consolidation struct {
	Moved  []MovedArchive
	Errors []error
}

// ConsolidateArchives moves the single file matching pattern out of every
// subdirectory of root into root itself, dropping stripPrefix from its name, and
// then removes the subdirectory.
func ConsolidateArchives(root, pattern, stripPrefix string) (Consolidation, error) {
	var out Consolidation
	rootListing, err := ListDir(root)
	if err != nil {
		return out, err
	}

	for _, sub := range rootListing.Dirs() {
		dir := filepath.Join(root, sub)
		matches, gErr := filepath.Glob(filepath.Join(dir, pattern))
		if gErr != nil {
			return out, gErr
		}
		if len(matches) != 1 {
			names := make([]string, len(matches))
			for i, m := range matches {
				names[i] = filepath.Base(m)
			}
			out.Errors = append(out.Errors, &ConsolidationError{Dir: dir, Matches: names})
			continue
		}

		dst := filepath.Join(root, strings.TrimPrefix(filepath.Base(matches[0]), stripPrefix))
		if _, sErr := os.Lstat(dst); sErr == nil {
			out.Errors = append(out.Errors, &ConsolidationError{Dir: dir, Matches: []string{filepath.Base(matches[0])}, Exists: dst})
			continue
		}
		if mErr := MoveFile(matches[0], dst); mErr != nil {
			out.Errors = append(out.Errors, mErr)
			continue
		}
		if rErr := os.RemoveAll(dir); rErr != nil {
			out.Errors = append(out.Errors, fmt.Errorf("removing %s: %w", dir, rErr))
		}
		out.Moved = append(out.Moved, MovedArchive{Dir: dir, Dest: dst})
	}
	return out, nil
}

// MoveFile renames src to dst, creating dst's directory.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to %s: %w", src, dst, err)
	}
	return nil
}

// CreateFile creates path, hands it to write and closes it. A failed close is
// returned like any write error.
func CreateFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cErr)
		}
	}()
	return write(f)
}
