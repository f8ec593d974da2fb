package annotation

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
	"golang.org/x/sync/errgroup"

	"github.com/gmaffy/genome-batch/utils"
)

// CleanupStage archives each annotation directory to <name>_bakta.tar.xz and then
// deletes everything except the keep-set (by default *.gbff, *.faa and the archive).
type CleanupStage struct {
	AnnotationRoot string
	Keep           []string
	ArchiveSuffix  string

	Log *slog.Logger
}

func NewCleanupStage(cfg utils.Config, log *slog.Logger) *CleanupStage {
	return &CleanupStage{
		AnnotationRoot: cfg.AnnotationRoot,
		Keep:           cfg.Cleanup.Keep,
		ArchiveSuffix:  cfg.Cleanup.ArchiveSuffix,
		Log:            log,
	}
}

type CleanupResult struct {
	Archive string
	Created bool
	Kept    []string
	Deleted []string
	Total   int
}

func (s *CleanupStage) Name() string { return "cleanup" }

func (s *CleanupStage) Discover() ([]utils.WorkItem, error) {
	return utils.Discover(s.AnnotationRoot, "*", "", utils.DirsOnly())
}

func (s *CleanupStage) ArchiveName(item utils.WorkItem) string {
	return item.Name + s.ArchiveSuffix
}

func (s *CleanupStage) MarkerDir(item utils.WorkItem) string { return item.Path }

// The annotation directory itself is the product; never clear it.
func (s *CleanupStage) OutputDir(utils.WorkItem) string { return "" }

// Complete holds once the archive is in place and nothing outside the keep-set remains.
func (s *CleanupStage) Complete(item utils.WorkItem, listing utils.Listing) bool {
	archive := s.ArchiveName(item)
	if !listing.HasNonEmpty(archive) {
		return false
	}
	_, remove := s.partition(listing.Files(), archive)
	return len(remove) == 0
}

func (s *CleanupStage) Process(ctx context.Context, item utils.WorkItem) error {
	res, err := s.CleanDir(ctx, item)
	if err != nil {
		return err
	}
	s.Log.Info("Cleaned annotation directory",
		"item", item.Name,
		"archive_created", res.Created,
		"kept", len(res.Kept),
		"deleted", len(res.Deleted),
		"total", res.Total)
	return nil
}

// CleanDir runs the archive step and then the prune step on one directory. The
// archive's existence is settled before the delete candidates are computed.
func (s *CleanupStage) CleanDir(ctx context.Context, item utils.WorkItem) (CleanupResult, error) {
	archive := s.ArchiveName(item)
	res := CleanupResult{Archive: filepath.Join(item.Path, archive)}

	before, err := utils.ListDir(item.Path)
	if err != nil {
		return res, err
	}
	if before.HasNonEmpty(archive) {
		s.Log.Info("Archive already exists", "archive", archive)
	} else {
		s.Log.Info("Creating archive", "archive", archive)
		if err := WriteTarXz(ctx, item.Path, res.Archive, before.Files()); err != nil {
			return res, fmt.Errorf("creating archive %s: %w", archive, err)
		}
		res.Created = true
	}

	after, err := utils.ListDir(item.Path)
	if err != nil {
		return res, err
	}
	files := after.Files()
	res.Total = len(files)
	keep, remove := s.partition(files, archive)
	res.Kept = keep
	for _, name := range remove {
		if rmErr := os.Remove(filepath.Join(item.Path, name)); rmErr != nil {
			s.Log.Error("Failed to remove", "file", name, "error", rmErr)
			res.Kept = append(res.Kept, name)
			continue
		}
		s.Log.Debug("Removed", "file", name)
		res.Deleted = append(res.Deleted, name)
	}
	return res, nil
}

func (s *CleanupStage) partition(files []string, archive string) (keep, remove []string) {
	for _, name := range files {
		if name == archive || s.keeps(name) {
			keep = append(keep, name)
		} else {
			remove = append(remove, name)
		}
	}
	return keep, remove
}

func (s *CleanupStage) keeps(name string) bool {
	for _, ext := range s.Keep {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// WriteTarXz packs names (relative to dir) into dest. The archive is streamed to
// dest+".partial" and renamed into place only once both the tar and xz writers
// have been closed cleanly.
func WriteTarXz(ctx context.Context, dir, dest string, names []string) error {
	partial := dest + ".partial"
	out, err := os.Create(partial)
	if err != nil {
		return err
	}
	defer os.Remove(partial)

	pr, pw := io.Pipe()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := writeTar(ctx, pw, dir, names, filepath.Base(partial))
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		xw, err := xz.NewWriter(out)
		if err != nil {
			pr.CloseWithError(err)
			return err
		}
		if _, err := io.Copy(xw, pr); err != nil {
			pr.CloseWithError(err)
			return err
		}
		return xw.Close()
	})

	if err := g.Wait(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(partial, dest)
}

func writeTar(ctx context.Context, w io.Writer, dir string, names []string, skip string) error {
	tw := tar.NewWriter(w)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if name == skip {
			continue
		}
		if err := addFile(tw, dir, name); err != nil {
			return err
		}
	}
	return tw.Close()
}

func addFile(tw *tar.Writer, dir, name string) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = "./" + name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
