package samplesheet

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"github.com/gmaffy/genome-batch/utils"
)

// Row maps the sequencing provider's sample prefix to the lab's strain ID.
type Row struct {
	SamplePrefix string
	StrainID     string
}

// ReadSheet reads the first two columns of sheet; the first row is a header.
// An empty sheet name means the first sheet in the workbook.
func ReadSheet(path, sheet string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s has no sheets", path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}

	var out []Row
	for i, cols := range rows {
		if i == 0 {
			continue
		}
		if len(cols) == 0 || strings.TrimSpace(strings.Join(cols, "")) == "" {
			continue
		}
		if len(cols) < 2 || strings.TrimSpace(cols[0]) == "" || strings.TrimSpace(cols[1]) == "" {
			return nil, fmt.Errorf("sheet %q row %d: expected sample prefix and strain ID, got %q", sheet, i+1, cols)
		}
		out = append(out, Row{SamplePrefix: strings.TrimSpace(cols[0]), StrainID: strings.TrimSpace(cols[1])})
	}
	return out, nil
}

// Renamer turns spreadsheet rows into <LinkDir>/<LinkPrefix>_<strain><Ext> symlinks
// pointing at the provider-named assemblies in SourceDir.
type Renamer struct {
	SourceDir   string
	LinkDir     string
	LinkPrefix  string
	Ext         string
	ManualLinks []utils.ManualLink

	Log *slog.Logger
}

func NewRenamer(cfg utils.RenameConfig, log *slog.Logger) *Renamer {
	return &Renamer{
		SourceDir:   cfg.SourceDir,
		LinkDir:     cfg.LinkDir,
		LinkPrefix:  cfg.LinkPrefix,
		Ext:         cfg.Ext,
		ManualLinks: cfg.ManualLinks,
		Log:         log,
	}
}

type Result struct {
	Links      map[string]string // source file name -> symlink name
	Exceptions [][]string
}

// Apply replaces every symlink in LinkDir with the mapping described by rows.
func (r *Renamer) Apply(rows []Row) (Result, error) {
	res := Result{Links: map[string]string{}}
	if err := os.MkdirAll(r.LinkDir, 0755); err != nil {
		return res, err
	}
	if err := r.removeLinks(); err != nil {
		return res, err
	}

	for _, row := range rows {
		matches, err := filepath.Glob(filepath.Join(r.SourceDir, row.SamplePrefix+"*"+r.Ext))
		if err != nil {
			return res, fmt.Errorf("bad sample prefix %q: %w", row.SamplePrefix, err)
		}
		sort.Strings(matches)
		if len(matches) != 1 {
			line := []string{row.StrainID}
			for _, m := range matches {
				line = append(line, filepath.Base(m))
			}
			r.Log.Warn("Expected exactly one assembly", "strain", row.StrainID, "prefix", row.SamplePrefix, "found", len(matches))
			res.Exceptions = append(res.Exceptions, line)
			continue
		}

		name, collisions := r.freeName(row.StrainID)
		for _, c := range collisions {
			res.Exceptions = append(res.Exceptions, []string{row.StrainID, c})
		}
		target, err := r.relTarget(matches[0])
		if err != nil {
			return res, err
		}
		if err := os.Symlink(target, filepath.Join(r.LinkDir, name)); err != nil {
			return res, fmt.Errorf("linking %s: %w", name, err)
		}
		res.Links[filepath.Base(matches[0])] = name
		r.Log.Info("Linked", "link", name, "target", target)
	}

	for _, m := range r.ManualLinks {
		if err := r.applyManual(m); err != nil {
			return res, err
		}
	}

	res.Exceptions = dedupeRows(res.Exceptions)
	return res, nil
}

// freeName returns the first unused link name for strain, plus every name it
// tried along the way when the plain name was taken.
func (r *Renamer) freeName(strain string) (string, []string) {
	name := fmt.Sprintf("%s_%s%s", r.LinkPrefix, strain, r.Ext)
	var tried []string
	for i := 1; r.exists(name); i++ {
		tried = append(tried, name)
		name = fmt.Sprintf("%s_%s_%d%s", r.LinkPrefix, strain, i, r.Ext)
		tried = append(tried, name)
	}
	return name, tried
}

func (r *Renamer) exists(name string) bool {
	_, err := os.Lstat(filepath.Join(r.LinkDir, name))
	return err == nil
}

func (r *Renamer) relTarget(path string) (string, error) {
	absLinkDir, err := filepath.Abs(r.LinkDir)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Rel(absLinkDir, absPath)
}

func (r *Renamer) removeLinks() error {
	entries, err := os.ReadDir(r.LinkDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Type()&os.ModeSymlink == 0 {
			continue
		}
		if err := os.Remove(filepath.Join(r.LinkDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// applyManual creates m.Link -> m.Target (target relative to LinkDir unless absolute),
// replacing an existing symlink of the same name.
func (r *Renamer) applyManual(m utils.ManualLink) error {
	if m.Link == "" || m.Target == "" {
		return errors.New("manual link needs both link and target")
	}
	link := filepath.Join(r.LinkDir, m.Link)
	if info, err := os.Lstat(link); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("manual link %s would replace a regular file", link)
		}
		if err := os.Remove(link); err != nil {
			return err
		}
	}
	if err := os.Symlink(m.Target, link); err != nil {
		return fmt.Errorf("manual link %s: %w", m.Link, err)
	}
	r.Log.Info("Manual link", "link", m.Link, "target", m.Target)
	return nil
}

func dedupeRows(rows [][]string) [][]string {
	lines := lo.Uniq(lo.Map(rows, func(row []string, _ int) string { return strings.Join(row, "\t") }))
	sort.Strings(lines)
	return lo.Map(lines, func(line string, _ int) []string { return strings.Split(line, "\t") })
}

// WriteExceptions writes one tab-separated line per exception.
func WriteExceptions(w io.Writer, exceptions [][]string) error {
	for _, row := range exceptions {
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// WriteRenameList writes source_file -> symlink, sorted by source file.
func WriteRenameList(w io.Writer, links map[string]string) error {
	sources := make([]string, 0, len(links))
	for src := range links {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	targets := lo.Map(sources, func(src string, _ int) string { return links[src] })

	df := dataframe.New(
		series.New(sources, series.String, "source_file"),
		series.New(targets, series.String, "symlink"),
	)
	if df.Err != nil {
		return df.Err
	}
	for _, rec := range df.Records() {
		if _, err := fmt.Fprintln(w, strings.Join(rec, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// WriteReports writes both TSV reports.
func WriteReports(res Result, exceptionsPath, renameListPath string) error {
	err := utils.CreateFile(exceptionsPath, func(w io.Writer) error { return WriteExceptions(w, res.Exceptions) })
	if err != nil {
		return err
	}
	return utils.CreateFile(renameListPath, func(w io.Writer) error { return WriteRenameList(w, res.Links) })
}
