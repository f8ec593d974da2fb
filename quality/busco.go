package quality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gmaffy/genome-batch/utils"
)

const (
	jsonDirName = "json_files"
	logsDirName = "logs"
)

// BuscoStage links every annotated proteome into one folder, runs BUSCO over the
// folder in batch mode and flattens BUSCO's per-genome output into OutDir.
type BuscoStage struct {
	AnnotationRoot string
	FaaDir         string
	OutDir         string
	DB             string
	Lineage        string
	Exclude        string
	Threads        int
	Env            utils.EnvSpec

	Runner  utils.ToolRunner
	Log     *slog.Logger
	version utils.VersionLog
}

func NewBuscoStage(cfg utils.Config, runner utils.ToolRunner, log *slog.Logger) *BuscoStage {
	return &BuscoStage{
		AnnotationRoot: cfg.AnnotationRoot,
		FaaDir:         cfg.Busco.FaaDir,
		OutDir:         cfg.Busco.OutDir,
		DB:             cfg.Busco.DB,
		Lineage:        cfg.Busco.Lineage,
		Exclude:        cfg.Busco.Exclude,
		Threads:        cfg.Threads,
		Env:            cfg.Busco.Env,
		Runner:         runner,
		Log:            log,
	}
}

func (s *BuscoStage) Name() string { return "busco" }

// WorkDir is where BUSCO itself writes: <out>/BUSCO_<faa dir name>.
func (s *BuscoStage) WorkDir() string {
	return filepath.Join(s.OutDir, "BUSCO_"+filepath.Base(filepath.Clean(s.FaaDir)))
}

func (s *BuscoStage) JSONDir() string { return filepath.Join(s.OutDir, jsonDirName) }

// SummaryPrefix is what BUSCO puts in front of every per-genome summary file.
func (s *BuscoStage) SummaryPrefix() string {
	return "short_summary.specific." + s.Lineage + "."
}

func (s *BuscoStage) Prepare(context.Context) error {
	return os.MkdirAll(s.FaaDir, 0755)
}

func (s *BuscoStage) Discover() ([]utils.WorkItem, error) {
	return utils.Discover(s.AnnotationRoot, filepath.Join("*", "*.faa"), ".faa",
		utils.ExcludeSubstring(s.Exclude), utils.RegularFilesOnly())
}

func (s *BuscoStage) MarkerDir(utils.WorkItem) string { return s.FaaDir }

func (s *BuscoStage) Complete(item utils.WorkItem, listing utils.Listing) bool {
	return listing.Has(item.Name)
}

func (s *BuscoStage) OutputDir(utils.WorkItem) string { return "" }

// Process symlinks the proteome into FaaDir with a relative target.
func (s *BuscoStage) Process(_ context.Context, item utils.WorkItem) error {
	dest := filepath.Join(s.FaaDir, item.Name)
	absFaaDir, err := filepath.Abs(s.FaaDir)
	if err != nil {
		return err
	}
	absItem, err := filepath.Abs(item.Path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(absFaaDir, absItem)
	if err != nil {
		return fmt.Errorf("relative path for %s: %w", item.Name, err)
	}
	if err := os.Symlink(rel, dest); err != nil {
		return fmt.Errorf("creating symlink for %s: %w", item.Name, err)
	}

	linked, lErr := os.Stat(dest)
	orig, oErr := os.Stat(item.Path)
	if lErr != nil || oErr != nil || !os.SameFile(linked, orig) {
		_ = os.Remove(dest)
		return fmt.Errorf("symlink %s does not resolve to %s", dest, item.Path)
	}
	s.Log.Info("Created symlink", "file", item.Name, "target", rel)
	return nil
}

// MissingSummaries lists linked proteomes that have no summary JSON yet.
func MissingSummaries(linked []string, jsonListing utils.Listing) []string {
	var missing []string
	for _, faa := range linked {
		if !jsonListing.HasSuffix("." + faa + ".json") {
			missing = append(missing, faa)
		}
	}
	return missing
}

func (s *BuscoStage) Command() utils.Command {
	return utils.Command{
		Tool: "busco",
		Args: []string{
			"-m", "protein",
			"--offline",
			"-l", s.Lineage,
			"--download_path", s.DB,
			"--out_path", s.OutDir,
			"-i", s.FaaDir,
			"--cpu", strconv.Itoa(s.Threads),
		},
		Env: s.Env,
	}
}

// Finish runs BUSCO when a linked proteome has no summary yet, then consolidates,
// plots and reports. A failed BUSCO run still has the genomes it finished collected
// before its error is returned.
func (s *BuscoStage) Finish(ctx context.Context) error {
	faaListing, err := utils.ListDir(s.FaaDir)
	if err != nil {
		return err
	}
	linked := faaListing.Matching(".faa")
	if len(linked) == 0 {
		s.Log.Warn("No proteomes linked, nothing for BUSCO to do", "dir", s.FaaDir)
		return nil
	}

	jsonListing, err := utils.ListDir(s.JSONDir())
	if err != nil {
		return err
	}
	ran := false
	var runErr error
	if missing := MissingSummaries(linked, jsonListing); len(missing) == 0 {
		s.Log.Warn("BUSCO summaries exist for every proteome. Skipping BUSCO run.", "count", len(linked))
	} else {
		s.Log.Info("Proteomes without BUSCO summary", "count", len(missing))
		ran = true
		if runErr = s.runBatch(ctx); runErr != nil {
			s.Log.Error("BUSCO run failed, collecting finished genomes", "error", runErr)
		}
	}

	if _, sErr := os.Stat(s.WorkDir()); sErr == nil {
		if cErr := s.consolidate(); cErr != nil {
			return errors.Join(runErr, cErr)
		}
		if runErr == nil {
			s.plot(ctx)
		}
		if fErr := s.flatten(); fErr != nil {
			return errors.Join(runErr, fErr)
		}
	}

	reportPath := filepath.Join(s.OutDir, ReportTSV)
	if _, sErr := os.Stat(reportPath); ran || sErr != nil {
		if rErr := s.Report(); rErr != nil {
			s.Log.Error("Failed to write BUSCO report", "error", rErr)
		}
	}
	return runErr
}

func (s *BuscoStage) runBatch(ctx context.Context) error {
	if _, err := os.Stat(s.WorkDir()); err == nil {
		s.Log.Warn("Removing incomplete BUSCO output directory", "dir", s.WorkDir())
		if rErr := os.RemoveAll(s.WorkDir()); rErr != nil {
			return rErr
		}
	}
	s.version.Log(ctx, s.Runner, "busco", s.Env, s.Log)
	cmd := s.Command()
	s.Log.Info("Running BUSCO command", "cmd", cmd.String())
	res, err := s.Runner.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if !res.OK() {
		s.Log.Error("BUSCO run failed", "exit_code", res.ExitCode, "stdout", res.Stdout, "stderr", res.Stderr)
		return &utils.ToolError{Tool: "busco", ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	s.Log.Info("BUSCO run completed successfully.")
	return nil
}

// consolidate turns <work>/<genome>/ into <work>/json_files/*.json and <work>/*.txt.
func (s *BuscoStage) consolidate() error {
	work := s.WorkDir()
	jsonDir := filepath.Join(work, jsonDirName)
	if err := os.MkdirAll(jsonDir, 0755); err != nil {
		return err
	}
	listing, err := utils.ListDir(work)
	if err != nil {
		return err
	}

	for _, sub := range listing.Dirs() {
		if sub == logsDirName || sub == jsonDirName {
			continue
		}
		subdir := filepath.Join(work, sub)
		subListing, lErr := utils.ListDir(subdir)
		if lErr != nil {
			s.Log.Error("Failed to list", "dir", subdir, "error", lErr)
			continue
		}
		for _, d := range subListing.Dirs() {
			s.Log.Info("Removing directory", "dir", filepath.Join(subdir, d))
			if rErr := os.RemoveAll(filepath.Join(subdir, d)); rErr != nil {
				s.Log.Error("Failed to remove directory", "dir", d, "error", rErr)
			}
		}
		for _, f := range subListing.Files() {
			src := filepath.Join(subdir, f)
			switch filepath.Ext(f) {
			case ".json":
				// the prefix stays: busco --plot looks for it
				if mErr := utils.MoveFile(src, filepath.Join(jsonDir, f)); mErr != nil {
					s.Log.Error("Failed to move JSON file", "file", f, "error", mErr)
				}
			case ".txt":
				if mErr := utils.MoveFile(src, filepath.Join(work, strings.TrimPrefix(f, s.SummaryPrefix()))); mErr != nil {
					s.Log.Error("Failed to move", "file", f, "error", mErr)
				}
			}
		}
		if rErr := os.Remove(subdir); rErr != nil {
			s.Log.Error("Failed to remove subdirectory", "dir", subdir, "error", rErr)
			continue
		}
		s.Log.Info("Removed subdirectory", "dir", subdir)
	}
	return nil
}

func (s *BuscoStage) plot(ctx context.Context) {
	work := s.WorkDir()
	jsonDir := filepath.Join(work, jsonDirName)
	figures, _ := filepath.Glob(filepath.Join(jsonDir, "busco_figure*.png"))
	existing, _ := filepath.Glob(filepath.Join(work, "busco_figure*.png"))
	if len(figures) == 0 && len(existing) == 0 {
		res, err := s.Runner.Run(ctx, utils.Command{Tool: "busco", Args: []string{"--plot", jsonDir}, Env: s.Env})
		switch {
		case err != nil:
			s.Log.Error("BUSCO plot command failed", "error", err)
		case !res.OK():
			s.Log.Error("BUSCO plot command failed", "exit_code", res.ExitCode, "stdout", strings.TrimSpace(res.Stdout), "stderr", strings.TrimSpace(res.Stderr))
		default:
			s.Log.Info("BUSCO plot command completed successfully.")
		}
		figures, _ = filepath.Glob(filepath.Join(jsonDir, "busco_figure*.png"))
	} else {
		s.Log.Info("BUSCO figure already exists")
	}
	for _, fig := range figures {
		if err := utils.MoveFile(fig, filepath.Join(work, filepath.Base(fig))); err != nil {
			s.Log.Error("Failed to move figure", "file", fig, "error", err)
		}
	}
}

// flatten moves everything from the work dir up into OutDir and removes the work dir.
func (s *BuscoStage) flatten() error {
	work := s.WorkDir()
	listing, err := utils.ListDir(work)
	if err != nil {
		return err
	}
	for name := range listing.Entries {
		if mErr := mergeMove(filepath.Join(work, name), filepath.Join(s.OutDir, name)); mErr != nil {
			s.Log.Error("Failed to move", "file", name, "error", mErr)
			continue
		}
		s.Log.Info("Moved to BUSCO output directory", "file", name)
	}
	if err := os.Remove(work); err != nil {
		s.Log.Error("Failed to remove BUSCO output directory", "dir", work, "error", err)
		return nil
	}
	s.Log.Info("Removed BUSCO output directory", "dir", work)
	return nil
}

// mergeMove renames src to dst; when both are directories the contents of src are
// merged into dst.
func mergeMove(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	dstInfo, err := os.Stat(dst)
	if err != nil || !srcInfo.IsDir() || !dstInfo.IsDir() {
		return utils.MoveFile(src, dst)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if mErr := mergeMove(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); mErr != nil {
			return mErr
		}
	}
	return os.Remove(src)
}
