package metabolites

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gmaffy/genome-batch/utils"
)

// completenessFlags maps a 0-3 "how much analysis" level onto antiSMASH options.
var completenessFlags = [][]string{
	{"--minimal"},
	{},
	{"--cb-knownclusters", "--cb-subclusters", "--asf", "--pfam2go"},
	{"--cb-knownclusters", "--cb-subclusters", "--asf", "--pfam2go",
		"--cb-general", "--cc-mibig", "--smcog-trees", "--rre", "--tfbs"},
}

// AntismashStage scans every annotated .gbff for biosynthetic gene clusters and
// keeps only antiSMASH's result zip, one per genome, in OutDir.
type AntismashStage struct {
	AnnotationRoot string
	OutDir         string
	GeneFinding    string
	Taxon          string
	Completeness   int
	Threads        int
	Env            utils.EnvSpec

	Runner  utils.ToolRunner
	Log     *slog.Logger
	version utils.VersionLog
}

func NewAntismashStage(cfg utils.Config, runner utils.ToolRunner, log *slog.Logger) *AntismashStage {
	return &AntismashStage{
		AnnotationRoot: cfg.AnnotationRoot,
		OutDir:         cfg.Antismash.OutDir,
		GeneFinding:    cfg.Antismash.GeneFinding,
		Taxon:          cfg.Antismash.Taxon,
		Completeness:   cfg.Antismash.Completeness,
		Threads:        cfg.Threads,
		Env:            cfg.Antismash.Env,
		Runner:         runner,
		Log:            log,
	}
}

func (s *AntismashStage) Name() string { return "antismash" }

// Prepare consolidates zips left behind by an interrupted run, so those genomes
// are recognised as done.
func (s *AntismashStage) Prepare(context.Context) error {
	if err := os.MkdirAll(s.OutDir, 0755); err != nil {
		return err
	}
	return s.consolidate(false)
}

func (s *AntismashStage) Discover() ([]utils.WorkItem, error) {
	return utils.Discover(s.AnnotationRoot, filepath.Join("*", "*.gbff"), ".gbff", utils.RegularFilesOnly())
}

func (s *AntismashStage) OutputDir(item utils.WorkItem) string {
	return filepath.Join(s.OutDir, item.Stem)
}

func (s *AntismashStage) MarkerDir(utils.WorkItem) string { return s.OutDir }

func (s *AntismashStage) Complete(item utils.WorkItem, listing utils.Listing) bool {
	return listing.HasNonEmpty(item.Stem + ".zip")
}

func (s *AntismashStage) Command(item utils.WorkItem) utils.Command {
	args := []string{
		"--output-dir", s.OutputDir(item),
		"--html-title", item.Stem,
		"--cpus", strconv.Itoa(s.Threads),
		"--genefinding-tool", s.GeneFinding,
		"--taxon", s.Taxon,
	}
	args = append(args, completenessFlags[s.Completeness]...)
	args = append(args, item.Path)
	return utils.Command{Tool: "antismash", Args: args, Env: s.Env}
}

func (s *AntismashStage) Process(ctx context.Context, item utils.WorkItem) error {
	if err := os.MkdirAll(filepath.Dir(s.OutputDir(item)), 0755); err != nil {
		return err
	}
	s.version.Log(ctx, s.Runner, "antismash", s.Env, s.Log)
	cmd := s.Command(item)
	s.Log.Debug("Running antiSMASH", "cmd", cmd.String())
	res, err := utils.RunChecked(ctx, s.Runner, cmd)
	if err != nil {
		return err
	}
	if out := strings.TrimSpace(res.Stdout); out != "" {
		s.Log.Debug("antiSMASH output", "item", item.Name, "stdout", out)
	}
	return nil
}

func (s *AntismashStage) Finish(context.Context) error {
	return s.consolidate(true)
}

// consolidate moves <out>/<genome>/<genome>.zip to <out>/<genome>.zip. Directories
// without exactly one zip are reported and kept for inspection.
func (s *AntismashStage) consolidate(final bool) error {
	res, err := utils.ConsolidateArchives(s.OutDir, "*.zip", "")
	if err != nil {
		return err
	}
	for _, m := range res.Moved {
		name := filepath.Base(m.Dest)
		if name != filepath.Base(m.Dir)+".zip" {
			s.Log.Warn("Zip file does not match output directory name", "zip", name, "dir", filepath.Base(m.Dir))
		}
		s.Log.Info("Consolidated result archive", "zip", name)
	}
	for _, e := range res.Errors {
		if final {
			s.Log.Error("Did not consolidate result archive", "error", e)
		} else {
			s.Log.Debug("Leftover output not consolidated", "error", e)
		}
	}
	return nil
}
