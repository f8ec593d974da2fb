package annotation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gmaffy/genome-batch/assembly"
	"github.com/gmaffy/genome-batch/utils"
)

// BaktaStage annotates every <source_dir>/*<ext> assembly into <annotation_root>/<stem>/.
type BaktaStage struct {
	SourceDir      string
	SourceExt      string
	AnnotationRoot string
	DB             string
	Gram           string
	LocusPrefix    string
	CompleteGenome bool
	Threads        int
	Env            utils.EnvSpec

	Runner  utils.ToolRunner
	Log     *slog.Logger
	version utils.VersionLog
}

func NewBaktaStage(cfg utils.Config, runner utils.ToolRunner, log *slog.Logger) *BaktaStage {
	return &BaktaStage{
		SourceDir:      cfg.SourceDir,
		SourceExt:      cfg.SourceExt,
		AnnotationRoot: cfg.AnnotationRoot,
		DB:             cfg.Bakta.DB,
		Gram:           cfg.Bakta.Gram,
		LocusPrefix:    cfg.Bakta.LocusTagPrefix,
		CompleteGenome: cfg.Bakta.Complete,
		Threads:        cfg.Threads,
		Env:            cfg.Bakta.Env,
		Runner:         runner,
		Log:            log,
	}
}

func (s *BaktaStage) Name() string { return "bakta" }

func (s *BaktaStage) Prepare(context.Context) error {
	s.Log.Info("Annotation settings",
		"db", s.DB,
		"annotation_root", s.AnnotationRoot,
		"source_dir", s.SourceDir,
		"source_ext", s.SourceExt)
	return nil
}

func (s *BaktaStage) Discover() ([]utils.WorkItem, error) {
	return utils.Discover(s.SourceDir, "*"+s.SourceExt, s.SourceExt)
}

func (s *BaktaStage) OutputDir(item utils.WorkItem) string {
	return filepath.Join(s.AnnotationRoot, item.Stem)
}

func (s *BaktaStage) MarkerDir(item utils.WorkItem) string { return s.OutputDir(item) }

// Complete: bakta writes <prefix>.gbff last, so a non-empty one means the run finished.
func (s *BaktaStage) Complete(item utils.WorkItem, listing utils.Listing) bool {
	return listing.HasNonEmpty(item.Stem + ".gbff")
}

func (s *BaktaStage) Process(ctx context.Context, item utils.WorkItem) error {
	name, err := ParseName(item.Stem, s.LocusPrefix)
	if err != nil {
		return err
	}

	// ------------------------------------------- Pre-flight ------------------------------------------------------ //
	st, err := assembly.ReadStats(item.Path)
	if err != nil {
		return fmt.Errorf("pre-flight: %w", err)
	}
	s.Log.Info("Assembly", "item", item.Name, "contigs", st.Sequences, "size", st.Size, "n50", st.N50)

	// ------------------------------------------- Run bakta ------------------------------------------------------- //
	s.version.Log(ctx, s.Runner, "bakta", s.Env, s.Log)
	cmd := s.Command(item, name)
	s.Log.Debug("Running bakta", "cmd", cmd.String())
	res, err := utils.RunChecked(ctx, s.Runner, cmd)
	if err != nil {
		return err
	}
	if out := strings.TrimSpace(res.Stdout); out != "" {
		s.Log.Info("Bakta output", "item", item.Name, "stdout", out)
	}
	return nil
}

func (s *BaktaStage) Command(item utils.WorkItem, name SampleName) utils.Command {
	args := []string{
		"--db", s.DB,
		"--output", s.OutputDir(item),
		"--prefix", item.Stem,
		"--genus", name.Genus,
		"--species", name.Species,
		"--strain", name.Strain,
		"--gram", s.Gram,
		"--locus-tag", name.LocusTag,
		"--threads", strconv.Itoa(s.Threads),
	}
	if s.CompleteGenome {
		args = append(args, "--complete")
	}
	args = append(args, item.Path)
	return utils.Command{Tool: "bakta", Args: args, Env: s.Env}
}
