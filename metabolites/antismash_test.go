package metabolites

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gmaffy/genome-batch/pipeline"
	"github.com/gmaffy/genome-batch/utils"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAntismash writes <output-dir>/<title>.zip plus the usual html output.
// runs counts every invocation, calls only the analysed titles.
type fakeAntismash struct {
	runs  int
	calls []string
	fail  map[string]bool
}

func (f *fakeAntismash) Run(_ context.Context, c utils.Command) (utils.Result, error) {
	f.runs++
	if slices.Contains(c.Args, "--version") {
		return utils.Result{Stdout: "antiSMASH 7.1.0"}, nil
	}
	title := c.Args[slices.Index(c.Args, "--html-title")+1]
	f.calls = append(f.calls, title)
	out := c.Args[slices.Index(c.Args, "--output-dir")+1]
	if err := os.MkdirAll(filepath.Join(out, "regions"), 0755); err != nil {
		return utils.Result{}, err
	}
	os.WriteFile(filepath.Join(out, "index.html"), []byte("<html>"), 0644)
	if f.fail[title] {
		return utils.Result{ExitCode: 1, Stderr: "record has no features"}, nil
	}
	return utils.Result{}, os.WriteFile(filepath.Join(out, title+".zip"), []byte("PK"), 0644)
}

func newTestAntismash(t *testing.T, runner utils.ToolRunner, genomes ...string) *AntismashStage {
	t.Helper()
	root := filepath.Join(t.TempDir(), "Annotation")
	s := &AntismashStage{
		AnnotationRoot: filepath.Join(root, "bakta"),
		OutDir:         filepath.Join(root, "bakta_antismash"),
		GeneFinding:    "none",
		Taxon:          "bacteria",
		Completeness:   2,
		Threads:        4,
		Runner:         runner,
		Log:            quietLogger(),
	}
	for _, g := range genomes {
		dir := filepath.Join(s.AnnotationRoot, g)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		os.WriteFile(filepath.Join(dir, g+".gbff"), []byte("LOCUS"), 0644)
	}
	return s
}

// rerun is the same stage as a new process would build it.
func rerun(s *AntismashStage) *AntismashStage {
	return &AntismashStage{
		AnnotationRoot: s.AnnotationRoot,
		OutDir:         s.OutDir,
		GeneFinding:    s.GeneFinding,
		Taxon:          s.Taxon,
		Completeness:   s.Completeness,
		Threads:        s.Threads,
		Env:            s.Env,
		Runner:         s.Runner,
		Log:            s.Log,
	}
}

func TestAntismashCommand(t *testing.T) {
	s := newTestAntismash(t, nil)
	item := utils.WorkItem{Path: "bakta/A_b_1/A_b_1.gbff", Name: "A_b_1.gbff", Stem: "A_b_1"}
	args := s.Command(item).Args
	if !slices.Contains(args, "--cb-knownclusters") || slices.Contains(args, "--minimal") {
		t.Errorf("completeness 2 flags wrong: %q", args)
	}
	if args[len(args)-1] != item.Path {
		t.Errorf("input must come last: %q", args)
	}

	s.Completeness = 0
	if args := s.Command(item).Args; !slices.Contains(args, "--minimal") {
		t.Errorf("completeness 0 should be minimal: %q", args)
	}
}

func TestAntismashStageConsolidatesAndResumes(t *testing.T) {
	fake := &fakeAntismash{fail: map[string]bool{"A_b_2": true}}
	s := newTestAntismash(t, fake, "A_b_1", "A_b_2")
	r := pipeline.NewRunner(quietLogger())

	sum, err := r.Run(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Succeeded != 1 || sum.Failed != 1 || fake.runs != 3 {
		t.Fatalf("summary = %+v, runs = %d", sum, fake.runs)
	}

	out, _ := utils.ListDir(s.OutDir)
	if !out.HasNonEmpty("A_b_1.zip") || out.Has("A_b_1") {
		t.Errorf("A_b_1 not consolidated: %v", out.Entries)
	}
	// no zip: left for inspection
	if !out.Has("A_b_2") {
		t.Error("failed genome's directory should be kept")
	}

	delete(fake.fail, "A_b_2")
	fake.calls, fake.runs = nil, 0
	sum, err = r.Run(context.Background(), rerun(s))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(fake.calls, []string{"A_b_2"}) || fake.runs != 2 || sum.Skipped != 1 {
		t.Errorf("second run calls = %q, runs = %d, summary = %+v", fake.calls, fake.runs, sum)
	}
	out, _ = utils.ListDir(s.OutDir)
	if !slices.Equal(out.Files(), []string{"A_b_1.zip", "A_b_2.zip"}) || len(out.Dirs()) != 0 {
		t.Errorf("out = %v", out.Entries)
	}

	fake.calls, fake.runs = nil, 0
	if _, err := r.Run(context.Background(), rerun(s)); err != nil {
		t.Fatal(err)
	}
	if fake.runs != 0 {
		t.Errorf("third run started the tool %d times", fake.runs)
	}
}

func TestAntismashPrepareRecoversInterruptedRun(t *testing.T) {
	fake := &fakeAntismash{}
	s := newTestAntismash(t, fake, "A_b_1")
	// previous run finished antiSMASH but died before consolidating
	left := filepath.Join(s.OutDir, "A_b_1")
	os.MkdirAll(left, 0755)
	os.WriteFile(filepath.Join(left, "A_b_1.zip"), []byte("PK"), 0644)

	sum, err := pipeline.NewRunner(quietLogger()).Run(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if fake.runs != 0 || sum.Skipped != 1 {
		t.Errorf("runs = %d, summary = %+v", fake.runs, sum)
	}
}
