package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gmaffy/genome-batch/utils"
)

// Stage is one directory-driven batch step.
type Stage interface {
	Name() string
	// Discover returns the work list, fixed for the rest of the run.
	Discover() ([]utils.WorkItem, error)
	// MarkerDir is the directory whose listing decides whether item is done.
	MarkerDir(item utils.WorkItem) string
	// Complete must only look at the listing.
	Complete(item utils.WorkItem, listing utils.Listing) bool
	// OutputDir is cleared before a retry when it exists without a completion
	// marker. Stages that must never have their directory removed return "".
	OutputDir(item utils.WorkItem) string
	Process(ctx context.Context, item utils.WorkItem) error
}

// Preparer stages run Prepare once before the item loop.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Finisher stages run Finish once after the item loop, whatever the item outcomes.
type Finisher interface {
	Finish(ctx context.Context) error
}

type Summary struct {
	Stage      string
	Discovered int
	Skipped    int
	Succeeded  int
	Failed     int
	Failures   map[string]error
}

func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("discovered", s.Discovered),
		slog.Int("skipped", s.Skipped),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
	)
}

type Runner struct {
	Log *slog.Logger
}

func NewRunner(log *slog.Logger) *Runner {
	return &Runner{Log: log}
}

// Run processes every discovered item one after another. A failing item is
// logged and counted; it never stops the loop. Only a cancelled context does.
func (r *Runner) Run(ctx context.Context, stage Stage) (Summary, error) {
	summary := Summary{Stage: stage.Name(), Failures: map[string]error{}}

	if p, ok := stage.(Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			return summary, fmt.Errorf("%s: prepare: %w", stage.Name(), err)
		}
	}

	items, err := stage.Discover()
	if err != nil {
		return summary, fmt.Errorf("%s: discovering work items: %w", stage.Name(), err)
	}
	summary.Discovered = len(items)
	r.Log.Info("Discovered work items", "count", len(items))

	for _, item := range items {
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.Log.Warn("Run cancelled", "remaining_from", item.Name)
			return summary, ctxErr
		}

		done, gErr := r.guard(stage, item)
		if gErr != nil {
			summary.Failed++
			summary.Failures[item.Name] = gErr
			r.Log.Error("Could not prepare work item", "item", item.Name, "error", gErr)
			continue
		}
		if done {
			summary.Skipped++
			continue
		}

		r.Log.Info("Processing", "item", item.Name)
		if item.IsSymlink() {
			r.Log.Info("Input is a symlink", "item", item.Name, "target", item.Resolved)
		}
		if pErr := stage.Process(ctx, item); pErr != nil {
			summary.Failed++
			summary.Failures[item.Name] = pErr
			r.Log.Error("Failed", "item", item.Name, "error", pErr)
			continue
		}
		summary.Succeeded++
		r.Log.Info("Completed", "item", item.Name)
	}

	var finishErr error
	if f, ok := stage.(Finisher); ok {
		if finishErr = f.Finish(ctx); finishErr != nil {
			r.Log.Error("Post-stage cleanup failed", "error", finishErr)
			finishErr = fmt.Errorf("%s: finish: %w", stage.Name(), finishErr)
		}
	}

	r.Log.Info("Stage finished", "summary", summary)
	return summary, finishErr
}

// guard reports whether item is already done, clearing a stale partial output otherwise.
func (r *Runner) guard(stage Stage, item utils.WorkItem) (bool, error) {
	listing, err := utils.ListDir(stage.MarkerDir(item))
	if err != nil {
		return false, fmt.Errorf("listing %s: %w", stage.MarkerDir(item), err)
	}
	if stage.Complete(item, listing) {
		r.Log.Warn("Output already complete, skipping", "item", item.Name)
		return true, nil
	}

	out := stage.OutputDir(item)
	if out == "" {
		return false, nil
	}
	if _, sErr := os.Stat(out); sErr == nil {
		r.Log.Warn("Removing incomplete output directory", "item", item.Name, "dir", out)
		if rErr := os.RemoveAll(out); rErr != nil {
			return false, fmt.Errorf("removing stale output %s: %w", out, rErr)
		}
	}
	return false, nil
}
