package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specsync/specsync/internal/config"
	"github.com/specsync/specsync/internal/engine"
	apperrors "github.com/specsync/specsync/internal/errors"
	"github.com/specsync/specsync/internal/graph"
	"github.com/specsync/specsync/internal/log"
	"github.com/specsync/specsync/internal/progress"
	"github.com/specsync/specsync/internal/remote"
	"github.com/specsync/specsync/internal/state"
	"github.com/specsync/specsync/internal/tui"
	"github.com/specsync/specsync/internal/ux"
)

var (
	syncDryRun bool
	syncYes    bool
	syncReview bool
	syncFile   string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the tasks document to the project board",
	Long: `Parse the tasks document, diff it against remote state, and issue
the minimal set of create/update/link calls to converge the board.

Re-running an unchanged document performs zero remote calls. Re-running
after a partial failure re-discovers already-created entities and
retries only what failed. Concurrent syncs against the same project are
unsafe; serialize invocations.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "print the operation plan without mutating anything")
	syncCmd.Flags().BoolVarP(&syncYes, "yes", "y", false, "apply without confirmation")
	syncCmd.Flags().BoolVar(&syncReview, "review", false, "review the plan interactively before applying")
	syncCmd.Flags().StringVar(&syncFile, "file", "", "tasks file (overrides config)")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := log.DefaultLogger()

	cfg, err := config.Load(".")
	if err != nil {
		return err
	}
	path := cfg.TasksFile
	if syncFile != "" {
		path = syncFile
	}

	doc, err := loadDocument(path)
	if err != nil {
		return err
	}
	g, err := graph.Build(doc)
	if err != nil {
		return err
	}

	store := state.NewStore(config.Dir)
	prior, err := store.Load()
	if err != nil {
		return err
	}

	token, err := config.Token()
	if err != nil {
		return err
	}

	tracker := remote.NewGitHubTracker(remote.GitHubConfig{
		Token:         token,
		Owner:         cfg.Owner,
		Repo:          cfg.Repo,
		ProjectNumber: cfg.ProjectNumber,
		BaseURL:       cfg.BaseURL,
	}, logger)

	indicator := progress.NewIndicator(progress.Config{ShowSpinner: !flagVerbose})
	eng := engine.New(tracker, engine.Options{
		Logger: logger,
		OnStep: indicator.Step,
	})

	plan, err := eng.Plan(ctx, doc, g, prior)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if plan.UpToDate {
		fmt.Fprintln(out, "✓ already up to date, no remote calls made")
		return nil
	}

	if syncDryRun {
		fmt.Fprintln(out, renderPlan(plan))
		return nil
	}

	if syncReview {
		review, err := tui.RunPlanReview(plan)
		if err != nil {
			return err
		}
		if !review.Approved {
			return nil
		}
	} else if !syncYes {
		fmt.Fprintln(out, renderPlan(plan))
		fmt.Fprintln(out)
		if !ux.Confirm("Apply this plan?", true) {
			fmt.Fprintln(out, "cancelled, nothing was changed")
			return nil
		}
	}

	indicator.Start(plan.TotalSteps())
	result, err := eng.Apply(ctx, plan)
	indicator.Stop()
	if err != nil {
		return err
	}

	if result.State != nil {
		if err := store.Save(result.State); err != nil {
			logger.WithError(err).Warn("sync completed but state save failed")
		}
	}

	fmt.Fprintln(out, renderResult(result))

	if result.Partial() {
		return apperrors.NewPartialSyncError(len(result.Failures))
	}
	return nil
}

func renderPlan(plan *engine.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan: %d entities, %d dependency links\n", len(plan.Entities), len(plan.Links))
	if plan.Project == nil {
		fmt.Fprintf(&b, "  project %q will be created\n", plan.ProjectTitle)
	} else {
		fmt.Fprintf(&b, "  project: %s\n", plan.Project.Title)
	}

	counts := plan.ActionCounts()
	kinds := []remote.Kind{remote.KindPhase, remote.KindGroup, remote.KindTask}
	for _, kind := range kinds {
		c := counts[kind]
		if c == nil {
			continue
		}
		fmt.Fprintf(&b, "  %-6s create %d, update %d, reuse %d\n",
			kind, c[engine.ActionCreate], c[engine.ActionUpdate], c[engine.ActionReuse])
	}
	for _, op := range plan.Entities {
		if op.Action == engine.ActionReuse {
			continue
		}
		fmt.Fprintf(&b, "    %-6s %-5s %s\n", op.Action, op.Kind, op.Title)
	}
	if len(plan.Warnings) > 0 {
		fmt.Fprintf(&b, "  %d item(s) diverged from the document and will be updated\n", len(plan.Warnings))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderResult(result *engine.Result) string {
	var b strings.Builder
	if result.Partial() {
		b.WriteString("◐ sync partially completed\n")
	} else {
		b.WriteString("✓ sync completed\n")
	}
	if result.Project != nil && result.Project.URL != "" {
		fmt.Fprintf(&b, "  project: %s\n", result.Project.URL)
	}

	kinds := make([]string, 0, len(result.Counts))
	for kind := range result.Counts {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		c := result.Counts[remote.Kind(kind)]
		fmt.Fprintf(&b, "  %-6s created %d, updated %d, reused %d, failed %d\n",
			kind, c.Created, c.Updated, c.Reused, c.Failed)
	}
	fmt.Fprintf(&b, "  links: %d linked, %d failed, %d skipped\n",
		result.Linked, result.LinksFailed, result.LinksSkipped)

	for _, f := range result.Failures {
		fmt.Fprintf(&b, "  ✗ %s: %v\n", f.Key, f.Err)
	}
	return strings.TrimRight(b.String(), "\n")
}
