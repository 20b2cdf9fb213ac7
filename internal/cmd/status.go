package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/specsync/specsync/internal/config"
	"github.com/specsync/specsync/internal/state"
	"github.com/specsync/specsync/internal/tasks"
	"github.com/specsync/specsync/internal/ux"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status for the current project",
	Long: `Compare the tasks document's content hash against the last synced
hash and report whether a sync is needed. Reads only local state, never
the remote tracker.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusReport struct {
	File         string    `json:"file" yaml:"file"`
	Branch       string    `json:"branch,omitempty" yaml:"branch,omitempty"`
	Synced       bool      `json:"synced" yaml:"synced"`
	NeverSynced  bool      `json:"never_synced" yaml:"never_synced"`
	PartialSync  bool      `json:"partial_sync" yaml:"partial_sync"`
	LastSyncedAt time.Time `json:"last_synced_at,omitempty" yaml:"last_synced_at,omitempty"`
	ProjectURL   string    `json:"project_url,omitempty" yaml:"project_url,omitempty"`
	Entities     int       `json:"entities" yaml:"entities"`
	Tasks        int       `json:"tasks" yaml:"tasks"`
	Completed    int       `json:"completed" yaml:"completed"`
}

func (r statusReport) String() string {
	var b strings.Builder
	switch {
	case r.NeverSynced:
		fmt.Fprintf(&b, "○ %s has never been synced\n", r.File)
	case r.PartialSync:
		fmt.Fprintf(&b, "◐ last sync of %s was partial, re-run sync\n", r.File)
	case r.Synced:
		fmt.Fprintf(&b, "✓ %s is in sync\n", r.File)
	default:
		fmt.Fprintf(&b, "✗ %s has changed since the last sync\n", r.File)
	}
	fmt.Fprintf(&b, "\n  Tasks:    %d (%d completed)\n", r.Tasks, r.Completed)
	if r.Branch != "" {
		fmt.Fprintf(&b, "  Branch:   %s\n", r.Branch)
	}
	if !r.LastSyncedAt.IsZero() {
		fmt.Fprintf(&b, "  Last sync: %s (%d entities)\n", r.LastSyncedAt.Format(time.RFC3339), r.Entities)
	}
	if r.ProjectURL != "" {
		fmt.Fprintf(&b, "  Project:  %s\n", r.ProjectURL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}

	doc, err := loadDocument(cfg.TasksFile)
	if err != nil {
		return err
	}
	hash, err := tasks.Hash(doc)
	if err != nil {
		return err
	}

	prior, err := state.NewStore(config.Dir).Load()
	if err != nil {
		return err
	}

	report := statusReport{
		File:      cfg.TasksFile,
		Branch:    doc.Branch,
		Tasks:     doc.TaskCount(),
		Completed: doc.CompletedCount(),
	}
	if prior == nil {
		report.NeverSynced = true
	} else {
		report.Synced = prior.LastHash == hash && prior.Status == "completed"
		report.PartialSync = prior.Status == "partial"
		report.LastSyncedAt = prior.LastSyncedAt
		report.Entities = len(prior.Entities)
		if prior.Project != nil {
			report.ProjectURL = prior.Project.URL
		}
	}

	formatter, err := ux.NewFormatter(flagFormat, &ux.FormatterOptions{Writer: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	return formatter.Format(report)
}
