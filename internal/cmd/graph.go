package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specsync/specsync/internal/graph"
	"github.com/specsync/specsync/internal/ux"
)

var graphCmd = &cobra.Command{
	Use:   "graph [tasks-file]",
	Short: "Show the dependency graph inferred from a tasks document",
	Long: `Build and print the dependency graph: one edge per blocked-by
relationship, inferred from document order and parallel markers.
Non-parallel tasks anchor everything that follows them; parallel tasks
fan out from the same anchor without serializing each other.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func init() {
	rootCmd.AddCommand(graphCmd)
}

type graphEdge struct {
	Task    string `json:"task" yaml:"task"`
	Blocker string `json:"blocked_by" yaml:"blocked_by"`
}

type graphReport struct {
	Tasks int         `json:"tasks" yaml:"tasks"`
	Roots []string    `json:"roots" yaml:"roots"`
	Edges []graphEdge `json:"edges" yaml:"edges"`
}

func (r graphReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d tasks, %d dependency edges\n\n", r.Tasks, len(r.Edges))
	if len(r.Roots) > 0 {
		fmt.Fprintf(&b, "  No blockers: %s\n\n", strings.Join(r.Roots, ", "))
	}
	for _, e := range r.Edges {
		fmt.Fprintf(&b, "  %s ← blocked by %s\n", e.Task, e.Blocker)
	}
	return strings.TrimRight(b.String(), "\n")
}

func runGraph(cmd *cobra.Command, args []string) error {
	doc, err := loadDocument(resolveTasksFile(args))
	if err != nil {
		return err
	}
	g, err := graph.Build(doc)
	if err != nil {
		return err
	}

	report := graphReport{Tasks: len(g.Tasks())}
	for _, id := range g.Tasks() {
		if !g.HasBlockers(id) {
			report.Roots = append(report.Roots, id)
		}
	}
	for _, e := range g.Edges() {
		report.Edges = append(report.Edges, graphEdge{Task: e.Task, Blocker: e.Blocker})
	}

	formatter, err := ux.NewFormatter(flagFormat, &ux.FormatterOptions{Writer: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	return formatter.Format(report)
}
