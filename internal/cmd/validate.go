package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specsync/specsync/internal/config"
	apperrors "github.com/specsync/specsync/internal/errors"
	"github.com/specsync/specsync/internal/graph"
	"github.com/specsync/specsync/internal/tasks"
	"github.com/specsync/specsync/internal/ux"
)

var validateCmd = &cobra.Command{
	Use:   "validate [tasks-file]",
	Short: "Parse a tasks document and report its structure",
	Long: `Parse a tasks document, build its dependency graph, and report the
document structure without touching any remote state. Parse errors
identify the offending line and construct.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// resolveTasksFile picks the document path: explicit argument first,
// then the configured path, then the default
func resolveTasksFile(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if cfg, err := config.Load("."); err == nil {
		return cfg.TasksFile
	}
	return config.DefaultTasksFile
}

// loadDocument reads and parses a tasks file
func loadDocument(path string) (*tasks.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewTasksFileNotFoundError(path)
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeFileReadFailed, "read tasks file", err)
	}
	doc, err := tasks.Parse(string(data))
	if err != nil {
		return nil, err
	}
	doc.InputPath = path
	return doc, nil
}

type validateReport struct {
	File      string `json:"file" yaml:"file"`
	Title     string `json:"title" yaml:"title"`
	Phases    int    `json:"phases" yaml:"phases"`
	Groups    int    `json:"groups" yaml:"groups"`
	Tasks     int    `json:"tasks" yaml:"tasks"`
	Completed int    `json:"completed" yaml:"completed"`
	Edges     int    `json:"dependency_edges" yaml:"dependency_edges"`
	Hash      string `json:"hash" yaml:"hash"`
}

func (r validateReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ %s is valid\n\n", r.File)
	fmt.Fprintf(&b, "  Title:     %s\n", r.Title)
	fmt.Fprintf(&b, "  Phases:    %d\n", r.Phases)
	fmt.Fprintf(&b, "  Groups:    %d\n", r.Groups)
	fmt.Fprintf(&b, "  Tasks:     %d (%d completed)\n", r.Tasks, r.Completed)
	fmt.Fprintf(&b, "  Edges:     %d\n", r.Edges)
	fmt.Fprintf(&b, "  Hash:      %s", r.Hash[:12])
	return b.String()
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := resolveTasksFile(args)

	doc, err := loadDocument(path)
	if err != nil {
		return err
	}
	g, err := graph.Build(doc)
	if err != nil {
		return err
	}
	hash, err := tasks.Hash(doc)
	if err != nil {
		return err
	}

	groups := 0
	for i := range doc.Phases {
		groups += len(doc.Phases[i].Groups)
	}

	report := validateReport{
		File:      path,
		Title:     doc.Title,
		Phases:    len(doc.Phases),
		Groups:    groups,
		Tasks:     doc.TaskCount(),
		Completed: doc.CompletedCount(),
		Edges:     g.EdgeCount(),
		Hash:      hash,
	}

	formatter, err := ux.NewFormatter(flagFormat, &ux.FormatterOptions{Writer: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	return formatter.Format(report)
}
