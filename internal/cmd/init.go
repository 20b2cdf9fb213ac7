package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/specsync/specsync/internal/config"
	apperrors "github.com/specsync/specsync/internal/errors"
	"github.com/specsync/specsync/internal/tui"
)

var (
	initOwner   string
	initRepo    string
	initProject int
	initFile    string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the sync configuration for this project",
	Long: `Write .specsync/config.yaml. Without flags, an interactive wizard
asks for the repository and tasks file. The API token is never stored;
it is read from GITHUB_TOKEN at sync time.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initOwner, "owner", "", "repository owner")
	initCmd.Flags().StringVar(&initRepo, "repo", "", "repository name")
	initCmd.Flags().IntVar(&initProject, "project", 0, "existing project number (0 creates one on first sync)")
	initCmd.Flags().StringVar(&initFile, "file", "", "tasks file path")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := &config.Config{
		Owner:         initOwner,
		Repo:          initRepo,
		ProjectNumber: initProject,
		TasksFile:     initFile,
	}

	interactive := tui.IsInteractive() && (cfg.Owner == "" || cfg.Repo == "")
	if interactive {
		var err error
		if cfg.Owner == "" {
			cfg.Owner, err = tui.PromptForString(tui.Prompt{
				Message:     "Repository owner",
				Placeholder: "octocat",
				Required:    true,
			})
			if err != nil {
				return err
			}
		}
		if cfg.Repo == "" {
			cfg.Repo, err = tui.PromptForString(tui.Prompt{
				Message:     "Repository name",
				Placeholder: "my-project",
				Required:    true,
			})
			if err != nil {
				return err
			}
		}
		if cfg.ProjectNumber == 0 {
			raw, err := tui.PromptForString(tui.Prompt{
				Message:     "Project number (leave empty to create one on first sync)",
				Placeholder: "",
			})
			if err != nil {
				return err
			}
			if raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil {
					return apperrors.New(apperrors.ErrCodeConfigInvalid,
						fmt.Sprintf("project number must be numeric, got %q", raw))
				}
				cfg.ProjectNumber = n
			}
		}
		if cfg.TasksFile == "" {
			cfg.TasksFile, err = tui.PromptForString(tui.Prompt{
				Message: "Tasks file",
				Default: config.DefaultTasksFile,
			})
			if err != nil {
				return err
			}
		}
	}
	if cfg.TasksFile == "" {
		cfg.TasksFile = config.DefaultTasksFile
	}

	if err := config.Save(".", cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ wrote %s\n", config.Path("."))
	fmt.Fprintln(cmd.OutOrStdout(), "  Export GITHUB_TOKEN, then run: specsync sync")
	return nil
}
