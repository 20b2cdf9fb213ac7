// Package config loads the project-local sync configuration from
// .specsync/config.yaml. The GitHub token never lives in the file; it
// comes from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/specsync/specsync/internal/errors"
)

const (
	// Dir is the project-local directory holding config and state
	Dir = ".specsync"
	// FileName is the config file name inside Dir
	FileName = "config.yaml"

	// DefaultTasksFile is used when the config does not name one
	DefaultTasksFile = "tasks.md"

	tokenEnv         = "GITHUB_TOKEN"
	fallbackTokenEnv = "SPECSYNC_TOKEN"
)

// Config is the persisted sync configuration
type Config struct {
	// Owner and Repo identify the repository issues are created in
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`

	// ProjectNumber selects an existing project; zero means create one
	// named after the document title on first sync
	ProjectNumber int `yaml:"project_number,omitempty"`

	// TasksFile is the path to the tasks document, relative to the
	// config file's parent directory
	TasksFile string `yaml:"tasks_file,omitempty"`

	// BaseURL overrides the API endpoint, for GitHub Enterprise
	BaseURL string `yaml:"base_url,omitempty"`
}

// Path returns the config file location under root
func Path(root string) string {
	return filepath.Join(root, Dir, FileName)
}

// Load reads and validates the configuration under root
func Load(root string) (*Config, error) {
	path := Path(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewConfigNotFoundError(path)
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeConfigInvalid, "read config file", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeConfigInvalid, "parse config file", err)
	}
	if cfg.TasksFile == "" {
		cfg.TasksFile = DefaultTasksFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration under root, creating the directory
func Save(root string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	dir := filepath.Join(root, Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeConfigInvalid, "create config directory", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeConfigInvalid, "marshal config", err)
	}
	if err := os.WriteFile(Path(root), data, 0644); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeConfigInvalid, "write config file", err)
	}
	return nil
}

// Validate checks required fields
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Owner) == "" {
		return apperrors.New(apperrors.ErrCodeConfigInvalid, "owner is required").
			WithSuggestion("Set owner in " + filepath.Join(Dir, FileName))
	}
	if strings.TrimSpace(c.Repo) == "" {
		return apperrors.New(apperrors.ErrCodeConfigInvalid, "repo is required").
			WithSuggestion("Set repo in " + filepath.Join(Dir, FileName))
	}
	if c.ProjectNumber < 0 {
		return apperrors.New(apperrors.ErrCodeConfigInvalid,
			fmt.Sprintf("project_number must be non-negative, got %d", c.ProjectNumber))
	}
	return nil
}

// Token reads the API token from the environment
func Token() (string, error) {
	for _, env := range []string{tokenEnv, fallbackTokenEnv} {
		if token := strings.TrimSpace(os.Getenv(env)); token != "" {
			return token, nil
		}
	}
	return "", apperrors.New(apperrors.ErrCodeConfigToken, "no API token found").
		WithSuggestions(
			"Export GITHUB_TOKEN with a token that has repo and project scopes",
			"Fine-grained tokens need read/write on Issues and Projects",
		)
}
