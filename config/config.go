// Package config loads the pipeline configuration from YAML with
// environment variable overrides for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/ticketflow"
	"github.com/randalmurphal/ticketflow/jira"
)

// EnvPrefix is prepended to environment override names.
const EnvPrefix = "TICKETFLOW_"

// HostKind selects the code hosting provider.
type HostKind string

const (
	HostGitHub HostKind = "github"
	HostGitLab HostKind = "gitlab"
)

// HostConfig configures the code host.
type HostConfig struct {
	Kind HostKind `yaml:"kind"`

	// Org is the GitHub organization or GitLab group.
	Org string `yaml:"org"`

	// Token authenticates against the host API. Usually set via
	// TICKETFLOW_HOST_TOKEN rather than the file.
	Token string `yaml:"token,omitempty"`

	// BaseURL for self-hosted GitLab. Ignored for GitHub.
	BaseURL string `yaml:"base_url,omitempty"`

	// GitHub App credentials, used instead of Token when set.
	AppID          int64  `yaml:"app_id,omitempty"`
	InstallationID int64  `yaml:"installation_id,omitempty"`
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`
}

// UsesApp reports whether GitHub App auth is configured.
func (h HostConfig) UsesApp() bool {
	return h.AppID != 0 && h.InstallationID != 0 && h.PrivateKeyPath != ""
}

// LLMConfig configures the code-generation model.
type LLMConfig struct {
	// Model overrides the default model name. Optional.
	Model string `yaml:"model,omitempty"`

	// Workdir is where the LLM CLI runs. Defaults to the current directory.
	Workdir string `yaml:"workdir,omitempty"`
}

// WorkflowConfig tunes the pipeline.
type WorkflowConfig struct {
	MaxTicketsPerRun      int           `yaml:"max_tickets_per_run"`
	MaxReposPerTicket     int           `yaml:"max_repos_per_ticket"`
	RelevanceThreshold    float64       `yaml:"relevance_threshold"`
	BranchPrefix          string        `yaml:"branch_prefix"`
	MaxFilesChanged       int           `yaml:"max_files_changed"`
	MaxLinesChanged       int           `yaml:"max_lines_changed"`
	MaxComplexity         int           `yaml:"max_complexity"`
	RequireHumanReview    bool          `yaml:"require_human_review"`
	AllowedExtensions     []string      `yaml:"allowed_extensions"`
	ForbiddenPathPrefixes []string      `yaml:"forbidden_path_prefixes"`
	InProgressStatus      string        `yaml:"in_progress_status"`
	DoneStatus            string        `yaml:"done_status"`
	ReviewStatus          string        `yaml:"review_status"`
	BotAccountID          string        `yaml:"bot_account_id,omitempty"`
	PRLabels              []string      `yaml:"pr_labels"`
	CacheTTL              time.Duration `yaml:"cache_ttl"`
	RetryMaxAttempts      int           `yaml:"retry_max_attempts"`
	RetryBaseDelay        time.Duration `yaml:"retry_base_delay"`
}

// Config is the full pipeline configuration.
type Config struct {
	Jira     jira.Config    `yaml:"jira"`
	Host     HostConfig     `yaml:"host"`
	LLM      LLMConfig      `yaml:"llm"`
	Workflow WorkflowConfig `yaml:"workflow"`

	// DataDir holds the relevance cache and run logs.
	DataDir string `yaml:"data_dir"`
}

// Default returns a config with production defaults applied.
func Default() Config {
	return Config{
		Jira: jira.DefaultConfig(),
		Host: HostConfig{
			Kind: HostGitHub,
		},
		Workflow: WorkflowConfig{
			MaxTicketsPerRun:      5,
			MaxReposPerTicket:     3,
			RelevanceThreshold:    0.3,
			BranchPrefix:          "feature/jira-",
			MaxFilesChanged:       20,
			MaxLinesChanged:       1000,
			MaxComplexity:         7,
			RequireHumanReview:    true,
			AllowedExtensions:     ticketflow.DefaultAllowedExtensions,
			ForbiddenPathPrefixes: ticketflow.DefaultForbiddenPathPrefixes,
			InProgressStatus:      "In Progress",
			DoneStatus:            "In Review",
			ReviewStatus:          "Needs Review",
			PRLabels:              []string{"automated"},
			CacheTTL:              24 * time.Hour,
			RetryMaxAttempts:      3,
			RetryBaseDelay:        2 * time.Second,
		},
		DataDir: defaultDataDir(),
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".ticketflow")
	}
	return ".ticketflow"
}

// Load reads YAML from path, applies environment overrides, and validates.
// A missing file is fine: defaults plus environment must then carry the
// required values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults + env only.
	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays credential and endpoint overrides from the
// environment. Secrets belong in the environment, not the file.
func (c *Config) applyEnv() {
	setIfEnv := func(dst *string, name string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	setIfEnv(&c.Jira.URL, "JIRA_URL")
	setIfEnv(&c.Jira.Auth.Email, "JIRA_EMAIL")
	setIfEnv(&c.Jira.Auth.Token, "JIRA_TOKEN")
	setIfEnv(&c.Host.Org, "HOST_ORG")
	setIfEnv(&c.Host.Token, "HOST_TOKEN")
	setIfEnv(&c.Host.BaseURL, "HOST_BASE_URL")
	setIfEnv(&c.Workflow.BotAccountID, "BOT_ACCOUNT_ID")

	if c.Jira.Auth.Type == "" && c.Jira.Auth.Email != "" {
		c.Jira.Auth.Type = jira.AuthAPIToken
	}
}

// Validate checks the whole config.
func (c *Config) Validate() error {
	if err := c.Jira.Validate(); err != nil {
		return fmt.Errorf("jira: %w", err)
	}
	switch c.Host.Kind {
	case HostGitHub, HostGitLab:
	default:
		return fmt.Errorf("host: unknown kind %q", c.Host.Kind)
	}
	if c.Host.Org == "" {
		return fmt.Errorf("host: org is required")
	}
	if c.Host.Token == "" && !c.Host.UsesApp() {
		return fmt.Errorf("host: token is required (set %sHOST_TOKEN) or configure app auth", EnvPrefix)
	}
	if c.Workflow.RelevanceThreshold < 0 || c.Workflow.RelevanceThreshold > 1 {
		return fmt.Errorf("workflow: relevance_threshold %v outside [0,1]", c.Workflow.RelevanceThreshold)
	}
	if c.Workflow.MaxTicketsPerRun < 1 {
		return fmt.Errorf("workflow: max_tickets_per_run must be at least 1")
	}
	if c.Workflow.MaxComplexity < 0 || c.Workflow.MaxComplexity > 10 {
		return fmt.Errorf("workflow: max_complexity %d outside [0,10]", c.Workflow.MaxComplexity)
	}
	return nil
}

// sampleConfig is written by WriteSample as a starting point.
const sampleConfig = `# ticketflow configuration
#
# Secrets (tokens, passwords) are better set via environment variables:
#   TICKETFLOW_JIRA_TOKEN, TICKETFLOW_HOST_TOKEN

jira:
  url: https://your-company.atlassian.net
  auth:
    type: api_token
    email: bot@your-company.com
    # token: set TICKETFLOW_JIRA_TOKEN instead
  project: PROJ

host:
  kind: github        # github or gitlab
  org: your-org
  # token: set TICKETFLOW_HOST_TOKEN instead
  # base_url: https://gitlab.your-company.com   # self-hosted GitLab only

workflow:
  max_tickets_per_run: 5
  max_repos_per_ticket: 3
  relevance_threshold: 0.3
  branch_prefix: feature/jira-
  max_files_changed: 20
  max_lines_changed: 1000
  max_complexity: 7
  require_human_review: true
  in_progress_status: In Progress
  done_status: In Review
  review_status: Needs Review
  pr_labels: [automated]
  cache_ttl: 24h
`

// WriteSample writes a commented sample config. Refuses to overwrite.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
