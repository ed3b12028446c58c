package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	llm "github.com/randalmurphal/llmkit/claude"

	"github.com/randalmurphal/ticketflow"
	"github.com/randalmurphal/ticketflow/auth"
	"github.com/randalmurphal/ticketflow/cache"
	"github.com/randalmurphal/ticketflow/config"
	"github.com/randalmurphal/ticketflow/jira"
	"github.com/randalmurphal/ticketflow/runlog"
)

// buildServices wires every collaborator from config.
func buildServices(cfg config.Config) (ticketflow.Services, error) {
	var services ticketflow.Services

	tracker, err := jira.NewTracker(cfg.Jira)
	if err != nil {
		return services, fmt.Errorf("jira tracker: %w", err)
	}
	services.Tracker = tracker

	host, err := buildHost(cfg.Host)
	if err != nil {
		return services, err
	}
	services.Host = host

	relevanceCache, err := cache.New(filepath.Join(cfg.DataDir, "cache"), cfg.Workflow.CacheTTL)
	if err != nil {
		return services, fmt.Errorf("relevance cache: %w", err)
	}
	services.Cache = relevanceCache

	workdir := cfg.LLM.Workdir
	if workdir == "" {
		workdir, _ = os.Getwd()
	}
	model := cfg.LLM.Model
	if model == "" {
		model = string(ticketflow.SelectModel(ticketflow.TaskGenerate))
	}
	services.LLM = llm.NewClaudeCLI(
		llm.WithModel(model),
		llm.WithWorkdir(workdir),
		llm.WithDangerouslySkipPermissions(), // Non-interactive mode for automation
	)

	services.Prompts = ticketflow.NewPromptLoader(workdir)
	return services, nil
}

// buildHost constructs the configured code host.
func buildHost(cfg config.HostConfig) (ticketflow.Host, error) {
	switch cfg.Kind {
	case config.HostGitLab:
		host, err := ticketflow.NewGitLabHost(cfg.Token, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("gitlab host: %w", err)
		}
		return host, nil
	default:
		token := cfg.Token
		if token == "" && cfg.UsesApp() {
			appCfg, err := auth.LoadAppConfig(cfg.AppID, cfg.InstallationID, cfg.PrivateKeyPath)
			if err != nil {
				return nil, fmt.Errorf("github app: %w", err)
			}
			src, err := auth.NewAppTokenSource(appCfg)
			if err != nil {
				return nil, fmt.Errorf("github app: %w", err)
			}
			token, err = src.Token(context.Background())
			if err != nil {
				return nil, fmt.Errorf("github app: %w", err)
			}
		}
		host, err := ticketflow.NewGitHubHost(token)
		if err != nil {
			return nil, fmt.Errorf("github host: %w", err)
		}
		return host, nil
	}
}

// buildRunnerConfig maps file config onto runner knobs.
func buildRunnerConfig(cfg config.Config) (ticketflow.RunnerConfig, error) {
	rc := ticketflow.DefaultRunnerConfig()
	rc.MaxTickets = cfg.Workflow.MaxTicketsPerRun
	rc.Params = ticketflow.Params{
		Org:                cfg.Host.Org,
		BranchPrefix:       cfg.Workflow.BranchPrefix,
		RelevanceThreshold: cfg.Workflow.RelevanceThreshold,
		MaxRepos:           cfg.Workflow.MaxReposPerTicket,
		Thresholds: ticketflow.Thresholds{
			MaxFilesChanged:       cfg.Workflow.MaxFilesChanged,
			MaxLinesChanged:       cfg.Workflow.MaxLinesChanged,
			MaxComplexity:         cfg.Workflow.MaxComplexity,
			RequireHumanReview:    cfg.Workflow.RequireHumanReview,
			ForbiddenPathPrefixes: cfg.Workflow.ForbiddenPathPrefixes,
			AllowedExtensions:     cfg.Workflow.AllowedExtensions,
		},
		InProgressStatus: cfg.Workflow.InProgressStatus,
		DoneStatus:       cfg.Workflow.DoneStatus,
		ReviewStatus:     cfg.Workflow.ReviewStatus,
		BotAccountID:     cfg.Workflow.BotAccountID,
		PRLabels:         cfg.Workflow.PRLabels,
	}
	if cfg.Workflow.RetryMaxAttempts > 0 {
		rc.Retry.MaxAttempts = cfg.Workflow.RetryMaxAttempts
	}
	if cfg.Workflow.RetryBaseDelay > 0 {
		rc.Retry.BaseDelay = cfg.Workflow.RetryBaseDelay
	}

	log, err := runlog.NewWriter(filepath.Join(cfg.DataDir, "runs"))
	if err != nil {
		return rc, fmt.Errorf("run log: %w", err)
	}
	rc.Log = log
	return rc, nil
}
