// Package ticketflow automates a ticket-to-pull-request pipeline: pick an
// unassigned ticket from a tracker sprint, decide which repository it belongs
// to, generate a code change with an LLM, publish the change as a branch and
// pull request, and update the ticket.
//
// The core of the package is a directed workflow over WorkflowState, built
// from flowgraph nodes and a deterministic router:
//
//	FetchTickets -> SelectTicket -> AnalyzeRepositories -> GenerateCode
//	    -> CreateBranch -> CommitChanges -> OpenPullRequest -> UpdateTicketStatus
//
// Each node is wrapped with retry/recovery (see WithRecovery) so transient
// collaborator failures are retried with backoff and idempotent conflicts
// ("branch already exists") are normalized to success. A quality gate
// (EvaluateGate) inspects every generated change before anything is
// published.
//
// External collaborators are narrow interfaces injected through the context
// (see WithTracker, WithHost): the jira subpackage provides a Tracker,
// GitHubHost and GitLabHost implement Host, and flowgraph's llm.Client does
// code generation. The Runner drives a bounded batch of tickets, one at a
// time, and aggregates a BatchResult.
//
// # Quick Start
//
//	tracker, _ := jira.NewTracker(jiraCfg)
//	host, _ := ticketflow.NewGitHubHost(token)
//
//	runner := ticketflow.NewRunner(cfg, ticketflow.Services{
//	    Tracker: tracker,
//	    Host:    host,
//	    LLM:     llmClient,
//	})
//	result, err := runner.Run(ctx)
//
// Dry-run mode (RunnerConfig.DryRun) executes every decision but never
// issues a mutating collaborator call; PR references are synthesized
// instead.
package ticketflow
