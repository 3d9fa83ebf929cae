package service

import (
	"context"

	"github.com/maxbolgarin/abstract"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	"github.com/maxbolgarin/hookflow/internal/model"
)

// commandTable maps standardized event types to the command a pipeline runs.
var commandTable = map[string]string{
	"issue_comment": "respond-to-comment",
	"pull_request":  "review-pull-request",
	"push":          "sync-repository",
	"installation":  "register-installation",
	"app_mention":   "respond-to-mention",
	"message":       "respond-to-message",
}

var (
	_ model.Dispatcher      = (*CommandDispatcher)(nil)
	_ model.Executor        = (*CommandExecutor)(nil)
	_ model.ResultProcessor = (*ResultLogger)(nil)
)

// CommandDispatcher selects the command a pipeline should execute from the
// standardized event type.
type CommandDispatcher struct {
	log logze.Logger
}

func NewCommandDispatcher() *CommandDispatcher {
	return &CommandDispatcher{log: logze.With("module", "dispatcher")}
}

func (d *CommandDispatcher) Dispatch(ctx context.Context, pipelineID string, event *model.StandardizedEvent) error {
	command, ok := commandTable[event.EventType]
	if !ok {
		return errm.New("no command for event type " + event.EventType)
	}
	d.log.Info("command dispatched",
		"pipeline_id", pipelineID,
		"event_type", event.EventType,
		"command", command,
	)
	return nil
}

// CommandExecutor runs the dispatched command. External execution environments
// sit behind this collaborator; the default just acknowledges the work.
type CommandExecutor struct {
	log logze.Logger
}

func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{log: logze.With("module", "executor")}
}

func (e *CommandExecutor) Execute(ctx context.Context, pipelineID string, event *model.StandardizedEvent) error {
	timer := abstract.StartTimer()

	repo := "none"
	if event.Repository != nil {
		repo = event.Repository.FullName()
	}
	e.log.Info("command executed",
		"pipeline_id", pipelineID,
		"repository", repo,
		"elapsed", timer.ElapsedTime().String(),
	)
	return nil
}

// ResultLogger records execution results. Delivery of results back to the
// originating service sits behind this collaborator.
type ResultLogger struct {
	log logze.Logger
}

func NewResultLogger() *ResultLogger {
	return &ResultLogger{log: logze.With("module", "results")}
}

func (p *ResultLogger) ProcessResults(ctx context.Context, pipelineID string, event *model.StandardizedEvent) error {
	p.log.Info("results processed",
		"pipeline_id", pipelineID,
		"service", event.Service,
		"event_type", event.EventType,
	)
	return nil
}
