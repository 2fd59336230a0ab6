package command

import (
	"context"

	"github.com/goliatone/go-billing/core"
	gocmd "github.com/goliatone/go-command"
)

// ProcessingService is the mutating surface the commands delegate to; the root
// Service satisfies it.
type ProcessingService interface {
	AppendEvent(ctx context.Context, in core.AppendEventInput) (core.AppendEventResult, error)
	ProcessOutstanding(ctx context.Context, batchSize int) (core.RunSummary, error)
	ReplayEvent(ctx context.Context, provider string, eventID string) (core.WebhookEvent, error)
}

type AppendEventCommand struct {
	service ProcessingService
}

func NewAppendEventCommand(service ProcessingService) *AppendEventCommand {
	return &AppendEventCommand{service: service}
}

func (c *AppendEventCommand) Execute(ctx context.Context, msg AppendEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: append event service is required")
	}
	out, err := c.service.AppendEvent(ctx, core.AppendEventInput{
		Provider: msg.Provider,
		EventID:  msg.EventID,
		Type:     msg.EventType,
		Payload:  msg.Payload,
	})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ProcessBatchCommand struct {
	service ProcessingService
}

func NewProcessBatchCommand(service ProcessingService) *ProcessBatchCommand {
	return &ProcessBatchCommand{service: service}
}

func (c *ProcessBatchCommand) Execute(ctx context.Context, msg ProcessBatchMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: batch processing service is required")
	}
	out, err := c.service.ProcessOutstanding(ctx, msg.BatchSize)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReplayEventCommand struct {
	service ProcessingService
}

func NewReplayEventCommand(service ProcessingService) *ReplayEventCommand {
	return &ReplayEventCommand{service: service}
}

func (c *ReplayEventCommand) Execute(ctx context.Context, msg ReplayEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: replay service is required")
	}
	out, err := c.service.ReplayEvent(ctx, msg.Provider, msg.EventID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
