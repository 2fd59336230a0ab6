package command

import (
	"strings"
)

const (
	TypeAppendEvent  = "billing.command.event.append"
	TypeProcessBatch = "billing.command.batch.process"
	TypeReplayEvent  = "billing.command.event.replay"
)

// AppendEventMessage stores one provider notification. The webhook receiver
// issues it after signature verification, before responding to the provider.
type AppendEventMessage struct {
	Provider  string
	EventID   string
	EventType string
	Payload   map[string]any
}

func (AppendEventMessage) Type() string { return TypeAppendEvent }

func (m AppendEventMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return commandValidationError("provider", "provider is required")
	}
	if strings.TrimSpace(m.EventID) == "" {
		return commandValidationError("event_id", "event id is required")
	}
	if strings.TrimSpace(m.EventType) == "" {
		return commandValidationError("type", "event type is required")
	}
	return nil
}

// ProcessBatchMessage runs one pass of the batch processor. BatchSize zero
// means use the configured default.
type ProcessBatchMessage struct {
	BatchSize int
}

func (ProcessBatchMessage) Type() string { return TypeProcessBatch }

func (m ProcessBatchMessage) Validate() error {
	if m.BatchSize < 0 {
		return commandValidationError("batch_size", "batch size must not be negative")
	}
	return nil
}

// ReplayEventMessage resets a failed or dead-letter event for another pass.
type ReplayEventMessage struct {
	Provider string
	EventID  string
}

func (ReplayEventMessage) Type() string { return TypeReplayEvent }

func (m ReplayEventMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return commandValidationError("provider", "provider is required")
	}
	if strings.TrimSpace(m.EventID) == "" {
		return commandValidationError("event_id", "event id is required")
	}
	return nil
}
