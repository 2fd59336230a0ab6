package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[AppendEventMessage]  = (*AppendEventCommand)(nil)
	_ gocmd.Commander[ProcessBatchMessage] = (*ProcessBatchCommand)(nil)
	_ gocmd.Commander[ReplayEventMessage]  = (*ReplayEventCommand)(nil)
)
