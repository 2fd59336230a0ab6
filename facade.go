package billing

import (
	"github.com/goliatone/go-billing/command"
	"github.com/goliatone/go-billing/query"
)

// Commands bundles the command handlers wired against one Service.
type Commands struct {
	AppendEvent  *command.AppendEventCommand
	ProcessBatch *command.ProcessBatchCommand
	ReplayEvent  *command.ReplayEventCommand
}

// Queries bundles the query handlers wired against one Service.
type Queries struct {
	GetEvent              *query.GetEventQuery
	ListOutstandingEvents *query.ListOutstandingEventsQuery
	GetOrder              *query.GetOrderQuery
	GetSubscription       *query.GetSubscriptionQuery
	HasEntitlement        *query.HasEntitlementQuery
	ListEntitlements      *query.ListEntitlementsQuery
}

func (s *Service) Commands() Commands {
	return Commands{
		AppendEvent:  command.NewAppendEventCommand(s),
		ProcessBatch: command.NewProcessBatchCommand(s),
		ReplayEvent:  command.NewReplayEventCommand(s),
	}
}

func (s *Service) Queries() Queries {
	return Queries{
		GetEvent:              query.NewGetEventQuery(s),
		ListOutstandingEvents: query.NewListOutstandingEventsQuery(s),
		GetOrder:              query.NewGetOrderQuery(s),
		GetSubscription:       query.NewGetSubscriptionQuery(s),
		HasEntitlement:        query.NewHasEntitlementQuery(s),
		ListEntitlements:      query.NewListEntitlementsQuery(s),
	}
}

var _ command.ProcessingService = (*Service)(nil)

var (
	_ query.EventReader        = (*Service)(nil)
	_ query.OrderReader        = (*Service)(nil)
	_ query.SubscriptionReader = (*Service)(nil)
	_ query.EntitlementReader  = (*Service)(nil)
)
