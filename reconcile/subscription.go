package reconcile

import (
	"context"
	"fmt"

	"github.com/goliatone/go-billing/core"
	glog "github.com/goliatone/go-logger/glog"
)

// SubscriptionReconciler owns the subscriptions projection. It is
// status-agnostic: the dispatcher hands it the resolved status label and it
// upserts unconditionally on the provider subscription id.
type SubscriptionReconciler struct {
	store  core.SubscriptionStore
	logger core.Logger
}

func NewSubscriptionReconciler(store core.SubscriptionStore, logger core.Logger) (*SubscriptionReconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("reconcile: subscription store is required")
	}
	if logger == nil {
		logger = glog.Nop()
	}
	return &SubscriptionReconciler{store: store, logger: logger}, nil
}

func (r *SubscriptionReconciler) Apply(ctx context.Context, event core.WebhookEvent, plan Plan) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("reconcile: subscription reconciler is not configured")
	}

	id := subscriptionID(event.Payload)
	if id == "" {
		r.logger.Debug("subscription reconciler skipping event without subscription id",
			"provider", event.Provider,
			"event_id", event.EventID,
			"event_type", event.Type,
		)
		return nil
	}

	object := eventObject(event.Payload)
	cancelAtPeriodEnd := plan.ForceCancelAtPeriodEnd ||
		boolField(object, "cancel_at_period_end", "cancelAtPeriodEnd")

	_, err := r.store.Upsert(ctx, core.UpsertSubscriptionInput{
		ProviderSubscriptionID: id,
		Status:                 plan.SubscriptionStatus,
		CurrentPeriodEnd:       timeField(object, "current_period_end", "currentPeriodEnd"),
		CancelAtPeriodEnd:      cancelAtPeriodEnd,
		UserID:                 payloadUserID(event.Payload),
		EventReceivedAt:        event.ReceivedAt,
	})
	return err
}
