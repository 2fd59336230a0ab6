package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-billing/core"
	glog "github.com/goliatone/go-logger/glog"
)

// OrderReconciler owns the orders projection. Upserts are unconditional
// overwrites keyed on the provider checkout id: calling twice with the same
// payload lands on the same row, and a later event for the same checkout wins
// regardless of the events' own timestamps.
type OrderReconciler struct {
	store  core.OrderStore
	logger core.Logger
}

func NewOrderReconciler(store core.OrderStore, logger core.Logger) (*OrderReconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("reconcile: order store is required")
	}
	if logger == nil {
		logger = glog.Nop()
	}
	return &OrderReconciler{store: store, logger: logger}, nil
}

func (r *OrderReconciler) Apply(ctx context.Context, event core.WebhookEvent, plan Plan) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("reconcile: order reconciler is not configured")
	}

	id := checkoutID(event.Payload)
	if id == "" {
		// Not an error: several event types carry no correlatable checkout.
		r.logger.Debug("order reconciler skipping event without checkout id",
			"provider", event.Provider,
			"event_id", event.EventID,
			"event_type", event.Type,
		)
		return nil
	}

	order := orderSection(event.Payload)
	currency := strings.ToUpper(stringField(order, "currency"))
	if currency == "" {
		currency = "USD"
	}

	_, err := r.store.Upsert(ctx, core.UpsertOrderInput{
		ProviderCheckoutID: id,
		Status:             plan.OrderStatus,
		Amount:             numberField(order, "amount"),
		Currency:           currency,
		PaidAt:             timeField(order, "paid_at", "paidAt"),
		UserID:             payloadUserID(event.Payload),
		EventReceivedAt:    event.ReceivedAt,
	})
	return err
}
