package core

import "strings"

// EventKind is the closed set of provider lifecycle notifications the
// dispatcher understands, plus an explicit unknown variant. Parsing never
// fails: provider additions we have not mapped yet parse as KindUnknown and
// are skipped, never treated as errors.
type EventKind string

const (
	KindUnknown EventKind = "unknown"

	KindCheckoutCompleted EventKind = "checkout.completed"

	KindSubscriptionActive          EventKind = "subscription.active"
	KindSubscriptionTrialing        EventKind = "subscription.trialing"
	KindSubscriptionPaid            EventKind = "subscription.paid"
	KindSubscriptionUpdated         EventKind = "subscription.updated"
	KindSubscriptionCancelScheduled EventKind = "subscription.cancel_scheduled"
	KindSubscriptionCanceled        EventKind = "subscription.canceled"
	KindSubscriptionExpired         EventKind = "subscription.expired"
	KindSubscriptionPaused          EventKind = "subscription.paused"
	KindSubscriptionPastDue         EventKind = "subscription.past_due"
	KindSubscriptionUnpaid          EventKind = "subscription.unpaid"

	KindRefundCreated  EventKind = "refund.created"
	KindDisputeCreated EventKind = "dispute.created"
)

// KnownEventKinds lists every kind the dispatcher maps, in mapping-table order.
func KnownEventKinds() []EventKind {
	return []EventKind{
		KindCheckoutCompleted,
		KindSubscriptionActive,
		KindSubscriptionTrialing,
		KindSubscriptionPaid,
		KindSubscriptionUpdated,
		KindSubscriptionCancelScheduled,
		KindSubscriptionCanceled,
		KindSubscriptionExpired,
		KindSubscriptionPaused,
		KindSubscriptionPastDue,
		KindSubscriptionUnpaid,
		KindRefundCreated,
		KindDisputeCreated,
	}
}

// ParseEventKind normalizes a raw provider type string into an EventKind.
func ParseEventKind(raw string) EventKind {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for _, kind := range KnownEventKinds() {
		if normalized == string(kind) {
			return kind
		}
	}
	return KindUnknown
}

func (k EventKind) String() string {
	return string(k)
}

// Known reports whether the kind has a dispatcher mapping.
func (k EventKind) Known() bool {
	return k != KindUnknown && k != ""
}
