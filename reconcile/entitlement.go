package reconcile

import (
	"context"
	"fmt"

	"github.com/goliatone/go-billing/core"
	glog "github.com/goliatone/go-logger/glog"
)

// EntitlementReconciler grants whole-book access on the checkout-completed
// path. Grants are insert-or-ignore: replaying the same event never errors,
// never duplicates, and never revokes an existing grant.
type EntitlementReconciler struct {
	store  core.EntitlementStore
	logger core.Logger
}

func NewEntitlementReconciler(store core.EntitlementStore, logger core.Logger) (*EntitlementReconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("reconcile: entitlement store is required")
	}
	if logger == nil {
		logger = glog.Nop()
	}
	return &EntitlementReconciler{store: store, logger: logger}, nil
}

func (r *EntitlementReconciler) Apply(ctx context.Context, event core.WebhookEvent) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("reconcile: entitlement reconciler is not configured")
	}

	userID := payloadUserID(event.Payload)
	novelID := payloadNovelID(event.Payload)
	if userID == "" || novelID == "" {
		// A checkout without both identities cannot be granted; not an error.
		r.logger.Debug("entitlement reconciler skipping event without user/novel metadata",
			"provider", event.Provider,
			"event_id", event.EventID,
			"has_user", userID != "",
			"has_novel", novelID != "",
		)
		return nil
	}

	_, created, err := r.store.Grant(ctx, core.GrantEntitlementInput{
		UserID:  userID,
		NovelID: novelID,
		Scope:   core.EntitlementScopeWholeBook,
	})
	if err != nil {
		return err
	}
	if created {
		r.logger.Info("entitlement granted",
			"user_id", userID,
			"novel_id", novelID,
			"scope", core.EntitlementScopeWholeBook,
		)
	}
	return nil
}
