// Package gate answers whether a tenant may use a feature right now.
//
// A check resolves the tenant's entitlement and, for limited features, the
// current usage in the feature's window. Checks are read-only; callers that
// go ahead with the action record it explicitly:
//
//	if err := g.Require(ctx, tenantID, "projects", 1); err != nil {
//		var quota *gate.QuotaExceededError
//		if errors.As(err, &quota) {
//			next, _ := g.UpgradePath(ctx, tenantID, "projects", 1)
//			// suggest next
//		}
//		return err
//	}
//	createProject()
//	_, err := g.RecordUsage(ctx, tenantID, "projects", 1)
//
// RecordUsage enforces the limit atomically, so two concurrent requests that
// both passed Require cannot overshoot it.
package gate
