package utils

import "context"

type contextKey string

// SetAdminContext sets the authenticated admin into context (called by middleware)
func SetAdminContext(ctx context.Context, subject string, storeIDs []string) context.Context {
	ctx = context.WithValue(ctx, AdminSubjectKey, subject)
	ctx = context.WithValue(ctx, AdminStoresKey, storeIDs)
	return ctx
}

// GetAdminSubjectFromContext retrieves the admin subject safely
func GetAdminSubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(AdminSubjectKey).(string)
	return sub, ok && sub != ""
}

// CanManageStore reports whether the admin in ctx may act on storeID.
// A token without a store list is a platform admin; internal callers may
// act on any store.
func CanManageStore(ctx context.Context, storeID string) bool {
	if IsInternalRequest(ctx) {
		return true
	}
	if _, ok := GetAdminSubjectFromContext(ctx); !ok {
		return false
	}
	stores, _ := ctx.Value(AdminStoresKey).([]string)
	if len(stores) == 0 {
		return true
	}
	for _, s := range stores {
		if s == storeID {
			return true
		}
	}
	return false
}
