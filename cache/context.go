package cache

import "context"

type tenantKey struct{}

// WithTenant returns a context carrying tenantID. Operations whose Options leave
// TenantID empty use it.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantFromContext returns the tenant stored by WithTenant.
func TenantFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	tenantID, ok := ctx.Value(tenantKey{}).(string)
	return tenantID, ok && tenantID != ""
}

// ResolveTenant picks the tenant for an operation: explicit, then context, then fallback.
func ResolveTenant(ctx context.Context, explicit, fallback string) string {
	if explicit != "" {
		return explicit
	}
	if tenantID, ok := TenantFromContext(ctx); ok {
		return tenantID
	}
	return fallback
}
