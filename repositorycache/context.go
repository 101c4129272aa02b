package repositorycache

import "context"

type queryKeyCtx struct{}

// WithQueryKey names the criteria passed to reads made with the returned context.
//
// Criteria are functions: two closures built by the same factory share their code and
// cannot be told apart by value. Reads that pass criteria are therefore sent straight to
// the base repository unless the context names them. The name must identify both the
// criteria and every value they capture, e.g. "by-email:"+email.
func WithQueryKey(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, queryKeyCtx{}, name)
}

// QueryKeyFromContext returns the name set with WithQueryKey.
func QueryKeyFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	name, ok := ctx.Value(queryKeyCtx{}).(string)
	return name, ok && name != ""
}
