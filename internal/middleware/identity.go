package middleware

import (
	"context"
	"net/http"
)

const OwnerKey key = 1

// Identity plumbs the verified owner identity set by the upstream auth layer
// (X-Owner-ID header) into the request context. An absent header means an
// anonymous caller; handlers decide what anonymous is allowed to do.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get("X-Owner-ID")
		ctx := context.WithValue(r.Context(), OwnerKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetOwner(ctx context.Context) string {
	if owner, ok := ctx.Value(OwnerKey).(string); ok {
		return owner
	}
	return ""
}

func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, OwnerKey, owner)
}
