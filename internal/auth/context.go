package auth

import "context"

// Origin carries request provenance for audit rows and backup-code
// consumption metadata.
type Origin struct {
	IP        string
	UserAgent string
}

type originKey struct{}

// WithOrigin attaches request provenance to the context.
func WithOrigin(ctx context.Context, origin Origin) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFromContext returns the attached provenance, zero when absent.
func OriginFromContext(ctx context.Context) Origin {
	origin, _ := ctx.Value(originKey{}).(Origin)
	return origin
}
