package auth

import "context"

type claimsKey struct{}

// NewContext returns a copy of ctx carrying the verified claims of the caller.
func NewContext(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// FromContext returns the claims stored by NewContext. ok is false for anonymous requests.
func FromContext(ctx context.Context) (c *Claims, ok bool) {
	c, _ = ctx.Value(claimsKey{}).(*Claims)
	return c, c != nil
}
