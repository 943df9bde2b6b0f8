// Package auth carries the authorization capability consulted by every
// mutating remit operation. Signature verification happens upstream: by the
// time a call reaches the engine, the caller's transport has established
// which principals approved it and bound them to the context.
package auth

import (
	"context"
	"slices"

	"github.com/xraph/remit/types"
)

// Authorizer reports whether principal approved the current call.
type Authorizer interface {
	Authorized(ctx context.Context, principal types.Address) bool
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, principal types.Address) bool

// Authorized implements Authorizer.
func (f AuthorizerFunc) Authorized(ctx context.Context, principal types.Address) bool {
	return f(ctx, principal)
}

type principalsKey struct{}

// WithPrincipals returns a copy of ctx that records principals as having
// approved the call, in addition to any already present.
func WithPrincipals(ctx context.Context, principals ...types.Address) context.Context {
	existing := Principals(ctx)
	merged := make([]types.Address, 0, len(existing)+len(principals))
	merged = append(merged, existing...)
	merged = append(merged, principals...)
	return context.WithValue(ctx, principalsKey{}, merged)
}

// Principals returns the principals bound to ctx.
func Principals(ctx context.Context) []types.Address {
	p, _ := ctx.Value(principalsKey{}).([]types.Address) //nolint:errcheck // type assertion
	return p
}

// Context authorizes a principal when it is bound to the call context.
type Context struct{}

// Authorized implements Authorizer.
func (Context) Authorized(ctx context.Context, principal types.Address) bool {
	if principal.IsZero() {
		return false
	}
	return slices.Contains(Principals(ctx), principal)
}

// AllowAll authorizes every principal. Intended for tests and trusted
// in-process callers.
func AllowAll() Authorizer {
	return AuthorizerFunc(func(context.Context, types.Address) bool { return true })
}
