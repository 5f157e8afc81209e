// Package auth resolves an opaque client-supplied token into the stable
// identity string the rest of SyncRoom works with. The real authentication
// provider is explicitly out of scope — this package only supplies the
// pluggable seam and one default implementation so the gateway has
// something to call in local/dev deployments.
package auth

import "context"

// Identity is what a resolver hands back for an opaque client token.
type Identity struct {
	Identity    string
	DisplayName string
}

// IdentityResolver turns a client-supplied token into a stable identity.
// Production deployments are expected to substitute their own
// implementation backed by their real auth provider; SyncRoom's core
// never assumes JWTs specifically, only this interface.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}
