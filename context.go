package idtoken

import (
	"context"
	"errors"
)

// ErrClaimsNotFound is returned when no claims are stored in the context.
var ErrClaimsNotFound = errors.New("claims not found in context")

// contextKey is unexported so only this package can create context keys,
// eliminating collisions with other packages.
type contextKey int

const claimsKey contextKey = iota

// SetClaims stores validated claims in the context. The middleware calls
// this after a successful Check; adapters for other transports can use it
// directly.
func SetClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext retrieves the validated claims stored by the middleware.
func ClaimsFromContext(ctx context.Context) (Claims, error) {
	claims, ok := ctx.Value(claimsKey).(Claims)
	if !ok {
		return nil, ErrClaimsNotFound
	}
	return claims, nil
}

// HasClaims checks if claims exist in the context without retrieving them.
func HasClaims(ctx context.Context) bool {
	_, ok := ctx.Value(claimsKey).(Claims)
	return ok
}
