// Package idtoken validates bearer identity tokens issued by a trusted
// identity provider and returns their decoded claims.
//
// A token is accepted only when its RS256 signature verifies against one of
// the provider's published signing keys, it has not expired, and its
// audience, issuer, and (optionally) authorized-party claims all match what
// the caller expects. Signing keys are cached with a configurable expiry;
// when no cached key verifies a token the validator refreshes the key set
// exactly once and retries, so key rotation is picked up lazily without
// hammering the provider's endpoint.
//
// Construct a single Validator at startup and share it:
//
//	v, err := idtoken.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	claims, err := v.Check(ctx, rawToken, []string{"my-client-id"}, "")
//	switch {
//	case err == nil:
//	    fmt.Println(claims.Subject())
//	case errors.Is(err, idtoken.ErrKeySourceUnavailable):
//	    // Keys could not be fetched; the identity is unverifiable, not invalid.
//	case errors.Is(err, idtoken.ErrTokenExpired):
//	    // The holder should re-authenticate.
//	case errors.Is(err, idtoken.ErrTokenInvalid):
//	    // Forged, wrong audience, wrong issuer, or wrong client.
//	}
//
// For HTTP services, Middleware wires the same check into a handler chain,
// and the framework subpackages adapt it to gin, echo, and gRPC.
package idtoken
