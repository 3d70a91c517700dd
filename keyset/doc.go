// Package keyset maintains the cache of identity-provider signing keys used
// by the idtoken validator.
//
// A Store maps opaque key identifiers to RSA public keys and knows how to
// repopulate itself from either a fixed PEM certificate or the provider's
// published certificate endpoint. Refreshes are merge-only: keys missing from
// a partial response are retained so that tokens signed by a still-valid key
// keep validating. Most likely you will construct the Store indirectly through
// the idtoken package options rather than using this package directly.
package keyset
