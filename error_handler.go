package idtoken

import (
	"errors"
	"net/http"
)

// ErrorHandler is called when the middleware rejects a request. The err can
// be checked against the package's sentinel errors: ErrTokenMissing when no
// token was supplied, ErrTokenInvalid for every validation-layer rejection,
// and ErrKeySourceUnavailable when signing keys could not be fetched. A
// custom handler MUST distinguish at least these three cases; treating a
// key-source outage as an invalid token turns an upstream incident into a
// lockout of every caller.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// DefaultErrorHandler responds with 400 for a missing token, 401 for an
// invalid one, 503 when signing keys are unavailable, and 500 otherwise.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case errors.Is(err, ErrTokenMissing):
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Token is missing."}`))
	case errors.Is(err, ErrKeySourceUnavailable):
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"Token could not be verified, try again later."}`))
	case errors.Is(err, ErrTokenInvalid):
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Token is invalid."}`))
	default:
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"Something went wrong while checking the token."}`))
	}
}
