package idtoken

import (
	"errors"
	"net/http"
	"time"

	"github.com/verikit/go-idtoken-verifier/keyset"
)

// Option configures a Validator during construction. The Validator is
// immutable once New returns.
type Option func(*Validator) error

// WithCertificate puts the Validator in fixed-certificate mode: tokens are
// verified against the public key of the given PEM-encoded X.509 certificate
// and the certificate endpoint is never contacted.
func WithCertificate(pemCert []byte) Option {
	return func(v *Validator) error {
		if len(pemCert) == 0 {
			return errors.New("certificate must not be empty")
		}
		v.certPEM = pemCert
		return nil
	}
}

// WithCertsURL overrides the certificate endpoint signing keys are fetched
// from. Ignored in fixed-certificate mode.
func WithCertsURL(certsURL string) Option {
	return func(v *Validator) error {
		v.storeOpts = append(v.storeOpts, keyset.WithEndpoint(certsURL))
		return nil
	}
}

// WithHTTPClient overrides the HTTP client used for key refreshes. The
// default client enforces a 30 second timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Validator) error {
		v.storeOpts = append(v.storeOpts, keyset.WithHTTPClient(client))
		return nil
	}
}

// WithCacheExpiry sets how long fetched signing keys stay fresh before a
// validation miss triggers another fetch. The default is one hour.
func WithCacheExpiry(expiry time.Duration) Option {
	return func(v *Validator) error {
		v.storeOpts = append(v.storeOpts, keyset.WithExpiry(expiry))
		return nil
	}
}

// WithKeyStore injects a prebuilt key store, taking precedence over
// WithCertificate, WithCertsURL, WithHTTPClient and WithCacheExpiry.
func WithKeyStore(store *keyset.Store) Option {
	return func(v *Validator) error {
		if store == nil {
			return errors.New("key store must not be nil")
		}
		v.store = store
		return nil
	}
}

// WithIssuers replaces the trusted issuer set. Tokens whose iss claim is not
// in the set are rejected with ErrInvalidIssuer.
func WithIssuers(issuers ...string) Option {
	return func(v *Validator) error {
		if len(issuers) == 0 {
			return errors.New("at least one issuer is required")
		}
		v.issuers = issuers
		return nil
	}
}

// WithLogger sets the logger used by the Validator. Validation progress is
// logged at debug level, refresh failures at warn.
func WithLogger(logger Logger) Option {
	return func(v *Validator) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		v.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics sink used by the Validator.
func WithMetrics(metrics Metrics) Option {
	return func(v *Validator) error {
		if metrics == nil {
			return errors.New("metrics must not be nil")
		}
		v.metrics = metrics
		return nil
	}
}

// WithTracer sets the tracer used by the Validator.
func WithTracer(tracer Tracer) Option {
	return func(v *Validator) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		v.tracer = tracer
		return nil
	}
}
