package idtoken

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/verikit/go-idtoken-verifier/keyset"
)

// DefaultIssuers are the two spellings the identity provider uses for its
// iss claim. Tokens from any other issuer are rejected unless the trusted
// set is overridden with WithIssuers.
var DefaultIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// Validator checks bearer identity tokens against the cached signing keys of
// a trusted identity provider. It is meant to be constructed once and shared
// by many concurrent callers; all Check calls on one Validator serialize on
// an internal lock so that key refreshes never interleave with verification
// and at most one refresh request is in flight at a time.
type Validator struct {
	mu      sync.Mutex
	store   *keyset.Store
	parser  *jwt.Parser
	issuers []string
	logger  Logger
	metrics Metrics
	tracer  Tracer

	// Temporary fields used during construction.
	certPEM   []byte
	storeOpts []keyset.Option
}

// New constructs a Validator. With no options it validates against the
// provider's published certificate endpoint with a one hour cache expiry.
//
// Example:
//
//	v, err := idtoken.New(
//	    idtoken.WithCacheExpiry(30 * time.Minute),
//	    idtoken.WithLogger(idtoken.NewLogrusLogger(logrus.StandardLogger())),
//	)
func New(opts ...Option) (*Validator, error) {
	v := &Validator{
		parser:  jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})),
		issuers: DefaultIssuers,
		logger:  &NoopLogger{},
		metrics: &NoopMetrics{},
		tracer:  &NoopTracer{},
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if err := v.createStore(); err != nil {
		return nil, err
	}

	// Construction-only state; Validator is immutable after this point.
	v.certPEM = nil
	v.storeOpts = nil

	return v, nil
}

// createStore builds the key store for the configured source mode, unless
// one was injected with WithKeyStore.
func (v *Validator) createStore() error {
	if v.store != nil {
		return nil
	}

	var err error
	if v.certPEM != nil {
		v.store, err = keyset.NewStatic(v.certPEM, v.storeOpts...)
	} else {
		v.store, err = keyset.NewRemote(v.storeOpts...)
	}
	return err
}

// Check validates the token and returns its decoded claims.
//
// The token is accepted only when its signature verifies against one of the
// cached signing keys, it is not expired, its aud claim matches one of the
// expected audiences, and its iss claim is a trusted issuer. If clientID is
// non-empty the token's authorized party must match it as well.
//
// When no cached key verifies the signature, Check refreshes the key set
// exactly once and retries, so freshly rotated keys are picked up without a
// background poller.
//
// On rejection the returned error is one of the typed conditions in this
// package: ErrTokenExpired, ErrAudienceMismatch, ErrClientIDMismatch,
// ErrInvalidIssuer, and ErrSignature all also match ErrTokenInvalid, while
// ErrKeySourceUnavailable signals that the keys could not be fetched and the
// identity is unverifiable rather than invalid.
func (v *Validator) Check(ctx context.Context, token string, audience []string, clientID string) (Claims, error) {
	start := time.Now()
	span := v.tracer.StartSpan("idtoken.Check")
	defer span.Finish()

	v.mu.Lock()
	defer v.mu.Unlock()

	claims, err := v.check(ctx, token, audience, clientID)

	v.metrics.ObserveHistogram("idtoken_check_duration_seconds",
		time.Since(start).Seconds(), map[string]string{"result": resultTag(err)})
	v.metrics.IncCounter("idtoken_checks_total", map[string]string{"result": resultTag(err)})
	v.metrics.SetGauge("idtoken_cached_keys", float64(v.store.Len()), nil)

	if err != nil {
		span.SetTag("check.result", resultTag(err))
		return nil, err
	}
	span.SetTag("check.result", "ok")
	return claims, nil
}

// check runs the two-phase search: all cached keys first, then one refresh
// and one retry. Callers must hold v.mu.
func (v *Validator) check(ctx context.Context, token string, audience []string, clientID string) (Claims, error) {
	claims, decoded, err := v.tryCachedKeys(token, audience, clientID)
	if err != nil {
		return nil, err
	}
	if decoded {
		return claims, nil
	}

	v.logger.Debugf("no cached key verified the token, refreshing key set")
	if err := v.store.Refresh(ctx); err != nil {
		v.logger.Warnf("key set refresh failed: %v", err)
		v.metrics.IncCounter("idtoken_key_refreshes_total", map[string]string{"result": "error"})
		return nil, &CertificateError{Details: err}
	}
	v.metrics.IncCounter("idtoken_key_refreshes_total", map[string]string{"result": "ok"})

	claims, decoded, err = v.tryCachedKeys(token, audience, clientID)
	if err != nil {
		return nil, err
	}
	if decoded {
		return claims, nil
	}

	return nil, NewValidationError(ErrorCodeInvalidSignature,
		"token not verified as issued by the provider", nil)
}

// tryCachedKeys attempts verification against every cached key.
//
// decoded reports whether any key structurally verified the token. The first
// key that does wins the search; its claim checks are hard failures that
// never fall through to another key or to the refresh path. When decoded is
// false and err is nil, no key matched and the caller may refresh and retry.
func (v *Validator) tryCachedKeys(token string, audience []string, clientID string) (claims Claims, decoded bool, err error) {
	for kid, key := range v.store.Keys() {
		claims, outcome := v.verifyWithKey(token, key)
		switch outcome {
		case outcomeExpired:
			// An expired token cannot become valid against a different
			// key, so the search stops here.
			return nil, true, NewValidationError(ErrorCodeTokenExpired, ErrTokenExpired.Error(), nil)
		case outcomeDecoded:
			claims.normalizeAuthorizedParty()
			if err := v.checkClaims(claims, audience, clientID); err != nil {
				return nil, true, err
			}
			v.logger.Debugf("token verified with key %q", kid)
			return claims, true, nil
		}
	}
	return nil, false, nil
}

// keyOutcome is the explicit result of attempting one key, distinguishing
// "continue searching" from "stop the search".
type keyOutcome int

const (
	// outcomeNoMatch means this key did not verify the token. It is not yet
	// known whether another key will.
	outcomeNoMatch keyOutcome = iota
	// outcomeDecoded means the signature verified and the payload decoded.
	outcomeDecoded
	// outcomeExpired means the token is past its validity window.
	outcomeExpired
)

// verifyWithKey verifies the token's signature against a single public key.
// The parser accepts RS256 only and checks the token's validity window as
// part of verification, so expiry is detected before any claim is trusted.
func (v *Validator) verifyWithKey(token string, key *rsa.PublicKey) (Claims, keyOutcome) {
	mapClaims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, mapClaims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err == nil {
		return Claims(mapClaims), outcomeDecoded
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, outcomeExpired
	}
	return nil, outcomeNoMatch
}

// checkClaims validates the decoded payload, in order: audience, authorized
// party, issuer. It runs only against a cryptographically authenticated
// payload.
func (v *Validator) checkClaims(claims Claims, audience []string, clientID string) error {
	if !audienceMatches(claims.Audiences(), audience) {
		return NewValidationError(ErrorCodeInvalidAudience, ErrAudienceMismatch.Error(), nil)
	}
	if clientID != "" && claims.ClientID() != clientID {
		return NewValidationError(ErrorCodeInvalidClientID, ErrClientIDMismatch.Error(), nil)
	}
	if !issuerTrusted(v.issuers, claims.Issuer()) {
		return NewValidationError(ErrorCodeInvalidIssuer, ErrInvalidIssuer.Error(), nil)
	}
	return nil
}

// audienceMatches reports whether any audience the token carries is a member
// of the expected set. A token without an aud claim never matches.
func audienceMatches(tokenAudiences, expected []string) bool {
	for _, aud := range tokenAudiences {
		for _, want := range expected {
			if aud == want {
				return true
			}
		}
	}
	return false
}

func issuerTrusted(trusted []string, issuer string) bool {
	for _, iss := range trusted {
		if issuer == iss {
			return true
		}
	}
	return false
}

// resultTag maps a Check error to the label used on metrics and spans.
func resultTag(err error) string {
	if err == nil {
		return "ok"
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Code
	}
	if errors.Is(err, ErrKeySourceUnavailable) {
		return "key_source_unavailable"
	}
	return "error"
}
