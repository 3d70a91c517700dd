package keyset

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultCertsURL is the well-known endpoint publishing the provider's
	// current signing certificates.
	DefaultCertsURL = "https://www.googleapis.com/oauth2/v1/certs"

	// DefaultExpiry is how long a successful refresh is considered fresh.
	DefaultExpiry = 3600 * time.Second

	// staticKeyID keys the single entry of a Store seeded from a fixed
	// certificate.
	staticKeyID = "static"
)

// Store holds the current set of known signing keys, keyed by the provider's
// opaque key identifier. It tracks when it last refreshed successfully so
// that repeated refresh requests within the expiry window perform no I/O.
//
// A Store seeded from a fixed certificate never refreshes; its single key
// never expires.
type Store struct {
	mu          sync.Mutex
	keys        map[string]*rsa.PublicKey
	lastRefresh time.Time
	expiry      time.Duration
	source      Source
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store) error

// WithEndpoint overrides the certificate endpoint a remote Store fetches from.
func WithEndpoint(certsURL string) Option {
	return func(s *Store) error {
		if certsURL == "" {
			return fmt.Errorf("certs URL must not be empty")
		}
		if src, ok := s.source.(*RemoteSource); ok {
			src.CertsURL = certsURL
		}
		return nil
	}
}

// WithHTTPClient overrides the HTTP client used to fetch the certificate
// endpoint. The default client enforces a 30 second timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Store) error {
		if client == nil {
			return fmt.Errorf("http client must not be nil")
		}
		if src, ok := s.source.(*RemoteSource); ok {
			src.Client = client
		}
		return nil
	}
}

// WithExpiry sets how long a successful refresh stays fresh.
// If unset, DefaultExpiry is used.
func WithExpiry(expiry time.Duration) Option {
	return func(s *Store) error {
		if expiry <= 0 {
			return fmt.Errorf("expiry must be positive")
		}
		s.expiry = expiry
		return nil
	}
}

// WithClock overrides the time source used for freshness checks.
// Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		s.now = now
		return nil
	}
}

// NewRemote builds a Store that repopulates itself from the provider's
// certificate endpoint. The Store starts empty; the first Refresh fills it.
func NewRemote(opts ...Option) (*Store, error) {
	s := &Store{
		keys:   make(map[string]*rsa.PublicKey),
		expiry: DefaultExpiry,
		source: &RemoteSource{
			CertsURL: DefaultCertsURL,
			Client:   &http.Client{Timeout: 30 * time.Second},
		},
		now: time.Now,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	return s, nil
}

// NewStatic builds a Store seeded with the public key of the given
// PEM-encoded X.509 certificate. Refresh on a static Store is a no-op that
// always succeeds.
func NewStatic(pemCert []byte, opts ...Option) (*Store, error) {
	key, err := publicKeyFromPEM(pemCert)
	if err != nil {
		return nil, fmt.Errorf("could not parse certificate: %w", err)
	}

	s := &Store{
		keys:   map[string]*rsa.PublicKey{staticKeyID: key},
		expiry: DefaultExpiry,
		now:    time.Now,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	return s, nil
}

// Refresh brings the key set up to date with the configured source.
//
// When the Store is static, or the last successful refresh is still within
// the expiry window, Refresh succeeds without any I/O. Otherwise it fetches
// the published key set and merges the result into the cache: entries absent
// from the response are retained, never dropped, so a partial response does
// not clear trust in previously cached keys.
//
// On fetch or parse failure the cache and the refresh timestamp are left
// untouched and the error is returned; the caller decides what a failed
// refresh means.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return nil
	}
	if !s.lastRefresh.IsZero() && !s.now().After(s.lastRefresh.Add(s.expiry)) {
		return nil
	}

	fetched, err := s.source.FetchKeys(ctx)
	if err != nil {
		return err
	}

	for kid, key := range fetched {
		s.keys[kid] = key
	}
	s.lastRefresh = s.now()

	return nil
}

// Keys returns a snapshot of the current key set. The returned map is a copy
// and safe for the caller to iterate while the Store refreshes.
func (s *Store) Keys() map[string]*rsa.PublicKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[string]*rsa.PublicKey, len(s.keys))
	for kid, key := range s.keys {
		keys[kid] = key
	}
	return keys
}

// Len reports how many signing keys are currently cached.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
