package idtoken

import (
	"errors"
	"fmt"
	"net/http"
)

// Middleware authenticates incoming HTTP requests by extracting a bearer
// token and running it through a Validator. Validated claims are stored in
// the request context for handlers to read with ClaimsFromContext.
type Middleware struct {
	validator           *Validator
	audience            []string
	clientID            string
	errorHandler        ErrorHandler
	tokenExtractor      TokenExtractor
	credentialsOptional bool
	validateOnOptions   bool
	logger              Logger
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware) error

// WithErrorHandler replaces the middleware's error handler.
func WithErrorHandler(handler ErrorHandler) MiddlewareOption {
	return func(m *Middleware) error {
		if handler == nil {
			return errors.New("error handler must not be nil")
		}
		m.errorHandler = handler
		return nil
	}
}

// WithTokenExtractor replaces the token extractor. The default reads the
// Authorization header.
func WithTokenExtractor(extractor TokenExtractor) MiddlewareOption {
	return func(m *Middleware) error {
		if extractor == nil {
			return errors.New("token extractor must not be nil")
		}
		m.tokenExtractor = extractor
		return nil
	}
}

// WithCredentialsOptional lets requests without a token through, with no
// claims in the context. Requests that do carry a token are still validated.
func WithCredentialsOptional(optional bool) MiddlewareOption {
	return func(m *Middleware) error {
		m.credentialsOptional = optional
		return nil
	}
}

// WithValidateOnOptions controls whether OPTIONS requests are validated.
// They are by default.
func WithValidateOnOptions(validate bool) MiddlewareOption {
	return func(m *Middleware) error {
		m.validateOnOptions = validate
		return nil
	}
}

// WithClientID additionally requires the token's authorized party to match
// the given client ID.
func WithClientID(clientID string) MiddlewareOption {
	return func(m *Middleware) error {
		m.clientID = clientID
		return nil
	}
}

// WithMiddlewareLogger sets the logger used by the middleware.
func WithMiddlewareLogger(logger Logger) MiddlewareOption {
	return func(m *Middleware) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		m.logger = logger
		return nil
	}
}

// NewMiddleware constructs a Middleware checking tokens against the given
// validator for the expected audience.
func NewMiddleware(validator *Validator, audience []string, opts ...MiddlewareOption) (*Middleware, error) {
	if validator == nil {
		return nil, errors.New("validator is required but was nil")
	}
	if len(audience) == 0 {
		return nil, errors.New("audience is required but was empty")
	}

	m := &Middleware{
		validator:         validator,
		audience:          audience,
		errorHandler:      DefaultErrorHandler,
		tokenExtractor:    AuthHeaderTokenExtractor,
		validateOnOptions: true,
		logger:            &NoopLogger{},
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	return m, nil
}

// CheckToken wraps next, rejecting requests whose token does not validate.
func (m *Middleware) CheckToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.validateOnOptions && r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := m.tokenExtractor(r)
		if err != nil {
			// An extractor error means a token was present but malformed,
			// not that it was missing.
			m.logger.Errorf("failed to extract token from request: %v", err)
			m.errorHandler(w, r, fmt.Errorf("error extracting token: %w", err))
			return
		}

		if token == "" {
			if m.credentialsOptional {
				m.logger.Debugf("no credentials provided, continuing without claims")
				next.ServeHTTP(w, r)
				return
			}
			m.errorHandler(w, r, ErrTokenMissing)
			return
		}

		claims, err := m.validator.Check(r.Context(), token, m.audience, m.clientID)
		if err != nil {
			m.logger.Warnf("token validation failed for %s %s: %v", r.Method, r.URL.Path, err)
			m.errorHandler(w, r, err)
			return
		}

		next.ServeHTTP(w, r.Clone(SetClaims(r.Context(), claims)))
	})
}
