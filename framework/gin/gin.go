// Package idtokengin adapts the idtoken middleware to gin.
package idtokengin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	idtoken "github.com/verikit/go-idtoken-verifier"
)

// DefaultClaimsKey is the gin context key claims are stored under.
const DefaultClaimsKey = "idtoken"

// ErrMissingClaims is returned by GetClaims when no claims are stored.
var ErrMissingClaims = errors.New("no token claims found in context")

// Config holds the adapter configuration.
type Config struct {
	errorHandler   func(*gin.Context, error)
	contextKey     string
	middlewareOpts []idtoken.MiddlewareOption
}

// Option configures the gin adapter.
type Option func(*Config)

// WithErrorHandler replaces the rejection handler. The default aborts with a
// JSON body and a status matching the error category.
func WithErrorHandler(handler func(*gin.Context, error)) Option {
	return func(c *Config) {
		c.errorHandler = handler
	}
}

// WithContextKey replaces the gin context key claims are stored under.
func WithContextKey(key string) Option {
	return func(c *Config) {
		c.contextKey = key
	}
}

// WithMiddlewareOptions forwards options to the underlying middleware.
func WithMiddlewareOptions(opts ...idtoken.MiddlewareOption) Option {
	return func(c *Config) {
		c.middlewareOpts = append(c.middlewareOpts, opts...)
	}
}

// New returns a gin.HandlerFunc validating each request's bearer token for
// the expected audience.
func New(validator *idtoken.Validator, audience []string, opts ...Option) (gin.HandlerFunc, error) {
	config := &Config{
		errorHandler: defaultErrorHandler,
		contextKey:   DefaultClaimsKey,
	}
	for _, opt := range opts {
		opt(config)
	}

	mwOpts := append([]idtoken.MiddlewareOption{
		idtoken.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			c, ok := r.Context().Value(gin.ContextKey).(*gin.Context)
			if !ok || c == nil {
				idtoken.DefaultErrorHandler(w, r, err)
				return
			}
			config.errorHandler(c, err)
		}),
	}, config.middlewareOpts...)

	middleware, err := idtoken.NewMiddleware(validator, audience, mwOpts...)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		rejected := true
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rejected = false
			c.Request = r
			if claims, err := idtoken.ClaimsFromContext(r.Context()); err == nil {
				c.Set(config.contextKey, claims)
			}
			c.Next()
		})

		middleware.CheckToken(handler).ServeHTTP(c.Writer, c.Request)

		if rejected {
			c.Abort()
		}
	}, nil
}

// GetClaims reads validated claims out of the gin context.
func GetClaims(c *gin.Context, contextKey string) (idtoken.Claims, error) {
	if contextKey == "" {
		contextKey = DefaultClaimsKey
	}
	value, exists := c.Get(contextKey)
	if !exists {
		return nil, ErrMissingClaims
	}
	claims, ok := value.(idtoken.Claims)
	if !ok {
		return nil, ErrMissingClaims
	}
	return claims, nil
}

func defaultErrorHandler(c *gin.Context, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, idtoken.ErrKeySourceUnavailable) {
		status = http.StatusServiceUnavailable
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
