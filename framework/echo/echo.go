// Package idtokenecho adapts the idtoken middleware to echo.
package idtokenecho

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	idtoken "github.com/verikit/go-idtoken-verifier"
)

// DefaultClaimsKey is the echo context key claims are stored under.
const DefaultClaimsKey = "idtoken"

// Config holds the adapter configuration.
type Config struct {
	errorHandler   func(echo.Context, error)
	contextKey     string
	middlewareOpts []idtoken.MiddlewareOption
}

// Option configures the echo adapter.
type Option func(*Config)

// WithErrorHandler replaces the rejection handler. The default responds with
// a JSON body and a status matching the error category.
func WithErrorHandler(handler func(echo.Context, error)) Option {
	return func(c *Config) {
		c.errorHandler = handler
	}
}

// WithContextKey replaces the echo context key claims are stored under.
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

// New returns an echo.MiddlewareFunc validating each request's bearer token
// for the expected audience.
func New(validator *idtoken.Validator, audience []string, opts ...Option) (echo.MiddlewareFunc, error) {
	config := &Config{
		errorHandler: defaultErrorHandler,
		contextKey:   DefaultClaimsKey,
	}
	for _, opt := range opts {
		opt(config)
	}

	// Surface configuration errors at setup time rather than on the first
	// request.
	if _, err := idtoken.NewMiddleware(validator, audience, config.middlewareOpts...); err != nil {
		return nil, err
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var handlerErr error
			rejected := true

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				rejected = false
				c.SetRequest(r)
				if claims, err := idtoken.ClaimsFromContext(r.Context()); err == nil {
					c.Set(config.contextKey, claims)
				}
				handlerErr = next(c)
			})

			// The rejection handler needs this request's echo context, so
			// the middleware is bound per call; construction is cheap and
			// the validator itself is shared.
			opts := append([]idtoken.MiddlewareOption{
				idtoken.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
					config.errorHandler(c, err)
				}),
			}, config.middlewareOpts...)

			mw, err := idtoken.NewMiddleware(validator, audience, opts...)
			if err != nil {
				return err
			}

			mw.CheckToken(handler).ServeHTTP(c.Response(), c.Request())

			if rejected {
				return nil
			}
			return handlerErr
		}
	}, nil
}

// GetClaims reads validated claims out of the echo context.
func GetClaims(c echo.Context, contextKey string) (idtoken.Claims, error) {
	if contextKey == "" {
		contextKey = DefaultClaimsKey
	}
	claims, ok := c.Get(contextKey).(idtoken.Claims)
	if !ok {
		return nil, errors.New("no token claims found in context")
	}
	return claims, nil
}

func defaultErrorHandler(c echo.Context, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, idtoken.ErrKeySourceUnavailable) {
		status = http.StatusServiceUnavailable
	}
	_ = c.JSON(status, map[string]string{"error": err.Error()})
}
