// Package idtokengrpc provides gRPC interceptors that authenticate incoming
// calls with the idtoken validator.
package idtokengrpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	idtoken "github.com/verikit/go-idtoken-verifier"
)

// TokenExtractor pulls a raw token out of the incoming call context. A
// missing token is reported as an empty string with no error.
type TokenExtractor func(ctx context.Context) (string, error)

// MetadataTokenExtractor reads the token from the "authorization" metadata
// entry, expecting the "Bearer {token}" scheme.
func MetadataTokenExtractor(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", nil
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		return "", nil
	}

	parts := strings.Fields(values[0])
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("authorization metadata format must be Bearer {token}")
	}
	return parts[1], nil
}

// Interceptor authenticates gRPC calls against a shared Validator.
type Interceptor struct {
	validator           *idtoken.Validator
	audience            []string
	clientID            string
	tokenExtractor      TokenExtractor
	credentialsOptional bool
	excluded            func(fullMethod string) bool
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithTokenExtractor replaces the metadata token extractor.
func WithTokenExtractor(extractor TokenExtractor) Option {
	return func(i *Interceptor) {
		i.tokenExtractor = extractor
	}
}

// WithClientID additionally requires the token's authorized party to match
// the given client ID.
func WithClientID(clientID string) Option {
	return func(i *Interceptor) {
		i.clientID = clientID
	}
}

// WithCredentialsOptional lets calls without a token through, with no claims
// in the context.
func WithCredentialsOptional(optional bool) Option {
	return func(i *Interceptor) {
		i.credentialsOptional = optional
	}
}

// WithExcludedMethods skips validation for calls whose full method name the
// given function reports as excluded.
func WithExcludedMethods(excluded func(fullMethod string) bool) Option {
	return func(i *Interceptor) {
		i.excluded = excluded
	}
}

// New constructs an Interceptor validating tokens for the expected audience.
func New(validator *idtoken.Validator, audience []string, opts ...Option) (*Interceptor, error) {
	if validator == nil {
		return nil, errors.New("validator is required but was nil")
	}
	if len(audience) == 0 {
		return nil, errors.New("audience is required but was empty")
	}

	i := &Interceptor{
		validator:      validator,
		audience:       audience,
		tokenExtractor: MetadataTokenExtractor,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// authenticate validates the call's token and returns a context carrying the
// claims, or a status error mapped from the validation failure.
func (i *Interceptor) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	if i.excluded != nil && i.excluded(fullMethod) {
		return ctx, nil
	}

	token, err := i.tokenExtractor(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "error extracting token: %v", err)
	}
	if token == "" {
		if i.credentialsOptional {
			return ctx, nil
		}
		return nil, status.Error(codes.Unauthenticated, idtoken.ErrTokenMissing.Error())
	}

	claims, err := i.validator.Check(ctx, token, i.audience, i.clientID)
	if err != nil {
		if errors.Is(err, idtoken.ErrKeySourceUnavailable) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	return idtoken.SetClaims(ctx, claims), nil
}

// Unary returns a grpc.UnaryServerInterceptor running the token check.
func (i *Interceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := i.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// Stream returns a grpc.StreamServerInterceptor running the token check.
func (i *Interceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := i.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &claimsServerStream{ServerStream: ss, ctx: ctx})
	}
}

// claimsServerStream overrides the stream context with one carrying claims.
type claimsServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *claimsServerStream) Context() context.Context {
	return s.ctx
}
