package idtokengrpc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	idtoken "github.com/verikit/go-idtoken-verifier"
)

const (
	testIssuer   = "https://issuer.example.com"
	testAudience = "test-audience"
)

var testKey *rsa.PrivateKey

func init() {
	var err error
	testKey, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
}

func buildTestToken(t *testing.T, iss, aud string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"iss": iss,
		"aud": aud,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(testKey)
	require.NoError(t, err, "could not sign token")
	return signed
}

func certPEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func newTestValidator(t *testing.T) *idtoken.Validator {
	t.Helper()

	body, err := json.Marshal(map[string]string{"kid1": certPEM(t, testKey)})
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	v, err := idtoken.New(
		idtoken.WithCertsURL(server.URL),
		idtoken.WithIssuers(testIssuer),
	)
	require.NoError(t, err)
	return v
}

func unaryInfo(method string) *grpc.UnaryServerInfo {
	return &grpc.UnaryServerInfo{FullMethod: method}
}

func TestUnaryInterceptor_Success(t *testing.T) {
	interceptor, err := New(newTestValidator(t), []string{testAudience})
	require.NoError(t, err)

	handler := func(ctx context.Context, req any) (any, error) {
		claims, err := idtoken.ClaimsFromContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, testIssuer, claims.Issuer())
		return "success", nil
	}

	md := metadata.Pairs("authorization", "Bearer "+buildTestToken(t, testIssuer, testAudience))
	ctx := metadata.NewIncomingContext(context.Background(), md)

	resp, err := interceptor.Unary()(ctx, nil, unaryInfo("/test.Service/Method"), handler)

	assert.NoError(t, err)
	assert.Equal(t, "success", resp)
}

func TestUnaryInterceptor_MissingToken(t *testing.T) {
	interceptor, err := New(newTestValidator(t), []string{testAudience})
	require.NoError(t, err)

	handler := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	resp, err := interceptor.Unary()(context.Background(), nil, unaryInfo("/test.Service/Method"), handler)

	assert.Nil(t, resp)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unauthenticated, st.Code())
}

func TestUnaryInterceptor_MalformedAuthorization(t *testing.T) {
	interceptor, err := New(newTestValidator(t), []string{testAudience})
	require.NoError(t, err)

	handler := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	md := metadata.Pairs("authorization", "NotBearer")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	resp, err := interceptor.Unary()(ctx, nil, unaryInfo("/test.Service/Method"), handler)

	assert.Nil(t, resp)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unauthenticated, st.Code())
}

func TestUnaryInterceptor_WrongAudience(t *testing.T) {
	interceptor, err := New(newTestValidator(t), []string{testAudience})
	require.NoError(t, err)

	handler := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	md := metadata.Pairs("authorization", "Bearer "+buildTestToken(t, testIssuer, "other-audience"))
	ctx := metadata.NewIncomingContext(context.Background(), md)

	resp, err := interceptor.Unary()(ctx, nil, unaryInfo("/test.Service/Method"), handler)

	assert.Nil(t, resp)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unauthenticated, st.Code())
}

func TestUnaryInterceptor_KeySourceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	v, err := idtoken.New(
		idtoken.WithCertsURL(server.URL),
		idtoken.WithIssuers(testIssuer),
	)
	require.NoError(t, err)

	interceptor, err := New(v, []string{testAudience})
	require.NoError(t, err)

	handler := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	md := metadata.Pairs("authorization", "Bearer "+buildTestToken(t, testIssuer, testAudience))
	ctx := metadata.NewIncomingContext(context.Background(), md)

	resp, err := interceptor.Unary()(ctx, nil, unaryInfo("/test.Service/Method"), handler)

	assert.Nil(t, resp)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unavailable, st.Code())
}

func TestUnaryInterceptor_CredentialsOptional(t *testing.T) {
	interceptor, err := New(newTestValidator(t), []string{testAudience},
		WithCredentialsOptional(true))
	require.NoError(t, err)

	handlerCalled := false
	handler := func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		assert.False(t, idtoken.HasClaims(ctx))
		return "success", nil
	}

	resp, err := interceptor.Unary()(context.Background(), nil, unaryInfo("/test.Service/Method"), handler)

	assert.NoError(t, err)
	assert.Equal(t, "success", resp)
	assert.True(t, handlerCalled)
}

func TestUnaryInterceptor_ExcludedMethods(t *testing.T) {
	interceptor, err := New(newTestValidator(t), []string{testAudience},
		WithExcludedMethods(func(fullMethod string) bool {
			return fullMethod == "/test.Service/HealthCheck"
		}))
	require.NoError(t, err)

	handlerCalled := false
	handler := func(ctx context.Context, req any) (any, error) {
		handlerCalled = true
		assert.False(t, idtoken.HasClaims(ctx))
		return "success", nil
	}

	resp, err := interceptor.Unary()(context.Background(), nil, unaryInfo("/test.Service/HealthCheck"), handler)

	assert.NoError(t, err)
	assert.Equal(t, "success", resp)
	assert.True(t, handlerCalled)
}

func TestUnaryInterceptor_CustomTokenExtractor(t *testing.T) {
	token := buildTestToken(t, testIssuer, testAudience)
	interceptor, err := New(newTestValidator(t), []string{testAudience},
		WithTokenExtractor(func(ctx context.Context) (string, error) {
			return token, nil
		}))
	require.NoError(t, err)

	handler := func(ctx context.Context, req any) (any, error) {
		assert.True(t, idtoken.HasClaims(ctx))
		return "success", nil
	}

	resp, err := interceptor.Unary()(context.Background(), nil, unaryInfo("/test.Service/Method"), handler)

	assert.NoError(t, err)
	assert.Equal(t, "success", resp)
}

func TestUnaryInterceptor_TokenExtractorError(t *testing.T) {
	interceptor, err := New(newTestValidator(t), []string{testAudience},
		WithTokenExtractor(func(ctx context.Context) (string, error) {
			return "", errors.New("extraction failed")
		}))
	require.NoError(t, err)

	handler := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	resp, err := interceptor.Unary()(context.Background(), nil, unaryInfo("/test.Service/Method"), handler)

	assert.Nil(t, resp)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unauthenticated, st.Code())
}

func TestStreamInterceptor_Success(t *testing.T) {
	interceptor, err := New(newTestValidator(t), []string{testAudience})
	require.NoError(t, err)

	handlerCalled := false
	handler := func(srv any, stream grpc.ServerStream) error {
		handlerCalled = true
		claims, err := idtoken.ClaimsFromContext(stream.Context())
		require.NoError(t, err)
		assert.Equal(t, testIssuer, claims.Issuer())
		return nil
	}

	md := metadata.Pairs("authorization", "Bearer "+buildTestToken(t, testIssuer, testAudience))
	ctx := metadata.NewIncomingContext(context.Background(), md)

	err = interceptor.Stream()(nil, &mockServerStream{ctx: ctx},
		&grpc.StreamServerInfo{FullMethod: "/test.Service/Stream"}, handler)

	assert.NoError(t, err)
	assert.True(t, handlerCalled)
}

func TestStreamInterceptor_MissingToken(t *testing.T) {
	interceptor, err := New(newTestValidator(t), []string{testAudience})
	require.NoError(t, err)

	handler := func(srv any, stream grpc.ServerStream) error {
		t.Fatal("handler should not be called")
		return nil
	}

	err = interceptor.Stream()(nil, &mockServerStream{ctx: context.Background()},
		&grpc.StreamServerInfo{FullMethod: "/test.Service/Stream"}, handler)

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unauthenticated, st.Code())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, []string{testAudience})
	assert.EqualError(t, err, "validator is required but was nil")

	_, err = New(newTestValidator(t), nil)
	assert.EqualError(t, err, "audience is required but was empty")
}

func TestMetadataTokenExtractor(t *testing.T) {
	testCases := []struct {
		name      string
		md        metadata.MD
		wantToken string
		wantError string
	}{
		{
			name: "no metadata",
		},
		{
			name: "no authorization entry",
			md:   metadata.Pairs("other", "value"),
		},
		{
			name:      "valid bearer",
			md:        metadata.Pairs("authorization", "Bearer abc"),
			wantToken: "abc",
		},
		{
			name:      "case insensitive scheme",
			md:        metadata.Pairs("authorization", "bearer abc"),
			wantToken: "abc",
		},
		{
			name:      "wrong scheme",
			md:        metadata.Pairs("authorization", "Basic abc"),
			wantError: "authorization metadata format must be Bearer {token}",
		},
		{
			name:      "missing token",
			md:        metadata.Pairs("authorization", "Bearer"),
			wantError: "authorization metadata format must be Bearer {token}",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			ctx := context.Background()
			if testCase.md != nil {
				ctx = metadata.NewIncomingContext(ctx, testCase.md)
			}

			token, err := MetadataTokenExtractor(ctx)
			if testCase.wantError != "" {
				assert.EqualError(t, err, testCase.wantError)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, testCase.wantToken, token)
		})
	}
}

// mockServerStream implements grpc.ServerStream for testing.
type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context {
	return m.ctx
}
