package keyset

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Source produces the signing keys currently published by the identity
// provider.
type Source interface {
	FetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error)
}

// RemoteSource fetches the provider's published key set over HTTPS.
//
// The endpoint may answer in either of the two formats providers publish:
// a JSON object mapping key identifiers to PEM-encoded X.509 certificates,
// or a standard JWKS document. Both are decoded into the same kid to
// public-key mapping.
type RemoteSource struct {
	CertsURL string
	Client   *http.Client
}

// maxResponseSize bounds the endpoint response body. Published key sets are
// typically under 10KB.
const maxResponseSize = 1 * 1024 * 1024

// FetchKeys performs one GET against the certificate endpoint and decodes
// the response. A non-2xx status, transport error, or undecodable body is
// returned as an error without partial results.
func (r *RemoteSource) FetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.CertsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("could not build request to get signing keys: %w", err)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch signing keys: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("signing key request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("could not read signing key response: %w", err)
	}

	return decodeKeySet(body)
}

// decodeKeySet decodes either key-set format into kid to public-key entries.
func decodeKeySet(body []byte) (map[string]*rsa.PublicKey, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("could not decode signing key response: %w", err)
	}
	if len(envelope) == 0 {
		return nil, fmt.Errorf("signing key response contained no keys")
	}

	if _, ok := envelope["keys"]; ok {
		return decodeJWKS(body)
	}
	return decodeCertMap(envelope)
}

// decodeCertMap handles the legacy format: kid to PEM certificate string.
// Entries whose certificate fails to parse are skipped; the decode fails
// only when no entry yields a usable key.
func decodeCertMap(envelope map[string]json.RawMessage) (map[string]*rsa.PublicKey, error) {
	keys := make(map[string]*rsa.PublicKey, len(envelope))
	var lastErr error

	for kid, raw := range envelope {
		var pemCert string
		if err := json.Unmarshal(raw, &pemCert); err != nil {
			lastErr = fmt.Errorf("entry %q is not a certificate string: %w", kid, err)
			continue
		}

		key, err := publicKeyFromPEM([]byte(pemCert))
		if err != nil {
			lastErr = fmt.Errorf("entry %q: %w", kid, err)
			continue
		}
		keys[kid] = key
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no usable signing keys in response: %w", lastErr)
	}
	return keys, nil
}

// decodeJWKS handles a standard JWKS document, keeping only the RSA keys.
func decodeJWKS(body []byte) (map[string]*rsa.PublicKey, error) {
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("could not parse JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, set.Len())
	for i := 0; i < set.Len(); i++ {
		k, ok := set.Key(i)
		if !ok {
			continue
		}

		var pub rsa.PublicKey
		if err := k.Raw(&pub); err != nil {
			continue
		}
		keys[k.KeyID()] = &pub
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no usable RSA keys in JWKS")
	}
	return keys, nil
}

// publicKeyFromPEM extracts the RSA public key from a PEM-encoded X.509
// certificate.
func publicKeyFromPEM(pemCert []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemCert)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in certificate")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("could not parse certificate: %w", err)
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate does not carry an RSA public key")
	}
	return pub, nil
}
