package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	return key
}

func jwkFor(key *rsa.PrivateKey, kid string) JWKSKey {
	pub := &key.PublicKey
	return JWKSKey{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func jwksServer(t *testing.T, keys ...JWKSKey) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JWKSResponse{Keys: keys})
	}))
	t.Cleanup(server.Close)
	return server
}

func discoveryServer(t *testing.T, doc map[string]interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewOIDCProvider_Discovery(t *testing.T) {
	jwks := jwksServer(t)
	server := discoveryServer(t, map[string]interface{}{
		"issuer":         "https://idp.example.com",
		"token_endpoint": "https://idp.example.com/token",
		"jwks_uri":       jwks.URL,
	})

	provider, err := NewOIDCProvider(server.URL + "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Issuer != "https://idp.example.com" {
		t.Errorf("issuer: got %s", provider.Issuer)
	}
	if provider.TokenEndpoint != "https://idp.example.com/token" {
		t.Errorf("token_endpoint: got %s", provider.TokenEndpoint)
	}
	if provider.JWKSURI != jwks.URL {
		t.Errorf("jwks_uri: got %s, want %s", provider.JWKSURI, jwks.URL)
	}
}

func TestNewOIDCProvider_Errors(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(http.NotFound))
	t.Cleanup(notFound.Close)
	noJWKS := discoveryServer(t, map[string]interface{}{
		"issuer":         "https://idp.example.com",
		"token_endpoint": "https://idp.example.com/token",
	})

	tests := []struct {
		name   string
		issuer string
	}{
		{"discovery endpoint 404", notFound.URL},
		{"unreachable issuer", "http://127.0.0.1:1"},
		{"missing jwks_uri", noJWKS.URL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOIDCProvider(tt.issuer); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestOIDCProvider_JWKSKeyFunc(t *testing.T) {
	key := testRSAKey(t)
	jwks := jwksServer(t, jwkFor(key, "test-key-1"))
	server := discoveryServer(t, map[string]interface{}{
		"issuer":   "https://idp.example.com",
		"jwks_uri": jwks.URL,
	})

	provider, err := NewOIDCProvider(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.JWKSKeyFunc() == nil {
		t.Fatal("JWKSKeyFunc returned nil")
	}
}

func TestJWKSCache_FetchAndHit(t *testing.T) {
	key := testRSAKey(t)
	kid := "fetch-test-key"
	fetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JWKSResponse{Keys: []JWKSKey{jwkFor(key, kid)}})
	}))
	defer server.Close()

	cache := NewJWKSCache(server.URL, 10*time.Minute)

	got, err := cache.GetKey(kid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.N.Cmp(key.PublicKey.N) != 0 || got.E != key.PublicKey.E {
		t.Error("fetched key does not match original")
	}

	// Second lookup inside the TTL must not hit the server again
	if _, err := cache.GetKey(kid); err != nil {
		t.Fatalf("unexpected error on cache hit: %v", err)
	}
	if fetches != 1 {
		t.Errorf("expected 1 fetch, got %d", fetches)
	}
}

func TestJWKSCache_KeyRotation(t *testing.T) {
	key1, key2 := testRSAKey(t), testRSAKey(t)
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		keys := []JWKSKey{jwkFor(key1, "rotation-key-1")}
		if calls > 1 {
			keys = append(keys, jwkFor(key2, "rotation-key-2"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JWKSResponse{Keys: keys})
	}))
	defer server.Close()

	cache := NewJWKSCache(server.URL, time.Millisecond)

	if _, err := cache.GetKey("rotation-key-1"); err != nil {
		t.Fatalf("unexpected error fetching key1: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	got, err := cache.GetKey("rotation-key-2")
	if err != nil {
		t.Fatalf("unexpected error after rotation: %v", err)
	}
	if got.N.Cmp(key2.PublicKey.N) != 0 {
		t.Error("rotated key modulus does not match")
	}
	if calls < 2 {
		t.Errorf("expected at least 2 JWKS fetches, got %d", calls)
	}
}

func TestJWKSCache_KeyNotFound(t *testing.T) {
	key := testRSAKey(t)
	server := jwksServer(t, jwkFor(key, "existing-key"))

	cache := NewJWKSCache(server.URL, 5*time.Minute)
	if _, err := cache.GetKey("nonexistent-key"); err == nil {
		t.Fatal("expected error for nonexistent key")
	}
}

func TestJWKSCache_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cache := NewJWKSCache(server.URL, 5*time.Minute)
	if _, err := cache.GetKey("any-key"); err == nil {
		t.Fatal("expected error for server error response")
	}
}

func TestParseRSAPublicKey(t *testing.T) {
	key := testRSAKey(t)
	valid := jwkFor(key, "parse-test")

	pub, err := parseRSAPublicKey(valid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 || pub.E != key.PublicKey.E {
		t.Error("parsed key does not match original")
	}

	tests := []struct {
		name string
		jwk  JWKSKey
	}{
		{"invalid modulus", JWKSKey{Kty: "RSA", N: "!!!bad!!!", E: valid.E}},
		{"invalid exponent", JWKSKey{Kty: "RSA", N: valid.N, E: "!!!bad!!!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseRSAPublicKey(tt.jwk); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestJwksKeyFunc_NoKidHeader(t *testing.T) {
	server := jwksServer(t)
	keyFunc := jwksKeyFunc(server.URL)

	token := &jwt.Token{Header: map[string]interface{}{}}
	if _, err := keyFunc(token); err == nil {
		t.Fatal("expected error for token without kid")
	}
}
