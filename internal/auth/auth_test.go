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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hylarucoder/animatediff-webui/internal/config"
)

const testKID = "render-test"

// setupIssuer serves an OIDC discovery document and a JWKS holding key.
func setupIssuer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":   srv.URL,
			"jwks_uri": srv.URL + "/keys",
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": testKID,
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func signRS256(t *testing.T, key *rsa.PrivateKey, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestJWKSVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := setupIssuer(t, key)

	v, err := NewJWKSVerifier(&config.OIDCConfig{Issuer: srv.URL + "/", ClientID: "webui"})
	require.NoError(t, err)
	defer v.Close()

	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	claims, err := v.Validate(signRS256(t, key, Claims{
		UserID: "user-1",
		Email:  "a@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    srv.URL,
			Audience:  jwt.ClaimStrings{"webui"},
			ExpiresAt: exp,
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)

	tests := []struct {
		name   string
		claims Claims
	}{
		{"wrong audience", Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{Issuer: srv.URL, Audience: jwt.ClaimStrings{"other"}, ExpiresAt: exp}}},
		{"wrong issuer", Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{Issuer: "https://evil.example.com", Audience: jwt.ClaimStrings{"webui"}, ExpiresAt: exp}}},
		{"no expiry", Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{Issuer: srv.URL, Audience: jwt.ClaimStrings{"webui"}}}},
		{"expired", Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{Issuer: srv.URL, Audience: jwt.ClaimStrings{"webui"}, ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(signRS256(t, key, tt.claims))
			assert.Error(t, err)
		})
	}
}

func TestJWKSVerifier_ExplicitKeySet(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := setupIssuer(t, key)

	// the issuer itself serves no discovery document
	v, err := NewJWKSVerifier(&config.OIDCConfig{Issuer: "https://id.example.com", JWKSURL: srv.URL + "/keys"})
	require.NoError(t, err)
	defer v.Close()

	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	claims, err := v.Validate(signRS256(t, key, Claims{
		UserID:           "user-2",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "https://id.example.com", ExpiresAt: exp},
	}))
	require.NoError(t, err)
	assert.Equal(t, "user-2", claims.UserID)

	hmac, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           "user-2",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "https://id.example.com", ExpiresAt: exp},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.Validate(hmac)
	assert.Error(t, err)
}

func TestNewJWKSVerifier_Errors(t *testing.T) {
	_, err := NewJWKSVerifier(&config.OIDCConfig{})
	assert.ErrorContains(t, err, "issuer is required")

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err = NewJWKSVerifier(&config.OIDCConfig{Issuer: srv.URL})
	assert.ErrorContains(t, err, "status 404")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer empty.Close()
	_, err = NewJWKSVerifier(&config.OIDCConfig{Issuer: empty.URL})
	assert.ErrorContains(t, err, "jwks_uri not found")
}

func TestLegacyToken(t *testing.T) {
	token, err := SignLegacyToken("secret", "user-7", "u7@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateLegacyToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.UserID)
	assert.Equal(t, "u7@example.com", claims.Email)
	assert.Equal(t, LegacyIssuer, claims.Issuer)

	_, err = ValidateLegacyToken(token, "other")
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	forever, err := SignLegacyToken("secret", "user-7", "", 0)
	require.NoError(t, err)
	claims, err = ValidateLegacyToken(forever, "secret")
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
}

func TestLegacyToken_RejectsOtherAlgorithms(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, LegacyClaims{UserID: "u"}).SignedString(key)
	require.NoError(t, err)

	_, err = ValidateLegacyToken(token, "secret")
	assert.Error(t, err)
}
