package middleware

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/practice-scheduler/internal/tenancy"
)

// DefaultFirebaseJWKSURL publishes the keys that sign Firebase ID tokens.
const DefaultFirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

// IDTokenConfig holds the Firebase project used for ID token validation.
type IDTokenConfig struct {
	ProjectID string
	// JWKSURL overrides the Google key endpoint; tests point it at httptest.
	JWKSURL string
	Client  *http.Client
}

// IDTokenClaims represents the claims in a Firebase ID token.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	AuthTime      int64  `json:"auth_time"`
}

const idTokenClaimsKey contextKey = "idTokenClaims"

// KeySet fetches and caches the RSA keys published at a JWKS endpoint.
type KeySet struct {
	url    string
	client *http.Client
	ttl    time.Duration

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

// NewKeySet creates a cache for the JWKS at url.
func NewKeySet(url string, client *http.Client) *KeySet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySet{url: url, client: client, ttl: time.Hour}
}

// Key returns the public key for kid, refetching when the cache is stale or the kid is unknown.
func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	if time.Now().Before(k.expires) {
		if key, ok := k.keys[kid]; ok {
			k.mu.RUnlock()
			return key, nil
		}
	}
	k.mu.RUnlock()

	keys, err := fetchJWKS(ctx, k.client, k.url)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	k.keys = keys
	k.expires = time.Now().Add(k.ttl)
	k.mu.Unlock()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	return key, nil
}

// IDTokenAuth validates Firebase ID tokens and stores the user id as the owner uid.
func IDTokenAuth(cfg IDTokenConfig) func(http.Handler) http.Handler {
	project := strings.TrimSpace(cfg.ProjectID)
	if project == "" {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSONError(w, http.StatusUnauthorized, "id token auth not configured")
			})
		}
	}

	issuer := "https://securetoken.google.com/" + project
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = DefaultFirebaseJWKSURL
	}
	keys := NewKeySet(jwksURL, cfg.Client)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			// Parse the token header to get the key ID
			token, _, err := jwt.NewParser().ParseUnverified(tokenString, &IDTokenClaims{})
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid token format")
				return
			}
			kid, ok := token.Header["kid"].(string)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "missing key id in token")
				return
			}

			pubKey, err := keys.Key(r.Context(), kid)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "failed to get public key: "+err.Error())
				return
			}

			claims := &IDTokenClaims{}
			validatedToken, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return pubKey, nil
			},
				jwt.WithIssuer(issuer),
				jwt.WithAudience(project),
				jwt.WithExpirationRequired(),
				jwt.WithIssuedAt(),
			)
			if err != nil || !validatedToken.Valid {
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if strings.TrimSpace(claims.Subject) == "" {
				writeJSONError(w, http.StatusUnauthorized, "token has no subject")
				return
			}

			ctx := context.WithValue(r.Context(), idTokenClaimsKey, claims)
			ctx = tenancy.WithOwnerUID(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IDTokenClaimsFromContext retrieves ID token claims from the request context.
func IDTokenClaimsFromContext(ctx context.Context) (*IDTokenClaims, bool) {
	claims, ok := ctx.Value(idTokenClaimsKey).(*IDTokenClaims)
	return claims, ok
}

type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func fetchJWKS(ctx context.Context, client *http.Client, url string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build JWKS request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS request failed with status %d", resp.StatusCode)
	}

	var jwks jwksResponse
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" {
			continue
		}
		pubKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		keys[key.Kid] = pubKey
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no valid RSA keys found in JWKS")
	}
	return keys, nil
}

// parseRSAPublicKey parses RSA public key components from base64url-encoded strings.
func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}

// OwnerAuth routes RS256 tokens carrying a kid to IDTokenAuth and everything else
// to DevJWT. With no dev secret the fallback rejects the request.
func OwnerAuth(idCfg IDTokenConfig, devSecret string) func(http.Handler) http.Handler {
	idMW := IDTokenAuth(idCfg)
	devMW := DevJWT(devSecret)

	return func(next http.Handler) http.Handler {
		idNext := idMW(next)
		devNext := devMW(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			if looksLikeIDToken(tokenString) {
				idNext.ServeHTTP(w, r)
				return
			}
			devNext.ServeHTTP(w, r)
		})
	}
}

func looksLikeIDToken(tokenString string) bool {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return false
	}
	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	var header map[string]interface{}
	if json.Unmarshal(headerBytes, &header) != nil {
		return false
	}
	alg, _ := header["alg"].(string)
	_, hasKid := header["kid"]
	return alg == "RS256" && hasKid
}
