package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

type contextKey string

const principalKey contextKey = "api_principal"

// KeyLookup validates a hashed API key against the store.
type KeyLookup func(ctx context.Context, keyHash string) (bool, error)

// AuthMiddleware accepts either an X-API-Key header (hashed and checked
// against the key store) or an HMAC-signed JWT bearer token. The
// resolved principal scopes pipeline ownership: for API keys it is the
// key hash, for JWTs the sub claim.
type AuthMiddleware struct {
	jwtSecret []byte
	keyLookup KeyLookup
}

func NewAuthMiddleware(jwtSecret string, keyLookup KeyLookup) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: []byte(jwtSecret),
		keyLookup: keyLookup,
	}
}

func (a *AuthMiddleware) extractPrincipal(r *http.Request) (string, error) {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		if a.keyLookup == nil {
			return "", fmt.Errorf("API key auth not configured")
		}
		hash := sha256.Sum256([]byte(apiKey))
		keyHash := hex.EncodeToString(hash[:])
		ok, err := a.keyLookup(r.Context(), keyHash)
		if err != nil {
			return "", fmt.Errorf("API key lookup failed: %w", err)
		}
		if !ok {
			return "", fmt.Errorf("invalid API key")
		}
		return keyHash, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header or X-API-Key")
	}
	if len(a.jwtSecret) == 0 {
		return "", fmt.Errorf("JWT auth not configured")
	}

	tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid JWT: %w", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid JWT claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("JWT missing sub claim")
	}
	return sub, nil
}

func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := a.extractPrincipal(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFromContext returns the authenticated owner id, or "".
func PrincipalFromContext(ctx context.Context) string {
	v, _ := ctx.Value(principalKey).(string)
	return v
}
