// Package auth authenticates operators of the control API: bcrypt
// password hashes from the configuration and HS256 bearer tokens.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"callcore/internal/config"
)

const issuer = "callcore"

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
)

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type contextKey struct{}

// Authenticator checks operator credentials and issues tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	users  map[string]string // username -> bcrypt hash
	now    func() time.Time
}

// New builds an authenticator from the API configuration.
func New(cfg config.APIConfig) *Authenticator {
	users := make(map[string]string, len(cfg.Users))
	for _, u := range cfg.Users {
		users[u.Username] = u.PasswordHash
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authenticator{
		secret: []byte(cfg.JWTSecret),
		ttl:    ttl,
		users:  users,
		now:    time.Now,
	}
}

// Login verifies the password and returns a signed token.
func (a *Authenticator) Login(username, password string) (string, error) {
	hash, ok := a.users[username]
	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := VerifyPassword(hash, password); err != nil {
		return "", ErrInvalidCredentials
	}
	return a.GenerateToken(username)
}

// GenerateToken creates a token for username.
func (a *Authenticator) GenerateToken(username string) (string, error) {
	now := a.now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ParseToken validates a token and returns its claims.
func (a *Authenticator) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyPassword checks a bcrypt hash.
func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// HashPassword hashes a password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	return string(bytes), err
}

// Middleware rejects requests without a valid bearer token and stores the
// claims in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearer(r)
		if tokenStr == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		claims, err := a.ParseToken(tokenStr)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearer extracts the token from the Authorization header. Browsers cannot
// set headers on websocket upgrades, so a "token" query parameter is
// accepted as well.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return ""
		}
		return parts[1]
	}
	return r.URL.Query().Get("token")
}

// UserFromContext retrieves claims stored by Middleware.
func UserFromContext(ctx context.Context) (*Claims, error) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	if !ok {
		return nil, errors.New("no user in context")
	}
	return claims, nil
}
