package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityResolver maps an incoming request to a verified caller
// identity. It is injected into handlers so tests can substitute fake
// identities without minting tokens.
type IdentityResolver interface {
	Resolve(r *http.Request) (int, error)
}

// JWTResolver resolves identity from an HS256 bearer token whose
// subject carries the user ID.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(jwtSecret string) *JWTResolver {
	return &JWTResolver{secret: []byte(jwtSecret)}
}

func (j *JWTResolver) Resolve(r *http.Request) (int, error) {
	tokenString, err := bearerToken(r)
	if err != nil {
		return 0, err
	}

	subject, err := parseTokenSubject(tokenString, j.secret)
	if err != nil {
		return 0, err
	}

	id, err := strconv.Atoi(subject)
	if err != nil || id < 1 {
		return 0, errors.New("invalid subject")
	}
	return id, nil
}

// RequireIdentity enforces a resolved caller identity and injects the
// user ID into the request context.
func RequireIdentity(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolver.Resolve(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(contextWithUserID(r.Context(), userID)))
		})
	}
}

func parseTokenSubject(tokenString string, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
