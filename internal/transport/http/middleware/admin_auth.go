package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pribylovaa/go-news-digest/internal/transport/http/apierrors"
	"github.com/pribylovaa/go-news-digest/pkg/log"
	"github.com/pribylovaa/go-news-digest/pkg/redact"
)

// jwtLeeway - допуск на расхождение часов.
const jwtLeeway = 5 * time.Second

// AdminAuth пропускает только запросы с Bearer-токеном HS256,
// подписанным secret и выпущенным issuer.
// Пустой secret отключает проверку; конфиг запрещает это в prod.
func AdminAuth(secret, issuer string) Middleware {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub, err := verifyBearer(r.Header.Get("Authorization"), []byte(secret), issuer)
			if err != nil {
				log.From(r.Context()).Warn("admin_auth_failed",
					slog.String("path", r.URL.Path),
					slog.String("reason", err.Error()),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := log.With(r.Context(), slog.String("admin", redact.Subject(sub)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// verifyBearer разбирает заголовок Authorization и возвращает subject токена.
func verifyBearer(header string, secret []byte, issuer string) (string, error) {
	const prefix = "Bearer "

	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("missing bearer token: %w", apierrors.ErrUnauthenticated)
	}
	raw := strings.TrimSpace(header[len(prefix):])
	if raw == "" {
		return "", fmt.Errorf("empty bearer token: %w", apierrors.ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(jwtLeeway),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("token expired: %w", apierrors.ErrUnauthenticated)
		}
		return "", fmt.Errorf("invalid token: %w: %w", apierrors.ErrUnauthenticated, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("token without subject: %w", apierrors.ErrUnauthenticated)
	}

	return claims.Subject, nil
}
