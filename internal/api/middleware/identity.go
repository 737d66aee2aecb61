// Package middleware — HTTP-мидлвари общего назначения.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt"
)

// Identity — кто пришёл: клиент, курьер или сотрудник кофейни.
type Identity struct {
	UserID string
	Role   string
}

const (
	RoleCustomer = "customer"
	RoleCourier  = "courier"
	RoleBarista  = "barista"
)

type ctxKey struct{}

// IdentityFrom достаёт Identity из контекста запроса. ok=false, если
// запрос прошёл мимо Auth.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// WithIdentity кладёт Identity в контекст. Auth делает это сам после
// проверки токена; в тестах хендлеры получают личность напрямую.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

type Auth struct {
	secret string
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: secret}
}

// Handler проверяет Bearer-токен и кладёт Identity в контекст.
// Токен принимается и из заголовка, и из query (?token=) — websocket
// из браузера заголовки не выставляет.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			jsonError(w, http.StatusUnauthorized, "missing token")
			return
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(a.secret), nil
		})
		if err != nil || !token.Valid {
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "invalid claims")
			return
		}
		userID, ok := claims["user_id"].(string)
		if !ok || userID == "" {
			jsonError(w, http.StatusUnauthorized, "user_id not found in token")
			return
		}
		role, ok := claims["role"].(string)
		if !ok || role == "" {
			jsonError(w, http.StatusUnauthorized, "role not found in token")
			return
		}

		ctx := WithIdentity(r.Context(), Identity{UserID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole пропускает только перечисленные роли. Вешается после Auth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				jsonError(w, http.StatusUnauthorized, "missing identity")
				return
			}
			if _, ok := allowed[id.Role]; !ok {
				jsonError(w, http.StatusForbidden, "role not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func jsonError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
