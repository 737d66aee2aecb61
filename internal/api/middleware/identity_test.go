package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func protected(t *testing.T) (http.Handler, *Identity) {
	var got Identity
	h := NewAuth(testSecret).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		require.True(t, ok)
		got = id
		w.WriteHeader(http.StatusOK)
	}))
	return h, &got
}

func TestAuth_ValidToken(t *testing.T) {
	h, got := protected(t)
	token := signToken(t, jwt.MapClaims{"user_id": "u1", "role": RoleCustomer, "exp": time.Now().Add(time.Hour).Unix()})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "u1", got.UserID)
	require.Equal(t, RoleCustomer, got.Role)
}

func TestAuth_TokenFromQuery(t *testing.T) {
	h, got := protected(t)
	token := signToken(t, jwt.MapClaims{"user_id": "u2", "role": RoleCourier})

	req := httptest.NewRequest(http.MethodGet, "/ws/tracking/o1?token="+token, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "u2", got.UserID)
}

func TestAuth_Rejections(t *testing.T) {
	h, _ := protected(t)

	// без токена
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// чужой секрет
	bad := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u1", "role": "customer"})
	s, err := bad.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+s)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// токен без role
	token := signToken(t, jwt.MapClaims{"user_id": "u1"})
	req = httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := NewAuth(testSecret).Handler(RequireRole(RoleBarista)(inner))

	token := signToken(t, jwt.MapClaims{"user_id": "u1", "role": RoleCustomer})
	req := httptest.NewRequest(http.MethodPatch, "/orders/o1/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	token = signToken(t, jwt.MapClaims{"user_id": "u1", "role": RoleBarista})
	req = httptest.NewRequest(http.MethodPatch, "/orders/o1/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
