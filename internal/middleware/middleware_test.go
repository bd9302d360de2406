package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/affordeals/storefront/internal/auth"
	"github.com/affordeals/storefront/internal/metrics"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret      = "jwt-secret"
	testCallbackSecret = "callback-secret"
)

// newRouter returns a router whose /whoami route echoes the resolved identity
func newRouter(t *testing.T) (*mux.Router, **auth.Identity) {
	t.Helper()
	var seen *auth.Identity

	r := mux.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(ErrorHandlerMiddleware)
	r.Use(MetricsMiddleware(metrics.NewNoop("storefront-test")))
	r.Use(AuthMiddleware(auth.NewTokenVerifier(testJWTSecret), testCallbackSecret))

	r.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		seen = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	r.HandleFunc("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	return r, &seen
}

func bearer(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthMiddleware(t *testing.T) {
	valid := bearer(t, jwt.MapClaims{"user_id": 7, "email": "ann@example.com", "exp": time.Now().Add(time.Hour).Unix()})

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		want       *auth.Identity
	}{
		{"anonymous", nil, http.StatusNoContent, nil},
		{"bearer token", map[string]string{"Authorization": valid}, http.StatusNoContent, &auth.Identity{UserID: 7, Email: "ann@example.com"}},
		{"bad token", map[string]string{"Authorization": "Bearer not.a.token"}, http.StatusUnauthorized, nil},
		{"basic auth", map[string]string{"Authorization": "Basic YWJjOmRlZg=="}, http.StatusUnauthorized, nil},
		{"payment secret", map[string]string{PaymentSecretHeader: testCallbackSecret}, http.StatusNoContent, &auth.Identity{PaymentCallback: true}},
		{"wrong payment secret", map[string]string{PaymentSecretHeader: "guess"}, http.StatusUnauthorized, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, seen := newRouter(t)

			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.want, *seen)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	router, _ := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestErrorHandlerRecoversPanics(t *testing.T) {
	router, _ := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight reached the handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), PaymentSecretHeader)
}
