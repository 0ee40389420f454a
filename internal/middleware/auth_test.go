package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/servicehub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func identityEcho(seen *models.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthMiddleware(t *testing.T) {
	valid := signToken(t, jwt.MapClaims{
		"user_id": "user-7",
		"role":    models.RoleProvider,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	t.Run("valid token sets identity", func(t *testing.T) {
		var seen models.Identity
		handler := AuthMiddleware(testSecret, nil)(identityEcho(&seen))

		r := httptest.NewRequest(http.MethodGet, "/bookings/1", nil)
		r.Header.Set("Authorization", "Bearer "+valid)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, models.Identity{ID: "user-7", Role: models.RoleProvider}, seen)
	})

	t.Run("role defaults to customer", func(t *testing.T) {
		var seen models.Identity
		handler := AuthMiddleware(testSecret, nil)(identityEcho(&seen))
		token := signToken(t, jwt.MapClaims{"user_id": "user-8"})

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		handler.ServeHTTP(httptest.NewRecorder(), r)

		assert.Equal(t, models.RoleCustomer, seen.Role)
	})

	for name, header := range map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"bad signature":  "Bearer " + signTokenWith(t, "other-secret"),
		"expired":        "Bearer " + signToken(t, jwt.MapClaims{"user_id": "u", "exp": time.Now().Add(-time.Minute).Unix()}),
		"no user id":     "Bearer " + signToken(t, jwt.MapClaims{"role": "admin"}),
	} {
		t.Run(name, func(t *testing.T) {
			handler := AuthMiddleware(testSecret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run")
			}))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				r.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	t.Run("revoked token", func(t *testing.T) {
		client, redisMock := redismock.NewClientMock()
		redisMock.ExpectExists("blacklist:" + valid).SetVal(1)

		handler := AuthMiddleware(testSecret, client)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+valid)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func signTokenWith(t *testing.T, secret string) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u"}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(models.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		identity *models.Identity
		want     int
	}{
		{"admin", &models.Identity{ID: "a", Role: models.RoleAdmin}, http.StatusOK},
		{"customer", &models.Identity{ID: "c", Role: models.RoleCustomer}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/admin/payments/1/verify", nil)
			if tt.identity != nil {
				r = r.WithContext(WithIdentity(r.Context(), *tt.identity))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
