package httpkit

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"billing_reminders_backend/platform/apperr"
	"billing_reminders_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type jwtSecret string

func (s jwtSecret) GetJWTAccessSecret() string { return string(s) }

func init() {
	gin.SetMode(gin.TestMode)
}

func signAccess(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAuthRequiredPopulatesIdentity(t *testing.T) {
	userID, tenantID := uuid.New(), uuid.New()
	token := signAccess(t, "s3cret", jwt.MapClaims{
		"sub":       userID.String(),
		"type":      "access",
		"roles":     []string{"admin"},
		"tenant_id": tenantID.String(),
		"email":     "Owner@Acme.test",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	var got Identity
	r := gin.New()
	r.GET("/me", AuthRequired(jwtSecret("s3cret")), RequireAnyRole("owner", "admin"), func(c *gin.Context) {
		got = MustGetIdentity(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if got.UserID() != userID || got.WorkspaceID() == nil || *got.WorkspaceID() != tenantID {
		t.Fatalf("unexpected identity: user=%s workspace=%v", got.UserID(), got.WorkspaceID())
	}
	if got.Email() != "owner@acme.test" || !got.HasAnyRole("owner", "admin") {
		t.Fatalf("unexpected email or roles: %q %v", got.Email(), got.Roles())
	}
}

func TestRequireAnyRoleForbidsMembers(t *testing.T) {
	token := signAccess(t, "s3cret", jwt.MapClaims{
		"sub":   uuid.NewString(),
		"type":  "access",
		"roles": []string{"member"},
	})
	r := gin.New()
	r.GET("/admin", AuthRequired(jwtSecret("s3cret")), RequireAnyRole("owner", "admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin?token="+token, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRequireAnyRoleAllowsListedRole(t *testing.T) {
	r := gin.New()
	r.GET("/admin", func(c *gin.Context) {
		c.Set(ContextRolesKey, []string{"member", "owner"})
		c.Next()
	}, RequireAnyRole("owner", "admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected owner to pass, got %d", w.Code)
	}
}

func TestAuthRequiredRejectsWrongSecret(t *testing.T) {
	token := signAccess(t, "other", jwt.MapClaims{"sub": uuid.NewString(), "type": "access"})
	r := gin.New()
	r.GET("/me", AuthRequired(jwtSecret("s3cret")), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSharedSecretRequired(t *testing.T) {
	r := gin.New()
	r.POST("/cron", SharedSecretRequired("cron-secret", nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"bearer", "Bearer cron-secret", "", http.StatusOK},
		{"query", "", "?token=cron-secret", http.StatusOK},
		{"wrong", "Bearer nope", "", http.StatusUnauthorized},
		{"missing", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/cron"+tc.query, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
	}
}

func TestSharedSecretUnconfigured(t *testing.T) {
	r := gin.New()
	r.POST("/cron", SharedSecretRequired("", nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/cron?token=", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandleErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("bad"), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", apperr.MigrationRequired("00003_reminder_run_items.sql", nil)), http.StatusServiceUnavailable},
		{errors.New("pg: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		if !HandleError(c, tc.err) {
			t.Fatalf("expected %v to be handled", tc.err)
		}
		if w.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
	}
}

func TestRequestLoggerEchoesRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(logger.Discard()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("expected request id to be echoed, got %q", w.Header().Get(RequestIDHeader))
	}
}
