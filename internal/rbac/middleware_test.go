package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"zkypee/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveWithIdentity(userID, role string, chain ...gin.HandlerFunc) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	handlers := []gin.HandlerFunc{func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), userID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}}
	handlers = append(handlers, chain...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/x", handlers...)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	if code := serveWithIdentity("u", RoleAdmin, RequireUser(), RequireAnyRole(RoleSupport)); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_DeniesOtherRoles(t *testing.T) {
	if code := serveWithIdentity("u", RoleUser, RequireUser(), RequireAnyRole(RoleSupport)); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireUser_Missing(t *testing.T) {
	if code := serveWithIdentity("", RoleUser, RequireUser()); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestIsKnownRole(t *testing.T) {
	if !IsKnownRole(RoleSupport) || IsKnownRole("super_admin") {
		t.Fatalf("unexpected role classification")
	}
}
