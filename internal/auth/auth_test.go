package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/locate-tracker/internal/domain"
	apperrors "github.com/spec-kit/locate-tracker/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, exp, err := tm.GenerateToken("user-1", "jane@example.com", domain.RoleEditor)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if exp.IsZero() {
		t.Fatal("expiry not set")
	}
	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != domain.RoleEditor || claims.Email != "jane@example.com" {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := NewTokenManager("other", 5).ParseToken(token); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
	expired, _, _ := NewTokenManager("secret", -1).GenerateToken("user-1", "", domain.RoleAdmin)
	if _, err := tm.ParseToken(expired); err != nil {
		t.Fatalf("non-positive ttl should fall back to an hour: %v", err)
	}
}

func testApp(tm *TokenManager, minimum domain.Role) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"code": de.Code})
		},
	})
	app.Get("/", NewAuthMiddleware(tm).Handle, RequireRole(minimum), func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(p.SubjectID)
	})
	return app
}

func TestMiddlewareAndRoles(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	viewer, _, _ := tm.GenerateToken("v", "", domain.RoleViewer)
	admin, _, _ := tm.GenerateToken("a", "", domain.RoleAdmin)
	bogus, _, _ := tm.GenerateToken("x", "", domain.Role("superuser"))

	tests := []struct {
		name    string
		minimum domain.Role
		header  string
		want    int
	}{
		{"missing_header", domain.RoleViewer, "", http.StatusUnauthorized},
		{"wrong_scheme", domain.RoleViewer, "Basic abc", http.StatusUnauthorized},
		{"garbage_token", domain.RoleViewer, "Bearer abc", http.StatusUnauthorized},
		{"viewer_reads", domain.RoleViewer, "Bearer " + viewer, http.StatusOK},
		{"viewer_cannot_edit", domain.RoleEditor, "Bearer " + viewer, http.StatusForbidden},
		{"admin_edits", domain.RoleEditor, "Bearer " + admin, http.StatusOK},
		{"unknown_role", domain.RoleViewer, "Bearer " + bogus, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := testApp(tm, tc.minimum).Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}
