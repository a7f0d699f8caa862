package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillworks/till/internal/pkg/tenantcontext"
)

func newTenantTestApp() *fiber.App {
	app := fiber.New()
	app.Use(TenantContextMiddleware)
	app.Get("/open", func(c *fiber.Ctx) error {
		tc := tenantcontext.GetTenantContext(c)
		return c.JSON(fiber.Map{"tenant_id": tc.TenantID, "resolved": tc.Resolved})
	})
	app.Get("/guarded", RequireTenant, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestTenantContextMiddleware_ParsesHeader(t *testing.T) {
	app := newTenantTestApp()

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set(TenantHeader, "7")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestTenantContextMiddleware_InvalidHeaderStaysUnresolved(t *testing.T) {
	app := newTenantTestApp()

	for _, value := range []string{"", "abc", "-1", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
		if value != "" {
			req.Header.Set(TenantHeader, value)
		}

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "header %q", value)
	}
}

func TestRequireTenant_PassesResolvedTenant(t *testing.T) {
	app := newTenantTestApp()

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set(TenantHeader, "42")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
