package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tillworks/till/internal/pkg/tenantcontext"
)

// TenantHeader carries the tenant id resolved by the upstream auth layer.
const TenantHeader = "X-Tenant-ID"

// TenantContextMiddleware parses the tenant header into a TenantContext for
// every request. Routes that require a tenant enforce it via RequireTenant;
// platform-scoped routes (terminal webhooks) run without one.
func TenantContextMiddleware(c *fiber.Ctx) error {
	raw := strings.TrimSpace(c.Get(TenantHeader))
	if raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id > 0 {
			c.Locals(tenantcontext.ContextKey, tenantcontext.TenantContext{
				TenantID: uint(id),
				Resolved: true,
			})
		}
	}
	return c.Next()
}

// RequireTenant rejects requests that did not resolve a tenant.
func RequireTenant(c *fiber.Ctx) error {
	if !tenantcontext.GetTenantContext(c).Resolved {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "missing_field",
			"message": "X-Tenant-ID header is required",
		})
	}
	return c.Next()
}
