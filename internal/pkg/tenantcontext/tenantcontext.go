package tenantcontext

import "github.com/gofiber/fiber/v2"

// Locals key used across controllers and middlewares
const ContextKey = "TENANT_CONTEXT"

// TenantContext represents the resolved tenant for a request. Resolution
// itself (JWT/cookie verification) lives in the external auth collaborator;
// by the time a request reaches this core the tenant arrives as a trusted
// header.
type TenantContext struct {
	TenantID uint `json:"tenant_id"`
	Resolved bool `json:"resolved"`
}

// GetTenantContext retrieves the tenant context from fiber context.
// Returns an unresolved context if none is set.
func GetTenantContext(c *fiber.Ctx) TenantContext {
	if ctx := c.Locals(ContextKey); ctx != nil {
		return ctx.(TenantContext)
	}
	return TenantContext{}
}

// GetTenantID returns the current tenant's ID, or 0 if unresolved
func GetTenantID(c *fiber.Ctx) uint {
	return GetTenantContext(c).TenantID
}
