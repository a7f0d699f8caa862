package controllers

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/tillworks/till/internal/pkg/checkout"
	"github.com/tillworks/till/internal/pkg/database"
	"github.com/tillworks/till/internal/pkg/tenantcontext"
)

var (
	checkoutSvc     *checkout.Service
	checkoutSvcOnce sync.Once
	validate        = validator.New()
)

// InitializeCheckoutController wires the checkout service. Tests inject a
// service backed by a fake repository.
func InitializeCheckoutController(svc *checkout.Service) {
	checkoutSvcOnce.Do(func() {})
	checkoutSvc = svc
}

func getCheckoutService() *checkout.Service {
	checkoutSvcOnce.Do(func() {
		if checkoutSvc == nil {
			checkoutSvc = checkout.NewServiceFromDB(database.GetDB())
		}
	})
	return checkoutSvc
}

// ForceFinalizeRequest is the clerk-triggered finalize body.
type ForceFinalizeRequest struct {
	Invoice string `json:"invoice" validate:"required,min=1,max=64"`
}

// HandleForceFinalize materializes a sale for a pending session right now,
// without waiting for the terminal confirmation. The session deliberately
// stays pending; the webhook reconciles its status later.
func HandleForceFinalize(c *fiber.Ctx) error {
	tenantID := tenantcontext.GetTenantID(c)

	var req ForceFinalizeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "missing_field",
			"message": "request body must be JSON with an invoice field",
		})
	}
	req.Invoice = strings.TrimSpace(req.Invoice)
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "missing_field",
			"message": "invoice is required",
		})
	}

	saleID, err := getCheckoutService().Finalize(tenantID, req.Invoice)
	if err != nil {
		if errors.Is(err, checkout.ErrNoPendingSession) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":   "no_pending_session",
				"message": "no pending payment session for this invoice",
			})
		}
		log.Errorf("[Checkout] Force finalize failed (tenant=%d invoice=%s): %v", tenantID, req.Invoice, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "finalize_failed",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"sale_id": saleID})
}

// HandleCheckoutStatus lets a client poll the reconciliation state of a
// checkout attempt.
func HandleCheckoutStatus(c *fiber.Ctx) error {
	tenantID := tenantcontext.GetTenantID(c)

	invoice := strings.TrimSpace(c.Params("invoice"))
	if invoice == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "missing_field",
			"message": "invoice is required",
		})
	}

	status, err := getCheckoutService().Status(tenantID, invoice)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "unknown_invoice",
			})
		}
		log.Errorf("[Checkout] Status lookup failed (tenant=%d invoice=%s): %v", tenantID, invoice, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "status_lookup_failed",
		})
	}

	return c.Status(fiber.StatusOK).JSON(status)
}
