package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillworks/till/app/controllers"
	"github.com/tillworks/till/internal/pkg/constants"
	"github.com/tillworks/till/internal/pkg/jobqueue"
)

type nopEnqueuer struct{}

func (nopEnqueuer) EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error) {
	return &jobqueue.Job{ID: "test-job", Type: jobType, Payload: payload}, nil
}

func TestHttpRouter_PublicRoutesAreRateLimited(t *testing.T) {
	controllers.InitializeWebhookController(nopEnqueuer{})

	app := fiber.New()
	HttpRouter{}.InstallRouter(app)

	req := httptest.NewRequest(http.MethodPost, constants.TerminalWebhookRoute, strings.NewReader(`{"state":"approved"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))

	// Checkout routes sit behind the same limiter; without a tenant header
	// the guard rejects before any handler work.
	req = httptest.NewRequest(http.MethodPost, constants.ForceFinalizeRoute, strings.NewReader(`{"invoice":"INV-1001"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))
}
