// Package http exposes the custody vault over HTTP.
//
// The hosting environment terminates authentication and injects the
// authenticated principal in the X-Caller-Id header; handlers trust that
// header the way the vault trusts its caller argument. Value amounts travel
// as JSON numbers or strings and are decoded as decimals.
package http

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/LerianStudio/lib-custody/custody"
)

// CallerHeader carries the authenticated caller identity, injected by the
// environment in front of this API.
const CallerHeader = "X-Caller-Id"

// ErrNilVault is returned when the API is constructed without a vault.
var ErrNilVault = errors.New("vault is nil")

// API wires the custody vault operations into a fiber application.
type API struct {
	vault    *custody.Vault
	app      *fiber.App
	logger   *zap.Logger
	validate *validator.Validate
}

// Option configures an API.
type Option func(a *API)

// WithLogger sets a structured logger for request logging. Defaults to
// zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAPI creates the HTTP surface for a vault.
func NewAPI(vault *custody.Vault, opts ...Option) (*API, error) {
	if vault == nil {
		return nil, ErrNilVault
	}

	a := &API{
		vault:    vault,
		logger:   zap.NewNop(),
		validate: validator.New(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	a.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	a.app.Use(cors.New())
	a.app.Use(a.withTelemetry())
	a.app.Use(a.withLogging())

	v1 := a.app.Group("/v1")
	v1.Get("/ping", ping)
	v1.Get("/balance", a.getBalance)
	v1.Get("/claim", a.getClaimStatus)
	v1.Get("/record", a.getRecord)
	v1.Put("/heir", a.putHeir)
	v1.Post("/withdrawals", a.postWithdrawal)
	v1.Post("/claims", a.postClaim)
	v1.Post("/deposits", a.postDeposit)

	return a, nil
}

// App returns the underlying fiber application, mainly for tests.
func (a *API) App() *fiber.App {
	return a.app
}

// Listen serves the API on the given address until shutdown.
func (a *API) Listen(addr string) error {
	return a.app.Listen(addr)
}

// Shutdown gracefully stops the API.
func (a *API) Shutdown() error {
	return a.app.Shutdown()
}

// withLogging emits one structured access log line per request.
func (a *API) withLogging() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		a.logger.Info("custody: http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)),
		)

		return err
	}
}

func ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}
