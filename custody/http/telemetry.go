package http

import (
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies spans emitted by this package.
const tracerName = "github.com/LerianStudio/lib-custody/custody/http"

// withTelemetry opens one server span per request and propagates it through
// the user context, so handlers and the vault run under the request trace.
func (a *API) withTelemetry() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tracer := otel.Tracer(tracerName)

		ctx, span := tracer.Start(c.UserContext(), c.Method()+" "+c.Path(), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", c.Method()),
			attribute.String("http.route", c.Route().Path),
			attribute.String("http.host", c.Hostname()),
		)

		c.SetUserContext(ctx)

		err := c.Next()

		span.SetAttributes(
			attribute.Int("http.status_code", c.Response().StatusCode()),
		)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	}
}
