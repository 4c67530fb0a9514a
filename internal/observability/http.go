package observability

import (
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serverTracerName = "synclink"

// Health checks and the operator login callback are not traced.
var untracedPaths = map[string]struct{}{
	"/healthz":              {},
	"/favicon.ico":          {},
	"/auth/github/callback": {},
}

// EchoMiddleware opens a server span for every traced request.
func EchoMiddleware() echo.MiddlewareFunc {
	return otelecho.Middleware(serverTracerName, otelecho.WithSkipper(skipTrace))
}

// EchoSpanEnrichmentMiddleware stores the request id and route on the context
// and tags the span with the integration named by the :provider path param.
func EchoSpanEnrichmentMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			annotate(c)
			err := next(c)
			// The handler may have replaced the request context.
			annotate(c)
			return err
		}
	}
}

func annotate(c echo.Context) {
	ctx := WithRequestMetadata(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID), routeOf(c))
	if provider := strings.TrimSpace(c.Param("provider")); provider != "" {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("synclink.provider", provider))
	}
	c.SetRequest(c.Request().WithContext(ctx))
}

func skipTrace(c echo.Context) bool {
	_, skip := untracedPaths[strings.TrimSpace(c.Request().URL.Path)]
	return skip
}

func routeOf(c echo.Context) string {
	if route := strings.TrimSpace(c.Path()); route != "" {
		return route
	}
	return strings.TrimSpace(c.Request().URL.Path)
}
