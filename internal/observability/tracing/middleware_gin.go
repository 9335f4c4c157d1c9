package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/retaillens/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// queryAttributes are the read API filters copied onto request spans. Country
// is kept because it is a dimension value, not a customer identifier.
var queryAttributes = []string{"start", "end", "granularity", "sort_by", "limit", "country"}

// GinMiddleware opens a server span per request. The span is named after the
// matched route so all /api/kpis calls aggregate together.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("retaillens/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		method := strings.ToUpper(c.Request.Method)
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		attrs := []attribute.KeyValue{attribute.String("http.method", method)}
		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			attrs = append(attrs, attribute.String("request_id", requestID))
		}
		query := c.Request.URL.Query()
		for _, key := range queryAttributes {
			if value := strings.TrimSpace(query.Get(key)); value != "" {
				attrs = append(attrs, attribute.String("retaillens.query."+key, value))
			}
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		attrs = append(attrs,
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status < http.StatusInternalServerError {
			return
		}
		if last := c.Errors.Last(); last != nil {
			if safeErr := SafeError(last.Err); safeErr != nil {
				span.RecordError(safeErr)
			}
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
