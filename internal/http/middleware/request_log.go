package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/modelforge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

// RequestLogger logs one line per API request. Health probes are not
// logged unless they fail.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	log = log.With("component", "HTTP")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		if route == "/healthz" && status < 400 {
			return
		}

		kv := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"latency", time.Since(start).String(),
		}
		ctx := c.Request.Context()
		if rd := ctxutil.GetRequestData(ctx); rd != nil {
			kv = append(kv, "request_id", rd.RequestID, "company_id", rd.CompanyID)
		}
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			kv = append(kv, "trace_id", sc.TraceID().String())
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "errors", c.Errors.String())
		}

		if status >= 500 {
			log.Error("Request failed", kv...)
			return
		}
		log.Debug("Request served", kv...)
	}
}
