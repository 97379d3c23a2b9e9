package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/modelforge-backend/internal/http/response"
	"github.com/yungbote/modelforge-backend/internal/pkg/ctxutil"
)

const (
	HeaderCompanyID = "X-Company-Id"
	HeaderRequestID = "X-Request-Id"
)

// AttachRequestContext reads the tenant and request id headers into the
// request context. A missing company id means company 0.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := &ctxutil.RequestData{RequestID: strings.TrimSpace(c.GetHeader(HeaderRequestID))}
		if rd.RequestID == "" {
			rd.RequestID = uuid.NewString()
		}
		if raw := strings.TrimSpace(c.GetHeader(HeaderCompanyID)); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id < 0 {
				response.RespondError(c, http.StatusBadRequest, "invalid_company_id", fmt.Errorf("%s: %q is not a company id", HeaderCompanyID, raw))
				return
			}
			rd.CompanyID = id
		}
		c.Header(HeaderRequestID, rd.RequestID)
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}
