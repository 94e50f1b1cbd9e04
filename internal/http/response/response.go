package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/decisiontrace-backend/internal/http/middleware"
	"github.com/yungbote/decisiontrace-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError maps err to its HTTP status and writes the error envelope. Internal
// failures are reported with a generic message; the cause stays in the access log.
func RespondError(c *gin.Context, err error) {
	apiErr := apierr.FromError(err)
	if apiErr == nil {
		apiErr = apierr.New(http.StatusInternalServerError, "internal", nil)
	}
	msg := "unknown error"
	if apiErr.Status >= http.StatusInternalServerError && apiErr.Status != http.StatusServiceUnavailable && apiErr.Status != http.StatusGatewayTimeout {
		msg = "internal error"
	} else if apiErr.Err != nil {
		msg = apiErr.Err.Error()
	}
	c.Set(middleware.ErrorCodeKey, apiErr.Code)
	if err != nil {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(apiErr.Status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    apiErr.Code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
