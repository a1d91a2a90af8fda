package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	appErrors "github.com/campusops/attendance-engine/pkg/errors"
	"github.com/campusops/attendance-engine/pkg/response"
)

// DeviceKeyHeader carries the shared key biometric devices authenticate with.
const DeviceKeyHeader = "X-Device-Key"

// DeviceKey protects the device sync endpoint with a shared API key.
// Biometric terminals cannot carry per-user JWTs, so they authenticate as a
// fleet with one rotatable key.
func DeviceKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "device ingestion is not configured"))
			c.Abort()
			return
		}
		provided := c.GetHeader(DeviceKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid device key"))
			c.Abort()
			return
		}
		c.Next()
	}
}
