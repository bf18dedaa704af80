package webhook

import (
	"bytes"
	"io"
	"net/http"

	"billing_reminders_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const (
	maxBodyBytes = 1 << 20
	rawBodyKey   = "webhookRawBody"
)

// SignatureRequired verifies the delivery signature before the handler sees
// the payload. The raw body is kept on the context so the handler decodes the
// exact bytes that were signed. Without a configured secret every call is 503.
func SignatureRequired(v *Verifier, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "webhook not configured"})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}

		if err := v.Verify(c.Request.Header, body); err != nil {
			log.AuthEvent("email_webhook", c.ClientIP(), false, err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		c.Set(rawBodyKey, body)
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
