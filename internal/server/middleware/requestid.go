package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillsenselab/speechd/internal/logger"
)

// HeaderRequestID is the header request IDs travel in, both directions.
const HeaderRequestID = "X-Request-Id"

// RequestID tags every request with an ID so one upload can be followed from
// the gateway through the request log. A caller-supplied ID is kept so IDs
// survive a proxy hop; otherwise one is generated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(logger.FieldRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestIDFrom returns the current request's ID, or "" when the RequestID
// middleware is not installed.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(logger.FieldRequestID)
}
