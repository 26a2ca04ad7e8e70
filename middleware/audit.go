package middleware

import (
	"time"

	"github.com/fateforge/server/audit"
	"github.com/gin-gonic/gin"
)

// Audit records mutating API calls to the audit trail. GET traffic is
// skipped; reads carry no state worth replaying.
func Audit(svc *audit.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == "GET" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		entry := audit.AuditEntry{
			TraceID:    GetTraceID(c),
			SessionID:  c.Param("id"),
			Action:     c.Request.Method + " " + c.FullPath(),
			Response:   map[string]int{"status": c.Writer.Status()},
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		}
		if id := GetAccountID(c); id != 0 {
			entry.AccountID = &id
		}
		if len(c.Errors) > 0 {
			entry.Error = c.Errors.String()
		}
		svc.Log(entry)
	}
}
