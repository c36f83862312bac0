package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const MethodOverrideHeader = "X-HTTP-Method-Override"

// RequestLogger logs every request once it has been served.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request served", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("request served", attrs...)
		default:
			logger.Info("request served", attrs...)
		}
	}
}

// MethodOverride lets clients restricted to GET and POST tunnel PATCH, PUT
// and DELETE through a POST with the X-HTTP-Method-Override header. It must
// wrap the router since routing happens before gin middleware runs.
func MethodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			switch override := strings.ToUpper(strings.TrimSpace(r.Header.Get(MethodOverrideHeader))); override {
			case http.MethodPatch, http.MethodPut, http.MethodDelete:
				r.Method = override
			}
		}
		next.ServeHTTP(w, r)
	})
}
