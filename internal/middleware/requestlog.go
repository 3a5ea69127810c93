package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/theatre-seat-reservation/internal/logger"
)

// RequestLogger assigns every request an id (the incoming X-Request-ID or
// a new UUID), puts a logrus entry carrying it into the request context and
// logs one line when the request completes.
func RequestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			entry := log.WithField("request_id", id)
			ctx := logger.ToContext(logger.ContextWithCorrelationID(req.Context(), id), entry)
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := logrus.Fields{
				"method":  req.Method,
				"path":    req.URL.Path,
				"route":   c.Path(),
				"status":  c.Response().Status,
				"latency": time.Since(start).String(),
				"ip":      c.RealIP(),
			}
			if uid, ok := UserID(c); ok {
				fields["user_id"] = uid
			}
			e := entry.WithFields(fields)
			switch {
			case err != nil || c.Response().Status >= 500:
				e.WithError(err).Error("request failed")
			case c.Response().Status >= 400:
				e.Warn("request rejected")
			default:
				e.Info("request completed")
			}
			return nil
		}
	}
}
