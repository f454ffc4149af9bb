package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"leitura_app_echo/internal/models"
)

// RequireAdmin returns a middleware that gates a route group to users in the
// admin allow-list. It must run after RequireAuth; the allow-list check
// happens before the handler touches any other data.
func RequireAdmin(db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, ok := c.Get("userUID").(string)
			if !ok || uid == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			var admin models.AdminUser
			err := db.Where("user_id = ?", uid).First(&admin).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return echo.NewHTTPError(http.StatusForbidden, "admin access required")
			}
			if err != nil {
				return err
			}

			return next(c)
		}
	}
}
