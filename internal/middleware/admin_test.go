package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leitura_app_echo/internal/models"
)

func newMiddlewareTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.AdminUser{}))
	return db
}

func callAdminGate(db *gorm.DB, uid string) (error, bool) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/reconcile", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if uid != "" {
		c.Set("userUID", uid)
	}

	reached := false
	handler := RequireAdmin(db)(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})
	return handler(c), reached
}

func TestRequireAdminWithoutAuthIs401(t *testing.T) {
	db := newMiddlewareTestDB(t)

	err, reached := callAdminGate(db, "")
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
	assert.False(t, reached)
}

func TestRequireAdminRejectsNonAdmin(t *testing.T) {
	db := newMiddlewareTestDB(t)

	err, reached := callAdminGate(db, "regular-user")
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, he.Code)
	assert.False(t, reached)
}

func TestRequireAdminAllowsListedUser(t *testing.T) {
	db := newMiddlewareTestDB(t)
	require.NoError(t, db.Create(&models.AdminUser{UserID: "the-admin"}).Error)

	err, reached := callAdminGate(db, "the-admin")
	require.NoError(t, err)
	assert.True(t, reached)
}
