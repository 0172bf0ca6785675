package middleware

import (
	"net/http"
	"net/http/httptest"
	"school_dashboard_backend/internal/config"
	"school_dashboard_backend/internal/model"
	"school_dashboard_backend/internal/util"
	"school_dashboard_backend/pkg/logger"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRouter(roles ...model.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger.Log = zap.NewNop()
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret"}}

	r := gin.New()
	handlers := []gin.HandlerFunc{AuthMiddleware(cfg)}
	if len(roles) > 0 {
		handlers = append(handlers, RoleMiddleware(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		util.Success(c, util.GetUserFromContext(c).ExamineeID())
	})
	r.GET("/ping", handlers...)
	return r
}

func tokenFor(t *testing.T, role model.UserRole) string {
	user := &model.User{Email: "u@example.com", Role: role}
	user.ID = 7
	token, err := util.GenerateJWT(user, "test-secret", time.Hour)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, model.Student))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"data":"7"`)
	})

	t.Run("query token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping?token="+tokenFor(t, model.Student), nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRoleMiddleware(t *testing.T) {
	r := newRouter(model.Teacher)

	cases := []struct {
		role model.UserRole
		want int
	}{
		{model.Student, http.StatusForbidden},
		{model.Teacher, http.StatusOK},
		{model.Admin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set("Authorization", "Bearer "+tokenFor(t, tc.role))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
