package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalmiddleware "github.com/campusflow/lms-api/internal/middleware"
	"github.com/campusflow/lms-api/internal/models"
	"github.com/campusflow/lms-api/internal/service"
)

type userRepoStub struct {
	users map[string]*models.User
}

func (r *userRepoStub) List(_ context.Context, _ models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (r *userRepoStub) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (r *userRepoStub) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *userRepoStub) Create(_ context.Context, user *models.User) error {
	user.ID = "u-new"
	r.users[user.ID] = user
	return nil
}

func (r *userRepoStub) SetActive(_ context.Context, id string, active bool) error {
	u, ok := r.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Active = active
	return nil
}

func buildUserRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: c.GetHeader("X-Test-User"),
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	repo := &userRepoStub{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "ada@example.com", FullName: "Ada Wong", Role: models.RoleStudent, Active: true},
	}}
	userHandler := NewUserHandler(service.NewUserService(repo, nil, nil))
	router.GET("/users", internalmiddleware.RBAC("ADMIN"), userHandler.List)
	router.GET("/users/:id", internalmiddleware.RBAC("ADMIN", "SELF"), userHandler.Get)
	router.POST("/users", internalmiddleware.RBAC("ADMIN"), userHandler.Create)
	return router
}

func TestUserRoutes(t *testing.T) {
	router := buildUserRouter()

	t.Run("list forbidden for teachers", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/users", nil)
		req.Header.Set("X-Test-Role", string(models.RoleTeacher))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("students may read their own account", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/users/u1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		req.Header.Set("X-Test-User", "u1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"ada@example.com"`)
	})

	t.Run("students may not read other accounts", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/users/u1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		req.Header.Set("X-Test-User", "u2")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("create validates the payload", func(t *testing.T) {
		body := bytes.NewBufferString(`{"email":"new@example.com"}`)
		req, _ := http.NewRequest(http.MethodPost, "/users", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("create succeeds for admins", func(t *testing.T) {
		body := bytes.NewBufferString(`{"email":"new@example.com","full_name":"New Person","password":"long enough","role":"TEACHER"}`)
		req, _ := http.NewRequest(http.MethodPost, "/users", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.NotContains(t, resp.Body.String(), "password_hash")
	})
}
