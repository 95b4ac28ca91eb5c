package controllers_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/etsong/catalogbackend/repository"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())

	w := doJSON(t, r, http.MethodPost, "/auth/register", gin.H{
		"email":    "dana@example.com",
		"name":     "Dana",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// duplicate email
	w = doJSON(t, r, http.MethodPost, "/auth/register", gin.H{
		"email":    "dana@example.com",
		"name":     "Dana",
		"password": "password123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/auth/login", gin.H{
		"email":    "dana@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)

	w = doJSON(t, r, http.MethodPost, "/auth/login", gin.H{
		"email":    "dana@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())

	w := doJSON(t, r, http.MethodPost, "/auth/register", gin.H{
		"email":    "not-an-email",
		"name":     "Dana",
		"password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/auth/register", gin.H{
		"email":    "dana@example.com",
		"name":     "Dana",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewAttributedToSignedInUser(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	users := repository.NewMemoryUserRepository()
	r := setupRouter(repository.NewMemoryProductRepository(), users)

	w := doJSON(t, r, http.MethodPost, "/auth/register", gin.H{
		"email":    "dana@example.com",
		"name":     "Dana",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/auth/login", gin.H{
		"email":    "dana@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))

	p := createTee(t, r, 2)

	w = doJSONWithToken(t, r, http.MethodPost, "/products/"+p.Id.Hex()+"/reviews", gin.H{"rating": 5}, login.AccessToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Review struct {
			User *string `json:"user"`
			Name string  `json:"name"`
		} `json:"review"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Review.User)
	assert.Equal(t, "Dana", resp.Review.Name)
}
