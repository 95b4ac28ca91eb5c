package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/etsong/catalogbackend/dto"
	"github.com/etsong/catalogbackend/models"
	"github.com/etsong/catalogbackend/repository"
	"github.com/etsong/catalogbackend/utils"
	"github.com/gin-gonic/gin"
)

func Register(users repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var body dto.RegisterDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		hash, err := utils.HashPassword(body.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
			return
		}

		user := models.User{
			Email:        strings.ToLower(strings.TrimSpace(body.Email)),
			Name:         strings.TrimSpace(body.Name),
			PasswordHash: hash,
			Role:         models.RoleCustomer,
		}

		if err := users.Create(ctx, &user); err != nil {
			if errors.Is(err, repository.ErrEmailTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "email already registered", "field": "email"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"id": user.ID})
	}
}

func Login(users repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var body dto.LoginDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		email := strings.ToLower(strings.TrimSpace(body.Email))
		user, err := users.FindByEmail(ctx, email)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		if err := utils.CheckPassword(user.PasswordHash, body.Password); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		accessToken, err := utils.GenerateAccessToken(user.ID.Hex(), user.Email, string(user.Role), utils.AccessTTL())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate access token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"accessToken": accessToken})
	}
}
