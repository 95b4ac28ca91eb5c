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
	"go.mongodb.org/mongo-driver/v2/bson"
)

func CreateProduct(repo repository.ProductRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var body dto.CreateProductDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		variants := make([]models.Variant, 0, len(body.Variants))
		for _, v := range body.Variants {
			variants = append(variants, models.Variant{
				SKU:   v.SKU,
				Color: v.Color,
				Size:  v.Size,
				Price: *v.Price,
				Stock: v.Stock,
			})
		}

		product := models.Product{
			Name:        strings.TrimSpace(body.Name),
			Slug:        utils.GenerateSlug(body.Name),
			Description: body.Description,
			Categories:  body.Categories,
			Variants:    variants,
		}

		if err := repo.Create(ctx, &product); err != nil {
			writeRepoError(c, err)
			return
		}

		c.JSON(http.StatusCreated, product)
	}
}

func GetProducts(repo repository.ProductRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		page := utils.ParseIntDefault(c.Query("page"), 1)
		limit := utils.ParseIntDefault(c.Query("limit"), utils.DefaultQueryLimit())
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = utils.DefaultQueryLimit()
		}

		filter := repository.SearchFilter{
			Category:   strings.TrimSpace(c.Query("category")),
			SearchText: strings.TrimSpace(c.Query("search")),
			Page:       page,
			Limit:      limit,
		}

		products, err := repo.Search(ctx, filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, products)
	}
}

func GetProduct(repo repository.ProductRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		details, err := repo.GetByID(ctx, c.Param("id"))
		if err != nil {
			writeRepoError(c, err)
			return
		}

		c.JSON(http.StatusOK, details)
	}
}

func AddReview(repo repository.ProductRepository, users repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var body dto.AddReviewDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		review := models.Review{
			Name:    strings.TrimSpace(body.Name),
			Rating:  body.Rating,
			Comment: body.Comment,
		}

		// A valid bearer token wins over a user id in the body.
		userHex := body.User
		if v, ok := c.Get("userID"); ok {
			userHex = v.(string)
		}
		if userHex != "" {
			uid, err := bson.ObjectIDFromHex(userHex)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
				return
			}
			review.User = &uid
			if review.Name == "" && users != nil {
				if u, err := users.FindByID(ctx, userHex); err == nil {
					review.Name = u.Name
				}
			}
		}

		if err := repo.AddReview(ctx, c.Param("id"), &review); err != nil {
			writeRepoError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"message": "Review added", "review": review})
	}
}

func Purchase(repo repository.ProductRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var body dto.PurchaseDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		qty := 1
		if body.Qty != nil {
			qty = *body.Qty
		}

		product, err := repo.Purchase(ctx, c.Param("id"), body.SKU, qty)
		if err != nil {
			writeRepoError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Purchase successful", "product": product})
	}
}

func GetAvgRating(repo repository.ProductRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		summary, err := repo.AverageRating(ctx, c.Param("id"))
		if err != nil {
			writeRepoError(c, err)
			return
		}

		c.JSON(http.StatusOK, summary)
	}
}

func GetCategoryStats(repo repository.ProductRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		stats, err := repo.CategoryStats(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, stats)
	}
}

// writeRepoError maps the repository error taxonomy onto response codes:
// malformed input 400, unknown document 404, failed purchase precondition
// 400, anything else 500.
func writeRepoError(c *gin.Context, err error) {
	var ve *repository.ValidationError
	switch {
	case errors.Is(err, repository.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, repository.ErrInsufficientStock):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient stock or invalid SKU"})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
