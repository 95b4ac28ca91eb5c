package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/etsong/catalogbackend/controllers"
	"github.com/etsong/catalogbackend/middleware"
	"github.com/etsong/catalogbackend/models"
	"github.com/etsong/catalogbackend/repository"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(products repository.ProductRepository, users repository.UserRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.POST("/auth/register", controllers.Register(users))
	r.POST("/auth/login", controllers.Login(users))

	r.POST("/products", controllers.CreateProduct(products))
	r.GET("/products", controllers.GetProducts(products))
	r.GET("/products/analytics/category-stats", controllers.GetCategoryStats(products))
	r.GET("/products/:id", controllers.GetProduct(products))
	r.GET("/products/:id/avg-rating", controllers.GetAvgRating(products))
	r.POST("/products/:id/reviews", middleware.OptionalAuth(), controllers.AddReview(products, users))
	r.POST("/products/:id/purchase", controllers.Purchase(products))

	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doJSONWithToken(t *testing.T, r *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createTee(t *testing.T, r *gin.Engine, stock int) models.Product {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/products", gin.H{
		"name":       "Tee",
		"categories": []string{"Shirts"},
		"variants":   []gin.H{{"sku": "T1", "price": 10, "stock": stock}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p models.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestCreateProduct(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())

	p := createTee(t, r, 2)
	assert.False(t, p.Id.IsZero())
	assert.Equal(t, "tee", p.Slug)
	assert.False(t, p.CreatedAt.IsZero())
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
}

func TestCreateProductMissingPrice(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())

	w := doJSON(t, r, http.MethodPost, "/products", gin.H{
		"name":     "Tee",
		"variants": []gin.H{{"sku": "T1", "stock": 2}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestListProducts(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())
	createTee(t, r, 2)

	w := doJSON(t, r, http.MethodGet, "/products?category=Shirts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var products []models.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &products))
	assert.Len(t, products, 1)

	w = doJSON(t, r, http.MethodGet, "/products?category=Hats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &products))
	assert.Empty(t, products)
}

func TestGetProductInvalidID(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())

	w := doJSON(t, r, http.MethodGet, "/products/not-a-hex-id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid id")
}

func TestGetProductNotFound(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())

	w := doJSON(t, r, http.MethodGet, "/products/64b0c8f2a2b3c4d5e6f70809", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetProductDetails(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())
	p := createTee(t, r, 2)

	w := doJSON(t, r, http.MethodGet, "/products/"+p.Id.Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var details struct {
		Product      models.Product `json:"product"`
		AvgRating    *float64       `json:"avgRating"`
		ReviewsCount int            `json:"reviewsCount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	assert.Equal(t, p.Id, details.Product.Id)
	assert.Nil(t, details.AvgRating)
	assert.Equal(t, 0, details.ReviewsCount)
}

func TestAddReviewAndAverage(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())
	p := createTee(t, r, 2)

	w := doJSON(t, r, http.MethodPost, "/products/"+p.Id.Hex()+"/reviews", gin.H{"rating": 5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Review added")
	assert.Contains(t, w.Body.String(), "Anonymous")

	w = doJSON(t, r, http.MethodPost, "/products/"+p.Id.Hex()+"/reviews", gin.H{"rating": 3, "name": "Dana"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodGet, "/products/"+p.Id.Hex()+"/avg-rating", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summary struct {
		AvgRating *float64 `json:"avgRating"`
		Count     int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	require.NotNil(t, summary.AvgRating)
	assert.InDelta(t, 4.0, *summary.AvgRating, 1e-9)
	assert.Equal(t, 2, summary.Count)
}

func TestAddReviewRatingOutOfRange(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())
	p := createTee(t, r, 2)

	for _, rating := range []int{0, 6} {
		w := doJSON(t, r, http.MethodPost, "/products/"+p.Id.Hex()+"/reviews", gin.H{"rating": rating})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestAddReviewUnknownProduct(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())

	w := doJSON(t, r, http.MethodPost, "/products/64b0c8f2a2b3c4d5e6f70809/reviews", gin.H{"rating": 5})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPurchaseFlow(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())
	p := createTee(t, r, 2)

	w := doJSON(t, r, http.MethodPost, "/products/"+p.Id.Hex()+"/purchase", gin.H{"sku": "T1", "qty": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Purchase successful")

	var resp struct {
		Product models.Product `json:"product"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Product.Variants[0].Stock)

	w = doJSON(t, r, http.MethodPost, "/products/"+p.Id.Hex()+"/purchase", gin.H{"sku": "T1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Insufficient stock or invalid SKU")
}

func TestPurchaseDefaultsQtyToOne(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())
	p := createTee(t, r, 2)

	w := doJSON(t, r, http.MethodPost, "/products/"+p.Id.Hex()+"/purchase", gin.H{"sku": "T1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Product models.Product `json:"product"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Product.Variants[0].Stock)
}

func TestPurchaseRejectsNonPositiveQty(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())
	p := createTee(t, r, 2)

	w := doJSON(t, r, http.MethodPost, "/products/"+p.Id.Hex()+"/purchase", gin.H{"sku": "T1", "qty": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAvgRatingUnknownProduct(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())

	w := doJSON(t, r, http.MethodGet, "/products/64b0c8f2a2b3c4d5e6f70809/avg-rating", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"avgRating": null, "count": 0}`, w.Body.String())
}

func TestCategoryStats(t *testing.T) {
	r := setupRouter(repository.NewMemoryProductRepository(), repository.NewMemoryUserRepository())

	for _, categories := range [][]string{
		{"Shirts"},
		{"Shirts", "Sale"},
		{"Pants"},
	} {
		w := doJSON(t, r, http.MethodPost, "/products", gin.H{"name": "P", "categories": categories})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, r, http.MethodGet, "/products/analytics/category-stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats []repository.CategoryCount
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Len(t, stats, 3)
	assert.Equal(t, "Shirts", stats[0].Category)
	assert.Equal(t, 2, stats[0].Count)
}

func TestConcurrentPurchaseRequests(t *testing.T) {
	products := repository.NewMemoryProductRepository()
	r := setupRouter(products, repository.NewMemoryUserRepository())

	const stock = 3
	const buyers = 10
	p := createTee(t, r, stock)

	results := make(chan int, buyers)
	for i := 0; i < buyers; i++ {
		go func() {
			w := doJSON(t, r, http.MethodPost, "/products/"+p.Id.Hex()+"/purchase", gin.H{"sku": "T1", "qty": 1})
			results <- w.Code
		}()
	}

	successes := 0
	for i := 0; i < buyers; i++ {
		if <-results == http.StatusOK {
			successes++
		}
	}
	assert.Equal(t, stock, successes)

	details, err := products.GetByID(context.Background(), p.Id.Hex())
	require.NoError(t, err)
	assert.Equal(t, 0, details.Product.Variants[0].Stock)
}
