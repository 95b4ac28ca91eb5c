package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/etsong/catalogbackend/models"
)

var (
	// ErrInvalidID means the identifier is not a valid ObjectID hex string.
	ErrInvalidID = errors.New("invalid id")
	// ErrNotFound means the identifier is well formed but matches no document.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock covers both a wrong SKU and not enough stock; the
	// conditional update cannot tell the two apart and neither can callers.
	ErrInsufficientStock = errors.New("insufficient stock or invalid SKU")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
)

// ValidationError reports a malformed or missing input field. Handlers map it
// to a 400 response.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// SearchFilter narrows a product listing. Zero values mean "no restriction".
type SearchFilter struct {
	Category   string
	SearchText string
	Page       int
	Limit      int
}

// ProductDetails is the get-by-id payload: the document plus the rating
// figures computed over its embedded reviews.
type ProductDetails struct {
	Product      *models.Product `json:"product"`
	AvgRating    *float64        `json:"avgRating"`
	ReviewsCount int             `json:"reviewsCount"`
}

// RatingSummary mirrors the avg-rating aggregation output. AvgRating is nil
// when the product has no reviews, and also when the product does not exist;
// the two cases are deliberately indistinguishable.
type RatingSummary struct {
	ProductID string   `json:"_id,omitempty"`
	AvgRating *float64 `json:"avgRating"`
	Count     int      `json:"count"`
}

// CategoryCount is one row of the category-stats report. The category label
// is serialized as _id, matching the aggregation's group key.
type CategoryCount struct {
	Category string `bson:"_id" json:"_id"`
	Count    int    `bson:"count" json:"count"`
}

// ProductRepository is the typed access layer over the product store. All
// mutations stamp updatedAt; Purchase is the single atomic conditional update.
type ProductRepository interface {
	Create(ctx context.Context, p *models.Product) error
	Search(ctx context.Context, filter SearchFilter) ([]models.Product, error)
	GetByID(ctx context.Context, id string) (*ProductDetails, error)
	AddReview(ctx context.Context, productID string, review *models.Review) error
	// Purchase decrements stock for the variant with the given SKU only if,
	// at the instant of update, that variant exists on the product and holds
	// at least qty units. Check and decrement are one store operation; on a
	// miss it returns ErrInsufficientStock and leaves stock untouched.
	Purchase(ctx context.Context, productID, sku string, qty int) (*models.Product, error)
	AverageRating(ctx context.Context, productID string) (*RatingSummary, error)
	CategoryStats(ctx context.Context) ([]CategoryCount, error)
	AddImageURLs(ctx context.Context, productID string, urls []string) (*models.Product, error)
}

// UserRepository persists review authors and admin accounts.
type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

func validateNewProduct(p *models.Product) error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	for i, v := range p.Variants {
		if v.SKU == "" {
			return &ValidationError{Field: fmt.Sprintf("variants[%d].sku", i), Reason: "required"}
		}
		if v.Price < 0 {
			return &ValidationError{Field: fmt.Sprintf("variants[%d].price", i), Reason: "must not be negative"}
		}
		if v.Stock < 0 {
			return &ValidationError{Field: fmt.Sprintf("variants[%d].stock", i), Reason: "must not be negative"}
		}
	}
	return nil
}

func validateReview(r *models.Review) error {
	if r.Rating < 1 || r.Rating > 5 {
		return &ValidationError{Field: "rating", Reason: "must be between 1 and 5"}
	}
	return nil
}

func averageOf(reviews []models.Review) (*float64, int) {
	if len(reviews) == 0 {
		return nil, 0
	}
	var sum int
	for _, r := range reviews {
		sum += r.Rating
	}
	avg := float64(sum) / float64(len(reviews))
	return &avg, len(reviews)
}
