package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/etsong/catalogbackend/models"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryProductRepository keeps the catalog in a map behind a mutex. It backs
// tests and credential-free local runs; the purchase path honors the same
// check-and-decrement-as-one-operation contract as the Mongo implementation,
// with the mutex standing in for the document-level atomicity.
type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]*models.Product
}

func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{products: make(map[string]*models.Product)}
}

func (r *MemoryProductRepository) Create(_ context.Context, p *models.Product) error {
	if err := validateNewProduct(p); err != nil {
		return err
	}

	now := time.Now().UTC()
	p.Id = bson.NewObjectID()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Categories == nil {
		p.Categories = []string{}
	}
	if p.Variants == nil {
		p.Variants = []models.Variant{}
	}
	if p.Reviews == nil {
		p.Reviews = []models.Review{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.Id.Hex()] = clone(p)
	return nil
}

func (r *MemoryProductRepository) Search(_ context.Context, f SearchFilter) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]models.Product, 0)
	for _, p := range r.products {
		if f.Category != "" && !contains(p.Categories, f.Category) {
			continue
		}
		if f.SearchText != "" && !textMatch(p, f.SearchText) {
			continue
		}
		matched = append(matched, *clone(p))
	}
	// Stable order for pagination; the real store owns relevance ordering.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Id.Hex() < matched[j].Id.Hex()
	})

	start := (f.Page - 1) * f.Limit
	if start >= len(matched) {
		return []models.Product{}, nil
	}
	end := start + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (r *MemoryProductRepository) GetByID(_ context.Context, id string) (*ProductDetails, error) {
	if _, err := bson.ObjectIDFromHex(id); err != nil {
		return nil, ErrInvalidID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := clone(p)
	avg, count := averageOf(cp.Reviews)
	return &ProductDetails{Product: cp, AvgRating: avg, ReviewsCount: count}, nil
}

func (r *MemoryProductRepository) AddReview(_ context.Context, productID string, review *models.Review) error {
	if _, err := bson.ObjectIDFromHex(productID); err != nil {
		return ErrInvalidID
	}
	if review.Name == "" {
		review.Name = "Anonymous"
	}
	if err := validateReview(review); err != nil {
		return err
	}

	review.Id = bson.NewObjectID()
	review.CreatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return ErrNotFound
	}
	p.Reviews = append(p.Reviews, *review)
	p.UpdatedAt = review.CreatedAt
	return nil
}

func (r *MemoryProductRepository) Purchase(_ context.Context, productID, sku string, qty int) (*models.Product, error) {
	if _, err := bson.ObjectIDFromHex(productID); err != nil {
		return nil, ErrInvalidID
	}
	if qty < 1 {
		return nil, &ValidationError{Field: "qty", Reason: "must be a positive integer"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return nil, ErrInsufficientStock
	}
	for i := range p.Variants {
		if p.Variants[i].SKU != sku {
			continue
		}
		if p.Variants[i].Stock < qty {
			return nil, ErrInsufficientStock
		}
		p.Variants[i].Stock -= qty
		p.UpdatedAt = time.Now().UTC()
		return clone(p), nil
	}
	return nil, ErrInsufficientStock
}

func (r *MemoryProductRepository) AverageRating(_ context.Context, productID string) (*RatingSummary, error) {
	if _, err := bson.ObjectIDFromHex(productID); err != nil {
		return nil, ErrInvalidID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[productID]
	if !ok {
		// Same shape as "no reviews"; callers cannot tell the difference.
		return &RatingSummary{AvgRating: nil, Count: 0}, nil
	}
	avg, count := averageOf(p.Reviews)
	return &RatingSummary{ProductID: p.Id.Hex(), AvgRating: avg, Count: count}, nil
}

func (r *MemoryProductRepository) CategoryStats(_ context.Context) ([]CategoryCount, error) {
	r.mu.RLock()
	counts := make(map[string]int)
	for _, p := range r.products {
		for _, c := range p.Categories {
			counts[c]++
		}
	}
	r.mu.RUnlock()

	stats := make([]CategoryCount, 0, len(counts))
	for c, n := range counts {
		stats = append(stats, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Count > stats[j].Count
	})
	return stats, nil
}

func (r *MemoryProductRepository) AddImageURLs(_ context.Context, productID string, urls []string) (*models.Product, error) {
	if _, err := bson.ObjectIDFromHex(productID); err != nil {
		return nil, ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return nil, ErrNotFound
	}
	p.ImageUrls = append(p.ImageUrls, urls...)
	p.UpdatedAt = time.Now().UTC()
	return clone(p), nil
}

func clone(p *models.Product) *models.Product {
	cp := *p
	cp.Categories = append([]string(nil), p.Categories...)
	cp.Variants = append([]models.Variant(nil), p.Variants...)
	cp.Reviews = append([]models.Review(nil), p.Reviews...)
	cp.ImageUrls = append([]string(nil), p.ImageUrls...)
	return &cp
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func textMatch(p *models.Product, search string) bool {
	s := strings.ToLower(search)
	if strings.Contains(strings.ToLower(p.Name), s) {
		return true
	}
	for _, c := range p.Categories {
		if strings.Contains(strings.ToLower(c), s) {
			return true
		}
	}
	return false
}
