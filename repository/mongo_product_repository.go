package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/etsong/catalogbackend/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoProductRepository stores products as single documents; every embedded
// write goes through one update so the document stays the atomicity unit.
type MongoProductRepository struct {
	col *mongo.Collection
}

func NewMongoProductRepository(col *mongo.Collection) *MongoProductRepository {
	return &MongoProductRepository{col: col}
}

// EnsureIndexes creates the text index backing search. Safe to call on every
// startup; Mongo treats it as a no-op when the index exists.
func (r *MongoProductRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "name", Value: "text"},
			{Key: "categories", Value: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("create product indexes: %w", err)
	}
	return nil
}

func (r *MongoProductRepository) Create(ctx context.Context, p *models.Product) error {
	if err := validateNewProduct(p); err != nil {
		return err
	}

	now := time.Now().UTC()
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

	res, err := r.col.InsertOne(ctx, p)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	p.Id = res.InsertedID.(bson.ObjectID)
	return nil
}

func (r *MongoProductRepository) Search(ctx context.Context, f SearchFilter) ([]models.Product, error) {
	filter := bson.M{}
	if f.Category != "" {
		filter["categories"] = f.Category
	}
	if f.SearchText != "" {
		filter["$text"] = bson.M{"$search": f.SearchText}
	}

	skip := int64((f.Page - 1) * f.Limit)
	opts := options.Find().
		SetSkip(skip).
		SetLimit(int64(f.Limit))

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer cursor.Close(ctx)

	products := make([]models.Product, 0)
	for cursor.Next(ctx) {
		var p models.Product
		if err := cursor.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		products = append(products, p)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (r *MongoProductRepository) GetByID(ctx context.Context, id string) (*ProductDetails, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	var p models.Product
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find product: %w", err)
	}

	avg, count := averageOf(p.Reviews)
	return &ProductDetails{Product: &p, AvgRating: avg, ReviewsCount: count}, nil
}

func (r *MongoProductRepository) AddReview(ctx context.Context, productID string, review *models.Review) error {
	oid, err := bson.ObjectIDFromHex(productID)
	if err != nil {
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

	res, err := r.col.UpdateByID(ctx, oid, bson.M{
		"$push": bson.M{"reviews": review},
		"$set":  bson.M{"updatedAt": review.CreatedAt},
	})
	if err != nil {
		return fmt.Errorf("push review: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoProductRepository) Purchase(ctx context.Context, productID, sku string, qty int) (*models.Product, error) {
	oid, err := bson.ObjectIDFromHex(productID)
	if err != nil {
		return nil, ErrInvalidID
	}
	if qty < 1 {
		return nil, &ValidationError{Field: "qty", Reason: "must be a positive integer"}
	}

	// Check and decrement in one conditional update. $elemMatch requires one
	// variant to carry the sku AND the stock; the positional $inc then binds
	// to that same variant. Separate variants.sku / variants.stock conditions
	// would be allowed to match different array elements. A miss leaves the
	// document untouched.
	filter := bson.M{
		"_id": oid,
		"variants": bson.M{"$elemMatch": bson.M{
			"sku":   sku,
			"stock": bson.M{"$gte": qty},
		}},
	}
	update := bson.M{
		"$inc": bson.M{"variants.$.stock": -qty},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p models.Product
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInsufficientStock
		}
		return nil, fmt.Errorf("purchase update: %w", err)
	}
	return &p, nil
}

func (r *MongoProductRepository) AverageRating(ctx context.Context, productID string) (*RatingSummary, error) {
	oid, err := bson.ObjectIDFromHex(productID)
	if err != nil {
		return nil, ErrInvalidID
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "_id", Value: oid}}}},
		bson.D{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$reviews"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id"},
			{Key: "avgRating", Value: bson.D{{Key: "$avg", Value: "$reviews.rating"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{
					bson.D{{Key: "$ifNull", Value: bson.A{"$reviews", false}}}, 1, 0,
				}},
			}}}},
		}}},
	}

	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("avg-rating aggregate: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID        bson.ObjectID `bson:"_id"`
		AvgRating *float64      `bson:"avgRating"`
		Count     int           `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode avg-rating: %w", err)
	}
	// An unknown product and a product with no reviews look the same here.
	if len(rows) == 0 {
		return &RatingSummary{AvgRating: nil, Count: 0}, nil
	}
	return &RatingSummary{
		ProductID: rows[0].ID.Hex(),
		AvgRating: rows[0].AvgRating,
		Count:     rows[0].Count,
	}, nil
}

func (r *MongoProductRepository) CategoryStats(ctx context.Context) ([]CategoryCount, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$unwind", Value: "$categories"}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$categories"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
	}

	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("category-stats aggregate: %w", err)
	}
	defer cursor.Close(ctx)

	stats := make([]CategoryCount, 0)
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, fmt.Errorf("decode category-stats: %w", err)
	}
	return stats, nil
}

func (r *MongoProductRepository) AddImageURLs(ctx context.Context, productID string, urls []string) (*models.Product, error) {
	oid, err := bson.ObjectIDFromHex(productID)
	if err != nil {
		return nil, ErrInvalidID
	}

	update := bson.M{
		"$push": bson.M{"imageUrls": bson.M{"$each": urls}},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var p models.Product
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("push image urls: %w", err)
	}
	return &p, nil
}
