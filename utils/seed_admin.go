package utils

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/etsong/catalogbackend/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// SeedAdminUser upserts the admin account named by ADMIN_EMAIL/ADMIN_PASSWORD.
// Returns (false, nil) when the env vars are absent; admin access is optional.
func SeedAdminUser(ctx context.Context, usersCol *mongo.Collection) (bool, error) {
	email := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	pass := os.Getenv("ADMIN_PASSWORD")

	if email == "" || pass == "" {
		return false, nil
	}

	hash, err := HashPassword(pass)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now().UTC()

	// Only insert if it doesn't exist
	filter := bson.M{"email": email}
	update := bson.M{
		"$setOnInsert": bson.M{
			"email":        email,
			"name":         "Admin",
			"passwordHash": hash,
			"role":         models.RoleAdmin,
			"createdAt":    now,
			"updatedAt":    now,
		},
	}

	opts := options.UpdateOne().SetUpsert(true)

	res, err := usersCol.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return false, fmt.Errorf("seed admin upsert failed: %w", err)
	}

	return res.UpsertedCount == 1, nil
}
