package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/etsong/catalogbackend/models"
	"github.com/etsong/catalogbackend/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoTestRepo connects to the instance named by MONGODB_TEST_URI and hands
// back a repository over a collection unique to the test. Skips when the env
// var is unset so the suite stays runnable without a server.
func mongoTestRepo(t *testing.T) *repository.MongoProductRepository {
	t.Helper()

	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})

	col := client.Database("catalog_test").Collection(fmt.Sprintf("products_%s_%d", t.Name(), time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = col.Drop(context.Background())
	})

	return repository.NewMongoProductRepository(col)
}

func TestMongoPurchaseMatchesSkuAndStockOnSameVariant(t *testing.T) {
	repo := mongoTestRepo(t)
	ctx := context.Background()

	p := &models.Product{
		Name: "Tee",
		Variants: []models.Variant{
			{SKU: "A", Price: 10, Stock: 0},
			{SKU: "B", Price: 12, Stock: 5},
		},
	}
	require.NoError(t, repo.Create(ctx, p))

	// A exists but is out of stock; B's stock must not satisfy A's purchase.
	_, err := repo.Purchase(ctx, p.Id.Hex(), "A", 1)
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)

	details, err := repo.GetByID(ctx, p.Id.Hex())
	require.NoError(t, err)
	assert.Equal(t, 0, details.Product.Variants[0].Stock)
	assert.Equal(t, 5, details.Product.Variants[1].Stock)

	// B itself is still purchasable, and the decrement lands on B alone.
	got, err := repo.Purchase(ctx, p.Id.Hex(), "B", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Variants[0].Stock)
	assert.Equal(t, 3, got.Variants[1].Stock)
}

func TestMongoPurchaseScenario(t *testing.T) {
	repo := mongoTestRepo(t)
	ctx := context.Background()

	p := &models.Product{
		Name:     "Tee",
		Variants: []models.Variant{{SKU: "T1", Price: 10, Stock: 2}},
	}
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.Purchase(ctx, p.Id.Hex(), "T1", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Variants[0].Stock)

	_, err = repo.Purchase(ctx, p.Id.Hex(), "T1", 1)
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)
}
