package testutil

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultTestMongoURI is used when MAISHORAS_TEST_MONGO_URI is unset.
const DefaultTestMongoURI = "mongodb://localhost:27017"

var (
	clientOnce sync.Once
	client     *mongo.Client
	clientErr  error
)

func sharedClient() (*mongo.Client, error) {
	clientOnce.Do(func() {
		uri := os.Getenv("MAISHORAS_TEST_MONGO_URI")
		if uri == "" {
			uri = DefaultTestMongoURI
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		client, clientErr = mongo.Connect(ctx, options.Client().
			ApplyURI(uri).
			SetServerSelectionTimeout(2*time.Second))
		if clientErr != nil {
			return
		}
		clientErr = client.Ping(ctx, readpref.Primary())
	})
	return client, clientErr
}

// TestClient returns the shared client, skipping the test when MongoDB is
// not reachable.
func TestClient(t *testing.T) *mongo.Client {
	t.Helper()
	c, err := sharedClient()
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	return c
}

// SetupTestDB returns a fresh, uniquely named database that is dropped when
// the test ends. The test is skipped when MongoDB is not reachable.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()
	c := TestClient(t)

	name := "maishoras_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	db := c.Database(name)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
	})
	return db
}

// TestContext returns a context suitable for a single test's DB calls.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
