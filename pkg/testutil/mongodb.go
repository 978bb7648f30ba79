package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

// MongoDBImage is the server image integration tests run against.
const MongoDBImage = "mongo:7"

// StartMongoDB starts a throwaway MongoDB container and returns its connection string.
// The test is skipped when integration tests are disabled or Docker is unavailable;
// the container is terminated on cleanup.
func StartMongoDB(t *testing.T) string {
	t.Helper()
	RequireIntegration(t)
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := mongodb.Run(ctx, MongoDBImage)
	if err != nil {
		t.Fatalf("failed to start MongoDB container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	return url
}
