package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tutoring-center-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-center-api/pkg/errors"
)

func TestCacheRepositoryWithoutClientIsNoop(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var videos []models.Video
	assert.ErrorIs(t, repo.Get(ctx, "media:videos:FIRST_SECONDARY", &videos), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "media:videos:FIRST_SECONDARY", []models.Video{{ID: "v1"}}, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "media:videos:FIRST_SECONDARY"))
	assert.NoError(t, repo.DeleteByPattern(ctx, "media:*"))
	assert.NoError(t, repo.Close())
}

func TestCacheRepositoryNamespacesKeys(t *testing.T) {
	assert.Equal(t, "tutoring:dashboard:summary", namespaced("dashboard:summary"))
	assert.Equal(t, "tutoring:media:*", namespaced("media:*"))
}

func TestCacheRepositoryPingWithoutClient(t *testing.T) {
	assert.NoError(t, NewCacheRepository(nil, nil).Ping(context.Background()))
}

func TestCacheRepositoryClaimWithoutClientFails(t *testing.T) {
	ok, err := NewCacheRepository(nil, nil).Claim(context.Background(), "payments:reset-claimed:n1", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}
