package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"iganalyzer/pkg/models"
)

func TestCompute(t *testing.T) {
	profile := &models.Profile{Username: "alice", Followers: 1000}
	posts := []models.Post{
		{Likes: 10, Comments: 1, EngagementRate: 1.1, MediaType: models.MediaImage, Order: 1},
		{Likes: 20, Comments: 2, EngagementRate: 2.2, MediaType: models.MediaImage, Order: 2},
		{Likes: 30, Comments: 3, EngagementRate: 3.3, IsVideo: true, MediaType: models.MediaVideo, Order: 3},
	}

	got := Compute(profile, posts)
	assert.Equal(t, models.Analytics{
		TotalPostsAnalyzed:    3,
		AverageLikes:          20.0,
		AverageComments:       2.0,
		AverageEngagementRate: 2.2,
		TotalEngagement:       66,
		VideoPosts:            1,
		ImagePosts:            2,
		EngagementPerFollower: 6.6,
	}, got)
}

func TestComputeAveragesStoredRates(t *testing.T) {
	// the average is taken over the rounded per-post rates, not recomputed
	profile := &models.Profile{Followers: 3000}
	posts := []models.Post{
		{Likes: 1, EngagementRate: 0.5, MediaType: models.MediaImage},
		{Likes: 2, EngagementRate: 1.5, MediaType: models.MediaImage},
	}

	got := Compute(profile, posts)
	assert.Equal(t, 1.0, got.AverageEngagementRate)
	assert.Equal(t, 0.1, got.EngagementPerFollower)
}

func TestComputeSkipsPlaceholders(t *testing.T) {
	profile := &models.Profile{Followers: 1000}
	posts := []models.Post{
		{Likes: 10, Comments: 1, MediaType: models.MediaImage},
		{Likes: 500, Comments: 50, MediaType: models.MediaError},
		{Likes: 30, Comments: 3, MediaType: models.MediaNone},
		{Likes: 20, Comments: 2, MediaType: models.MediaImageError},
	}

	got := Compute(profile, posts)
	assert.Equal(t, 4, got.TotalPostsAnalyzed)
	assert.Equal(t, 15.0, got.AverageLikes)
	assert.Equal(t, 1.5, got.AverageComments)
	assert.Equal(t, 33, got.TotalEngagement)
	assert.Equal(t, 2, got.ImagePosts)
	assert.Equal(t, 0, got.VideoPosts)
}

func TestComputeNoEligiblePosts(t *testing.T) {
	posts := []models.Post{{MediaType: models.MediaError}, {MediaType: models.MediaError}}
	got := Compute(&models.Profile{Followers: 10}, posts)
	assert.Equal(t, models.Analytics{TotalPostsAnalyzed: 2}, got)

	assert.Equal(t, models.Analytics{}, Compute(nil, nil))
}

func TestComputeZeroFollowers(t *testing.T) {
	posts := []models.Post{{Likes: 7, Comments: 3, MediaType: models.MediaImage}}
	got := Compute(&models.Profile{Followers: 0}, posts)
	assert.Equal(t, 0.0, got.AverageEngagementRate)
	assert.Equal(t, 0.0, got.EngagementPerFollower)
	assert.Equal(t, 10, got.TotalEngagement)
	assert.Equal(t, 7.0, got.AverageLikes)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 3.3, Round(10.0/3.0, 1))
	assert.Equal(t, 0.6667, Round(2.0/3.0, 4))
	assert.Equal(t, 1.99, Round(1.994, 2))
}
