// Package analytics derives engagement statistics from analyzed posts.
package analytics

import (
	"math"

	"iganalyzer/pkg/models"
)

// EngagementRate is (likes+comments) as a percentage of followers. It is
// zero when the follower count is unknown.
func EngagementRate(likes, comments, followers int) float64 {
	if followers <= 0 {
		return 0
	}
	return float64(likes+comments) / float64(followers) * 100
}

// Compute summarizes posts for a profile. Placeholder posts (failed
// downloads and posts without media) count towards TotalPostsAnalyzed but
// not towards any average.
func Compute(profile *models.Profile, posts []models.Post) models.Analytics {
	result := models.Analytics{TotalPostsAnalyzed: len(posts)}

	followers := 0
	if profile != nil {
		followers = profile.Followers
	}

	var likes, comments, eligible int
	var rateSum float64
	for _, p := range posts {
		if !p.Analyzable() {
			continue
		}
		eligible++
		likes += p.Likes
		comments += p.Comments
		rateSum += p.EngagementRate
		if p.IsVideo {
			result.VideoPosts++
		} else {
			result.ImagePosts++
		}
	}
	if eligible == 0 {
		return result
	}

	n := float64(eligible)
	result.AverageLikes = Round(float64(likes)/n, 1)
	result.AverageComments = Round(float64(comments)/n, 1)
	result.AverageEngagementRate = Round(rateSum/n, 2)
	result.TotalEngagement = likes + comments
	result.EngagementPerFollower = Round(EngagementRate(likes, comments, followers), 4)
	return result
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
