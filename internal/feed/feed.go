// Package feed contains the deterministic post ranking.
package feed

import (
	"sort"
	"time"

	"github.com/quadfeed/quadfeed/internal/entities"
)

const (
	// maxAgeBias is the bonus of a post created right now.
	maxAgeBias = 4.0
	// biasHalfLife is the age at which the bonus halves.
	biasHalfLife = 5 * time.Minute
)

// AgeBias returns the recency bonus of a post created at createdAt as seen at
// now. The bonus is strictly positive, bounded by maxAgeBias and decays to
// negligible once the post is more than a few minutes old, so score dominates
// ordering for older posts.
func AgeBias(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}

	return maxAgeBias / (1 + age.Minutes()/biasHalfLife.Minutes())
}

// Key returns the ranking key of p as seen at now. Same inputs always yield
// the same key.
func Key(p *entities.Post, now time.Time) float64 {
	return float64(p.NetScore()) + AgeBias(p.CreatedAt, now)
}

// Rank sorts posts by ranking key descending, ties broken by creation time
// descending. The input slice is not modified.
func Rank(posts []*entities.Post, now time.Time) []*entities.Post {
	out := make([]*entities.Post, len(posts))
	copy(out, posts)

	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := Key(out[i], now), Key(out[j], now)
		if ki != kj {
			return ki > kj
		}

		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}
