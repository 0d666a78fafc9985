package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quadfeed/quadfeed/internal/entities"
)

var now = time.Date(2023, 5, 18, 10, 0, 0, 0, time.UTC)

func post(id string, up, down uint32, age time.Duration) *entities.Post {
	return &entities.Post{
		ID:        id,
		Upvotes:   up,
		Downvotes: down,
		CreatedAt: now.Add(-age),
	}
}

func ids(pp []*entities.Post) []string {
	out := make([]string, len(pp))
	for i, p := range pp {
		out[i] = p.ID
	}
	return out
}

func TestAgeBias(t *testing.T) {
	assert.Equal(t, 4.0, AgeBias(now, now))
	assert.Equal(t, 2.0, AgeBias(now.Add(-5*time.Minute), now))

	// a clock-skewed future timestamp is treated as brand new
	assert.Equal(t, 4.0, AgeBias(now.Add(time.Hour), now))

	// decays towards zero but never reaches it
	old := AgeBias(now.Add(-24*time.Hour), now)
	assert.Greater(t, old, 0.0)
	assert.Less(t, old, 0.02)
}

func TestKey(t *testing.T) {
	p := post("1", 7, 2, 5*time.Minute)
	assert.Equal(t, 7.0, Key(p, now))

	// a post without votes ranks purely on recency
	assert.Equal(t, AgeBias(now, now), Key(post("2", 0, 0, 0), now))
}

func TestRank_scoreDominates(t *testing.T) {
	// day-old post with a modest score beats a fresh low-score one
	got := Rank([]*entities.Post{
		post("fresh", 1, 0, time.Minute),
		post("old", 5, 0, 24*time.Hour),
	}, now)

	require.Equal(t, []string{"old", "fresh"}, ids(got))
}

func TestRank_recencyBreaksEqualScores(t *testing.T) {
	got := Rank([]*entities.Post{
		post("older", 3, 0, time.Hour),
		post("newer", 3, 0, time.Minute),
	}, now)

	require.Equal(t, []string{"newer", "older"}, ids(got))
}

func TestRank_deterministic(t *testing.T) {
	in := []*entities.Post{
		post("a", 2, 1, 10*time.Minute),
		post("b", 0, 0, time.Minute),
		post("c", 10, 3, 3*time.Hour),
		post("d", 1, 5, 2*time.Minute),
	}

	first := Rank(in, now)
	for i := 0; i < 10; i++ {
		require.Equal(t, ids(first), ids(Rank(in, now)))
	}

	// input order is preserved
	require.Equal(t, []string{"a", "b", "c", "d"}, ids(in))
}

func TestRank_exactTie(t *testing.T) {
	// identical score and creation time, stable order is kept
	p1 := post("first", 1, 0, time.Minute)
	p2 := post("second", 1, 0, time.Minute)

	got := Rank([]*entities.Post{p1, p2}, now)
	require.Equal(t, []string{"first", "second"}, ids(got))
}

func TestRank_empty(t *testing.T) {
	require.Empty(t, Rank(nil, now))
}
