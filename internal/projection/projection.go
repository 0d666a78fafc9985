// Package projection reconciles store snapshots into the view model.
package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quadfeed/quadfeed/internal/entities"
	"github.com/quadfeed/quadfeed/internal/feed"
	"github.com/quadfeed/quadfeed/internal/storage"
)

var log = logrus.WithField("package", "projection")

// TargetRef points at a votable target.
type TargetRef struct {
	Kind entities.TargetKind
	ID   string
}

// Projection holds a derived, disposable copy of the store for rendering.
// Every snapshot replaces the matching working copy wholesale, so a late or
// out-of-order snapshot simply overwrites prior state.
type Projection struct {
	sub storage.Subscriber
	now func() time.Time

	mu           sync.RWMutex
	posts        []*entities.Post
	comments     map[string][]*entities.Comment
	votes        []*entities.Vote
	lastSnapshot time.Time
}

// New ...
func New(sub storage.Subscriber) *Projection {
	return &Projection{
		sub:      sub,
		now:      time.Now,
		comments: map[string][]*entities.Comment{},
	}
}

// Run consumes snapshots until ctx is cancelled.
func (p *Projection) Run(ctx context.Context) error {
	ch, err := p.sub.Subscribe(ctx,
		storage.PostsCollection,
		storage.CommentsCollection,
		storage.VotesCollection,
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	for snap := range ch {
		p.Apply(snap)
	}

	return nil
}

// Apply merges a snapshot into the working copy.
func (p *Projection) Apply(s storage.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch s.Kind {
	case storage.PostsCollection:
		p.posts = s.Posts
	case storage.CommentsCollection:
		cc := make(map[string][]*entities.Comment, len(s.Comments))
		for _, c := range s.Comments {
			cc[c.PostID] = append(cc[c.PostID], c)
		}
		p.comments = cc
	case storage.VotesCollection:
		p.votes = s.Votes
	default:
		log.WithField("collection", s.Kind).Warn("skip unknown snapshot")
		return
	}

	p.lastSnapshot = p.now()
}

// Feed returns the current post set ranked by score and recency, with per-post
// comment lists attached.
func (p *Projection) Feed() []*entities.Post {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*entities.Post, len(p.posts))
	for i, v := range p.posts {
		post := *v
		post.Comments = p.comments[post.ID]
		out[i] = &post
	}

	return feed.Rank(out, p.now())
}

// UserVotes derives the vote-state map of the given user from the last votes
// snapshot.
func (p *Projection) UserVotes(userID string) map[TargetRef]entities.VoteType {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := map[TargetRef]entities.VoteType{}
	for _, v := range p.votes {
		if v.VotedBy != userID {
			continue
		}

		out[TargetRef{Kind: v.TargetKind, ID: v.TargetID}] = v.Type
	}

	return out
}

// Name implements health.Pinger.
func (p *Projection) Name() string {
	return "projection"
}

// Ping implements health.Pinger.
func (p *Projection) Ping(_ context.Context) (interface{}, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.lastSnapshot.IsZero() {
		return nil, errors.New("no snapshot received yet")
	}

	return map[string]interface{}{
		"last_snapshot": p.lastSnapshot,
	}, nil
}
