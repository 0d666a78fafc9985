// Package storage contains a storage interface.
package storage

import (
	"context"
	"fmt"

	"github.com/quadfeed/quadfeed/internal/entities"
)

//go:generate mockgen -destination=./mock/storage.go -package=mock -source=storage.go

// ErrNotFound ...
var ErrNotFound = fmt.Errorf("not found")

// Storage provides methods for interacting with database.
//
// Counter mutations are expressed as relative deltas and must be applied
// atomically by the implementation, never as read-modify-write.
type Storage interface {
	InTx(ctx context.Context, f func(s Storage) error) error

	CreatePost(ctx context.Context, p *entities.Post) error
	GetPost(ctx context.Context, id string) (*entities.Post, error)
	ListPosts(ctx context.Context) ([]*entities.Post, error)
	DeletePost(ctx context.Context, id string, deletedBy string) error

	CreateComment(ctx context.Context, c *entities.Comment) error
	GetComment(ctx context.Context, id string) (*entities.Comment, error)
	ListComments(ctx context.Context, postID string) ([]*entities.Comment, error)
	// ListCommentAuthors returns distinct comment authors of the post ordered
	// by their first comment time.
	ListCommentAuthors(ctx context.Context, postID string) ([]string, error)

	GetVote(ctx context.Context, key entities.VoteKey) (*entities.Vote, error)
	SetVote(ctx context.Context, v *entities.Vote) error
	DeleteVote(ctx context.Context, key entities.VoteKey) error
	ListVotes(ctx context.Context, votedBy string) ([]*entities.Vote, error)

	// ApplyCounterDeltas adds up and down to the target's counters in a single
	// atomic operation. Both deltas are applied as a unit; partial application
	// is never observable. Returns ErrNotFound if the target does not exist.
	ApplyCounterDeltas(ctx context.Context, kind entities.TargetKind, id string, up, down int32) error

	UpsertUser(ctx context.Context, u *entities.User) error

	GetFeedStats(ctx context.Context) (*entities.FeedStats, error)
}

// Snapshot is a complete, point-in-time result set delivered by a
// subscription. Exactly one of the three sets is populated, matching Kind.
type Snapshot struct {
	Kind     Collection
	Posts    []*entities.Post
	Comments []*entities.Comment
	Votes    []*entities.Vote
}

// Collection ...
type Collection string

const (
	// PostsCollection ...
	PostsCollection Collection = "posts"
	// CommentsCollection ...
	CommentsCollection Collection = "comments"
	// VotesCollection ...
	VotesCollection Collection = "votes"
)

// Subscriber delivers full result-set snapshots of collections whenever any
// matching document changes. Delivery is at-least-once; a snapshot always
// replaces the previous one wholesale.
type Subscriber interface {
	// Subscribe starts delivering snapshots of the given collections into the
	// returned channel until ctx is cancelled. An initial snapshot of every
	// collection is emitted on start.
	Subscribe(ctx context.Context, collections ...Collection) (<-chan Snapshot, error)
}
