// Package service contains interface for service business-logic.
package service

import (
	"context"
	"errors"

	"github.com/quadfeed/quadfeed/internal/entities"
)

//go:generate mockgen -destination=./mock/service.go -package=mock -source=service.go

// ErrUnauthenticated returned when an operation requiring identity is called
// without a user session.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrValidationFailed returned when content is empty or exceeds its length
// bound. The store is never touched in that case.
var ErrValidationFailed = errors.New("validation failed")

// ErrForbidden returned when a user attempts to modify somebody else's post.
var ErrForbidden = errors.New("forbidden")

// Service ...
type Service interface {
	CreatePost(ctx context.Context, session entities.Session, content, imageURL string) (*entities.Post, error)
	GetPost(ctx context.Context, id string) (*entities.Post, error)
	ListPosts(ctx context.Context) ([]*entities.Post, error)
	DeletePost(ctx context.Context, session entities.Session, id string) error

	CreateComment(ctx context.Context, session entities.Session, postID, content string) (*entities.Comment, error)
	ListComments(ctx context.Context, postID string) ([]*entities.Comment, error)

	// ApplyVote casts, switches or withdraws the session user's vote on the
	// target and keeps the target's counters consistent with the ledger.
	ApplyVote(ctx context.Context, session entities.Session, kind entities.TargetKind, targetID string, vote entities.VoteType) error
	ListVotes(ctx context.Context, session entities.Session) ([]*entities.Vote, error)

	SaveUser(ctx context.Context, session entities.Session) error

	GetFeedStats(ctx context.Context) (*entities.FeedStats, error)
}
