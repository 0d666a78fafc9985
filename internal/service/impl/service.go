// Package impl is implementation of service interface.
package impl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quadfeed/quadfeed/internal/entities"
	"github.com/quadfeed/quadfeed/internal/service"
	"github.com/quadfeed/quadfeed/internal/storage"
)

const (
	maxPostContentLength    = 1000
	maxCommentContentLength = 500
)

type srv struct {
	s   storage.Storage
	now func() time.Time
}

func (s srv) CreatePost(ctx context.Context, session entities.Session, content, imageURL string) (*entities.Post, error) {
	if session.IsAnonymous() {
		return nil, service.ErrUnauthenticated
	}

	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxPostContentLength {
		return nil, service.ErrValidationFailed
	}

	now := s.now().UTC()
	p := entities.Post{
		ID:        uuid.NewString(),
		Content:   content,
		ImageURL:  imageURL,
		AuthorID:  session.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.s.CreatePost(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	return &p, nil
}

func (s srv) GetPost(ctx context.Context, id string) (*entities.Post, error) {
	p, err := s.s.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return p, nil
}

func (s srv) ListPosts(ctx context.Context) ([]*entities.Post, error) {
	pp, err := s.s.ListPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	return pp, nil
}

func (s srv) DeletePost(ctx context.Context, session entities.Session, id string) error {
	if session.IsAnonymous() {
		return service.ErrUnauthenticated
	}

	p, err := s.s.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}

		return fmt.Errorf("failed to get post: %w", err)
	}

	if p.AuthorID != session.UserID {
		return service.ErrForbidden
	}

	if err := s.s.DeletePost(ctx, id, session.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}

		return fmt.Errorf("failed to delete post: %w", err)
	}

	return nil
}

func (s srv) CreateComment(ctx context.Context, session entities.Session, postID, content string) (*entities.Comment, error) {
	if session.IsAnonymous() {
		return nil, service.ErrUnauthenticated
	}

	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxCommentContentLength {
		return nil, service.ErrValidationFailed
	}

	var out *entities.Comment

	// The tag depends on the set of already-existing comments, so the read and
	// the insert happen in one tx.
	if err := s.s.InTx(ctx, func(tx storage.Storage) error {
		p, err := tx.GetPost(ctx, postID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return err
			}

			return fmt.Errorf("failed to get post: %w", err)
		}

		authors, err := tx.ListCommentAuthors(ctx, postID)
		if err != nil {
			return fmt.Errorf("failed to list comment authors: %w", err)
		}

		c := entities.Comment{
			ID:        uuid.NewString(),
			PostID:    postID,
			Content:   content,
			AuthorID:  session.UserID,
			IsOP:      session.UserID == p.AuthorID,
			Tag:       commenterTag(p.AuthorID, authors, session.UserID),
			CreatedAt: s.now().UTC(),
		}

		if err := tx.CreateComment(ctx, &c); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return err
			}

			return fmt.Errorf("failed to create comment: %w", err)
		}

		out = &c

		return nil
	}); err != nil {
		return nil, err
	}

	return out, nil
}

func (s srv) ListComments(ctx context.Context, postID string) ([]*entities.Comment, error) {
	cc, err := s.s.ListComments(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	return cc, nil
}

func (s srv) ApplyVote(ctx context.Context, session entities.Session, kind entities.TargetKind, targetID string, vote entities.VoteType) error {
	if session.IsAnonymous() {
		return service.ErrUnauthenticated
	}

	if !kind.Valid() || !vote.Valid() || targetID == "" {
		return service.ErrValidationFailed
	}

	key := entities.VoteKey{
		VotedBy:    session.UserID,
		TargetKind: kind,
		TargetID:   targetID,
	}

	// The ledger write and the counter delta are one unit, a crash between
	// them must not leave a dangling vote or counter.
	return s.s.InTx(ctx, func(tx storage.Storage) error {
		existing, err := tx.GetVote(ctx, key)

		switch {
		case errors.Is(err, storage.ErrNotFound):
			// first vote on the target
			now := s.now().UTC()
			if err := tx.SetVote(ctx, &entities.Vote{VoteKey: key, Type: vote, CreatedAt: now, UpdatedAt: now}); err != nil {
				return fmt.Errorf("failed to set vote: %w", err)
			}

			return s.applyDeltas(ctx, tx, kind, targetID, vote, 1)

		case err != nil:
			return fmt.Errorf("failed to get vote: %w", err)

		case existing.Type == vote:
			// re-clicking the same vote type withdraws it
			if err := tx.DeleteVote(ctx, key); err != nil {
				return fmt.Errorf("failed to delete vote: %w", err)
			}

			return s.applyDeltas(ctx, tx, kind, targetID, vote, -1)

		default:
			// switch vote type, both counter deltas land atomically
			existing.Type = vote
			existing.UpdatedAt = s.now().UTC()
			if err := tx.SetVote(ctx, existing); err != nil {
				return fmt.Errorf("failed to set vote: %w", err)
			}

			up, down := int32(1), int32(-1)
			if vote == entities.Downvote {
				up, down = -1, 1
			}

			if err := tx.ApplyCounterDeltas(ctx, kind, targetID, up, down); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return err
				}

				return fmt.Errorf("failed to apply counter deltas: %w", err)
			}

			return nil
		}
	})
}

func (s srv) applyDeltas(ctx context.Context, tx storage.Storage, kind entities.TargetKind, targetID string, vote entities.VoteType, d int32) error {
	var up, down int32
	if vote == entities.Upvote {
		up = d
	} else {
		down = d
	}

	if err := tx.ApplyCounterDeltas(ctx, kind, targetID, up, down); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}

		return fmt.Errorf("failed to apply counter deltas: %w", err)
	}

	return nil
}

func (s srv) ListVotes(ctx context.Context, session entities.Session) ([]*entities.Vote, error) {
	if session.IsAnonymous() {
		return nil, service.ErrUnauthenticated
	}

	vv, err := s.s.ListVotes(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}

	return vv, nil
}

func (s srv) SaveUser(ctx context.Context, session entities.Session) error {
	if session.IsAnonymous() {
		return service.ErrUnauthenticated
	}

	if err := s.s.UpsertUser(ctx, &entities.User{
		ID:        session.UserID,
		Email:     session.Email,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

func (s srv) GetFeedStats(ctx context.Context) (*entities.FeedStats, error) {
	stats, err := s.s.GetFeedStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get feed stats: %w", err)
	}

	return stats, nil
}

// commenterTag returns the pseudonymous tag of a new comment given the post
// author and the ordered distinct authors of already-existing comments. The
// tag is assigned once and never recomputed.
func commenterTag(postAuthor string, prior []string, author string) *entities.CommenterTag {
	if author == postAuthor {
		return tag(entities.TagOP)
	}

	others := 0
	for _, a := range prior {
		if a == postAuthor {
			continue
		}
		if a == author {
			// already tagged on a previous comment
			return nil
		}
		others++
	}

	switch others {
	case 0:
		return tag(entities.TagFirst)
	case 1:
		return tag(entities.TagSecond)
	default:
		// no anonymous slots beyond OP/#1/#2
		return nil
	}
}

func tag(t entities.CommenterTag) *entities.CommenterTag {
	return &t
}

// New creates new instance of service.
func New(s storage.Storage) service.Service {
	return srv{
		s:   s,
		now: time.Now,
	}
}
