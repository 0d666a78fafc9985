// Package entities contains main entities of service.
package entities

import (
	"time"
)

// VoteType ...
type VoteType string

const (
	// Upvote ...
	Upvote VoteType = "upvote"
	// Downvote ...
	Downvote VoteType = "downvote"
)

// Valid reports whether v is one of the two known vote types.
func (v VoteType) Valid() bool {
	return v == Upvote || v == Downvote
}

// TargetKind ...
type TargetKind string

const (
	// PostTarget ...
	PostTarget TargetKind = "post"
	// CommentTarget ...
	CommentTarget TargetKind = "comment"
)

// Valid reports whether k is one of the two known target kinds.
func (k TargetKind) Valid() bool {
	return k == PostTarget || k == CommentTarget
}

// CommenterTag is a pseudonymous label identifying a comment author's
// position relative to the post author.
type CommenterTag string

const (
	// TagOP marks a comment written by the post author.
	TagOP CommenterTag = "OP"
	// TagFirst marks the first distinct non-author commenter.
	TagFirst CommenterTag = "#1"
	// TagSecond marks the second distinct non-author commenter.
	TagSecond CommenterTag = "#2"
)

// Post ...
type Post struct {
	ID        string
	Content   string
	ImageURL  string
	AuthorID  string
	Upvotes   uint32
	Downvotes uint32
	CreatedAt time.Time
	UpdatedAt time.Time

	// Comments are loaded on demand and never persisted on the post.
	Comments []*Comment
}

// NetScore ...
func (p Post) NetScore() int64 {
	return int64(p.Upvotes) - int64(p.Downvotes)
}

// Comment ...
type Comment struct {
	ID        string
	PostID    string
	Content   string
	AuthorID  string
	IsOP      bool
	Tag       *CommenterTag
	Upvotes   uint32
	Downvotes uint32
	CreatedAt time.Time
}

// NetScore ...
func (c Comment) NetScore() int64 {
	return int64(c.Upvotes) - int64(c.Downvotes)
}

// VoteKey identifies the single allowed vote of a user on a target.
type VoteKey struct {
	VotedBy    string
	TargetKind TargetKind
	TargetID   string
}

// Vote is a single active ledger record. At most one exists per VoteKey.
type Vote struct {
	VoteKey
	Type      VoteType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is the persisted shadow of an identity-provider account.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Session is the read-only identity supplied by the external provider.
type Session struct {
	UserID string
	Email  string
}

// IsAnonymous ...
func (s Session) IsAnonymous() bool {
	return s.UserID == ""
}

// FeedStats represents whole-feed counters.
type FeedStats struct {
	Posts    int64
	Comments int64
	Votes    int64
}
