package server

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/quadfeed/quadfeed/internal/entities"
)

var log = logrus.WithField("package", "server")

// Error ...
type Error struct {
	Error string `json:"error"`
}

// Post ...
type Post struct {
	ID            string     `json:"id"`
	Content       string     `json:"content"`
	ImageURL      string     `json:"image_url,omitempty"`
	AuthorID      string     `json:"author_id"`
	Upvotes       uint32     `json:"upvotes"`
	Downvotes     uint32     `json:"downvotes"`
	NetScore      int64      `json:"net_score"`
	CommentsCount int        `json:"comments_count"`
	Comments      []*Comment `json:"comments,omitempty"`
	MyVote        string     `json:"my_vote,omitempty"`
	CreatedAt     int64      `json:"created_at"`
	UpdatedAt     int64      `json:"updated_at"`
}

// Comment ...
type Comment struct {
	ID           string `json:"id"`
	PostID       string `json:"post_id"`
	Content      string `json:"content"`
	IsOP         bool   `json:"is_op"`
	CommenterTag string `json:"commenter_tag,omitempty"`
	Upvotes      uint32 `json:"upvotes"`
	Downvotes    uint32 `json:"downvotes"`
	MyVote       string `json:"my_vote,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

// ListPostsResponse ...
type ListPostsResponse struct {
	Posts []*Post `json:"posts"`
}

// CreatePostRequest ...
type CreatePostRequest struct {
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
}

// CreateCommentRequest ...
type CreateCommentRequest struct {
	Content string `json:"content"`
}

// Vote ...
type Vote struct {
	TargetKind string `json:"target_kind"`
	TargetID   string `json:"target_id"`
	VoteType   string `json:"vote_type"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// VoteRequest ...
type VoteRequest struct {
	VoteType entities.VoteType `json:"vote_type"`
}

// StatsResponse ...
type StatsResponse struct {
	Posts    int64 `json:"posts"`
	Comments int64 `json:"comments"`
	Votes    int64 `json:"votes"`
}

func writeOK(w http.ResponseWriter, status int, v interface{}) {
	data, _ := json.Marshal(v)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) // nolint: errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeOK(w, status, Error{Error: message})
}

func writeInternalError(w http.ResponseWriter, message string) {
	log.Error(message)

	writeError(w, http.StatusInternalServerError, "internal error")
}

func toAPIPost(p *entities.Post, myVote entities.VoteType) *Post {
	if p == nil {
		return nil
	}

	return &Post{
		ID:            p.ID,
		Content:       p.Content,
		ImageURL:      p.ImageURL,
		AuthorID:      p.AuthorID,
		Upvotes:       p.Upvotes,
		Downvotes:     p.Downvotes,
		NetScore:      p.NetScore(),
		CommentsCount: len(p.Comments),
		MyVote:        string(myVote),
		CreatedAt:     p.CreatedAt.Unix(),
		UpdatedAt:     p.UpdatedAt.Unix(),
	}
}

func toAPIComment(c *entities.Comment, myVote entities.VoteType) *Comment {
	if c == nil {
		return nil
	}

	out := Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		Content:   c.Content,
		IsOP:      c.IsOP,
		Upvotes:   c.Upvotes,
		Downvotes: c.Downvotes,
		MyVote:    string(myVote),
		CreatedAt: c.CreatedAt.Unix(),
	}

	if c.Tag != nil {
		out.CommenterTag = string(*c.Tag)
	}

	return &out
}
