package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/quadfeed/quadfeed/internal/entities"
	"github.com/quadfeed/quadfeed/internal/projection"
	"github.com/quadfeed/quadfeed/internal/service"
	"github.com/quadfeed/quadfeed/internal/storage"
)

func (s server) listPosts(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /posts Feed ListPosts
	//
	// Return the ranked feed with the requester's vote state.
	//
	// ---
	// produces:
	// - application/json
	// responses:
	//   '200':
	//     description: Posts
	//     schema:
	//       "$ref": "#/definitions/ListPostsResponse"
	//   '401':
	//     description: invalid token
	//     schema:
	//       "$ref": "#/definitions/Error"

	session, ok := s.session(w, r)
	if !ok {
		return
	}

	votes := map[projection.TargetRef]entities.VoteType{}
	if !session.IsAnonymous() {
		votes = s.p.UserVotes(session.UserID)
	}

	posts := s.p.Feed()

	out := ListPostsResponse{
		Posts: make([]*Post, len(posts)),
	}
	for i, v := range posts {
		p := toAPIPost(v, votes[projection.TargetRef{Kind: entities.PostTarget, ID: v.ID}])
		p.Comments = nil // comment bodies are loaded per post
		out.Posts[i] = p
	}

	writeOK(w, http.StatusOK, out)
}

func (s server) createPost(w http.ResponseWriter, r *http.Request) {
	// swagger:operation POST /posts Feed CreatePost
	//
	// Create a post.
	//
	// ---
	// consumes:
	// - application/json
	// produces:
	// - application/json
	// responses:
	//   '201':
	//     description: Post
	//   '400':
	//     description: bad request
	//     schema:
	//       "$ref": "#/definitions/Error"
	//   '401':
	//     description: unauthenticated
	//     schema:
	//       "$ref": "#/definitions/Error"

	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	p, err := s.s.CreatePost(r.Context(), session, req.Content, req.ImageURL)
	if err != nil {
		s.writeServiceError(w, err, "failed to create post")
		return
	}

	writeOK(w, http.StatusCreated, toAPIPost(p, ""))
}

func (s server) getPost(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /posts/{id} Feed GetPost
	//
	// Get post by id with its comments.
	//
	// ---
	// produces:
	// - application/json
	// parameters:
	// - name: id
	//   in: path
	//   required: true
	//   type: string
	// responses:
	//   '200':
	//     description: Post
	//   '404':
	//     description: post not found
	//     schema:
	//       "$ref": "#/definitions/Error"

	session, ok := s.session(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")

	p, err := s.s.GetPost(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to get post")
		return
	}

	cc, err := s.s.ListComments(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to list comments")
		return
	}
	p.Comments = cc

	votes := map[projection.TargetRef]entities.VoteType{}
	if !session.IsAnonymous() {
		votes = s.p.UserVotes(session.UserID)
	}

	out := toAPIPost(p, votes[projection.TargetRef{Kind: entities.PostTarget, ID: p.ID}])
	out.Comments = make([]*Comment, len(cc))
	for i, v := range cc {
		out.Comments[i] = toAPIComment(v, votes[projection.TargetRef{Kind: entities.CommentTarget, ID: v.ID}])
	}

	writeOK(w, http.StatusOK, out)
}

func (s server) deletePost(w http.ResponseWriter, r *http.Request) {
	// swagger:operation DELETE /posts/{id} Feed DeletePost
	//
	// Delete own post.
	//
	// ---
	// responses:
	//   '200':
	//     description: deleted
	//   '403':
	//     description: not the author
	//     schema:
	//       "$ref": "#/definitions/Error"
	//   '404':
	//     description: post not found
	//     schema:
	//       "$ref": "#/definitions/Error"

	session, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := s.s.DeletePost(r.Context(), session, chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err, "failed to delete post")
		return
	}

	writeOK(w, http.StatusOK, struct{}{})
}

func (s server) listComments(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /posts/{id}/comments Feed ListComments
	//
	// List post's comments ordered by creation time.
	//
	// ---
	// produces:
	// - application/json
	// responses:
	//   '200':
	//     description: Comments

	session, ok := s.session(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")

	cc, err := s.s.ListComments(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to list comments")
		return
	}

	votes := map[projection.TargetRef]entities.VoteType{}
	if !session.IsAnonymous() {
		votes = s.p.UserVotes(session.UserID)
	}

	out := make([]*Comment, len(cc))
	for i, v := range cc {
		out[i] = toAPIComment(v, votes[projection.TargetRef{Kind: entities.CommentTarget, ID: v.ID}])
	}

	writeOK(w, http.StatusOK, out)
}

func (s server) createComment(w http.ResponseWriter, r *http.Request) {
	// swagger:operation POST /posts/{id}/comments Feed CreateComment
	//
	// Add a comment to the post. The commenter tag is assigned at creation
	// time and never changes afterwards.
	//
	// ---
	// consumes:
	// - application/json
	// produces:
	// - application/json
	// responses:
	//   '201':
	//     description: Comment
	//   '400':
	//     description: bad request
	//     schema:
	//       "$ref": "#/definitions/Error"
	//   '401':
	//     description: unauthenticated
	//     schema:
	//       "$ref": "#/definitions/Error"
	//   '404':
	//     description: post not found
	//     schema:
	//       "$ref": "#/definitions/Error"

	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	c, err := s.s.CreateComment(r.Context(), session, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		s.writeServiceError(w, err, "failed to create comment")
		return
	}

	writeOK(w, http.StatusCreated, toAPIComment(c, ""))
}

func (s server) votePost(w http.ResponseWriter, r *http.Request) {
	// swagger:operation POST /posts/{id}/vote Feed VotePost
	//
	// Cast, switch or withdraw a vote on the post.
	//
	// ---
	// consumes:
	// - application/json
	// responses:
	//   '200':
	//     description: applied
	//   '400':
	//     description: bad request
	//     schema:
	//       "$ref": "#/definitions/Error"
	//   '401':
	//     description: unauthenticated
	//     schema:
	//       "$ref": "#/definitions/Error"
	//   '404':
	//     description: post not found
	//     schema:
	//       "$ref": "#/definitions/Error"

	s.applyVote(w, r, entities.PostTarget)
}

func (s server) voteComment(w http.ResponseWriter, r *http.Request) {
	// swagger:operation POST /comments/{id}/vote Feed VoteComment
	//
	// Cast, switch or withdraw a vote on the comment.
	//
	// ---
	// consumes:
	// - application/json
	// responses:
	//   '200':
	//     description: applied
	//   '404':
	//     description: comment not found
	//     schema:
	//       "$ref": "#/definitions/Error"

	s.applyVote(w, r, entities.CommentTarget)
}

func (s server) applyVote(w http.ResponseWriter, r *http.Request, kind entities.TargetKind) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if !req.VoteType.Valid() {
		writeError(w, http.StatusBadRequest, "vote_type must be upvote or downvote")
		return
	}

	if err := s.s.ApplyVote(r.Context(), session, kind, chi.URLParam(r, "id"), req.VoteType); err != nil {
		s.writeServiceError(w, err, "failed to apply vote")
		return
	}

	writeOK(w, http.StatusOK, struct{}{})
}

func (s server) listVotes(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /votes/me Feed ListVotes
	//
	// List the authenticated user's active votes.
	//
	// ---
	// produces:
	// - application/json
	// responses:
	//   '200':
	//     description: Votes
	//   '401':
	//     description: unauthenticated
	//     schema:
	//       "$ref": "#/definitions/Error"

	session, ok := s.session(w, r)
	if !ok {
		return
	}

	vv, err := s.s.ListVotes(r.Context(), session)
	if err != nil {
		s.writeServiceError(w, err, "failed to list votes")
		return
	}

	out := make([]*Vote, len(vv))
	for i, v := range vv {
		out[i] = &Vote{
			TargetKind: string(v.TargetKind),
			TargetID:   v.TargetID,
			VoteType:   string(v.Type),
			CreatedAt:  v.CreatedAt.Unix(),
			UpdatedAt:  v.UpdatedAt.Unix(),
		}
	}

	writeOK(w, http.StatusOK, out)
}

func (s server) saveUser(w http.ResponseWriter, r *http.Request) {
	// swagger:operation PUT /users/me Users SaveUser
	//
	// Upsert the authenticated user's record.
	//
	// ---
	// responses:
	//   '200':
	//     description: saved
	//   '401':
	//     description: unauthenticated
	//     schema:
	//       "$ref": "#/definitions/Error"

	session, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := s.s.SaveUser(r.Context(), session); err != nil {
		s.writeServiceError(w, err, "failed to save user")
		return
	}

	writeOK(w, http.StatusOK, struct{}{})
}

func (s server) getFeedStats(w http.ResponseWriter, r *http.Request) {
	// swagger:operation GET /stats Feed GetFeedStats
	//
	// Returns whole-feed counters.
	//
	// ---
	// produces:
	// - application/json
	// responses:
	//   '200':
	//     description: Stats
	//     schema:
	//       "$ref": "#/definitions/StatsResponse"

	stats, err := s.s.GetFeedStats(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "failed to get feed stats")
		return
	}

	writeOK(w, http.StatusOK, StatsResponse{
		Posts:    stats.Posts,
		Comments: stats.Comments,
		Votes:    stats.Votes,
	})
}

func (s server) session(w http.ResponseWriter, r *http.Request) (entities.Session, bool) {
	session, err := s.auth.FromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return entities.Session{}, false
	}

	return session, true
}

func (s server) writeServiceError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, service.ErrValidationFailed):
		writeError(w, http.StatusBadRequest, "invalid content")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "target not found")
	default:
		writeInternalError(w, fmt.Sprintf("%s: %s", message, err.Error()))
	}
}
