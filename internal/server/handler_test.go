package server

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quadfeed/quadfeed/internal/entities"
	"github.com/quadfeed/quadfeed/internal/projection"
	"github.com/quadfeed/quadfeed/internal/service"
	"github.com/quadfeed/quadfeed/internal/service/mock"
	"github.com/quadfeed/quadfeed/internal/session"
	"github.com/quadfeed/quadfeed/internal/storage"
)

const testSecret = "test-secret"

var timestamp = time.Date(2023, 5, 18, 10, 0, 0, 0, time.UTC)

func newTestServer(s service.Service, p *projection.Projection) server {
	return server{
		s:    s,
		p:    p,
		auth: session.NewVerifier(testSecret),
	}
}

func bearer(t *testing.T, userID string) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": userID + "@example.org",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	return "Bearer " + token
}

func Test_listPosts(t *testing.T) {
	p := projection.New(nil)
	p.Apply(storage.Snapshot{
		Kind: storage.PostsCollection,
		Posts: []*entities.Post{
			{ID: "low", Upvotes: 1, AuthorID: "op", Content: "low", CreatedAt: timestamp.Add(-24 * time.Hour)},
			{ID: "top", Upvotes: 10, AuthorID: "op", Content: "top", CreatedAt: timestamp.Add(-24 * time.Hour)},
		},
	})
	p.Apply(storage.Snapshot{
		Kind: storage.VotesCollection,
		Votes: []*entities.Vote{
			{VoteKey: entities.VoteKey{VotedBy: "user", TargetKind: entities.PostTarget, TargetID: "top"}, Type: entities.Upvote},
		},
	})

	router := chi.NewRouter()
	srv := newTestServer(nil, p)
	router.Get("/v1/posts", srv.listPosts)

	r, err := http.NewRequest(http.MethodGet, "/v1/posts", nil)
	require.NoError(t, err)
	r.Header.Set("Authorization", bearer(t, "user"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`
		{
			"posts": [
				{
					"id": "top",
					"content": "top",
					"author_id": "op",
					"upvotes": 10,
					"downvotes": 0,
					"net_score": 10,
					"comments_count": 0,
					"my_vote": "upvote",
					"created_at": %[1]d,
					"updated_at": %[2]d
				},
				{
					"id": "low",
					"content": "low",
					"author_id": "op",
					"upvotes": 1,
					"downvotes": 0,
					"net_score": 1,
					"comments_count": 0,
					"created_at": %[1]d,
					"updated_at": %[2]d
				}
			]
		}
	`, timestamp.Add(-24*time.Hour).Unix(), time.Time{}.Unix()), w.Body.String())
}

func Test_listPosts_invalidToken(t *testing.T) {
	router := chi.NewRouter()
	srv := newTestServer(nil, projection.New(nil))
	router.Get("/v1/posts", srv.listPosts)

	r, err := http.NewRequest(http.MethodGet, "/v1/posts", nil)
	require.NoError(t, err)
	r.Header.Set("Authorization", "Bearer garbage")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error": "invalid token"}`, w.Body.String())
}

func Test_createPost(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mock.NewMockService(ctrl)

	router := chi.NewRouter()
	srv := newTestServer(s, projection.New(nil))
	router.Post("/v1/posts", srv.createPost)

	s.EXPECT().CreatePost(gomock.Any(), entities.Session{UserID: "user", Email: "user@example.org"}, "hello", "http://img").
		Return(&entities.Post{
			ID:        "1",
			Content:   "hello",
			ImageURL:  "http://img",
			AuthorID:  "user",
			CreatedAt: timestamp,
			UpdatedAt: timestamp,
		}, nil)

	r, err := http.NewRequest(http.MethodPost, "/v1/posts", bytes.NewBufferString(`{"content": "hello", "image_url": "http://img"}`))
	require.NoError(t, err)
	r.Header.Set("Authorization", bearer(t, "user"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`
		{
			"id": "1",
			"content": "hello",
			"image_url": "http://img",
			"author_id": "user",
			"upvotes": 0,
			"downvotes": 0,
			"net_score": 0,
			"comments_count": 0,
			"created_at": %[1]d,
			"updated_at": %[1]d
		}
	`, timestamp.Unix()), w.Body.String())
}

func Test_createPost_errors(t *testing.T) {
	tt := []struct {
		name string
		body string
		err  error

		code int
		resp string
	}{
		{
			name: "invalid json",
			body: `{`,
			code: http.StatusBadRequest,
			resp: `{"error": "invalid json"}`,
		},
		{
			name: "empty content",
			body: `{"content": "  "}`,
			err:  service.ErrValidationFailed,
			code: http.StatusBadRequest,
			resp: `{"error": "invalid content"}`,
		},
		{
			name: "anonymous",
			body: `{"content": "hello"}`,
			err:  service.ErrUnauthenticated,
			code: http.StatusUnauthorized,
			resp: `{"error": "unauthenticated"}`,
		},
	}

	for i := range tt {
		tc := tt[i]

		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			s := mock.NewMockService(ctrl)

			if tc.err != nil {
				s.EXPECT().CreatePost(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, tc.err)
			}

			router := chi.NewRouter()
			srv := newTestServer(s, projection.New(nil))
			router.Post("/v1/posts", srv.createPost)

			r, err := http.NewRequest(http.MethodPost, "/v1/posts", bytes.NewBufferString(tc.body))
			require.NoError(t, err)
			r.Header.Set("Authorization", bearer(t, "user"))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)

			require.Equal(t, tc.code, w.Code)
			assert.JSONEq(t, tc.resp, w.Body.String())
		})
	}
}

func Test_getPost(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mock.NewMockService(ctrl)

	tag := entities.TagFirst

	s.EXPECT().GetPost(gomock.Any(), "1").Return(&entities.Post{
		ID:        "1",
		Content:   "post",
		AuthorID:  "op",
		Upvotes:   2,
		Downvotes: 1,
		CreatedAt: timestamp,
		UpdatedAt: timestamp,
	}, nil)
	s.EXPECT().ListComments(gomock.Any(), "1").Return([]*entities.Comment{
		{ID: "c1", PostID: "1", Content: "mine", AuthorID: "op", IsOP: true, Tag: tagPtr(entities.TagOP), CreatedAt: timestamp},
		{ID: "c2", PostID: "1", Content: "reply", AuthorID: "user", Tag: &tag, CreatedAt: timestamp},
	}, nil)

	p := projection.New(nil)
	p.Apply(storage.Snapshot{
		Kind: storage.VotesCollection,
		Votes: []*entities.Vote{
			{VoteKey: entities.VoteKey{VotedBy: "user", TargetKind: entities.CommentTarget, TargetID: "c1"}, Type: entities.Downvote},
		},
	})

	router := chi.NewRouter()
	srv := newTestServer(s, p)
	router.Get("/v1/posts/{id}", srv.getPost)

	r, err := http.NewRequest(http.MethodGet, "/v1/posts/1", nil)
	require.NoError(t, err)
	r.Header.Set("Authorization", bearer(t, "user"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`
		{
			"id": "1",
			"content": "post",
			"author_id": "op",
			"upvotes": 2,
			"downvotes": 1,
			"net_score": 1,
			"comments_count": 2,
			"created_at": %[1]d,
			"updated_at": %[1]d,
			"comments": [
				{
					"id": "c1",
					"post_id": "1",
					"content": "mine",
					"is_op": true,
					"commenter_tag": "OP",
					"upvotes": 0,
					"downvotes": 0,
					"my_vote": "downvote",
					"created_at": %[1]d
				},
				{
					"id": "c2",
					"post_id": "1",
					"content": "reply",
					"is_op": false,
					"commenter_tag": "#1",
					"upvotes": 0,
					"downvotes": 0,
					"created_at": %[1]d
				}
			]
		}
	`, timestamp.Unix()), w.Body.String())
}

func Test_getPost_notFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mock.NewMockService(ctrl)

	s.EXPECT().GetPost(gomock.Any(), "missing").Return(nil, storage.ErrNotFound)

	router := chi.NewRouter()
	srv := newTestServer(s, projection.New(nil))
	router.Get("/v1/posts/{id}", srv.getPost)

	r, err := http.NewRequest(http.MethodGet, "/v1/posts/missing", nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error": "target not found"}`, w.Body.String())
}

func Test_deletePost(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mock.NewMockService(ctrl)

	s.EXPECT().DeletePost(gomock.Any(), entities.Session{UserID: "user", Email: "user@example.org"}, "1").Return(nil)

	router := chi.NewRouter()
	srv := newTestServer(s, projection.New(nil))
	router.Delete("/v1/posts/{id}", srv.deletePost)

	r, err := http.NewRequest(http.MethodDelete, "/v1/posts/1", nil)
	require.NoError(t, err)
	r.Header.Set("Authorization", bearer(t, "user"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	s.EXPECT().DeletePost(gomock.Any(), gomock.Any(), "1").Return(service.ErrForbidden)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error": "forbidden"}`, w.Body.String())
}

func Test_createComment(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mock.NewMockService(ctrl)

	s.EXPECT().CreateComment(gomock.Any(), entities.Session{UserID: "user", Email: "user@example.org"}, "1", "hi").
		Return(&entities.Comment{
			ID:        "c1",
			PostID:    "1",
			Content:   "hi",
			AuthorID:  "user",
			Tag:       tagPtr(entities.TagFirst),
			CreatedAt: timestamp,
		}, nil)

	router := chi.NewRouter()
	srv := newTestServer(s, projection.New(nil))
	router.Post("/v1/posts/{id}/comments", srv.createComment)

	r, err := http.NewRequest(http.MethodPost, "/v1/posts/1/comments", bytes.NewBufferString(`{"content": "hi"}`))
	require.NoError(t, err)
	r.Header.Set("Authorization", bearer(t, "user"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`
		{
			"id": "c1",
			"post_id": "1",
			"content": "hi",
			"is_op": false,
			"commenter_tag": "#1",
			"upvotes": 0,
			"downvotes": 0,
			"created_at": %d
		}
	`, timestamp.Unix()), w.Body.String())
}

func Test_votePost(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mock.NewMockService(ctrl)

	s.EXPECT().ApplyVote(gomock.Any(), entities.Session{UserID: "user", Email: "user@example.org"}, entities.PostTarget, "1", entities.Upvote).Return(nil)

	router := chi.NewRouter()
	srv := newTestServer(s, projection.New(nil))
	router.Post("/v1/posts/{id}/vote", srv.votePost)

	r, err := http.NewRequest(http.MethodPost, "/v1/posts/1/vote", bytes.NewBufferString(`{"vote_type": "upvote"}`))
	require.NoError(t, err)
	r.Header.Set("Authorization", bearer(t, "user"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
}

func Test_votePost_invalidType(t *testing.T) {
	router := chi.NewRouter()
	srv := newTestServer(nil, projection.New(nil))
	router.Post("/v1/posts/{id}/vote", srv.votePost)

	r, err := http.NewRequest(http.MethodPost, "/v1/posts/1/vote", bytes.NewBufferString(`{"vote_type": "sideways"}`))
	require.NoError(t, err)
	r.Header.Set("Authorization", bearer(t, "user"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error": "vote_type must be upvote or downvote"}`, w.Body.String())
}

func Test_voteComment(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mock.NewMockService(ctrl)

	s.EXPECT().ApplyVote(gomock.Any(), gomock.Any(), entities.CommentTarget, "c1", entities.Downvote).Return(storage.ErrNotFound)

	router := chi.NewRouter()
	srv := newTestServer(s, projection.New(nil))
	router.Post("/v1/comments/{id}/vote", srv.voteComment)

	r, err := http.NewRequest(http.MethodPost, "/v1/comments/c1/vote", bytes.NewBufferString(`{"vote_type": "downvote"}`))
	require.NoError(t, err)
	r.Header.Set("Authorization", bearer(t, "user"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error": "target not found"}`, w.Body.String())
}

func Test_listVotes(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mock.NewMockService(ctrl)

	s.EXPECT().ListVotes(gomock.Any(), entities.Session{UserID: "user", Email: "user@example.org"}).
		Return([]*entities.Vote{
			{
				VoteKey:   entities.VoteKey{VotedBy: "user", TargetKind: entities.PostTarget, TargetID: "1"},
				Type:      entities.Upvote,
				CreatedAt: timestamp,
				UpdatedAt: timestamp,
			},
		}, nil)

	router := chi.NewRouter()
	srv := newTestServer(s, projection.New(nil))
	router.Get("/v1/votes/me", srv.listVotes)

	r, err := http.NewRequest(http.MethodGet, "/v1/votes/me", nil)
	require.NoError(t, err)
	r.Header.Set("Authorization", bearer(t, "user"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`
		[
			{
				"target_kind": "post",
				"target_id": "1",
				"vote_type": "upvote",
				"created_at": %[1]d,
				"updated_at": %[1]d
			}
		]
	`, timestamp.Unix()), w.Body.String())
}

func Test_saveUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mock.NewMockService(ctrl)

	s.EXPECT().SaveUser(gomock.Any(), entities.Session{UserID: "user", Email: "user@example.org"}).Return(nil)

	router := chi.NewRouter()
	srv := newTestServer(s, projection.New(nil))
	router.Put("/v1/users/me", srv.saveUser)

	r, err := http.NewRequest(http.MethodPut, "/v1/users/me", nil)
	require.NoError(t, err)
	r.Header.Set("Authorization", bearer(t, "user"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
}

func Test_getFeedStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mock.NewMockService(ctrl)

	s.EXPECT().GetFeedStats(gomock.Any()).Return(&entities.FeedStats{Posts: 10, Comments: 20, Votes: 30}, nil)

	router := chi.NewRouter()
	srv := newTestServer(s, projection.New(nil))
	router.Get("/v1/stats", srv.getFeedStats)

	r, err := http.NewRequest(http.MethodGet, "/v1/stats", nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"posts": 10, "comments": 20, "votes": 30}`, w.Body.String())
}

func tagPtr(t entities.CommenterTag) *entities.CommenterTag {
	return &t
}
