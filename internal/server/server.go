// Package server quadfeed
//
// The quadfeed service provides access to the anonymous campus feed entities
// (posts, comments, votes).
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"

	mm "github.com/quadfeed/quadfeed/internal/middleware"
	"github.com/quadfeed/quadfeed/internal/projection"
	"github.com/quadfeed/quadfeed/internal/service"
	"github.com/quadfeed/quadfeed/internal/session"
)

const maxBodySize = 8 * 1024

const statsCacheTTL = time.Minute

type server struct {
	s    service.Service
	p    *projection.Projection
	auth *session.Verifier
}

// SetupRouter setups handlers to chi router.
func SetupRouter(s service.Service, p *projection.Projection, auth *session.Verifier, r chi.Router, timeout time.Duration) {
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.StripSlashes,
		cors.AllowAll().Handler,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		bodyLimiter(maxBodySize),
	)

	srv := server{
		s:    s,
		p:    p,
		auth: auth,
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/posts", srv.listPosts)
		r.Post("/posts", srv.createPost)
		r.Get("/posts/{id}", srv.getPost)
		r.Delete("/posts/{id}", srv.deletePost)
		r.Get("/posts/{id}/comments", srv.listComments)
		r.Post("/posts/{id}/comments", srv.createComment)
		r.Post("/posts/{id}/vote", srv.votePost)
		r.Post("/comments/{id}/vote", srv.voteComment)
		r.Get("/votes/me", srv.listVotes)
		r.Put("/users/me", srv.saveUser)
		r.Get("/stats", mm.Cached(statsCacheTTL, srv.getFeedStats))
	})
}

func bodyLimiter(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
