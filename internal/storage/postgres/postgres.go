// Package postgres is implementation of storage interface.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/quadfeed/quadfeed/internal/entities"
	"github.com/quadfeed/quadfeed/internal/storage"
)

var log = logrus.WithField("layer", "storage").WithField("package", "postgres")
var errBeginCalledWithinTx = errors.New("can not run InTx within tx")

const foreignKeyViolation = "23503"

type pg struct {
	ext sqlx.ExtContext
}

type postDTO struct {
	ID        string    `db:"id"`
	Content   string    `db:"content"`
	ImageURL  string    `db:"image_url"`
	AuthorID  string    `db:"author_id"`
	Upvotes   uint32    `db:"upvotes"`
	Downvotes uint32    `db:"downvotes"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type commentDTO struct {
	ID           string         `db:"id"`
	PostID       string         `db:"post_id"`
	Content      string         `db:"content"`
	AuthorID     string         `db:"author_id"`
	IsOP         bool           `db:"is_op"`
	CommenterTag sql.NullString `db:"commenter_tag"`
	Upvotes      uint32         `db:"upvotes"`
	Downvotes    uint32         `db:"downvotes"`
	CreatedAt    time.Time      `db:"created_at"`
}

type voteDTO struct {
	VotedBy    string    `db:"voted_by"`
	TargetKind string    `db:"target_kind"`
	TargetID   string    `db:"target_id"`
	VoteType   string    `db:"vote_type"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (s pg) InTx(ctx context.Context, f func(s storage.Storage) error) error {
	db, ok := s.ext.(*sqlx.DB)
	if !ok {
		return errBeginCalledWithinTx
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to create tx: %w", err)
	}

	if err := f(pg{ext: tx}); err != nil {
		if err := tx.Rollback(); err != nil {
			log.WithError(err).Error("failed to rollback tx")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}

	return nil
}

func (s pg) CreatePost(ctx context.Context, p *entities.Post) error {
	post := postDTO{
		ID:        p.ID,
		Content:   p.Content,
		ImageURL:  p.ImageURL,
		AuthorID:  p.AuthorID,
		Upvotes:   p.Upvotes,
		Downvotes: p.Downvotes,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}

	if _, err := sqlx.NamedExecContext(ctx, s.ext,
		`
			INSERT INTO post(id, content, image_url, author_id, upvotes, downvotes, created_at, updated_at)
			VALUES(:id, :content, :image_url, :author_id, :upvotes, :downvotes, :created_at, :updated_at)
		`, post,
	); err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}

	return nil
}

func (s pg) GetPost(ctx context.Context, id string) (*entities.Post, error) {
	var p postDTO

	if err := sqlx.GetContext(ctx, s.ext, &p, `
			SELECT id, content, image_url, author_id, upvotes, downvotes, created_at, updated_at
			FROM post
			WHERE id = $1 AND deleted_at IS NULL
		`,
		id,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to query: %w", err)
	}

	return toPost(&p), nil
}

func (s pg) ListPosts(ctx context.Context) ([]*entities.Post, error) {
	var pp []*postDTO

	if err := sqlx.SelectContext(ctx, s.ext, &pp, `
			SELECT id, content, image_url, author_id, upvotes, downvotes, created_at, updated_at
			FROM post
			WHERE deleted_at IS NULL
			ORDER BY created_at DESC
		`,
	); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	out := make([]*entities.Post, len(pp))
	for i, v := range pp {
		out[i] = toPost(v)
	}

	return out, nil
}

func (s pg) DeletePost(ctx context.Context, id string, deletedBy string) error {
	res, err := s.ext.ExecContext(ctx,
		`UPDATE post SET deleted_at=now(), deleted_by=$2 WHERE id=$1 AND deleted_at IS NULL`,
		id, deletedBy,
	)

	if err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}

	if c, _ := res.RowsAffected(); c == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (s pg) CreateComment(ctx context.Context, c *entities.Comment) error {
	comment := commentDTO{
		ID:        c.ID,
		PostID:    c.PostID,
		Content:   c.Content,
		AuthorID:  c.AuthorID,
		IsOP:      c.IsOP,
		Upvotes:   c.Upvotes,
		Downvotes: c.Downvotes,
		CreatedAt: c.CreatedAt.UTC(),
	}

	if c.Tag != nil {
		comment.CommenterTag = sql.NullString{String: string(*c.Tag), Valid: true}
	}

	if _, err := sqlx.NamedExecContext(ctx, s.ext,
		`
			INSERT INTO comment(id, post_id, content, author_id, is_op, commenter_tag, upvotes, downvotes, created_at)
			VALUES(:id, :post_id, :content, :author_id, :is_op, :commenter_tag, :upvotes, :downvotes, :created_at)
		`, comment,
	); err != nil {
		if err, ok := err.(*pq.Error); ok && err.Code == foreignKeyViolation {
			return storage.ErrNotFound
		}

		return fmt.Errorf("failed to exec: %w", err)
	}

	return nil
}

func (s pg) GetComment(ctx context.Context, id string) (*entities.Comment, error) {
	var c commentDTO

	if err := sqlx.GetContext(ctx, s.ext, &c, `
			SELECT id, post_id, content, author_id, is_op, commenter_tag, upvotes, downvotes, created_at
			FROM comment
			WHERE id = $1
		`,
		id,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to query: %w", err)
	}

	return toComment(&c), nil
}

func (s pg) ListComments(ctx context.Context, postID string) ([]*entities.Comment, error) {
	return s.listComments(ctx, `WHERE post_id = $1 ORDER BY created_at ASC`, postID)
}

func (s pg) listAllComments(ctx context.Context) ([]*entities.Comment, error) {
	return s.listComments(ctx, `ORDER BY created_at ASC`)
}

func (s pg) listComments(ctx context.Context, tail string, args ...interface{}) ([]*entities.Comment, error) {
	var cc []*commentDTO

	if err := sqlx.SelectContext(ctx, s.ext, &cc, `
			SELECT id, post_id, content, author_id, is_op, commenter_tag, upvotes, downvotes, created_at
			FROM comment `+tail,
		args...,
	); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	out := make([]*entities.Comment, len(cc))
	for i, v := range cc {
		out[i] = toComment(v)
	}

	return out, nil
}

func (s pg) ListCommentAuthors(ctx context.Context, postID string) ([]string, error) {
	var aa []string

	if err := sqlx.SelectContext(ctx, s.ext, &aa, `
			SELECT author_id FROM comment
			WHERE post_id = $1
			GROUP BY author_id
			ORDER BY MIN(created_at) ASC
		`,
		postID,
	); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	return aa, nil
}

func (s pg) GetVote(ctx context.Context, key entities.VoteKey) (*entities.Vote, error) {
	var v voteDTO

	if err := sqlx.GetContext(ctx, s.ext, &v, `
			SELECT voted_by, target_kind, target_id, vote_type, created_at, updated_at
			FROM vote
			WHERE voted_by = $1 AND target_kind = $2 AND target_id = $3
		`,
		key.VotedBy, key.TargetKind, key.TargetID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to query: %w", err)
	}

	return toVote(&v), nil
}

func (s pg) SetVote(ctx context.Context, v *entities.Vote) error {
	if _, err := s.ext.ExecContext(ctx, `
			INSERT INTO vote(voted_by, target_kind, target_id, vote_type, created_at, updated_at)
				VALUES($1, $2, $3, $4, $5, $5)
			ON CONFLICT(voted_by, target_kind, target_id) DO UPDATE SET
				vote_type=excluded.vote_type, updated_at=excluded.updated_at`,
		v.VotedBy, v.TargetKind, v.TargetID, v.Type, v.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}

	return nil
}

func (s pg) DeleteVote(ctx context.Context, key entities.VoteKey) error {
	res, err := s.ext.ExecContext(ctx,
		`DELETE FROM vote WHERE voted_by=$1 AND target_kind=$2 AND target_id=$3`,
		key.VotedBy, key.TargetKind, key.TargetID,
	)

	if err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}

	if c, _ := res.RowsAffected(); c == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (s pg) ListVotes(ctx context.Context, votedBy string) ([]*entities.Vote, error) {
	return s.listVotes(ctx, `WHERE voted_by = $1`, votedBy)
}

func (s pg) listAllVotes(ctx context.Context) ([]*entities.Vote, error) {
	return s.listVotes(ctx, ``)
}

func (s pg) listVotes(ctx context.Context, tail string, args ...interface{}) ([]*entities.Vote, error) {
	var vv []*voteDTO

	if err := sqlx.SelectContext(ctx, s.ext, &vv, `
			SELECT voted_by, target_kind, target_id, vote_type, created_at, updated_at
			FROM vote `+tail,
		args...,
	); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	out := make([]*entities.Vote, len(vv))
	for i, v := range vv {
		out[i] = toVote(v)
	}

	return out, nil
}

func (s pg) ApplyCounterDeltas(ctx context.Context, kind entities.TargetKind, id string, up, down int32) error {
	var query string

	// Both deltas land in one relative UPDATE so concurrent voters never lose
	// an update and a vote switch is observable only as a whole.
	switch kind {
	case entities.PostTarget:
		query = `UPDATE post SET upvotes = upvotes + $2, downvotes = downvotes + $3, updated_at = now()
			WHERE id = $1 AND deleted_at IS NULL`
	case entities.CommentTarget:
		query = `UPDATE comment SET upvotes = upvotes + $2, downvotes = downvotes + $3 WHERE id = $1`
	default:
		return fmt.Errorf("unknown target kind %q", kind)
	}

	res, err := s.ext.ExecContext(ctx, query, id, up, down)
	if err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}

	if c, _ := res.RowsAffected(); c == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (s pg) UpsertUser(ctx context.Context, u *entities.User) error {
	if _, err := s.ext.ExecContext(ctx, `
			INSERT INTO "user"(id, email, created_at) VALUES($1, $2, $3)
			ON CONFLICT(id) DO UPDATE SET email=excluded.email`,
		u.ID, u.Email, u.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to exec: %w", err)
	}

	return nil
}

func (s pg) GetFeedStats(ctx context.Context) (*entities.FeedStats, error) {
	var stats struct {
		Posts    int64 `db:"posts"`
		Comments int64 `db:"comments"`
		Votes    int64 `db:"votes"`
	}

	if err := sqlx.GetContext(ctx, s.ext, &stats, `
			SELECT
				(SELECT count(*) FROM post WHERE deleted_at IS NULL) AS posts,
				(SELECT count(*) FROM comment) AS comments,
				(SELECT count(*) FROM vote) AS votes
		`,
	); err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	return &entities.FeedStats{
		Posts:    stats.Posts,
		Comments: stats.Comments,
		Votes:    stats.Votes,
	}, nil
}

// New creates new instance of pg.
func New(db *sql.DB) storage.Storage {
	return pg{
		ext: sqlx.NewDb(db, "postgres"),
	}
}

func toPost(p *postDTO) *entities.Post {
	return &entities.Post{
		ID:        p.ID,
		Content:   p.Content,
		ImageURL:  p.ImageURL,
		AuthorID:  p.AuthorID,
		Upvotes:   p.Upvotes,
		Downvotes: p.Downvotes,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toComment(c *commentDTO) *entities.Comment {
	out := entities.Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		Content:   c.Content,
		AuthorID:  c.AuthorID,
		IsOP:      c.IsOP,
		Upvotes:   c.Upvotes,
		Downvotes: c.Downvotes,
		CreatedAt: c.CreatedAt,
	}

	if c.CommenterTag.Valid {
		tag := entities.CommenterTag(c.CommenterTag.String)
		out.Tag = &tag
	}

	return &out
}

func toVote(v *voteDTO) *entities.Vote {
	return &entities.Vote{
		VoteKey: entities.VoteKey{
			VotedBy:    v.VotedBy,
			TargetKind: entities.TargetKind(v.TargetKind),
			TargetID:   v.TargetID,
		},
		Type:      entities.VoteType(v.VoteType),
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}
