package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/quadfeed/quadfeed/internal/storage"
)

const (
	listenerMinReconnectInterval = time.Second
	listenerMaxReconnectInterval = 10 * time.Second

	channelPrefix = "quadfeed_"

	snapshotBuffer = 16
)

type subscriber struct {
	dsn string
	s   pg
}

// NewSubscriber creates a subscriber which listens to change notifications
// produced by the statement triggers and re-queries the complete result set of
// the changed collection on every notification.
func NewSubscriber(db *sql.DB, dsn string) storage.Subscriber {
	return subscriber{
		dsn: dsn,
		s:   pg{ext: sqlx.NewDb(db, "postgres")},
	}
}

func (s subscriber) Subscribe(ctx context.Context, collections ...storage.Collection) (<-chan storage.Snapshot, error) {
	l := pq.NewListener(s.dsn, listenerMinReconnectInterval, listenerMaxReconnectInterval,
		func(_ pq.ListenerEventType, err error) {
			if err != nil {
				log.WithError(err).Error("listener event error")
			}
		})

	for _, c := range collections {
		if err := l.Listen(channelPrefix + string(c)); err != nil {
			l.Close() // nolint: errcheck
			return nil, fmt.Errorf("failed to listen %s: %w", c, err)
		}
	}

	out := make(chan storage.Snapshot, snapshotBuffer)

	go s.run(ctx, l, collections, out)

	return out, nil
}

func (s subscriber) run(ctx context.Context, l *pq.Listener, collections []storage.Collection, out chan<- storage.Snapshot) {
	defer close(out)
	defer func() {
		if err := l.Close(); err != nil {
			log.WithError(err).Error("failed to close listener")
		}
	}()

	// initial snapshots, consumer state starts from the full current sets
	for _, c := range collections {
		s.emit(ctx, c, out)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.Notify:
			if n == nil {
				// connection was re-established, intermediate notifications
				// could be lost, re-emit everything
				for _, c := range collections {
					s.emit(ctx, c, out)
				}
				continue
			}

			s.emit(ctx, storage.Collection(n.Channel[len(channelPrefix):]), out)
		}
	}
}

func (s subscriber) emit(ctx context.Context, c storage.Collection, out chan<- storage.Snapshot) {
	snap, err := s.snapshot(ctx, c)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).WithField("collection", c).Error("failed to build snapshot")
		}
		return
	}

	select {
	case out <- *snap:
	case <-ctx.Done():
	}
}

func (s subscriber) snapshot(ctx context.Context, c storage.Collection) (*storage.Snapshot, error) {
	out := storage.Snapshot{Kind: c}

	var err error
	switch c {
	case storage.PostsCollection:
		out.Posts, err = s.s.ListPosts(ctx)
	case storage.CommentsCollection:
		out.Comments, err = s.s.listAllComments(ctx)
	case storage.VotesCollection:
		out.Votes, err = s.s.listAllVotes(ctx)
	default:
		return nil, fmt.Errorf("unknown collection %q", c)
	}

	if err != nil {
		return nil, err
	}

	return &out, nil
}
