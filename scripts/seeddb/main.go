package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	migratep "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jessevdk/go-flags"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/quadfeed/quadfeed/internal/entities"
	"github.com/quadfeed/quadfeed/internal/service/impl"
	"github.com/quadfeed/quadfeed/internal/storage/postgres"
)

var opts = struct {
	Seed               string `long:"seed" env:"SEED" default:"seed.json" description:"path to seed file"`
	Postgres           string `long:"postgres" env:"POSTGRES" default:"host=localhost port=5432 user=postgres password=root sslmode=disable" description:"postgres dsn"`
	PostgresMigrations string `long:"postgres.migrations" env:"POSTGRES_MIGRATIONS" default:"scripts/migrations/postgres" description:"postgres migrations directory"`
}{}

type seed struct {
	Users []struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"users"`
	Posts []struct {
		Author   string `json:"author"`
		Content  string `json:"content"`
		ImageURL string `json:"image_url"`
	} `json:"posts"`
	Comments []struct {
		Post    int    `json:"post"`
		Author  string `json:"author"`
		Content string `json:"content"`
	} `json:"comments"`
	Votes []struct {
		Kind   entities.TargetKind `json:"kind"`
		Target int                 `json:"target"`
		By     string              `json:"by"`
		Type   entities.VoteType   `json:"type"`
	} `json:"votes"`
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.ShortDescription = "seeddb"
	parser.LongDescription = "Seed file to database importer"

	_, err := parser.Parse()

	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			parser.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		logrus.WithError(err).Fatal("error occurred while parsing flags")
	}

	logrus.Info("seeddb started")
	logrus.Infof("%+v", opts)

	b, err := os.ReadFile(opts.Seed)
	if err != nil {
		logrus.WithError(err).Fatal("failed to read seed")
	}

	var sd seed

	if err := json.Unmarshal(b, &sd); err != nil {
		logrus.WithError(err).Fatal("failed to unmarshal seed")
	}

	db := mustGetDB()
	s := impl.New(postgres.New(db))

	ctx := context.Background()

	logrus.Info("import users")
	for _, u := range sd.Users {
		if err := s.SaveUser(ctx, entities.Session{UserID: u.ID, Email: u.Email}); err != nil {
			logrus.WithError(err).Fatal("failed to save user")
		}
	}

	logrus.Info("import posts")
	postIDs := make([]string, 0, len(sd.Posts))
	for _, p := range sd.Posts {
		created, err := s.CreatePost(ctx, entities.Session{UserID: p.Author}, p.Content, p.ImageURL)
		if err != nil {
			logrus.WithError(err).Fatal("failed to create post")
		}
		postIDs = append(postIDs, created.ID)
	}

	logrus.Info("import comments")
	commentIDs := make([]string, 0, len(sd.Comments))
	for _, c := range sd.Comments {
		if c.Post < 0 || c.Post >= len(postIDs) {
			logrus.Fatalf("comment refers to unknown post %d", c.Post)
		}

		created, err := s.CreateComment(ctx, entities.Session{UserID: c.Author}, postIDs[c.Post], c.Content)
		if err != nil {
			logrus.WithError(err).Fatal("failed to create comment")
		}
		commentIDs = append(commentIDs, created.ID)
	}

	logrus.Info("import votes")
	for _, v := range sd.Votes {
		// the target index refers to the post or comment import order
		targets := postIDs
		if v.Kind == entities.CommentTarget {
			targets = commentIDs
		}

		if v.Target < 0 || v.Target >= len(targets) {
			logrus.Fatalf("vote refers to unknown %s %d", v.Kind, v.Target)
		}

		if err := s.ApplyVote(ctx, entities.Session{UserID: v.By}, v.Kind, targets[v.Target], v.Type); err != nil {
			logrus.WithError(err).Fatal("failed to apply vote")
		}
	}

	logrus.Info("seeddb finished")
}

func mustGetDB() *sql.DB {
	db, err := sql.Open("postgres", opts.Postgres)
	if err != nil {
		logrus.WithError(err).Fatal("failed to create postgres connection")
	}

	if err := db.PingContext(context.Background()); err != nil {
		logrus.WithError(err).Fatal("failed to ping postgres")
	}

	driver, err := migratep.WithInstance(db, &migratep.Config{})
	if err != nil {
		logrus.WithError(err).Fatal("failed to create database migrate driver")
	}

	migrator, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", opts.PostgresMigrations), "postgres", driver)
	if err != nil {
		logrus.WithError(err).Fatal("failed to create migrator")
	}

	switch err := migrator.Up(); err {
	case nil:
		logrus.Info("database was migrated")
	case migrate.ErrNoChange:
		logrus.Info("database is up-to-date")
	default:
		logrus.WithError(err).Fatal("failed to migrate db")
	}

	return db
}
