package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/vinhdn/quizio/internal/api"
	"github.com/vinhdn/quizio/internal/archive"
	"github.com/vinhdn/quizio/internal/event"
	"github.com/vinhdn/quizio/internal/game"
	"github.com/vinhdn/quizio/internal/leaderboard"
	"github.com/vinhdn/quizio/internal/quiz"
	"github.com/vinhdn/quizio/internal/realtime"
	"github.com/vinhdn/quizio/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Quiz struct {
			Addr string
			User string
			Pass string
			Name string
		}

		Archive struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}
}

type Server struct {
	c Config

	eb  *event.Bus
	hub *realtime.Hub

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
		}

		postgres struct {
			quiz    *pgxpool.Pool
			archive *pgxpool.Pool
		}
	}

	service struct {
		quiz        *quiz.Service
		archive     *archive.Service
		leaderboard *leaderboard.Service
		game        *game.Service
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	s.hub = realtime.NewHub()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Leaderboard.Addrs,
		Password: s.c.Redis.Leaderboard.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.leaderboard = r
	return nil
}

func (s *Server) initPostgres() (err error) {
	connect := func(addr, user, pass, name string) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", user, pass, addr, name))
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			return nil, err
		}

		return db, nil
	}

	s.infra.postgres.quiz, err = connect(s.c.Postgres.Quiz.Addr, s.c.Postgres.Quiz.User, s.c.Postgres.Quiz.Pass, s.c.Postgres.Quiz.Name)
	if err != nil {
		return fmt.Errorf("postgres: quiz: %w", err)
	}

	s.infra.postgres.archive, err = connect(s.c.Postgres.Archive.Addr, s.c.Postgres.Archive.User, s.c.Postgres.Archive.Pass, s.c.Postgres.Archive.Name)
	if err != nil {
		return fmt.Errorf("postgres: archive: %w", err)
	}

	return nil
}

func (s *Server) initService() {
	s.service.quiz = quiz.NewService(quiz.Config{
		DB: s.infra.postgres.quiz,
	})

	s.service.archive = archive.NewService(archive.Config{
		EventBus: s.eb,
		DB:       s.infra.postgres.archive,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})

	s.service.game = game.NewService(game.Config{
		Channel:  s.hub,
		Quizzes:  s.service.quiz,
		EventBus: s.eb,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Router:      e,
		Hub:         s.hub,
		Game:        s.service.game,
		Quiz:        s.service.quiz,
		Archive:     s.service.archive,
		Leaderboard: s.service.leaderboard,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err := eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.hub.Close()
	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
