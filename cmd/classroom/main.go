package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-classroom/internal/client"
	"github.com/noah-isme/gema-classroom/internal/config"
	"github.com/noah-isme/gema-classroom/internal/database"
	"github.com/noah-isme/gema-classroom/internal/events"
	"github.com/noah-isme/gema-classroom/internal/session"
	"github.com/noah-isme/gema-classroom/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level := zerolog.WarnLevel
	if cfg.AppEnv == "development" {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, closeStorage, err := openSessionStorage(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to open session storage: %v", err)
	}
	defer closeStorage()

	sessions := session.NewProvider(storage, logger)
	if _, err := sessions.Load(ctx); err != nil {
		log.Fatalf("failed to load session: %v", err)
	}

	api := client.New(cfg.APIBaseURL, sessions, logger, client.WithTimeout(cfg.APITimeout))
	alerter := workflow.NewWriterAlerter(os.Stderr)

	cli := &commandLine{
		sessions: sessions,
		api:      api,
		board:    workflow.NewBoard(api, alerter, workflow.Options{PageSize: cfg.ListPageSize, Logger: logger}),
		alerter:  alerter,
		out:      os.Stdout,
		location: time.Local,
		changes:  assignmentChanges(cfg, logger),
		logger:   logger,
	}

	if err := cli.run(ctx, os.Args); err != nil {
		stop()
		closeStorage()
		if errors.Is(err, errHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// openSessionStorage shares the session through redis when configured, otherwise keeps it in
// a per-user file.
func openSessionStorage(ctx context.Context, cfg config.Config, logger zerolog.Logger) (session.Storage, func(), error) {
	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return session.NewRedisStorage(redisClient, cfg.SessionNamespace, logger), func() { _ = redisClient.Close() }, nil
	}

	path, err := session.DefaultSessionPath(cfg.SessionNamespace)
	if err != nil {
		return nil, nil, err
	}
	return session.NewFileStorage(path), func() {}, nil
}

// assignmentChanges subscribes to assignment events over NATS. It returns nil when NATS is
// not configured.
func assignmentChanges(cfg config.Config, logger zerolog.Logger) subscribeFunc {
	if cfg.NATSURL == "" {
		return nil
	}
	return func(ctx context.Context, handle func(events.AssignmentChanged)) error {
		conn, err := events.Connect(cfg.NATSURL, cfg.AppName+" cli")
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		return events.Subscribe(ctx, conn, cfg.NATSSubject, logger, handle)
	}
}
