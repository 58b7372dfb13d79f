package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/duo/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/duo/internal/adapter/driven/metrics"
	badgerstore "github.com/Wyydra/duo/internal/adapter/driven/persistence/badger"
	"github.com/Wyydra/duo/internal/adapter/driven/persistence/memory"
	redisstore "github.com/Wyydra/duo/internal/adapter/driven/persistence/redis"
	"github.com/Wyydra/duo/internal/adapter/driven/token"
	handler "github.com/Wyydra/duo/internal/adapter/driving/http"
	"github.com/Wyydra/duo/internal/config"
	"github.com/Wyydra/duo/internal/core/port"
	"github.com/Wyydra/duo/internal/core/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log.Logger = newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rooms, messages, closer, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open store")
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing store")
		}
	}()

	tokens, err := token.NewIssuer(cfg.TokenSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token issuer")
	}
	hub := ws.NewHub(tokens)
	prom := metrics.NewPrometheus()

	mailbox := service.NewMailbox(messages, cfg.MailboxCap)
	roomService := service.NewRoomService(rooms, mailbox, prom)
	relay := service.NewRelay(roomService, mailbox, hub,
		service.WithTokenTimeout(cfg.TokenTimeout),
		service.WithMetrics(prom),
	)

	h := handler.NewHandler(relay, roomService, hub, tokens, handler.Options{
		PublicBaseURL: cfg.PublicBaseURL,
		StaticDir:     cfg.StaticDir,
		CORSOrigins:   cfg.CORSOrigins(),
		ICE: handler.ICEConfig{
			StunServer:     cfg.StunServer,
			TurnServer:     cfg.TurnServer,
			TurnCredential: cfg.TurnCredential,
		},
		Metrics: prom.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("backend", cfg.StoreBackend).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to start server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	hub.Stop()
	log.Info().Msg("Server exited")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var w io.Writer = os.Stdout
	if !cfg.IsProd() {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func openStore(ctx context.Context, cfg config.Config) (port.RoomRepository, port.MessageRepository, io.Closer, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return nil, nil, nil, err
		}
		return redisstore.NewRoomRepository(rdb, cfg.RedisKeyPrefix),
			redisstore.NewMessageRepository(rdb, cfg.RedisKeyPrefix),
			rdb, nil
	case config.BackendBadger:
		store, err := badgerstore.Open(cfg.BadgerPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return badgerstore.NewRoomRepository(store), badgerstore.NewMessageRepository(store), store, nil
	default:
		return memory.NewRoomRepository(), memory.NewMessageRepository(), closerFunc(func() error { return nil }), nil
	}
}
