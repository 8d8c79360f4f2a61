package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatrelay/internal/chat"
	"chatrelay/internal/config"
	"chatrelay/internal/crypto"
	"chatrelay/internal/db"
	clog "chatrelay/internal/log"
	"chatrelay/internal/mw"
	"chatrelay/internal/presence"
	"chatrelay/internal/relay"
	"chatrelay/internal/server"
	"chatrelay/internal/service"
	"chatrelay/internal/ws"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	// 本地开发时允许从 .env 读取配置，文件不存在不算错误。
	_ = godotenv.Load()
	cfg := config.Load()
	clog.Init(cfg.Env, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	cipher, err := crypto.NewFromBase64(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("encryption key")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	store := service.NewStore(gdb)

	registry := presence.NewRegistry()
	router := relay.NewRouter(store, cipher, registry)

	hub := ws.NewHub()
	go hub.Run()

	limiter := mw.NewLimiter(rate.Every(time.Second/20), 40, 2*time.Minute)

	r := server.SetupRouter(cfg, server.Deps{
		Users:   store,
		Chats:   chat.NewAggregator(store),
		Hub:     hub,
		Relay:   router,
		Limiter: limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info().Msg("shutting down")

	// 先停止接收新请求，再关闭现有 WebSocket 连接并清空在线表。
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	hub.Stop()
	registry.Clear()
	limiter.Stop()
	if err := db.Close(gdb); err != nil {
		log.Error().Err(err).Msg("db close")
	}
	log.Info().Msg("bye")
}
