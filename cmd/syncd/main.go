package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"verdant-sync/config"
	"verdant-sync/internal/adapter"
	"verdant-sync/internal/auth"
	"verdant-sync/internal/events"
	"verdant-sync/internal/gateway"
	"verdant-sync/internal/media"
	"verdant-sync/internal/push"
	"verdant-sync/internal/server"
	"verdant-sync/internal/store"
	"verdant-sync/internal/syncer"
	"verdant-sync/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()
	l := logger.New(cfg.AppMode)
	defer l.Logger.Sync()

	session, err := auth.NewSession(cfg.SessionToken)
	if err != nil {
		log.Fatalf("Invalid session token: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := gateway.NewClient(cfg.APIBaseURL, session, gateway.WithTimeout(cfg.RequestTimeout))
	st := store.New(session.ViewerID(), l)
	normalizer := events.NewNormalizer(l)

	var transport push.Transport
	switch cfg.PushTransport {
	case "websocket":
		transport = push.NewWebsocketTransport(cfg.PushURL, session, l)
	default:
		transport = push.NewRedisTransport(push.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, l)
	}

	controller := syncer.NewController(transport, normalizer, st, gw, syncer.Config{
		BackoffBase:    cfg.BackoffBase,
		BackoffCap:     cfg.BackoffCap,
		LivenessWindow: cfg.LivenessWindow,
	}, l)
	controller.OnAuthError = func(err error) {
		l.Errorf("Session expired, re-authentication required: %v", err)
		stop()
	}

	var uploader *media.Uploader
	if cfg.S3Bucket != "" {
		uploader, err = media.NewUploader(ctx, media.Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBase,
			MaxBytes:   int64(cfg.MaxUploadMB) << 20,
		})
		if err != nil {
			log.Fatalf("Failed to initialize media uploader: %v", err)
		}
	}

	go func() {
		if err := controller.Run(ctx); err != nil && ctx.Err() == nil {
			l.Errorf("Sync controller stopped: %v", err)
			stop()
		}
	}()

	ad := adapter.New(st, gw, l)
	srv := server.New(ad, controller, uploader, l)

	l.Infof("Starting sync daemon for viewer %s on %s", session.ViewerID(), cfg.ListenAddr)
	if err := srv.Router(cfg.AppMode).Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
