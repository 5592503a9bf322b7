package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/blue-orion/pongservice/internal/auth"
	"github.com/blue-orion/pongservice/internal/cache"
	"github.com/blue-orion/pongservice/internal/database"
	"github.com/blue-orion/pongservice/internal/gateway"
	"github.com/blue-orion/pongservice/internal/handlers"
	"github.com/blue-orion/pongservice/internal/middleware"
	"github.com/blue-orion/pongservice/internal/registry"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("LOG_LEVEL") == "debug" {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := auth.Init(); err != nil {
		log.WithError(err).Fatal("failed to init auth keys")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		log.WithError(err).Fatal("failed to apply schema")
	}
	store := database.NewStore(pool)

	// The journal is optional: without Redis the service still runs, it just
	// keeps no external event history.
	var journal registry.EventJournal
	if redisJournal, err := cache.Connect(ctx); err != nil {
		log.WithError(err).Warn("redis unavailable, event journal disabled")
	} else {
		journal = redisJournal
		defer redisJournal.Close()
	}

	hub := gateway.NewHub(log)
	reg := registry.New(log, store, hub, journal)
	if raw := os.Getenv("LOBBY_SWEEP_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			log.WithError(err).Fatal("invalid LOBBY_SWEEP_INTERVAL")
		}
		reg.SetSweepInterval(d)
	}
	go reg.RunSweeper(ctx)

	srv := handlers.NewServer(log, reg, store, store)
	mux := srv.Routes()

	server := &http.Server{
		Handler:      middleware.LogMiddleware(log)(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	l, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		log.WithError(err).Fatal("failed to listen")
	}
	log.Infof("listening on %s", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		log.WithError(err).Error("failed to serve")
	case sig := <-sigs:
		log.Infof("terminating: %v", sig)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown error")
	}
}
