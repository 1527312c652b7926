// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/faceoff-gg/faceoff/internal/auth"
	"github.com/faceoff-gg/faceoff/internal/events"
	"github.com/faceoff-gg/faceoff/internal/handlers"
	"github.com/faceoff-gg/faceoff/internal/middleware"
	"github.com/faceoff-gg/faceoff/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if err := auth.Init(); err != nil {
		log.Fatalf("auth init failed: %v", err)
	}

	ctx := context.Background()
	st, err := store.ConnectPostgres(ctx)
	if err != nil {
		log.Fatalf("database connect failed: %v", err)
	}
	defer st.Close()

	// Redis is optional; without it events are only logged.
	rdb, err := events.ConnectRedis(ctx)
	if err != nil {
		logger.Warnf("redis unavailable, event queue disabled: %v", err)
		rdb = nil
	}
	pub := events.NewPublisher(logger, rdb)

	srv := handlers.NewServer(st, pub, logger)
	srv.Matchmaking.StartSweeper(ctx)

	mux := srv.Routes()

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, middleware.LogMiddleware(logger)(mux)); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
