package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/shinyyama/dispatch-backend/internal/config"
	"github.com/shinyyama/dispatch-backend/internal/db"
	appmw "github.com/shinyyama/dispatch-backend/internal/middleware"
	"github.com/shinyyama/dispatch-backend/internal/server"
)

var (
	gitSHA    = "dev"
	buildTime = ""
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	dispatch, err := config.LoadDispatch(cfg.DispatchConfig)
	if err != nil {
		log.Fatalf("dispatch config error: %v", err)
	}
	deps, closeBackends, err := server.OpenBackends(ctx, cfg, dispatch)
	if err != nil {
		log.Fatalf("backend init error: %v", err)
	}
	defer closeBackends()

	authMw, err := appmw.NewAuthMiddleware(ctx, cfg.FirebaseProjectID)
	if err != nil {
		log.Fatalf("failed to init firebase auth: %v", err)
	}
	if authMw == nil {
		log.Printf("FIREBASE_PROJECT_ID not set; running without auth")
	}

	svcs := server.NewServices(nil, deps)
	srv := server.New(svcs, authMw, envOr("GIT_SHA", gitSHA), envOr("BUILD_TIME", buildTime))

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)

	go func() {
		log.Printf("starting server on %s", addr)
		errCh <- srv.Start(addr)
	}()

	go func() {
		conn, err := db.Connect(cfg)
		if err != nil {
			log.Printf("db connect error: %v", err)
			return
		}
		if err := db.Migrate(conn); err != nil {
			log.Printf("auto migrate error: %v", err)
		}
		srv.SetDB(conn)
		log.Printf("database ready driver=%s", cfg.DBDriver)
	}()

	if err := <-errCh; err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
