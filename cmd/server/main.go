package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kodbank/kodbank/internal/config"
	"github.com/kodbank/kodbank/internal/events"
	"github.com/kodbank/kodbank/internal/hash"
	"github.com/kodbank/kodbank/internal/httpserver"
	"github.com/kodbank/kodbank/internal/logging"
	"github.com/kodbank/kodbank/internal/middleware"
	"github.com/kodbank/kodbank/internal/repo"
	"github.com/kodbank/kodbank/internal/service"
	"github.com/kodbank/kodbank/internal/tokens"
)

const sessionPurgeInterval = time.Hour

func main() {
	cfg := config.Load()
	config.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")

	logger := logging.New(cfg.LogLevel)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	gormRepo := repo.New(db)
	issuer := tokens.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	producer := events.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	authSvc := &service.AuthService{
		Repo:     gormRepo,
		Hasher:   hash.NewHasher(cfg.BcryptCost),
		Issuer:   issuer,
		Producer: producer,
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(middleware.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{
			Svc:           authSvc,
			SecureCookies: cfg.Production(),
		},
		Auth: middleware.NewSessionAuth(issuer, gormRepo),
	})

	purgeCtx, stopPurge := context.WithCancel(context.Background())
	go purgeSessions(purgeCtx, gormRepo, logger)

	go func() {
		if err := e.Start(fmt.Sprintf(":%d", cfg.ServerPort)); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop
	stopPurge()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("echo shutdown: %v", err)
	}
}

// purgeSessions drops expired session rows so the table does not grow
// without bound; revoked tokens are removed at logout, this only covers
// sessions abandoned until natural expiry.
func purgeSessions(ctx context.Context, r *repo.GormRepo, logger *slog.Logger) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.PurgeExpiredSessions(ctx)
			if err != nil {
				logger.Error("session purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged expired sessions", "count", n)
			}
		}
	}
}
