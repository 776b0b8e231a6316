package server

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RogueElectron/Cypher/internal/config"
	"github.com/RogueElectron/Cypher/internal/handler"
	"github.com/RogueElectron/Cypher/internal/opaque"
	"github.com/RogueElectron/Cypher/internal/rate"
	"github.com/RogueElectron/Cypher/internal/repository"
	"github.com/RogueElectron/Cypher/internal/router"
	tokenclient "github.com/RogueElectron/Cypher/internal/service/token"
	totpservice "github.com/RogueElectron/Cypher/internal/service/totp"
	"github.com/RogueElectron/Cypher/internal/session"
	"github.com/RogueElectron/Cypher/internal/usecase"
	"github.com/RogueElectron/Cypher/pkg/cache"
)

// NewServer wires the full dependency graph and returns the HTTP server plus
// a shutdown hook for the shared clients.
func NewServer(cfg config.Config) (*http.Server, func()) {
	dbpool, err := pgxpool.New(context.Background(), cfg.DBConnString)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}

	redisCache := cache.NewCache([]string{cfg.RedisAddr}, cfg.RedisPass, false)

	engine, err := opaque.NewServer(cfg.OprfSeed, cfg.AkeSeed)
	if err != nil {
		log.Fatalf("init opaque server: %v", err)
	}

	totpVerifier, err := totpservice.NewVerifier(cfg.TotpIssuer, cfg.TotpEncryptionKey)
	if err != nil {
		log.Fatalf("init totp verifier: %v", err)
	}

	credRepo := repository.NewPostgresCredentialRepository(dbpool)
	sessions := session.NewMemoryTable()
	tokens := tokenclient.NewClient(cfg.TokenSvcURL, cfg.TokenSvcTimeout)
	limiter := rate.NewLimiter(rate.NewRedisCounter(redisCache))

	authUC := usecase.NewAuthUsecase(engine, credRepo, sessions, totpVerifier, tokens, cfg.VerificationTimeout)
	authHandler := handler.NewAuthHandler(authUC)

	r := chi.NewRouter()
	router.SetupRoutes(r, authHandler, limiter, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
	cleanup := func() {
		dbpool.Close()
		if err := redisCache.Close(); err != nil {
			log.Printf("close redis: %v", err)
		}
	}
	return srv, cleanup
}
