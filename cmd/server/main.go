package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"kycnet/internal/audit"
	"kycnet/internal/audit/relay"
	auditmemory "kycnet/internal/audit/store/memory"
	auditpostgres "kycnet/internal/audit/store/postgres"
	"kycnet/internal/authn"
	"kycnet/internal/authn/revocation"
	"kycnet/internal/platform/config"
	"kycnet/internal/platform/httpserver"
	"kycnet/internal/platform/logger"
	platformmetrics "kycnet/internal/platform/metrics"
	"kycnet/internal/platform/middleware"
	platformredis "kycnet/internal/platform/redis"
	"kycnet/internal/registry"
	"kycnet/internal/registry/handler"
	registrymetrics "kycnet/internal/registry/metrics"
	"kycnet/internal/registry/service"
	registrymemory "kycnet/internal/registry/store/memory"
	registrypostgres "kycnet/internal/registry/store/postgres"
	id "kycnet/pkg/domain"
)

// main wires configuration, storage, the registry engine, and the HTTP
// surface, then runs the server and the audit relay until shutdown.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adminID, err := id.ParseBankID(cfg.AdminID)
	if err != nil {
		return err
	}

	// Storage: Postgres when configured, in-memory otherwise.
	var (
		txRunner   registry.Tx
		auditStore audit.Store
		outbox     *auditpostgres.Store
		db         *sql.DB
	)
	if cfg.PostgresURL != "" {
		db, err = sql.Open("pgx", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		store := registrypostgres.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		txRunner = newRegistryPostgresTx(db, store)
		outbox = auditpostgres.New(db)
		auditStore = outbox
		log.Info("registry storage: postgres")
	} else {
		store := registrymemory.New()
		txRunner = registrymemory.NewTxRunner(store)
		auditStore = auditmemory.New()
		log.Warn("registry storage: in-memory, state is lost on restart")
	}

	// Revocations: Redis when configured so every instance sees the same
	// list, in-process otherwise.
	var revocations interface {
		authn.RevocationList
		middleware.Revocations
	}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		revocations = revocation.NewRedisList(redisClient.Client)
		log.Info("revocation list: redis")
	} else {
		revocations = revocation.NewMemoryList()
	}

	adminSecretHash := []byte(cfg.AdminSecretHash)
	if len(adminSecretHash) == 0 {
		adminSecretHash, err = bcrypt.GenerateFromPassword([]byte("dev-admin-secret"), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		log.Warn("KYCNET_ADMIN_SECRET_HASH not set, using development admin secret")
	}

	jwtService := authn.NewJWTService(cfg.JWTSigningKey, "kycnet", "kycnet")
	authnService, err := authn.NewService(
		authn.NewInMemoryCredentialStore(),
		jwtService,
		revocations,
		adminID,
		adminSecretHash,
		cfg.TokenTTL,
		log,
	)
	if err != nil {
		return err
	}

	publisher := audit.NewPublisher(auditStore, audit.WithLogger(log))
	registryService, err := service.New(txRunner, adminID, publisher, log, registrymetrics.New())
	if err != nil {
		return err
	}

	registryHandler := handler.New(registryService, authnService, log)
	authnHandler := authn.NewHandler(authnService)
	httpMetrics := platformmetrics.New()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.ClientMetadata)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(httpMetrics.Latency)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	authnHandler.RegisterPublic(router)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(authn.NewJWTServiceAdapter(jwtService), revocations, log))
		r.Use(middleware.ContentTypeJSON)
		registryHandler.Register(r)
		authnHandler.RegisterProtected(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting kycnet registry", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if outbox != nil && len(cfg.KafkaBrokers) > 0 {
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.KafkaBrokers...),
			kgo.DefaultProduceTopic(cfg.AuditTopic),
		)
		if err != nil {
			return err
		}
		defer kafkaClient.Close()

		if err := relay.EnsureTopic(ctx, kafkaClient, cfg.AuditTopic, 1, 1); err != nil {
			return err
		}
		auditRelay, err := relay.New(outbox, kafkaClient, cfg.AuditTopic, log)
		if err != nil {
			return err
		}
		group.Go(func() error {
			log.Info("starting audit relay", "topic", cfg.AuditTopic)
			err := auditRelay.Run(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return group.Wait()
}
