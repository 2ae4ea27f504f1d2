package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/dust3/gatekeeper/adapters/events"
	"github.com/dust3/gatekeeper/adapters/ledger"
	"github.com/dust3/gatekeeper/adapters/oracle"
	"github.com/dust3/gatekeeper/adapters/payout"
	"github.com/dust3/gatekeeper/adapters/store"
	"github.com/dust3/gatekeeper/adapters/tokenizer"
	"github.com/dust3/gatekeeper/adapters/treasury"
	"github.com/dust3/gatekeeper/config"
	"github.com/dust3/gatekeeper/guard/lockout"
	"github.com/dust3/gatekeeper/guard/ratelimit"
	"github.com/dust3/gatekeeper/guard/replay"
	"github.com/dust3/gatekeeper/migrations"
	"github.com/dust3/gatekeeper/ports"
	"github.com/dust3/gatekeeper/service"
	"github.com/dust3/gatekeeper/sigverify"
	transport "github.com/dust3/gatekeeper/transport/http"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Generate a signing key pair (load from a secret store in production)
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Error("failed to generate signing key", "error", err)
		os.Exit(1)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Error("failed to parse Redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		log.Error("failed to create Redis publisher", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var (
		identities  ports.IdentityStore
		settlements ports.SettlementStore
		nonces      ports.NonceStore
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		goose.SetBaseFS(migrations.Migrations)
		if err := goose.UpContext(ctx, db, "."); err != nil {
			log.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		identities = store.NewPostgresIdentityStore(db)
		settlements = store.NewPostgresSettlementStore(db)

		nonceStore := store.NewPostgresNonceStore(db)
		nonces = nonceStore
		go sweepNonces(ctx, nonceStore, log)
	} else {
		log.Warn("POSTGRES_DSN not set, using in-memory stores")
		identities = store.NewMemoryIdentityStore()
		settlements = store.NewMemorySettlementStore()
		// Nonces stay in Redis so replay protection still spans instances.
		nonces = store.NewRedisNonceStore(redisClient)
	}

	lockouts := lockout.New(lockout.DefaultConfig())
	go sweepLockouts(lockouts, log)

	gate := service.NewAuthGate(
		sigverify.New(),
		ratelimit.New(cfg.MaxTrackedKeys),
		lockouts,
		replay.NewCSRFManager(replay.DefaultCSRFConfig()),
		replay.NewNonceGuard(nonces, replay.DefaultNonceConfig()),
		identities,
		store.NewRedisTokenStore(redisClient),
		tokenizer.NewJWTTokenizer(signKey),
		events.NewWatermillPublisher(publisher),
		sigverify.NewAllowList(cfg.AdminWallets),
		log,
	)

	buybackCfg := service.DefaultBuybackConfig()
	buybackCfg.SpreadBps = cfg.SpreadBps
	buybackCfg.FeeFlat = cfg.FeeFlat
	buybackCfg.PayoutTimeout = cfg.PayoutTimeout

	buyback := service.NewBuybackService(
		oracle.NewStaticOracle(cfg.OraclePrice),
		ledger.NewRedisLedger(redisClient),
		treasury.NewRedisTreasury(redisClient, cfg.TreasuryFloor),
		payout.NewSimulatedExecutor(100*time.Millisecond),
		settlements,
		events.NewWatermillPublisher(publisher),
		buybackCfg,
		log,
	)

	router := transport.SetupRouter(gate, buyback, ratelimit.New(cfg.MaxTrackedKeys), transport.RateClasses{
		General: ratelimit.Config{MaxRequests: cfg.GeneralRateMax, Window: cfg.GeneralRateWindow},
		Connect: ratelimit.Config{MaxRequests: cfg.ConnectRateMax, Window: cfg.ConnectRateWindow},
		Settle:  ratelimit.Config{MaxRequests: cfg.SettleRateMax, Window: cfg.SettleRateWindow},
		Quote:   ratelimit.Config{MaxRequests: cfg.QuoteRateMax, Window: cfg.QuoteRateWindow},
	}, log)

	log.Info("starting server", "addr", cfg.ListenAddr)
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func sweepNonces(ctx context.Context, s *store.PostgresNonceStore, log *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		if removed, err := s.Sweep(ctx); err != nil {
			log.Warn("nonce sweep failed", "error", err)
		} else if removed > 0 {
			log.Debug("swept expired nonces", "removed", removed)
		}
	}
}

func sweepLockouts(g *lockout.Guard, log *slog.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		if removed := g.Sweep(); removed > 0 {
			log.Debug("swept idle lockout records", "removed", removed)
		}
	}
}
