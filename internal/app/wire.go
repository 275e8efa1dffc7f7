package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "xrpredict/internal/blob/s3"
	"xrpredict/internal/cache/redis"
	"xrpredict/internal/config"
	"xrpredict/internal/domain"
	"xrpredict/internal/ledger/xrpl"
	"xrpredict/internal/market"
	"xrpredict/internal/server"
	"xrpredict/internal/server/handler"
	"xrpredict/internal/service"
	"xrpredict/internal/store/postgres"
)

// Dependencies bundles everything the running application needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	State      *market.State
	Votes      *service.VoteService
	Settlement *service.SettlementService
	Monitor    *service.Monitor
	Server     *server.Server
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	marketStore := postgres.NewMarketStore(pool)
	settlementStore := postgres.NewSettlementStore(pool)
	auditStore := postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	lockManager := redis.NewLockManager(redisClient)
	snapshotCache := redis.NewSnapshotCache(redisClient)

	// --- S3 resolution archive (optional) ---
	var archiver domain.ResolutionArchiver
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		archiver = s3blob.NewArchiver(s3Client)
	}

	// --- Market state ---
	doc, found, err := marketStore.Load(ctx, market.DefaultMarketID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: load market: %w", err)
	}
	if !found {
		doc = market.New(
			cfg.Market.Question,
			time.Duration(cfg.Market.DurationHours)*time.Hour,
			cfg.Market.YesAddress,
			cfg.Market.NoAddress,
			time.Now().UTC(),
		)
		if err := marketStore.Save(ctx, doc); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: save initial market: %w", err)
		}
		logger.InfoContext(ctx, "created prediction market",
			slog.String("question", doc.Question),
			slog.Time("end_time", doc.EndTime),
		)
	}

	state := market.NewState(doc, multiPersister{marketStore, snapshotCache}, logger)

	// --- Ledger gateway ---
	dialer := xrpl.Dialer{
		URL:    cfg.XRPL.WSURL,
		Logger: logger,
	}

	// The monitor holds the one long-lived connection; votes and
	// settlement dial their own scoped connections.
	monitorClient, err := dialer.DialClient(ctx)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: dial xrpl node: %w", err)
	}
	closers = append(closers, func() { _ = monitorClient.Close() })

	// --- Services ---
	votes := service.NewVoteService(state, dialer, auditStore, service.VoteConfig{
		SubmitTimeout: cfg.XRPL.SubmitTimeout.Duration,
		MaxAttempts:   cfg.XRPL.MaxSubmitAttempts,
	}, logger)

	settlement := service.NewSettlementService(state, dialer, settlementStore, lockManager, archiver, auditStore, service.SettlementConfig{
		AdminSecret:   cfg.Admin.Secret,
		WalletAddress: cfg.Admin.WalletAddress,
		WalletSecret:  cfg.Admin.WalletSecret,
		PayoutDelay:   cfg.XRPL.PayoutDelay.Duration,
	}, logger)

	monitor := service.NewMonitor(state, monitorClient, auditStore, logger)

	// --- HTTP server ---
	srv := server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, server.Handlers{
		Health:     handler.NewHealthHandler(),
		Prediction: handler.NewPredictionHandler(state),
		Vote:       handler.NewVoteHandler(votes, logger),
		Resolve:    handler.NewResolveHandler(settlement, logger),
	}, logger)

	return &Dependencies{
		State:      state,
		Votes:      votes,
		Settlement: settlement,
		Monitor:    monitor,
		Server:     srv,
	}, cleanup, nil
}

// multiPersister fans a market save out to every configured store. The
// first store is the durable record; later stores are caches whose
// failures must not fail the save.
type multiPersister []market.Persister

func (mp multiPersister) Save(ctx context.Context, m domain.Market) error {
	var firstErr error
	for i, p := range mp {
		if err := p.Save(ctx, m); err != nil {
			if i == 0 {
				firstErr = err
			}
		}
	}
	return firstErr
}
