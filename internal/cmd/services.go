package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/openbid/auctiond/internal/auction"
	"github.com/openbid/auctiond/internal/auctionstate"
	"github.com/openbid/auctiond/internal/bidder"
	"github.com/openbid/auctiond/internal/bidledger"
	"github.com/openbid/auctiond/internal/eventbus"
	"github.com/openbid/auctiond/internal/gateway"
	"github.com/openbid/auctiond/internal/lot"
	"github.com/openbid/auctiond/internal/presentation"
)

type Services struct {
	Engine    *auction.Engine
	Gateway   *gateway.Service
	Publisher *eventbus.Publisher
	Redis     *redis.Client
}

func setupServices(ctx context.Context, config *Config, pool *pgxpool.Pool) (*Services, error) {
	// Repository layer → engine → gateway, all sharing one pool.
	lotRepo := lot.NewRepository(pool)
	bidderRepo := bidder.NewRepository(pool)
	ledgerRepo := bidledger.NewRepository(pool)
	stateRepo := auctionstate.NewRepository(pool)

	rdb := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", config.Redis.Addr),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", config.Redis.DB),
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	plock := presentation.NewRedisLock(rdb, config.Redis.LockKey)

	auth := gateway.NewAuthenticator(bidderRepo, getEnv("CONTROL_CREDENTIAL", ""))

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.NATSEnabled = config.NATS.Enabled
	gatewayConfig.JetStreamConfig.URL = config.NATS.URL

	gw, err := gateway.NewService(gatewayConfig, auth, bidderRepo)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	// With NATS enabled the engine publishes to JetStream and the gateway
	// consumes; otherwise it broadcasts straight into the hub.
	var broadcaster auction.Broadcaster = gw
	var publisher *eventbus.Publisher
	if config.NATS.Enabled {
		pubConfig := eventbus.DefaultPublisherConfig()
		pubConfig.URL = config.NATS.URL
		publisher, err = eventbus.NewPublisher(ctx, pubConfig)
		if err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		broadcaster = publisher
	}

	engine := auction.NewEngine(
		config.Auction,
		lotRepo,
		bidderRepo,
		ledgerRepo,
		stateRepo,
		plock,
		broadcaster,
		clockwork.NewRealClock(),
	)
	gw.BindEngine(engine)

	return &Services{
		Engine:    engine,
		Gateway:   gw,
		Publisher: publisher,
		Redis:     rdb,
	}, nil
}

func (s *Services) Close() {
	s.Engine.Stop()
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Redis != nil {
		s.Redis.Close()
	}
}
