package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dreamshop/gateway/internal/audit"
	"github.com/dreamshop/gateway/internal/auth"
	"github.com/dreamshop/gateway/internal/cache"
	"github.com/dreamshop/gateway/internal/completion"
	"github.com/dreamshop/gateway/internal/config"
	"github.com/dreamshop/gateway/internal/db"
	"github.com/dreamshop/gateway/internal/escrow"
	"github.com/dreamshop/gateway/internal/events"
	"github.com/dreamshop/gateway/internal/logger"
	"github.com/dreamshop/gateway/internal/middleware"
	"github.com/dreamshop/gateway/internal/outbox"
	"github.com/dreamshop/gateway/internal/payment/paypal"
	"github.com/dreamshop/gateway/internal/payment/stripepay"
	"github.com/dreamshop/gateway/internal/server"
	"github.com/dreamshop/gateway/internal/shipping"
	"github.com/dreamshop/gateway/internal/wordpress"
)

func main() {
	cfg, dotenv, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if !dotenv {
		lg.Info("no .env file found, using process environment")
	}
	if err := cfg.Validate(); err != nil {
		lg.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("server stopped", zap.Error(err))
	}
	lg.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, lg *zap.Logger) error {
	var database *sql.DB
	if cfg.DSN != "" {
		var err error
		database, err = db.NewDB(cfg.DSN)
		if err != nil {
			return fmt.Errorf("connect to db: %w", err)
		}
		defer database.Close()
	}

	wp, err := wordpress.NewClient(wordpress.Config{
		BaseURL:        cfg.WordPressURL,
		ConsumerKey:    cfg.ConsumerKey,
		ConsumerSecret: cfg.ConsumerSecret,
		Timeout:        cfg.UpstreamTimeout,
	}, lg)
	if err != nil {
		return err
	}

	store, err := newEscrowStore(ctx, cfg, database)
	if err != nil {
		return err
	}
	go escrow.NewJanitor(store, time.Hour, lg).Start(ctx)

	// the audit pool outlives the server so in-flight completions are recorded
	auditCtx, auditCancel := context.WithCancel(context.Background())
	processors := []audit.AuditLogProcessor{&audit.LogProcessor{Logger: lg, Filter: cfg.AuditFilter}}
	if database != nil {
		processors = append(processors, audit.NewDBProcessor(database))
	}
	auditPool := audit.NewAuditWorkerPool(audit.AuditPoolConfig{
		BatchSize:   cfg.AuditBatchSize,
		Timeout:     cfg.AuditFlushInterval,
		ChannelSize: cfg.AuditBatchSize * 10,
	}, lg, processors...)
	auditPool.Start(auditCtx, 2)
	defer auditPool.Shutdown(auditCancel)

	brokers := cfg.KafkaBrokers()
	var publisher events.Publisher = events.LogPublisher{Logger: lg}
	if len(brokers) > 0 {
		producer, err := events.NewSaramaProducer(brokers, lg)
		if err != nil {
			return err
		}
		defer producer.Close()
		publisher = producer

		handler := events.NewConsumerGroupHandler(auditPool, lg)
		go func() {
			if err := events.StartSaramaConsumer(ctx, brokers, cfg.KafkaGroupID, []string{cfg.KafkaTopic}, handler, lg); err != nil {
				lg.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	var emitter completion.Emitter = outbox.Direct{Publisher: publisher, Topic: cfg.KafkaTopic}
	var claims completion.ClaimStore = completion.NewMemoryClaims(completion.DefaultClaimTTL)
	if database != nil {
		repo := outbox.NewPostgresRepository(database)
		emitter = outbox.NewWriter(repo)
		go outbox.NewProcessor(repo, publisher, cfg.KafkaTopic, 2*time.Second, 50, lg).Start(ctx)
		claims = completion.NewPostgresClaims(database, completion.DefaultClaimTTL)
	}

	var stripeGW stripepay.Gateway
	if cfg.StripeSecretKey != "" {
		stripeGW = stripepay.NewClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	} else {
		lg.Warn("STRIPE_SECRET_KEY not set, card payments disabled")
	}
	var pp server.PayPal
	if cfg.PayPalClientID != "" {
		client, err := paypal.NewClient(paypal.Config{
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			BaseURL:      cfg.PayPalBaseURL,
			Timeout:      cfg.UpstreamTimeout,
		}, lg)
		if err != nil {
			return err
		}
		pp = client
	}

	completer := completion.New(completion.Deps{
		Orders:  wp,
		Fees:    wp,
		Stripe:  stripeGW,
		Escrow:  store,
		Claims:  claims,
		Emitter: emitter,
		Audit:   paymentAuditor(brokers, auditPool),
		Logger:  lg,
	})

	zones := cache.NewZoneCache(wp, lg)
	if err := zones.Refresh(ctx); err != nil {
		lg.Warn("initial shipping zone load failed, quoting from fallback table", zap.Error(err))
	}
	go zones.StartAutoRefresh(ctx, cfg.ShippingZonesRefresh)

	limiter := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	go limiter.StartSweeper(ctx, 5*time.Minute)

	srv := server.NewServer(server.Deps{
		Addr:      cfg.Addr(),
		Currency:  cfg.StripeCurrency,
		Logger:    lg,
		Verifier:  auth.NewVerifier(cfg.JWTSecret),
		Upstream:  wp,
		Orders:    wp,
		Fees:      wp,
		Stripe:    stripeGW,
		PayPal:    pp,
		Escrow:    store,
		Completer: completer,
		Shipping:  shipping.NewCalculator(zones, lg),
		Audit:     auditPool,
		Limiter:   limiter,
	})
	return srv.Run(ctx)
}

// paymentAuditor picks the single writer of payment audit records. With
// Kafka the consumer records every published event.
func paymentAuditor(brokers []string, pool *audit.AuditWorkerPool) completion.Auditor {
	if len(brokers) > 0 {
		return nil
	}
	return pool
}

func newEscrowStore(ctx context.Context, cfg *config.Config, database *sql.DB) (escrow.Store, error) {
	switch cfg.EscrowBackend {
	case config.EscrowPostgres:
		return escrow.NewPostgresStore(database, cfg.EscrowTTL), nil
	case config.EscrowDynamoDB:
		client, err := escrow.NewDynamoDBClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, err
		}
		return escrow.NewDynamoStore(client, cfg.EscrowTable, cfg.EscrowTTL), nil
	default:
		return escrow.NewMemoryStore(cfg.EscrowTTL), nil
	}
}
