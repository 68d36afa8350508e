package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/causeway-labs/causeway/internal/blob/s3"
	"github.com/causeway-labs/causeway/internal/cache/redis"
	"github.com/causeway-labs/causeway/internal/config"
	"github.com/causeway-labs/causeway/internal/crypto"
	"github.com/causeway-labs/causeway/internal/domain"
	"github.com/causeway-labs/causeway/internal/notify"
	"github.com/causeway-labs/causeway/internal/service"
	"github.com/causeway-labs/causeway/internal/store/memory"
	"github.com/causeway-labs/causeway/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Persistence
	Store domain.Store

	// Redis-backed infrastructure. Nil in dev mode.
	EventCache  domain.EventCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage. Nil unless S3 is enabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Identity
	Signer *crypto.Signer

	// Services
	Registry  *service.RegistryService
	Escrow    *service.EscrowService
	Oracle    *service.OracleService
	Batch     *service.BatchService
	Transfers *service.TransferService

	// Notifications
	Notifier *notify.Notifier
}

// devMode reports whether the engine runs against the in-memory store
// without Redis or Postgres.
func devMode(mode string) bool {
	return strings.ToLower(mode) == "dev"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Identity ---
	if cfg.Signer.PrivateKey != "" || cfg.Signer.EncryptedKeyPath != "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Signer.PrivateKey,
			EncryptedKeyPath: cfg.Signer.EncryptedKeyPath,
			KeyPassword:      cfg.Signer.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load signing key: %w", err)
		}
		signer, err := crypto.NewSigner(key)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		deps.Signer = signer
	}

	// --- Persistence + Redis ---
	if devMode(cfg.Mode) {
		deps.Store = memory.New()
	} else {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Store = postgres.NewStore(pgClient)

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

		deps.EventCache = redis.NewEventCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.BlobReader, deps.Store)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	clock := domain.ClockFunc(func() time.Time { return time.Now().UTC() })

	// Dev mode runs without a signing key; any fixed address works as the
	// engine identity there.
	identity := domain.Address("0x0000000000000000000000000000000000000001")
	if deps.Signer != nil {
		identity = domain.Address(deps.Signer.Address().Hex())
	}

	oracleParams := service.OracleParams{
		Identity:         identity,
		MinProposalStake: domain.Amount(cfg.Oracle.MinProposalStake),
		MinVoteStake:     domain.Amount(cfg.Oracle.MinVoteStake),
		ProposalWindow:   cfg.Oracle.ProposalWindow.Duration,
		VotingWindow:     cfg.Oracle.VotingWindow.Duration,
	}
	if err := oracleParams.Validate(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: oracle params: %w", err)
	}

	deps.Registry = service.NewRegistryService(deps.Store, deps.SignalBus, clock, logger)
	deps.Escrow = service.NewEscrowService(deps.Store, deps.SignalBus, clock, domain.Amount(cfg.Escrow.MinDonation), logger)
	deps.Oracle = service.NewOracleService(deps.Store, deps.SignalBus, clock, oracleParams, logger)
	deps.Batch = service.NewBatchService(deps.Store, deps.SignalBus, clock, logger)
	deps.Transfers = service.NewTransferService(deps.Store, clock, logger)

	return deps, cleanup, nil
}
