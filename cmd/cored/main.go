package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/campreserv/core/internal/httpserver"
	"github.com/campreserv/core/internal/sitelock"
	"github.com/campreserv/core/internal/store/gormstore"
	"github.com/campreserv/core/internal/store/pgstore"
	"github.com/campreserv/core/pkg/inventory"
	"github.com/campreserv/core/pkg/ledger"
	"github.com/campreserv/core/pkg/payments"
)

const (
	flagDatabaseURL  = "database-url"
	flagListenAddr   = "listen-addr"
	flagStoreBackend = "store-backend"

	configKeyDatabaseURL     = "database_url"
	configKeyListenAddr      = "listen_addr"
	configKeyStoreBackend    = "store_backend"
	configKeyRedisAddr       = "redis_addr"
	configKeyJWTSigningKey   = "jwt_signing_key"
	configKeyWebhookSecret   = "webhook_secret"
	configKeyPaymentsBaseURL = "payments_base_url"
	configKeyPaymentsAPIKey  = "payments_api_key"
	configKeyChartFile       = "chart_file"
	configKeyTolerance       = "reconcile_tolerance_minor_units"
	configKeyAllowedOrigins  = "allowed_origins"

	defaultDatabaseURL  = "sqlite:///tmp/campreserv.db"
	defaultListenAddr   = ":8080"
	defaultStoreBackend = storeBackendGorm

	storeBackendGorm = "gorm"
	storeBackendPgx  = "pgx"
)

type runtimeConfig struct {
	DatabaseURL     string
	ListenAddr      string
	StoreBackend    string
	RedisAddr       string
	JWTSigningKey   string
	WebhookSecret   string
	PaymentsBaseURL string
	PaymentsAPIKey  string
	ChartFile       string
	Tolerance       int64
	AllowedOrigins  []string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cored: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "cored",
		Short:         "Campreserv ledger and inventory core server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagStoreBackend, defaultStoreBackend, "Storage backend: gorm or pgx")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	envBindings := map[string]string{
		configKeyDatabaseURL:     "DATABASE_URL",
		configKeyListenAddr:      "LISTEN_ADDR",
		configKeyStoreBackend:    "STORE_BACKEND",
		configKeyRedisAddr:       "REDIS_ADDR",
		configKeyJWTSigningKey:   "JWT_SIGNING_KEY",
		configKeyWebhookSecret:   "WEBHOOK_SECRET",
		configKeyPaymentsBaseURL: "PAYMENTS_BASE_URL",
		configKeyPaymentsAPIKey:  "PAYMENTS_API_KEY",
		configKeyChartFile:       "CHART_FILE",
		configKeyTolerance:       "RECONCILE_TOLERANCE_MINOR_UNITS",
		configKeyAllowedOrigins:  "ALLOWED_ORIGINS",
	}
	for configKey, envName := range envBindings {
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
	}
	if err := viper.BindPFlag(configKeyDatabaseURL, cmd.Flags().Lookup(flagDatabaseURL)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeyListenAddr, cmd.Flags().Lookup(flagListenAddr)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeyStoreBackend, cmd.Flags().Lookup(flagStoreBackend)); err != nil {
		return err
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.StoreBackend = viper.GetString(configKeyStoreBackend)
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = defaultStoreBackend
	}
	cfg.RedisAddr = viper.GetString(configKeyRedisAddr)
	cfg.JWTSigningKey = viper.GetString(configKeyJWTSigningKey)
	cfg.WebhookSecret = viper.GetString(configKeyWebhookSecret)
	cfg.PaymentsBaseURL = viper.GetString(configKeyPaymentsBaseURL)
	cfg.PaymentsAPIKey = viper.GetString(configKeyPaymentsAPIKey)
	cfg.ChartFile = viper.GetString(configKeyChartFile)
	cfg.Tolerance = viper.GetInt64(configKeyTolerance)
	if origins := viper.GetString(configKeyAllowedOrigins); origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}

	if cfg.JWTSigningKey == "" {
		return fmt.Errorf("jwt signing key is required")
	}
	if cfg.WebhookSecret == "" {
		return fmt.Errorf("webhook secret is required")
	}
	if cfg.PaymentsBaseURL == "" {
		return fmt.Errorf("payments base url is required")
	}
	if cfg.StoreBackend != storeBackendGorm && cfg.StoreBackend != storeBackendPgx {
		return fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == storeBackendPgx && !isPostgresURL(cfg.DatabaseURL) {
		return fmt.Errorf("pgx store backend requires a postgres database url")
	}
	return nil
}

// accountSeeder is implemented by both store backends.
type accountSeeder interface {
	SeedAccounts(ctx context.Context, accounts []ledger.Account) error
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	var (
		ledgerStore    ledger.Store
		inventoryStore inventory.Store
		seeder         accountSeeder
		cleanup        func() error
	)
	switch cfg.StoreBackend {
	case storeBackendPgx:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("pgx pool: %w", err)
		}
		cleanup = func() error { pool.Close(); return nil }
		pgLedger := pgstore.NewLedgerStore(pool)
		ledgerStore = pgLedger
		inventoryStore = pgstore.NewInventoryStore(pool)
		seeder = pgLedger
	default:
		gormDB, dbCleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database open: %w", err)
		}
		cleanup = dbCleanup
		if driver == "sqlite" {
			if err := gormstore.AutoMigrate(gormDB); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
		}
		gormLedger := gormstore.NewLedgerStore(gormDB)
		ledgerStore = gormLedger
		inventoryStore = gormstore.NewInventoryStore(gormDB)
		seeder = gormLedger
	}
	defer func() { _ = cleanup() }()

	registry, err := buildRegistry(cfg.ChartFile)
	if err != nil {
		return err
	}
	if err := seeder.SeedAccounts(ctx, registry.Accounts()); err != nil {
		return fmt.Errorf("seed accounts: %w", err)
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	ledgerService, err := ledger.NewService(ledgerStore, registry, clock,
		ledger.WithOperationLogger(httpserver.NewLedgerOperationLogger(logger)),
		ledger.WithCommitListener(httpserver.NewLedgerCommitListener(logger)))
	if err != nil {
		return fmt.Errorf("ledger service init: %w", err)
	}

	cashAccount, err := ledger.NewAccountCode(ledger.DefaultCashAccountCode)
	if err != nil {
		return fmt.Errorf("cash account code: %w", err)
	}
	revenueAccount, err := ledger.NewAccountCode(ledger.DefaultSiteRevenueAccountCode)
	if err != nil {
		return fmt.Errorf("revenue account code: %w", err)
	}

	paymentsClient := payments.NewHTTPClient(cfg.PaymentsBaseURL, cfg.PaymentsAPIKey)
	refunds, err := ledger.NewRefundEngine(ledgerService, httpserver.NewRefundProcessor(paymentsClient),
		cashAccount, revenueAccount)
	if err != nil {
		return fmt.Errorf("refund engine init: %w", err)
	}
	reconciler, err := ledger.NewReconciler(ledgerStore, httpserver.NewPayoutSource(paymentsClient),
		cashAccount, cfg.Tolerance)
	if err != nil {
		return fmt.Errorf("reconciler init: %w", err)
	}

	var locker inventory.SiteLocker
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = redisClient.Close() }()
		locker = sitelock.NewRedisLocker(redisClient)
		logger.Info("site locking via redis", zap.String("addr", cfg.RedisAddr))
	} else {
		locker = sitelock.NewLocalLocker()
		logger.Info("site locking in process")
	}

	blocks, err := inventory.NewManager(inventoryStore, locker, clock, uuid.NewString,
		inventory.WithOperationLogger(httpserver.NewInventoryOperationLogger(logger)))
	if err != nil {
		return fmt.Errorf("block manager init: %w", err)
	}
	groups, err := inventory.NewCoordinator(inventoryStore, clock, uuid.NewString,
		inventory.WithCoordinatorLogger(httpserver.NewInventoryOperationLogger(logger)))
	if err != nil {
		return fmt.Errorf("group coordinator init: %w", err)
	}

	server, err := httpserver.New(httpserver.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSigningKey:  []byte(cfg.JWTSigningKey),
		WebhookSecret:  []byte(cfg.WebhookSecret),
	}, logger, ledgerService, refunds, reconciler, blocks, groups)
	if err != nil {
		return fmt.Errorf("http server init: %w", err)
	}
	return server.Run(ctx)
}

func buildRegistry(chartFile string) (*ledger.Registry, error) {
	chart := ledger.DefaultChart()
	if chartFile != "" {
		file, err := os.Open(chartFile)
		if err != nil {
			return nil, fmt.Errorf("chart file open: %w", err)
		}
		defer file.Close()
		chart, err = ledger.LoadChart(file)
		if err != nil {
			return nil, fmt.Errorf("chart file load: %w", err)
		}
	}
	registry, err := ledger.NewRegistry(chart)
	if err != nil {
		return nil, fmt.Errorf("chart registry: %w", err)
	}
	return registry, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func resolveDriver(dsn string) (string, string, error) {
	if isPostgresURL(dsn) {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "campreserv.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
