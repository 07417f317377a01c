package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/collectible-trade/internal/adapter/handler"
	"github.com/rl1809/collectible-trade/internal/adapter/messaging"
	"github.com/rl1809/collectible-trade/internal/adapter/presenter"
	"github.com/rl1809/collectible-trade/internal/adapter/storage"
	"github.com/rl1809/collectible-trade/internal/auth"
	"github.com/rl1809/collectible-trade/internal/config"
	"github.com/rl1809/collectible-trade/internal/core/service"
	"github.com/rl1809/collectible-trade/internal/logging"
	"github.com/rl1809/collectible-trade/internal/port"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trade-server",
	Short: "Serve peer-to-peer collectible trades over HTTP and gRPC",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Development, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Print a bearer token for a user, for local testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT secret not configured (set auth.jwt_secret or TRADE_JWT_SECRET)")
		}
		token, expiresAt, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.GetTokenTTL()).GenerateToken(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context) error {
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	for _, h := range cfg.Seed {
		if err := store.SetHolding(ctx, h.OwnerID, h.ItemID, h.Quantity); err != nil {
			return fmt.Errorf("seed holding %s/%s: %w", h.OwnerID, h.ItemID, err)
		}
	}
	if len(cfg.Seed) > 0 {
		logger.Info("seeded holdings", zap.Int("count", len(cfg.Seed)))
	}

	pres, closePresenter := openPresenter()
	defer closePresenter()

	timeouts := service.StageTimeouts{
		Selection:    cfg.GetSelectionTimeout(),
		Quantity:     cfg.GetQuantityTimeout(),
		Confirmation: cfg.GetConfirmationTimeout(),
	}
	executor := service.NewExecutor(store, logger)
	trades := service.NewTradeService(store, executor, pres, timeouts, logger)

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.GetTokenTTL())

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryServerInterceptor(jwtService)))
	handler.RegisterTradeServiceServer(grpcServer, handler.NewGRPCHandler(trades, logger))

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler.NewHTTPHandler(trades, store, store, logger).Routes(jwtService),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown", zap.Error(err))
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return nil
	})

	err = g.Wait()

	// open sessions are aborted before the presenter and store go away
	trades.Close()
	return err
}

func openStore(ctx context.Context) (storage.Store, func(), error) {
	switch cfg.Storage.Driver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			PoolSize: cfg.Storage.RedisPoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.Storage.RedisAddr))
		return storage.NewRedisAdapter(rdb), func() { rdb.Close() }, nil

	case "mysql":
		db, err := sql.Open("mysql", cfg.Storage.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect mysql: %w", err)
		}
		db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Storage.MaxIdleConns)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ping mysql: %w", err)
		}
		if cfg.Storage.Migrate {
			if err := storage.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		logger.Info("connected to mysql")
		return storage.NewMySQLAdapter(db), func() { db.Close() }, nil
	}

	logger.Warn("using in-memory storage; holdings are lost on restart")
	return storage.NewMemoryAdapter(), func() {}, nil
}

func openPresenter() (port.Presenter, func()) {
	logPresenter := presenter.NewLogPresenter(logger)
	if cfg.Presenter.Driver != "kafka" {
		return logPresenter, func() {}
	}

	producer := messaging.NewProducer(cfg.Presenter.Brokers, cfg.Presenter.Topic)
	logger.Info("publishing trade events",
		zap.Strings("brokers", cfg.Presenter.Brokers),
		zap.String("topic", cfg.Presenter.Topic),
	)
	closeProducer := func() {
		if err := producer.Close(); err != nil {
			logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	return presenter.Multi{logPresenter, presenter.NewKafkaPresenter(producer)}, closeProducer
}
