package main

import (
	"context"
	"fmt"
	"net"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/ponyo877/chatrelay/adminpb"
	"github.com/ponyo877/chatrelay/server/adaptor"
	"github.com/ponyo877/chatrelay/server/config"
	"github.com/ponyo877/chatrelay/server/domain"
	"github.com/ponyo877/chatrelay/server/repository"
	"github.com/ponyo877/chatrelay/server/usecase"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

var (
	cfgFile string
	envFile string
	v       *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:          "chatrelay-server",
	Short:        "Multi-room TCP chat relay",
	Long:         `Serves the line-based chat protocol, the admin gRPC service and the WebRTC signaling bridge.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, envFile, cfgFile)
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

func init() {
	v = config.New()

	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	flags.String("listen", ":8080", "chat relay TCP address")
	flags.String("admin", ":50051", "admin gRPC address, empty to disable")
	flags.String("bridge", ":8765", "signaling bridge address, empty to disable")
	flags.String("store", config.DriverJSON, "credential store driver (json, sqlite, redis)")

	v.BindPFlag(config.ListenAddrKey, flags.Lookup("listen"))
	v.BindPFlag(config.AdminListenAddrKey, flags.Lookup("admin"))
	v.BindPFlag(config.BridgeListenAddrKey, flags.Lookup("bridge"))
	v.BindPFlag(config.StoreDriverKey, flags.Lookup("store"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// openStore returns the configured credential store and its release func.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (usecase.Repository, func() error, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := repository.OpenSQLite(cfg.SQLiteDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repository.NewRepository(db), db.Close, nil
	case config.DriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return repository.NewRedisRepository(rdb), rdb.Close, nil
	default:
		repo, err := repository.NewJSONRepository(cfg.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() error { return nil }, nil
	}
}

func run(cfg *config.Config) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx := context.Background()
	repo, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return err
	}
	logger.Info("Store opened", zap.String("driver", cfg.Store.Driver))

	registry := domain.NewRoomRegistry(logger)
	uc := usecase.NewUsecase(repo, usecase.NewBcryptHasher(cfg.Auth.BcryptCost), registry, usecase.Options{
		QueueSize:  cfg.Session.QueueSize,
		BridgeHost: cfg.Video.BridgeHost,
	}, logger)

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		closeStore()
		return fmt.Errorf("failed to listen: %w", err)
	}
	relay := adaptor.NewTCPServer(uc, adaptor.TCPOptions{
		MaxLineBytes:   cfg.Session.MaxLineBytes,
		MaxConnections: cfg.Session.MaxConnections,
	}, logger)
	go func() {
		if err := relay.Serve(lis); err != nil {
			logger.Fatal("failed to serve chat relay", zap.Error(err))
		}
	}()

	operations := map[string]gfshutdown.Operation{
		// sessions drain before the store they write to is closed
		"chat-relay": func(ctx context.Context) error {
			shutdownErr := relay.Shutdown(ctx)
			if err := closeStore(); err != nil {
				logger.Error("failed to close store", zap.Error(err))
			}
			return shutdownErr
		},
	}

	if cfg.Admin.ListenAddr != "" {
		adminLis, err := net.Listen("tcp", cfg.Admin.ListenAddr)
		if err != nil {
			logger.Fatal("failed to listen", zap.String("addr", cfg.Admin.ListenAddr), zap.Error(err))
		}
		s := grpc.NewServer()
		adminpb.RegisterAdminServiceServer(s, adaptor.NewAdaptor(uc, logger))
		reflection.Register(s)
		go func() {
			logger.Info("Admin service is running", zap.String("addr", adminLis.Addr().String()))
			if err := s.Serve(adminLis); err != nil {
				logger.Fatal("failed to serve admin", zap.Error(err))
			}
		}()
		operations["admin"] = func(ctx context.Context) error {
			stopped := make(chan struct{})
			go func() {
				s.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
				return nil
			case <-ctx.Done():
				s.Stop()
				return ctx.Err()
			}
		}
	}

	if cfg.Bridge.ListenAddr != "" {
		if !cfg.Log.Development {
			gin.SetMode(gin.ReleaseMode)
		}
		bridgeLis, err := net.Listen("tcp", cfg.Bridge.ListenAddr)
		if err != nil {
			logger.Fatal("failed to listen", zap.String("addr", cfg.Bridge.ListenAddr), zap.Error(err))
		}
		bridge := adaptor.NewSignalBridge(logger)
		go func() {
			if err := bridge.Serve(bridgeLis); err != nil {
				logger.Fatal("failed to serve signaling bridge", zap.Error(err))
			}
		}()
		operations["bridge"] = bridge.Shutdown
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, operations)
	exitCode := <-wait
	logger.Info("Server exited", zap.Int("code", exitCode))
	logger.Sync()
	os.Exit(exitCode)
	return nil
}
