package main

import (
	"context"
	"embed"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/djeraseit/parity/pkg/account"
	"github.com/djeraseit/parity/pkg/log"
	"github.com/djeraseit/parity/pkg/rpc"
	"github.com/djeraseit/parity/pkg/sign"
)

//go:embed config/migrations/*/*.sql
var embedMigrations embed.FS

const (
	rpcListenEndpoint = "/ws"
	metricsEndpoint   = "/metrics"
	shutdownTimeout   = 5 * time.Second
)

func main() {
	logger := log.NewZapLogger(log.Config{Format: "console", Level: log.LevelInfo}).WithName("keyring")
	if len(os.Args) > 1 {
		runCli(logger, os.Args[1], os.Args[2:])
		return
	}

	config, err := LoadConfig(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	logger = log.NewZapLogger(config.logConf).WithName("keyring")

	signer, err := sign.NewEthereumSigner(config.server.SignerPrivateKey)
	if err != nil {
		logger.Fatal("failed to initialise signer", "error", err)
	}
	logger.Info("node signer initialized", "address", signer.PublicKey().Address().String())

	provider, auditLog, err := newProvider(config, logger)
	if err != nil {
		logger.Fatal("failed to initialise account provider", "error", err)
	}

	metrics := NewMetrics()
	rpcNode, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{
		Signer: signer,
		Logger: logger,
		OnConnectHandler: func(string, rpc.SendResponseFunc) {
			metrics.ConnectedClients.Inc()
			metrics.ConnectionsTotal.Inc()
		},
		OnDisconnectHandler: func(string) {
			metrics.ConnectedClients.Dec()
		},
		OnMessageSentHandler: func([]byte) {
			metrics.MessageSent.Inc()
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise RPC node", "error", err)
	}

	limiter := NewUnlockLimiter(config.server.UnlockRPS, config.server.UnlockBurst, 0)
	NewRPCRouter(rpcNode, provider, RPCRouterConfig{
		HideUnknownAccounts: config.server.HideUnknownAccounts,
	}, metrics, limiter, auditLog, logger)

	rpcMux := http.NewServeMux()
	rpcMux.Handle(rpcListenEndpoint, rpcNode)
	rpcServer := &http.Server{
		Addr:              config.server.RPCListenAddr,
		Handler:           rpcMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle(metricsEndpoint, promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              config.server.MetricsListenAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Prometheus metrics available", "listenAddr", metricsServer.Addr, "endpoint", metricsEndpoint)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failure", "error", err)
		}
	}()

	go func() {
		logger.Info("RPC server available", "listenAddr", rpcServer.Addr, "endpoint", rpcListenEndpoint)
		if err := rpcServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("RPC server failure", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down metrics server", "error", err)
	}
	if err := rpcServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down RPC server", "error", err)
	}

	logger.Info("shutdown complete")
}

// newProvider builds the account provider for the configured mode. The
// audit log is only available in production mode.
func newProvider(config *Config, logger log.Logger) (account.Provider, AuditRecorder, error) {
	switch config.server.Mode {
	case ModeTest:
		seeds, err := LoadSeedAccounts(config.configDirPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("test mode: serving password-only accounts", "count", len(seeds))
		provider, err := NewSeededProvider(seeds)
		if err != nil {
			return nil, nil, err
		}
		return provider, nil, nil
	case ModeProduction:
		cost := config.server.BcryptCost
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return nil, nil, fmt.Errorf("bcrypt cost out of range: %d", cost)
		}
		db, err := ConnectToDB(config.dbConf, logger)
		if err != nil {
			return nil, nil, err
		}
		provider, err := account.NewKeyProvider(NewAccountStore(db), account.WithBcryptCost(cost))
		if err != nil {
			return nil, nil, err
		}
		return provider, NewAuditLogStore(db), nil
	default:
		return nil, nil, fmt.Errorf("unsupported mode: %s", config.server.Mode)
	}
}

func runCli(logger log.Logger, name string, args []string) {
	switch name {
	case "list-accounts":
		runListAccountsCli(logger)
	case "new-account":
		runNewAccountCli(logger)
	case "import-account":
		runImportAccountCli(logger)
	case "audit-log":
		runAuditLogCli(logger, args)
	case "sign":
		runRemoteSignCli(logger, args)
	default:
		logger.Fatal("unknown CLI command", "name", name)
	}
}
