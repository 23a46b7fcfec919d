package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	nlogger "github.com/neutron-org/neutron-logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/app"
	"github.com/neutron-org/neutron-message-relayer/internal/config"
	relayerhttp "github.com/neutron-org/neutron-message-relayer/internal/http"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

const (
	mainContext = "main"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the message relayer main app",
	Run: func(cmd *cobra.Command, args []string) {
		startRelayer()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}

func startRelayer() {
	contexts := append(app.LoggerContexts(), mainContext, relayerhttp.ServerContext, relayerhttp.MonitoringLoggerContext)
	logRegistry, err := nlogger.NewRegistry(contexts...)
	if err != nil {
		log.Fatalf("couldn't initialize loggers registry: %s", err)
	}
	logger := logRegistry.Get(mainContext)
	defer func() { _ = logger.Sync() }()

	logger.Info("neutron-message-relayer starts...", zap.String("version", app.Version), zap.String("commit", app.Commit))

	cfg, err := config.NewRelayerConfig()
	if err != nil {
		logger.Fatal("cannot initialize relayer config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	storage, err := app.NewDefaultStorage(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create NewDefaultStorage", zap.Error(err))
	}
	defer func(storage relay.Storage) {
		if err := storage.Close(); err != nil {
			logger.Error("failed to close storage", zap.Error(err))
		}
	}(storage)

	deps, err := app.NewDefaultDependencyContainer(ctx, cfg, logRegistry, storage)
	if err != nil {
		logger.Fatal("failed to create NewDefaultDependencyContainer", zap.Error(err))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		err := relayerhttp.Run(ctx, logRegistry, relayerhttp.Deps{
			Storage:             storage,
			Broadcaster:         deps.GetRetryBroadcaster(),
			Enqueuer:            deps.GetProcessor(),
			Entrypoint:          deps.GetDispatcher().Entrypoint(),
			RetryRequestTimeout: cfg.RetryRequestTimeout,
		}, cfg.ListenAddr)
		if err != nil {
			logger.Error("WebServer exited with an error", zap.Error(err))
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		if err := deps.GetDispatcher().Run(ctx); err != nil {
			logger.Error("Dispatcher exited with an error", zap.Error(err))
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		if err := deps.GetProcessor().Run(ctx); err != nil {
			logger.Error("Processor exited with an error", zap.Error(err))
			cancel()
		}
	}()

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

		select {
		case s := <-sigs:
			logger.Info("Received termination signal, gracefully shutting down...",
				zap.String("signal", s.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	wg.Wait()
}
