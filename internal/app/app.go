package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	nlogger "github.com/neutron-org/neutron-logger"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/adapter/cosmos"
	"github.com/neutron-org/neutron-message-relayer/internal/adapter/evm"
	"github.com/neutron-org/neutron-message-relayer/internal/config"
	"github.com/neutron-org/neutron-message-relayer/internal/dispatcher"
	"github.com/neutron-org/neutron-message-relayer/internal/opqueue"
	"github.com/neutron-org/neutron-message-relayer/internal/processor"
	"github.com/neutron-org/neutron-message-relayer/internal/registry"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
	"github.com/neutron-org/neutron-message-relayer/internal/storage"
)

var (
	Version = ""
	Commit  = ""
)

const (
	AppContext           = "app"
	DispatcherContext    = "dispatcher"
	ProcessorContext     = "processor"
	EVMAdapterContext    = "evm_adapter"
	CosmosAdapterContext = "cosmos_adapter"
)

// retries configuration for connecting to the destination chain
var (
	rtyAtt = retry.Attempts(uint(5))
	rtyDel = retry.Delay(time.Second * 10)
	rtyErr = retry.LastErrorOnly(true)
)

// LoggerContexts lists every logger the relayer asks the registry for.
func LoggerContexts() []string {
	return []string{
		AppContext,
		DispatcherContext,
		ProcessorContext,
		EVMAdapterContext,
		CosmosAdapterContext,
	}
}

// NewDefaultStorage opens the leveldb storage, or an in-memory one when no
// storage path is configured.
func NewDefaultStorage(cfg config.RelayerConfig, logger *zap.Logger) (relay.Storage, error) {
	if cfg.StoragePath == "" {
		logger.Warn("storage path is not set, relayer state will not survive a restart")
		return storage.NewMemoryStorage(), nil
	}

	leveldbStorage, err := storage.NewLevelDBStorage(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create NewLevelDBStorage: %w", err)
	}
	return leveldbStorage, nil
}

// NewDefaultChainAdapter connects to the destination chain of the configured vm.
func NewDefaultChainAdapter(ctx context.Context, cfg config.RelayerConfig, logRegistry *nlogger.Registry, storage relay.Storage) (relay.ChainAdapter, error) {
	var adapter relay.ChainAdapter
	err := retry.Do(func() error {
		var err error
		switch cfg.VM {
		case config.VMEVM:
			adapter, err = evm.NewAdapter(ctx, cfg.EVM, storage, logRegistry.Get(EVMAdapterContext))
		case config.VMCosmos:
			adapter, err = cosmos.NewAdapter(cfg.Cosmos, logRegistry.Get(CosmosAdapterContext))
		default:
			return retry.Unrecoverable(fmt.Errorf("unsupported vm %q", cfg.VM))
		}
		return err
	}, retry.Context(ctx), rtyAtt, rtyDel, rtyErr)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s chain adapter: %w", cfg.VM, err)
	}
	return adapter, nil
}

func NewDefaultDispatcher(cfg config.RelayerConfig, logRegistry *nlogger.Registry, storage relay.Storage, adapter relay.ChainAdapter) *dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		cfg.Dispatcher,
		strconv.FormatUint(uint64(cfg.DestinationDomain), 10),
		storage,
		adapter,
		logRegistry.Get(DispatcherContext),
	)
}

func NewDefaultProcessor(
	cfg config.RelayerConfig,
	logRegistry *nlogger.Registry,
	storage relay.Storage,
	entrypoint relay.Entrypoint,
	broadcaster *opqueue.RetryBroadcaster,
) (*processor.Processor, error) {
	whitelist, blacklist, err := cfg.Registry.Lists()
	if err != nil {
		return nil, fmt.Errorf("failed to load registry lists: %w", err)
	}

	return processor.NewProcessor(
		cfg.Processor,
		cfg.DestinationDomain,
		storage,
		entrypoint,
		processor.BodyPayloadBuilder{},
		registry.New(whitelist, blacklist),
		broadcaster,
		logRegistry.Get(ProcessorContext),
	), nil
}
