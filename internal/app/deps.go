package app

import (
	"context"
	"fmt"

	nlogger "github.com/neutron-org/neutron-logger"

	"github.com/neutron-org/neutron-message-relayer/internal/config"
	"github.com/neutron-org/neutron-message-relayer/internal/dispatcher"
	"github.com/neutron-org/neutron-message-relayer/internal/opqueue"
	"github.com/neutron-org/neutron-message-relayer/internal/processor"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

// DependencyContainer holds the long lived components of one destination
// domain, built in dependency order.
type DependencyContainer struct {
	adapter     relay.ChainAdapter
	dispatcher  *dispatcher.Dispatcher
	processor   *processor.Processor
	broadcaster *opqueue.RetryBroadcaster
}

func NewDefaultDependencyContainer(ctx context.Context,
	cfg config.RelayerConfig,
	logRegistry *nlogger.Registry,
	storage relay.Storage) (*DependencyContainer, error) {
	adapter, err := NewDefaultChainAdapter(ctx, cfg, logRegistry, storage)
	if err != nil {
		return nil, err
	}

	d := NewDefaultDispatcher(cfg, logRegistry, storage, adapter)
	broadcaster := opqueue.NewRetryBroadcaster(cfg.Processor.RetryChannelSize)

	p, err := NewDefaultProcessor(cfg, logRegistry, storage, d.Entrypoint(), broadcaster)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor: %w", err)
	}

	return &DependencyContainer{
		adapter:     adapter,
		dispatcher:  d,
		processor:   p,
		broadcaster: broadcaster,
	}, nil
}

func (c DependencyContainer) GetChainAdapter() relay.ChainAdapter {
	return c.adapter
}

func (c DependencyContainer) GetDispatcher() *dispatcher.Dispatcher {
	return c.dispatcher
}

func (c DependencyContainer) GetProcessor() *processor.Processor {
	return c.processor
}

func (c DependencyContainer) GetRetryBroadcaster() *opqueue.RetryBroadcaster {
	return c.broadcaster
}
