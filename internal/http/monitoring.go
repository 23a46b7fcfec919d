package http

import (
	"net/http"

	nlogger "github.com/neutron-org/neutron-logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/metrics"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

const MonitoringLoggerContext = "monitoring"

// PromWrapper refreshes the storage backed gauges before serving /metrics.
type PromWrapper struct {
	promHandler http.Handler
	storage     relay.TransactionStore
	logger      *zap.Logger
}

func NewPromWrapper(logRegistry *nlogger.Registry, storage relay.TransactionStore) PromWrapper {
	return PromWrapper{
		promHandler: promhttp.Handler(),
		storage:     storage,
		logger:      logRegistry.Get(MonitoringLoggerContext),
	}
}

func (p PromWrapper) fillUnfinishedTxsMetric() {
	txs, err := p.storage.GetAllUnfinishedTransactions()
	if err != nil {
		p.logger.Error("failed to get unfinished transactions from storage", zap.Error(err))
		return
	}
	metrics.SetUnfinishedTxsInStorage(len(txs))
}

func (p PromWrapper) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	p.fillUnfinishedTxsMetric()
	p.promHandler.ServeHTTP(res, req)
}
