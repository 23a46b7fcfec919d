package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelType        = "type"
	labelDestination = "destination"
	labelQueue       = "queue"
	labelStatus      = "status"
	labelAppContext  = "app_context"
	labelStage       = "stage"
	labelDomain      = "domain"
	labelReason      = "reason"
	typeSuccess      = "success"
	typeFailed       = "failed"
)

var (
	operationQueueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "operation_queue_length",
		Help: "The number of operations in an operation queue",
	}, []string{labelDestination, labelQueue, labelStatus, labelAppContext})

	stagePoolLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatcher_stage_pool_length",
		Help: "The number of transactions or payloads held by a dispatcher stage",
	}, []string{labelStage, labelDomain})

	submittedTxCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "submitted_txs",
		Help: "The total number of transaction broadcasts (counter)",
	}, []string{labelDomain, labelType})

	droppedTxCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dropped_txs",
		Help: "The total number of dropped transactions by reason (counter)",
	}, []string{labelDomain, labelReason})

	finalizedTxCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finalized_txs",
		Help: "The total number of finalized transactions (counter)",
	}, []string{labelDomain})

	escalatedPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "last_submitted_price",
		Help: "The fee price of the last submitted transaction",
	}, []string{labelDomain})

	retryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "message_retry_requests",
		Help: "The total number of message retry requests (counter)",
	}, []string{labelType})

	consistencyViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consistency_violations",
		Help: "The total number of detected inconsistencies between local state and chain state",
	}, []string{labelDomain})

	deliveredMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivered_messages",
		Help: "The total number of messages confirmed as delivered (counter)",
	}, []string{labelDestination})

	unfinishedTxsInStorage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "unfinished_txs",
		Help: "The total number of unfinished transactions in the storage",
	})
)

func IncOperationQueueLength(destination, queue, status, appContext string) {
	operationQueueLength.With(prometheus.Labels{
		labelDestination: destination,
		labelQueue:       queue,
		labelStatus:      status,
		labelAppContext:  appContext,
	}).Inc()
}

func DecOperationQueueLength(destination, queue, status, appContext string) {
	operationQueueLength.With(prometheus.Labels{
		labelDestination: destination,
		labelQueue:       queue,
		labelStatus:      status,
		labelAppContext:  appContext,
	}).Dec()
}

func SetStagePoolLength(stage, domain string, length int) {
	stagePoolLength.With(prometheus.Labels{
		labelStage:  stage,
		labelDomain: domain,
	}).Set(float64(length))
}

func IncSuccessTxSubmit(domain string) {
	submittedTxCounter.With(prometheus.Labels{
		labelDomain: domain,
		labelType:   typeSuccess,
	}).Inc()
}

func IncFailedTxSubmit(domain string) {
	submittedTxCounter.With(prometheus.Labels{
		labelDomain: domain,
		labelType:   typeFailed,
	}).Inc()
}

func IncDroppedTx(domain, reason string) {
	droppedTxCounter.With(prometheus.Labels{
		labelDomain: domain,
		labelReason: reason,
	}).Inc()
}

func IncFinalizedTx(domain string) {
	finalizedTxCounter.With(prometheus.Labels{
		labelDomain: domain,
	}).Inc()
}

func SetSubmittedPrice(domain string, price *big.Int) {
	if price == nil {
		return
	}
	f, _ := new(big.Float).SetInt(price).Float64()
	escalatedPrice.With(prometheus.Labels{
		labelDomain: domain,
	}).Set(f)
}

func IncSuccessRetryRequest() {
	retryRequests.With(prometheus.Labels{
		labelType: typeSuccess,
	}).Inc()
}

func IncFailedRetryRequest() {
	retryRequests.With(prometheus.Labels{
		labelType: typeFailed,
	}).Inc()
}

func IncConsistencyViolations(domain string) {
	consistencyViolations.With(prometheus.Labels{
		labelDomain: domain,
	}).Inc()
}

func IncDeliveredMessages(destination string) {
	deliveredMessages.With(prometheus.Labels{
		labelDestination: destination,
	}).Inc()
}

func SetUnfinishedTxsInStorage(size int) {
	unfinishedTxsInStorage.Set(float64(size))
}
