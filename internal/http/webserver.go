package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	nlogger "github.com/neutron-org/neutron-logger"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/metrics"
	"github.com/neutron-org/neutron-message-relayer/internal/opqueue"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

const (
	ServerContext     = "http"
	MessageRetry      = "/message_retry"
	Messages          = "/messages"
	PayloadStatus     = "/payloads/{uuid}"
	PrometheusMetrics = "/metrics"

	maxBodySize                = 1 << 20
	defaultRetryRequestTimeout = 5 * time.Second
)

// MessageEnqueuer accepts new messages for relaying.
type MessageEnqueuer interface {
	Enqueue(msg relay.Message, appContext string) (common.Hash, error)
}

// Deps is everything the control plane talks to.
type Deps struct {
	Storage             relay.Storage
	Broadcaster         *opqueue.RetryBroadcaster
	Enqueuer            MessageEnqueuer
	Entrypoint          relay.Entrypoint
	RetryRequestTimeout time.Duration
}

type MessageRetryResponse struct {
	UUID uuid.UUID `json:"uuid"`
	// Processed is the number of queues that answered before the timeout
	Processed int    `json:"processed"`
	Matched   uint32 `json:"matched"`
	Evaluated uint32 `json:"evaluated"`
}

type MessagesRequest struct {
	Messages   []relay.Message `json:"messages"`
	AppContext string          `json:"app_context,omitempty"`
}

type EnqueueResult struct {
	ID    common.Hash `json:"id"`
	Error string      `json:"error,omitempty"`
}

type PayloadStatusResponse struct {
	UUID   uuid.UUID           `json:"uuid"`
	Status relay.PayloadStatus `json:"status"`
}

func Run(ctx context.Context, logRegistry *nlogger.Registry, deps Deps, listenAddr string) error {
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           Router(logRegistry, deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger := logRegistry.Get(ServerContext)
	errch := make(chan error, 1)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to serve http", zap.Error(err))
			errch <- err
		}
	}()

	select {
	case err := <-errch:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down the api http")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown api http gracefully", zap.Error(err))
		return nil
	}

	logger.Info("api http shut down successfully")
	return nil
}

func Router(logRegistry *nlogger.Registry, deps Deps) *mux.Router {
	logger := logRegistry.Get(ServerContext)
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc(MessageRetry, messageRetry(logger, deps.Broadcaster, deps.RetryRequestTimeout)).Methods(http.MethodPost)
	router.HandleFunc(Messages, messages(logger, deps.Enqueuer)).Methods(http.MethodPost)
	router.HandleFunc(PayloadStatus, payloadStatus(logger, deps.Entrypoint)).Methods(http.MethodGet)
	router.Handle(PrometheusMetrics, NewPromWrapper(logRegistry, deps.Storage))
	return router
}

// messageRetry fans the pattern out to every operation queue and sums the
// answers that arrive before timeout.
func messageRetry(logger *zap.Logger, broadcaster *opqueue.RetryBroadcaster, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = defaultRetryRequestTimeout
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var pattern relay.MatchingList
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&pattern); err != nil {
			metrics.IncFailedRetryRequest()
			http.Error(w, "invalid matching list: "+err.Error(), http.StatusBadRequest)
			return
		}

		subscribers := broadcaster.SubscriberCount()
		responses := make(chan relay.MessageRetryQueueResponse, subscribers)
		req := relay.MessageRetryRequest{
			UUID:     uuid.New(),
			Pattern:  pattern,
			Response: responses,
		}
		logger := logger.With(zap.String("request_uuid", req.UUID.String()))

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := broadcaster.Send(ctx, req); err != nil {
			metrics.IncFailedRetryRequest()
			logger.Error("failed to broadcast retry request", zap.Error(err))
			http.Error(w, "Error processing request", http.StatusInternalServerError)
			return
		}

		res := MessageRetryResponse{UUID: req.UUID}
	collect:
		for res.Processed < subscribers {
			select {
			case resp := <-responses:
				res.Processed++
				res.Matched += resp.Matched
				res.Evaluated += resp.Evaluated
			case <-ctx.Done():
				logger.Warn("retry request timed out",
					zap.Int("processed", res.Processed),
					zap.Int("queues", subscribers))
				break collect
			}
		}

		metrics.IncSuccessRetryRequest()
		logger.Info("processed message retry request",
			zap.Uint32("matched", res.Matched),
			zap.Uint32("evaluated", res.Evaluated))
		writeJSON(logger, w, res)
	}
}

func messages(logger *zap.Logger, enqueuer MessageEnqueuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MessagesRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
			http.Error(w, "invalid messages request: "+err.Error(), http.StatusBadRequest)
			return
		}

		results := make([]EnqueueResult, 0, len(req.Messages))
		for _, msg := range req.Messages {
			id, err := enqueuer.Enqueue(msg, req.AppContext)
			result := EnqueueResult{ID: id}
			if err != nil {
				logger.Warn("failed to enqueue message", zap.String("message_id", id.Hex()), zap.Error(err))
				result.Error = err.Error()
			}
			results = append(results, result)
		}
		writeJSON(logger, w, results)
	}
}

func payloadStatus(logger *zap.Logger, entrypoint relay.Entrypoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(mux.Vars(r)["uuid"])
		if err != nil {
			http.Error(w, "invalid payload uuid", http.StatusBadRequest)
			return
		}

		status, err := entrypoint.PayloadStatus(r.Context(), id)
		if errors.Is(err, relay.ErrPayloadNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get payload status", zap.String("payload_uuid", id.String()), zap.Error(err))
			http.Error(w, "Error processing request", http.StatusInternalServerError)
			return
		}
		writeJSON(logger, w, PayloadStatusResponse{UUID: id, Status: status})
	}
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
		http.Error(w, "Error processing request", http.StatusInternalServerError)
	}
}
