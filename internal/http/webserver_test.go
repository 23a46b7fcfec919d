package http_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	nlogger "github.com/neutron-org/neutron-logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	relayerhttp "github.com/neutron-org/neutron-message-relayer/internal/http"
	"github.com/neutron-org/neutron-message-relayer/internal/opqueue"
	"github.com/neutron-org/neutron-message-relayer/internal/processor"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
	"github.com/neutron-org/neutron-message-relayer/internal/storage"
	mock_relay "github.com/neutron-org/neutron-message-relayer/testutil/mocks/relay"
)

type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []relay.Message
}

func (e *fakeEnqueuer) Enqueue(msg relay.Message, _ string) (common.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if msg.Destination != 2 {
		return msg.ComputeID(), errors.New("wrong destination")
	}
	e.enqueued = append(e.enqueued, msg)
	return msg.ComputeID(), nil
}

type testServer struct {
	server      *httptest.Server
	broadcaster *opqueue.RetryBroadcaster
	entrypoint  *mock_relay.MockEntrypoint
	enqueuer    *fakeEnqueuer
	client      *relayerhttp.RelayerClient
}

func newTestServer(t *testing.T, timeout time.Duration) *testServer {
	logRegistry, err := nlogger.NewRegistry(relayerhttp.ServerContext, relayerhttp.MonitoringLoggerContext)
	require.NoError(t, err)

	ts := &testServer{
		broadcaster: opqueue.NewRetryBroadcaster(4),
		entrypoint:  mock_relay.NewMockEntrypoint(gomock.NewController(t)),
		enqueuer:    &fakeEnqueuer{},
	}
	ts.server = httptest.NewServer(relayerhttp.Router(logRegistry, relayerhttp.Deps{
		Storage:             storage.NewMemoryStorage(),
		Broadcaster:         ts.broadcaster,
		Enqueuer:            ts.enqueuer,
		Entrypoint:          ts.entrypoint,
		RetryRequestTimeout: timeout,
	}))
	t.Cleanup(ts.server.Close)

	ts.client, err = relayerhttp.NewRelayerClient(ts.server.URL)
	require.NoError(t, err)
	return ts
}

// runQueue answers retry requests for q until the test ends.
func runQueue(t *testing.T, q *opqueue.OpQueue) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.Cleanup(func() {
		cancel()
		<-done
	})

	go func() {
		defer close(done)
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				q.ProcessRetryRequests()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func pendingMessage(origin uint32) *processor.PendingMessage {
	msg := relay.Message{Origin: origin, Destination: 2, Nonce: origin, Body: []byte{0x01}}
	msg.ID = msg.ComputeID()
	return processor.NewPendingMessage(&relay.MessageRecord{Message: msg}, time.Second, time.Minute)
}

func TestMessageRetrySumsQueueResponses(t *testing.T) {
	ts := newTestServer(t, 5*time.Second)

	prepare := opqueue.NewOpQueue("prepare", ts.broadcaster.Subscribe(), zap.NewNop())
	confirm := opqueue.NewOpQueue("confirm", ts.broadcaster.Subscribe(), zap.NewNop())
	prepare.Push(pendingMessage(1), nil)
	prepare.Push(pendingMessage(2), nil)
	confirm.Push(pendingMessage(1), nil)
	runQueue(t, prepare)
	runQueue(t, confirm)

	res, err := ts.client.RetryMessages(relay.MatchingList{{OriginDomain: relay.Enumerated[uint32](1)}})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, res.UUID)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, uint32(2), res.Matched)
	assert.Equal(t, uint32(3), res.Evaluated)
}

func TestMessageRetryTimesOut(t *testing.T) {
	ts := newTestServer(t, 50*time.Millisecond)
	ts.broadcaster.Subscribe()

	res, err := ts.client.RetryMessages(relay.MatchingList{{}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, uint32(0), res.Matched)
}

func TestMessageRetryRejectsInvalidPattern(t *testing.T) {
	ts := newTestServer(t, time.Second)

	res, err := http.Post(ts.server.URL+relayerhttp.MessageRetry, "application/json", strings.NewReader(`{"not":"a list"}`))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestMessagesEnqueue(t *testing.T) {
	ts := newTestServer(t, time.Second)

	good := relay.Message{Nonce: 1, Origin: 1, Destination: 2, Body: []byte{0x01}}
	bad := relay.Message{Nonce: 2, Origin: 1, Destination: 3, Body: []byte{0x02}}

	results, err := ts.client.SendMessages(relayerhttp.MessagesRequest{Messages: []relay.Message{good, bad}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, good.ComputeID(), results[0].ID)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, bad.ComputeID(), results[1].ID)
	assert.Equal(t, "wrong destination", results[1].Error)
	assert.Len(t, ts.enqueuer.enqueued, 1)
}

func TestPayloadStatus(t *testing.T) {
	ts := newTestServer(t, time.Second)

	found := uuid.New()
	missing := uuid.New()
	ts.entrypoint.EXPECT().PayloadStatus(gomock.Any(), found).Return(relay.InTransaction(relay.StatusMempool), nil)
	ts.entrypoint.EXPECT().PayloadStatus(gomock.Any(), missing).Return(relay.PayloadStatus{}, fmt.Errorf("%w: %s", relay.ErrPayloadNotFound, missing))

	res, err := ts.client.PayloadStatus(found)
	require.NoError(t, err)
	assert.Equal(t, found, res.UUID)
	assert.Equal(t, relay.InTransaction(relay.StatusMempool), res.Status)

	_, err = ts.client.PayloadStatus(missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	httpRes, err := http.Get(ts.server.URL + "/payloads/not-a-uuid")
	require.NoError(t, err)
	defer httpRes.Body.Close()
	assert.Equal(t, http.StatusBadRequest, httpRes.StatusCode)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, time.Second)

	res, err := http.Get(ts.server.URL + relayerhttp.PrometheusMetrics)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(body, []byte("unfinished_txs 0")))
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, time.Second)

	res, err := http.Get(ts.server.URL + relayerhttp.MessageRetry)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}

func TestNewRelayerClientRejectsBadHost(t *testing.T) {
	_, err := relayerhttp.NewRelayerClient("localhost")
	assert.Error(t, err)
}
