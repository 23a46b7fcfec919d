package dispatcher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/adapter/evm"
	"github.com/neutron-org/neutron-message-relayer/internal/config"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
	"github.com/neutron-org/neutron-message-relayer/internal/storage"
)

// fakeEVMClient is a node with an empty mempool that accepts every
// transaction. Inclusion steps call it concurrently.
type fakeEVMClient struct {
	mu    sync.Mutex
	nonce uint64
	sent  []*types.Transaction
}

func (c *fakeEVMClient) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1337), nil }
func (c *fakeEVMClient) NonceAt(context.Context, common.Address, *big.Int) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce, nil
}
func (c *fakeEVMClient) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}
func (c *fakeEVMClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(20_000_000_000), nil
}
func (c *fakeEVMClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}
func (c *fakeEVMClient) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: big.NewInt(10_000_000_000)}, nil
}
func (c *fakeEVMClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, tx)
	return nil
}
func (c *fakeEVMClient) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (c *fakeEVMClient) sentNonces() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonces := make([]uint64, 0, len(c.sent))
	for _, tx := range c.sent {
		nonces = append(nonces, tx.Nonce())
	}
	return nonces
}

func TestConcurrentEVMTransactionsGetDistinctNonces(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	store := storage.NewMemoryStorage()
	client := &fakeEVMClient{nonce: 7}
	adapter, err := evm.NewAdapterWithClient(
		config.EVMConfig{FinalityDepth: 1, FeeBumpPercent: 10},
		big.NewInt(1337),
		client,
		evm.NewLocalSigner(big.NewInt(1337), key),
		store,
		zap.NewNop(),
	)
	require.NoError(t, err)

	p := newTestPipelineWith(store, adapter, 8)
	for i := 0; i < 5; i++ {
		p.sendAndBuild(t)
	}

	p.inclusion.ProcessTick(context.Background())
	assert.ElementsMatch(t, []uint64{7, 8, 9, 10, 11}, client.sentNonces())

	// resubmissions keep the nonce pinned by the first step
	p.inclusion.ProcessTick(context.Background())
	nonces := client.sentNonces()
	require.Len(t, nonces, 10)
	assert.ElementsMatch(t, nonces[:5], nonces[5:])
	assert.Equal(t, 5, p.inclusion.Len())
}

func TestConcurrentTickWithMixedOutcomes(t *testing.T) {
	p := newTestPipeline()
	p.inclusion.cfg.Concurrency = 3

	_, finalizing := p.sendAndBuild(t)
	droppedPayload, dropping := p.sendAndBuild(t)
	_, pending := p.sendAndBuild(t)

	p.inclusion.ProcessTick(context.Background())
	require.Len(t, p.adapter.submitted, 3)
	for _, tx := range []*relay.Transaction{finalizing, dropping, pending} {
		stored := p.storedTx(t, tx.UUID)
		require.Len(t, stored.TxHashes, 1)
		assert.Equal(t, relay.StatusMempool, stored.Status)
	}

	p.adapter.finalized[p.storedTx(t, finalizing.UUID).TxHashes[0]] = true
	p.adapter.estimateErrOf[dropping.UUID] = relay.NewNonRetryableError(relay.DropReasonFailedSimulation, errors.New("execution reverted"))
	p.inclusion.ProcessTick(context.Background())

	assert.Equal(t, 1, p.inclusion.Len())
	p.inclusion.mu.Lock()
	_, pendingPooled := p.inclusion.pool[pending.UUID]
	p.inclusion.mu.Unlock()
	assert.True(t, pendingPooled)

	require.Len(t, p.toFinality, 1)
	finalized := <-p.toFinality
	assert.Equal(t, finalizing.UUID, finalized.UUID)
	assert.Equal(t, relay.StatusFinalized, finalized.Status)

	assert.Equal(t, relay.StatusFinalized, p.storedTx(t, finalizing.UUID).Status)
	assert.Equal(t, relay.StatusDropped(relay.DropReasonFailedSimulation), p.storedTx(t, dropping.UUID).Status)
	assert.Equal(t, relay.InTransaction(relay.StatusDropped(relay.DropReasonFailedSimulation)), p.payloadStatus(t, droppedPayload.UUID))

	stillPending := p.storedTx(t, pending.UUID)
	assert.Equal(t, relay.StatusMempool, stillPending.Status)
	assert.Equal(t, uint32(2), stillPending.SubmissionAttempts)
	assert.Len(t, stillPending.TxHashes, 2)

	// one step per transaction and tick, the finalized one was not estimated again
	assert.Equal(t, map[uuid.UUID]int{finalizing.UUID: 1, dropping.UUID: 2, pending.UUID: 2}, p.adapter.estimatesOf)
}

func TestRetryableSubmitKeepsStatusCheck(t *testing.T) {
	p := newTestPipeline()
	checkedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.inclusion.now = func() time.Time { return checkedAt }
	p.adapter.submitErrs = []error{nil, relay.NewRetryableError(errors.New("429 too many requests"))}
	_, tx := p.sendAndBuild(t)

	p.inclusion.ProcessTick(context.Background())
	require.Nil(t, p.storedTx(t, tx.UUID).LastStatusCheck)

	checkedAt = checkedAt.Add(time.Minute)
	p.inclusion.ProcessTick(context.Background())

	stored := p.storedTx(t, tx.UUID)
	require.NotNil(t, stored.LastStatusCheck)
	assert.True(t, checkedAt.Equal(*stored.LastStatusCheck))
	assert.Equal(t, relay.StatusMempool, stored.Status)
	assert.Equal(t, uint32(1), stored.SubmissionAttempts)

	p.inclusion.mu.Lock()
	pooled := p.inclusion.pool[tx.UUID]
	p.inclusion.mu.Unlock()
	require.NotNil(t, pooled.LastStatusCheck)
	assert.True(t, checkedAt.Equal(*pooled.LastStatusCheck))
}
