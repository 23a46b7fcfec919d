package cosmos_test

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	rpcclient "github.com/cometbft/cometbft/rpc/client"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/adapter/cosmos"
	"github.com/neutron-org/neutron-message-relayer/internal/config"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

type fakeRPCClient struct {
	queryPath string
	simCode   uint32
	gasUsed   uint64
	queryErr  error

	broadcast    []cmttypes.Tx
	checkTxCode  uint32
	codespace    string
	checkTxLog   string
	broadcastErr error

	committed map[string]uint32
}

func (c *fakeRPCClient) ABCIQueryWithOptions(_ context.Context, path string, _ cmtbytes.HexBytes, _ rpcclient.ABCIQueryOptions) (*coretypes.ResultABCIQuery, error) {
	c.queryPath = path
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	res := txtypes.SimulateResponse{GasInfo: &sdk.GasInfo{GasUsed: c.gasUsed}}
	value, err := res.Marshal()
	if err != nil {
		return nil, err
	}
	return &coretypes.ResultABCIQuery{Response: abci.ResponseQuery{Code: c.simCode, Value: value, Log: "simulation log"}}, nil
}

func (c *fakeRPCClient) BroadcastTxSync(_ context.Context, tx cmttypes.Tx) (*coretypes.ResultBroadcastTx, error) {
	c.broadcast = append(c.broadcast, tx)
	if c.broadcastErr != nil {
		return nil, c.broadcastErr
	}
	return &coretypes.ResultBroadcastTx{Code: c.checkTxCode, Codespace: c.codespace, Log: c.checkTxLog, Hash: tx.Hash()}, nil
}

func (c *fakeRPCClient) Tx(_ context.Context, hash []byte, _ bool) (*coretypes.ResultTx, error) {
	key := strings.ToUpper(hex.EncodeToString(hash))
	code, ok := c.committed[key]
	if !ok {
		return nil, errors.New("tx (" + key + ") not found")
	}
	return &coretypes.ResultTx{Hash: hash, Height: 10, TxResult: abci.ExecTxResult{Code: code}}, nil
}

func newAdapter(t *testing.T, client *fakeRPCClient) *cosmos.Adapter {
	adapter, err := cosmos.NewAdapterWithClient(config.CosmosConfig{GasAdjustment: 1.5, GasPrice: "0.025untrn"}, client, zap.NewNop())
	require.NoError(t, err)
	return adapter
}

func newTransaction(t *testing.T, adapter *cosmos.Adapter) *relay.Transaction {
	payload := &relay.Payload{UUID: uuid.New(), Data: []byte("signed tx bytes")}
	raw, err := adapter.BuildPrecursor(context.Background(), payload)
	require.NoError(t, err)
	return relay.NewTransaction(raw, []*relay.Payload{payload})
}

func TestBuildPrecursorRequiresTxBytes(t *testing.T) {
	adapter := newAdapter(t, &fakeRPCClient{})
	_, err := adapter.BuildPrecursor(context.Background(), &relay.Payload{UUID: uuid.New()})
	assert.Error(t, err)
}

func TestEstimateCost(t *testing.T) {
	client := &fakeRPCClient{gasUsed: 100000}
	adapter := newAdapter(t, client)
	tx := newTransaction(t, adapter)

	estimate, err := adapter.EstimateCost(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, "/cosmos.tx.v1beta1.Service/Simulate", client.queryPath)
	assert.Equal(t, uint64(150000), estimate.GasLimit)
	assert.Equal(t, big.NewInt(1), estimate.Price)
	assert.Contains(t, string(tx.Precursor), `"gas_limit":150000`)
}

func TestEstimateCostErrors(t *testing.T) {
	client := &fakeRPCClient{simCode: 11}
	adapter := newAdapter(t, client)
	tx := newTransaction(t, adapter)

	_, err := adapter.EstimateCost(context.Background(), tx)
	require.Error(t, err)
	assert.Equal(t, relay.Classification{Kind: relay.KindNonRetryable, Reason: relay.DropReasonFailedSimulation}, relay.ClassifySubmitError(err))

	client.simCode = 0
	client.queryErr = errors.New("post failed: connection refused")
	_, err = adapter.EstimateCost(context.Background(), tx)
	require.Error(t, err)
	assert.True(t, relay.IsRetryable(err))
}

func TestSubmit(t *testing.T) {
	client := &fakeRPCClient{}
	adapter := newAdapter(t, client)
	tx := newTransaction(t, adapter)

	hash, err := adapter.Submit(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, client.broadcast, 1)
	assert.Equal(t, []byte("signed tx bytes"), []byte(client.broadcast[0]))
	assert.Equal(t, strings.ToUpper(hex.EncodeToString(cmttypes.Tx("signed tx bytes").Hash())), hash)
}

func TestSubmitCheckTxClassification(t *testing.T) {
	tests := []struct {
		name      string
		codespace string
		code      uint32
		log       string
		expected  relay.Classification
	}{
		{name: "in mempool cache", codespace: sdkerrors.RootCodespace, code: sdkerrors.ErrTxInMempoolCache.ABCICode(), expected: relay.Classification{Kind: relay.KindAlreadyExists}},
		{name: "wrong sequence without details", codespace: sdkerrors.RootCodespace, code: sdkerrors.ErrWrongSequence.ABCICode(), expected: relay.Classification{Kind: relay.KindRetryable}},
		{
			name:      "sequence already used",
			codespace: sdkerrors.RootCodespace,
			code:      sdkerrors.ErrWrongSequence.ABCICode(),
			log:       "account sequence mismatch, expected 10, got 9: incorrect account sequence",
			expected:  relay.Classification{Kind: relay.KindNonRetryable, Reason: relay.DropReasonRejectedByChain},
		},
		{
			name:      "sequence ahead of account",
			codespace: sdkerrors.RootCodespace,
			code:      sdkerrors.ErrWrongSequence.ABCICode(),
			log:       "account sequence mismatch, expected 10, got 12: incorrect account sequence",
			expected:  relay.Classification{Kind: relay.KindRetryable},
		},
		{name: "mempool full", codespace: sdkerrors.RootCodespace, code: sdkerrors.ErrMempoolIsFull.ABCICode(), expected: relay.Classification{Kind: relay.KindRetryable}},
		{name: "tx too large", codespace: sdkerrors.RootCodespace, code: sdkerrors.ErrTxTooLarge.ABCICode(), expected: relay.Classification{Kind: relay.KindNonRetryable, Reason: relay.DropReasonSizeLimitExceeded}},
		{name: "unauthorized", codespace: sdkerrors.RootCodespace, code: sdkerrors.ErrUnauthorized.ABCICode(), expected: relay.Classification{Kind: relay.KindNonRetryable, Reason: relay.DropReasonRejectedByChain}},
		{name: "module error", codespace: "wasm", code: 5, expected: relay.Classification{Kind: relay.KindNonRetryable, Reason: relay.DropReasonRejectedByChain}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeRPCClient{checkTxCode: tt.code, codespace: tt.codespace, checkTxLog: tt.log}
			adapter := newAdapter(t, client)
			tx := newTransaction(t, adapter)

			hash, err := adapter.Submit(context.Background(), tx)
			require.Error(t, err)
			assert.NotEmpty(t, hash)
			assert.Equal(t, tt.expected, relay.ClassifySubmitError(err))
		})
	}
}

func TestPoll(t *testing.T) {
	client := &fakeRPCClient{committed: map[string]uint32{}}
	adapter := newAdapter(t, client)
	tx := newTransaction(t, adapter)

	hash, err := adapter.Submit(context.Background(), tx)
	require.NoError(t, err)

	found, err := adapter.Poll(context.Background(), hash, relay.LevelFinalized)
	require.NoError(t, err)
	assert.False(t, found)

	client.committed[hash] = abci.CodeTypeOK
	found, err = adapter.Poll(context.Background(), hash, relay.LevelFinalized)
	require.NoError(t, err)
	assert.True(t, found)

	_, err = adapter.Poll(context.Background(), "not-hex", relay.LevelFinalized)
	assert.Error(t, err)
}
