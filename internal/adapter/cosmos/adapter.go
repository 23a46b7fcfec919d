package cosmos

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	rpcclient "github.com/cometbft/cometbft/rpc/client"
	cmttypes "github.com/cometbft/cometbft/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/config"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

const simulateQueryPath = "/cosmos.tx.v1beta1.Service/Simulate"

// precursor wraps the signed transaction handed over as payload data.
type precursor struct {
	TxBytes  hexutil.Bytes `json:"tx_bytes"`
	GasLimit uint64        `json:"gas_limit"`
}

// Adapter relays pre-signed Cosmos SDK transactions. CometBFT blocks are final
// once committed, so an included transaction is also finalized.
type Adapter struct {
	rpcClient     RPCClient
	gasAdjustment float64
	gasPrice      *big.Int
	blockTime     time.Duration
	logger        *zap.Logger
}

func NewAdapter(cfg config.CosmosConfig, logger *zap.Logger) (*Adapter, error) {
	rpcClient, err := NewRPCClient(cfg.RPCAddr, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return NewAdapterWithClient(cfg, rpcClient, logger)
}

func NewAdapterWithClient(cfg config.CosmosConfig, rpcClient RPCClient, logger *zap.Logger) (*Adapter, error) {
	gasPrice, err := parseGasPrice(cfg.GasPrice)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		rpcClient:     rpcClient,
		gasAdjustment: cfg.GasAdjustment,
		gasPrice:      gasPrice,
		blockTime:     cfg.BlockTime,
		logger:        logger,
	}, nil
}

// parseGasPrice accepts a plain amount ("1") or a decimal coin ("0.025untrn")
// and rounds it up to a whole unit.
func parseGasPrice(s string) (*big.Int, error) {
	if v, ok := new(big.Int).SetString(s, 10); ok {
		return v, nil
	}
	coin, err := sdk.ParseDecCoin(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gas price %q: %w", s, err)
	}
	return coin.Amount.Ceil().TruncateInt().BigInt(), nil
}

func (a *Adapter) BuildPrecursor(_ context.Context, payload *relay.Payload) (json.RawMessage, error) {
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("payload %s has no transaction bytes", payload.UUID)
	}
	raw, err := json.Marshal(precursor{TxBytes: payload.Data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal precursor: %w", err)
	}
	return raw, nil
}

func (a *Adapter) EstimateCost(ctx context.Context, tx *relay.Transaction) (*relay.CostEstimate, error) {
	p, err := decodePrecursor(tx.Precursor)
	if err != nil {
		return nil, err
	}

	gas, err := a.simulate(ctx, p.TxBytes)
	if err != nil {
		return nil, err
	}
	p.GasLimit = gas

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal precursor: %w", err)
	}
	tx.Precursor = raw

	return &relay.CostEstimate{GasLimit: gas, Price: new(big.Int).Set(a.gasPrice)}, nil
}

func (a *Adapter) Submit(ctx context.Context, tx *relay.Transaction) (string, error) {
	p, err := decodePrecursor(tx.Precursor)
	if err != nil {
		return "", err
	}

	cmtTx := cmttypes.Tx(p.TxBytes)
	hash := strings.ToUpper(hex.EncodeToString(cmtTx.Hash()))

	res, err := a.rpcClient.BroadcastTxSync(ctx, cmtTx)
	if err != nil {
		return hash, relay.NewRetryableError(fmt.Errorf("error broadcasting sync transaction: %w", err))
	}
	if res.Code != abci.CodeTypeOK {
		a.logger.Warn("transaction rejected by CheckTx",
			zap.String("tx_uuid", tx.UUID.String()),
			zap.String("tx_hash", hash),
			zap.Uint32("code", res.Code),
			zap.String("codespace", res.Codespace),
			zap.String("log", res.Log))
		return hash, classifyCheckTx(res.Codespace, res.Code, res.Log)
	}

	a.logger.Info("broadcast transaction",
		zap.String("tx_uuid", tx.UUID.String()),
		zap.String("tx_hash", hash))
	return hash, nil
}

func (a *Adapter) Poll(ctx context.Context, hash string, _ relay.CommitmentLevel) (bool, error) {
	bz, err := hex.DecodeString(hash)
	if err != nil {
		return false, fmt.Errorf("failed to decode tx hash %s: %w", hash, err)
	}

	res, err := a.rpcClient.Tx(ctx, bz, false)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, fmt.Errorf("failed to query tx %s: %w", hash, err)
	}
	if res.TxResult.Code != abci.CodeTypeOK {
		a.logger.Warn("transaction committed with error",
			zap.String("tx_hash", hash),
			zap.Uint32("code", res.TxResult.Code),
			zap.String("log", res.TxResult.Log))
	}
	return true, nil
}

func (a *Adapter) CommitmentLevels() []relay.CommitmentLevel {
	return []relay.CommitmentLevel{relay.LevelFinalized}
}

func (a *Adapter) EstimatedBlockTime() time.Duration {
	return a.blockTime
}

func (a *Adapter) EstimateGasLimit(ctx context.Context, payload *relay.Payload) (*big.Int, error) {
	gas, err := a.simulate(ctx, payload.Data)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(gas), nil
}

func (a *Adapter) simulate(ctx context.Context, txBytes []byte) (uint64, error) {
	simReq := txtypes.SimulateRequest{TxBytes: txBytes}
	data, err := simReq.Marshal()
	if err != nil {
		return 0, fmt.Errorf("error marshalling simulate request: %w", err)
	}

	res, err := a.rpcClient.ABCIQueryWithOptions(ctx, simulateQueryPath, data, rpcclient.DefaultABCIQueryOptions)
	if err != nil {
		return 0, relay.NewRetryableError(fmt.Errorf("error making abci query for gas calculation: %w", err))
	}
	if res.Response.Code != abci.CodeTypeOK {
		return 0, relay.NewNonRetryableError(relay.DropReasonFailedSimulation,
			fmt.Errorf("simulation failed with code=%d log=%s", res.Response.Code, res.Response.Log))
	}

	var simRes txtypes.SimulateResponse
	if err := simRes.Unmarshal(res.Response.Value); err != nil {
		return 0, fmt.Errorf("error unmarshalling simulate response value: %w", err)
	}
	if simRes.GasInfo == nil {
		return 0, relay.NewNonRetryableError(relay.DropReasonFailedSimulation,
			fmt.Errorf("no result in simulation response with log=%s", res.Response.Log))
	}

	return uint64(a.gasAdjustment * float64(simRes.GasInfo.GasUsed)), nil
}

func decodePrecursor(raw json.RawMessage) (*precursor, error) {
	var p precursor
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, relay.NewNonRetryableError(relay.DropReasonFailedToBuild, fmt.Errorf("failed to decode precursor: %w", err))
	}
	return &p, nil
}

// classifyCheckTx maps root codespace ABCI codes to the relay error taxonomy.
// Codes from other codespaces fall back to the log based classification.
func classifyCheckTx(codespace string, code uint32, log string) error {
	err := fmt.Errorf("error broadcasting sync transaction with code=%d log=%s", code, log)
	if codespace != sdkerrors.RootCodespace {
		return err
	}

	switch code {
	case sdkerrors.ErrTxInMempoolCache.ABCICode():
		return relay.NewAlreadyExistsError(err)
	case sdkerrors.ErrWrongSequence.ABCICode():
		return classifyWrongSequence(log, err)
	case sdkerrors.ErrMempoolIsFull.ABCICode(),
		sdkerrors.ErrInsufficientFee.ABCICode():
		return relay.NewRetryableError(err)
	case sdkerrors.ErrTxTooLarge.ABCICode():
		return relay.NewNonRetryableError(relay.DropReasonSizeLimitExceeded, err)
	case sdkerrors.ErrOutOfGas.ABCICode():
		return relay.NewNonRetryableError(relay.DropReasonFailedSimulation, err)
	default:
		return relay.NewNonRetryableError(relay.DropReasonRejectedByChain, err)
	}
}

var sequenceMismatchRe = regexp.MustCompile(`expected (\d+), got (\d+)`)

// classifyWrongSequence drops a transaction signed with a sequence the account
// already moved past. A sequence ahead of the account may still become valid
// once earlier txs land.
func classifyWrongSequence(log string, err error) error {
	m := sequenceMismatchRe.FindStringSubmatch(log)
	if m == nil {
		return relay.NewRetryableError(err)
	}
	expected, expErr := strconv.ParseUint(m[1], 10, 64)
	got, gotErr := strconv.ParseUint(m[2], 10, 64)
	if expErr != nil || gotErr != nil {
		return relay.NewRetryableError(err)
	}
	if got < expected {
		return relay.NewNonRetryableError(relay.DropReasonRejectedByChain,
			fmt.Errorf("sequence %d is already used, account expects %d: %w", got, expected, err))
	}
	return relay.NewRetryableError(err)
}
