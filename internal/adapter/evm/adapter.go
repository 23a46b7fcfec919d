package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/adapter/fees"
	"github.com/neutron-org/neutron-message-relayer/internal/config"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

const defaultTipCap = 2_000_000_000

// precursor is the unsigned EIP-1559 transaction kept in Transaction.Precursor.
// The nonce is assigned by the NonceManager on the first estimate and pinned,
// so every resubmission replaces the previous broadcast instead of queueing
// behind it.
type precursor struct {
	To        common.Address `json:"to"`
	Data      hexutil.Bytes  `json:"data"`
	Nonce     *uint64        `json:"nonce,omitempty"`
	GasLimit  uint64         `json:"gas_limit"`
	GasTipCap *hexutil.Big   `json:"gas_tip_cap,omitempty"`
	GasFeeCap *hexutil.Big   `json:"gas_fee_cap,omitempty"`
}

type Adapter struct {
	cfg     config.EVMConfig
	chainID *big.Int
	client  Client
	signer  Signer
	nonces  *NonceManager
	tips    fees.Escalator
	feeCaps fees.Escalator
	logger  *zap.Logger
}

// NewAdapter dials cfg.RPCAddr and builds a local signer from cfg.PrivateKey.
// Nonce ownership is kept in store.
func NewAdapter(ctx context.Context, cfg config.EVMConfig, store NonceStore, logger *zap.Logger) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial evm rpc: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}
	if cfg.ChainID != 0 && cfg.ChainID != chainID.Uint64() {
		return nil, fmt.Errorf("configured chain id %d differs from rpc chain id %s", cfg.ChainID, chainID)
	}

	signer, err := NewLocalSignerFromHex(chainID, cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	return NewAdapterWithClient(cfg, chainID, client, signer, store, logger)
}

func NewAdapterWithClient(cfg config.EVMConfig, chainID *big.Int, client Client, signer Signer, store NonceStore, logger *zap.Logger) (*Adapter, error) {
	maxFee, err := cfg.MaxFeePerGas()
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("sender", signer.From().Hex()))
	return &Adapter{
		cfg:     cfg,
		chainID: new(big.Int).Set(chainID),
		client:  client,
		signer:  signer,
		nonces:  NewNonceManager(client, store, signer.From(), logger),
		tips:    fees.NewEscalator(cfg.FeeBumpPercent, maxFee),
		feeCaps: fees.NewEscalator(cfg.FeeBumpPercent, maxFee),
		logger:  logger,
	}, nil
}

func (a *Adapter) BuildPrecursor(_ context.Context, payload *relay.Payload) (json.RawMessage, error) {
	p := precursor{
		To:   common.BytesToAddress(payload.Destination.Bytes()),
		Data: payload.Data,
	}
	raw, err := json.Marshal(p)
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

	if p.Nonce == nil {
		nonce, err := a.nonces.Assign(ctx, tx.UUID)
		if err != nil {
			return nil, err
		}
		p.Nonce = &nonce
	}

	gasLimit, err := a.estimateGas(ctx, p.To, p.Data)
	if err != nil {
		return nil, err
	}
	p.GasLimit = gasLimit

	freshTip, freshFeeCap, err := a.suggestFees(ctx)
	if err != nil {
		return nil, err
	}

	tipCap := a.tips.Escalate(p.GasTipCap.ToInt(), freshTip)
	feeCap := a.feeCaps.Escalate(p.GasFeeCap.ToInt(), freshFeeCap)
	if tipCap.Cmp(feeCap) > 0 {
		tipCap = new(big.Int).Set(feeCap)
	}
	p.GasTipCap = (*hexutil.Big)(tipCap)
	p.GasFeeCap = (*hexutil.Big)(feeCap)

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal precursor: %w", err)
	}
	tx.Precursor = raw

	a.logger.Debug("estimated transaction cost",
		zap.String("tx_uuid", tx.UUID.String()),
		zap.Uint64("nonce", *p.Nonce),
		zap.Uint64("gas_limit", gasLimit),
		zap.String("gas_tip_cap", tipCap.String()),
		zap.String("gas_fee_cap", feeCap.String()),
	)
	return &relay.CostEstimate{GasLimit: gasLimit, Price: new(big.Int).Set(feeCap)}, nil
}

func (a *Adapter) Submit(ctx context.Context, tx *relay.Transaction) (string, error) {
	p, err := decodePrecursor(tx.Precursor)
	if err != nil {
		return "", err
	}
	if p.Nonce == nil || p.GasFeeCap == nil || p.GasTipCap == nil {
		return "", relay.NewNonRetryableError(relay.DropReasonFailedSimulation, fmt.Errorf("transaction %s has no cost estimate", tx.UUID))
	}

	to := p.To
	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   a.chainID,
		Nonce:     *p.Nonce,
		To:        &to,
		Value:     big.NewInt(0),
		Gas:       p.GasLimit,
		GasTipCap: p.GasTipCap.ToInt(),
		GasFeeCap: p.GasFeeCap.ToInt(),
		Data:      p.Data,
	})
	signed, err := a.signer.SignTx(unsigned)
	if err != nil {
		return "", relay.NewNonRetryableError(relay.DropReasonRejectedByChain, fmt.Errorf("failed to sign tx: %w", err))
	}

	hash := signed.Hash().Hex()
	if err := a.client.SendTransaction(ctx, signed); err != nil {
		a.logger.Warn("failed to send transaction",
			zap.String("tx_uuid", tx.UUID.String()),
			zap.String("tx_hash", hash),
			zap.Uint64("nonce", *p.Nonce),
			zap.Error(err))
		if isNonceTooLow(err) {
			return hash, a.classifyNonceTooLow(ctx, tx, *p.Nonce, err)
		}
		return hash, classifySendError(err)
	}

	a.logger.Info("sent transaction",
		zap.String("tx_uuid", tx.UUID.String()),
		zap.String("tx_hash", hash),
		zap.Uint64("nonce", *p.Nonce),
		zap.String("gas_fee_cap", p.GasFeeCap.String()),
	)
	return hash, nil
}

// Poll treats a mined receipt as confirmed and a receipt at least
// FinalityDepth blocks deep as finalized.
func (a *Adapter) Poll(ctx context.Context, hash string, level relay.CommitmentLevel) (bool, error) {
	receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get receipt: %w", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		a.logger.Warn("transaction reverted on chain", zap.String("tx_hash", hash))
	}

	if level != relay.LevelFinalized {
		return true, nil
	}

	head, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get head: %w", err)
	}
	if head.Number.Cmp(receipt.BlockNumber) < 0 {
		return false, nil
	}
	depth := new(big.Int).Sub(head.Number, receipt.BlockNumber).Uint64() + 1
	return depth >= a.cfg.FinalityDepth, nil
}

func (a *Adapter) CommitmentLevels() []relay.CommitmentLevel {
	return []relay.CommitmentLevel{relay.LevelFinalized, relay.LevelConfirmed}
}

func (a *Adapter) EstimatedBlockTime() time.Duration {
	return a.cfg.BlockTime
}

func (a *Adapter) EstimateGasLimit(ctx context.Context, payload *relay.Payload) (*big.Int, error) {
	gas, err := a.estimateGas(ctx, common.BytesToAddress(payload.Destination.Bytes()), payload.Data)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(gas), nil
}

func (a *Adapter) estimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error) {
	msg := ethereum.CallMsg{From: a.signer.From(), To: &to, Value: big.NewInt(0), Data: data}
	est, err := a.client.EstimateGas(ctx, msg)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
			return 0, relay.NewNonRetryableError(relay.DropReasonFailedSimulation, err)
		}
		return 0, relay.NewRetryableError(fmt.Errorf("failed to estimate gas: %w", err))
	}
	return est + est*a.cfg.GasLimitBufferPct/100, nil
}

// suggestFees returns a fresh tip and fee cap, the cap being twice the base
// fee plus the tip.
func (a *Adapter) suggestFees(ctx context.Context) (*big.Int, *big.Int, error) {
	tipCap, err := a.client.SuggestGasTipCap(ctx)
	if err != nil || tipCap == nil {
		tipCap = big.NewInt(defaultTipCap)
	}

	head, err := a.client.HeaderByNumber(ctx, nil)
	if err == nil && head != nil && head.BaseFee != nil {
		feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tipCap)
		return tipCap, feeCap, nil
	}

	price, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, relay.NewRetryableError(fmt.Errorf("failed to suggest gas price: %w", err))
	}
	return tipCap, price, nil
}

func decodePrecursor(raw json.RawMessage) (*precursor, error) {
	var p precursor
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, relay.NewNonRetryableError(relay.DropReasonFailedToBuild, fmt.Errorf("failed to decode precursor: %w", err))
	}
	return &p, nil
}

func isNonceTooLow(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}

// classifyNonceTooLow tells a nonce consumed by one of tx's own broadcasts
// from a nonce consumed by someone else. Only the former means tx is on chain.
func (a *Adapter) classifyNonceTooLow(ctx context.Context, tx *relay.Transaction, nonce uint64, sendErr error) error {
	for _, hash := range tx.TxHashes {
		_, err := a.client.TransactionReceipt(ctx, common.HexToHash(hash))
		if err == nil {
			return relay.NewAlreadyExistsError(sendErr)
		}
		if !errors.Is(err, ethereum.NotFound) {
			return relay.NewRetryableError(fmt.Errorf("failed to check receipt of %s: %w", hash, err))
		}
	}
	return relay.NewNonRetryableError(relay.DropReasonRejectedByChain,
		fmt.Errorf("nonce %d was consumed by another transaction: %w", nonce, sendErr))
}

func classifySendError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already known"):
		return relay.NewAlreadyExistsError(err)
	case strings.Contains(msg, "replacement transaction underpriced"), strings.Contains(msg, "insufficient funds"):
		return relay.NewRetryableError(err)
	case strings.Contains(msg, "oversized data"):
		return relay.NewNonRetryableError(relay.DropReasonSizeLimitExceeded, err)
	case strings.Contains(msg, "intrinsic gas too low"):
		return relay.NewNonRetryableError(relay.DropReasonRejectedByChain, err)
	default:
		return err
	}
}
