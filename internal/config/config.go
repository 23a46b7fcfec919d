package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

const EnvPrefix = "RELAYER"

const (
	VMEVM    = "evm"
	VMCosmos = "cosmos"
)

// RelayerConfig is the whole relayer configuration, read from RELAYER_* env vars.
type RelayerConfig struct {
	// StoragePath is the leveldb directory, an empty path keeps everything in memory
	StoragePath         string        `envconfig:"STORAGE_PATH"`
	ListenAddr          string        `envconfig:"LISTEN_ADDR" default:"localhost:9999"`
	VM                  string        `envconfig:"VM" default:"evm"`
	DestinationDomain   uint32        `envconfig:"DESTINATION_DOMAIN" required:"true"`
	RetryRequestTimeout time.Duration `envconfig:"RETRY_REQUEST_TIMEOUT" default:"5s"`

	Dispatcher DispatcherConfig `envconfig:"DISPATCHER"`
	Processor  ProcessorConfig  `envconfig:"PROCESSOR"`
	EVM        EVMConfig        `envconfig:"EVM"`
	Cosmos     CosmosConfig     `envconfig:"COSMOS"`
	Registry   RegistryConfig   `envconfig:"REGISTRY"`
}

type DispatcherConfig struct {
	BuildingPollInterval time.Duration `envconfig:"BUILDING_POLL_INTERVAL" default:"1s"`
	InclusionTickPeriod  time.Duration `envconfig:"INCLUSION_TICK_PERIOD" default:"1s"`
	FinalityTickPeriod   time.Duration `envconfig:"FINALITY_TICK_PERIOD" default:"5s"`
	InclusionConcurrency int           `envconfig:"INCLUSION_CONCURRENCY" default:"8"`
	// ReorgMissThreshold is how many consecutive finality checks may miss an
	// included transaction before it is treated as reorged out
	ReorgMissThreshold int           `envconfig:"REORG_MISS_THRESHOLD" default:"3"`
	ChannelCapacity    int           `envconfig:"CHANNEL_CAPACITY" default:"1000"`
	RetryAttempts      uint          `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryDelay         time.Duration `envconfig:"RETRY_DELAY" default:"500ms"`
}

type ProcessorConfig struct {
	BatchSize        int           `envconfig:"BATCH_SIZE" default:"32"`
	PrepareInterval  time.Duration `envconfig:"PREPARE_INTERVAL" default:"1s"`
	ConfirmInterval  time.Duration `envconfig:"CONFIRM_INTERVAL" default:"5s"`
	ConfirmDelay     time.Duration `envconfig:"CONFIRM_DELAY" default:"10s"`
	BaseBackoff      time.Duration `envconfig:"BASE_BACKOFF" default:"5s"`
	MaxBackoff       time.Duration `envconfig:"MAX_BACKOFF" default:"10m"`
	RetryChannelSize int           `envconfig:"RETRY_CHANNEL_SIZE" default:"64"`
}

type EVMConfig struct {
	RPCAddr           string        `envconfig:"RPC_ADDR" default:"http://127.0.0.1:8545"`
	ChainID           uint64        `envconfig:"CHAIN_ID"`
	PrivateKey        string        `envconfig:"PRIVATE_KEY"`
	FinalityDepth     uint64        `envconfig:"FINALITY_DEPTH" default:"12"`
	GasLimitBufferPct uint64        `envconfig:"GAS_LIMIT_BUFFER_PCT" default:"20"`
	FeeBumpPercent    uint64        `envconfig:"FEE_BUMP_PERCENT" default:"10"`
	MaxFeePerGasWei   string        `envconfig:"MAX_FEE_PER_GAS_WEI"`
	BlockTime         time.Duration `envconfig:"BLOCK_TIME" default:"12s"`
}

// MaxFeePerGas parses MaxFeePerGasWei, nil means no cap.
func (c EVMConfig) MaxFeePerGas() (*big.Int, error) {
	if c.MaxFeePerGasWei == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(c.MaxFeePerGasWei, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("invalid max fee per gas: %q", c.MaxFeePerGasWei)
	}
	return v, nil
}

type CosmosConfig struct {
	RPCAddr       string        `envconfig:"RPC_ADDR" default:"tcp://127.0.0.1:26657"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"10s"`
	GasAdjustment float64       `envconfig:"GAS_ADJUSTMENT" default:"1.5"`
	GasPrice      string        `envconfig:"GAS_PRICE" default:"1"`
	BlockTime     time.Duration `envconfig:"BLOCK_TIME" default:"6s"`
}

// RegistryConfig holds the whitelist and blacklist as JSON encoded matching lists.
type RegistryConfig struct {
	Whitelist string `envconfig:"WHITELIST"`
	Blacklist string `envconfig:"BLACKLIST"`
}

func (c RegistryConfig) Lists() (whitelist relay.MatchingList, blacklist relay.MatchingList, err error) {
	if c.Whitelist != "" {
		if err := json.Unmarshal([]byte(c.Whitelist), &whitelist); err != nil {
			return nil, nil, fmt.Errorf("failed to parse whitelist: %w", err)
		}
	}
	if c.Blacklist != "" {
		if err := json.Unmarshal([]byte(c.Blacklist), &blacklist); err != nil {
			return nil, nil, fmt.Errorf("failed to parse blacklist: %w", err)
		}
	}
	return whitelist, blacklist, nil
}

func NewRelayerConfig() (RelayerConfig, error) {
	var cfg RelayerConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c RelayerConfig) Validate() error {
	switch c.VM {
	case VMEVM:
		if c.EVM.PrivateKey == "" {
			return fmt.Errorf("evm private key must be provided")
		}
		if _, err := c.EVM.MaxFeePerGas(); err != nil {
			return err
		}
	case VMCosmos:
	default:
		return fmt.Errorf("unsupported vm %q", c.VM)
	}
	if c.Dispatcher.InclusionConcurrency <= 0 {
		return fmt.Errorf("inclusion concurrency must be positive")
	}
	if c.Processor.BatchSize <= 0 {
		return fmt.Errorf("processor batch size must be positive")
	}
	if _, _, err := c.Registry.Lists(); err != nil {
		return err
	}
	return nil
}
