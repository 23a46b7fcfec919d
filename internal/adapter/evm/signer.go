package evm

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type Signer interface {
	From() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// LocalSigner signs with an in-process secp256k1 key.
type LocalSigner struct {
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
}

func NewLocalSigner(chainID *big.Int, key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		chainID: new(big.Int).Set(chainID),
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewLocalSignerFromHex parses a hex encoded private key, with or without the 0x prefix.
func NewLocalSignerFromHex(chainID *big.Int, keyHex string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewLocalSigner(chainID, key), nil
}

func (s *LocalSigner) From() common.Address { return s.from }

func (s *LocalSigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
}
