package adapter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/portfolio-engine/internal/logging"
	"github.com/portfolio-engine/internal/types"
	"github.com/shopspring/decimal"
)

// erc20TransferABI is the minimal ABI fragment needed to move tokens
const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

// tokenDecimals is the base-unit scale assumed for configured token
// contracts. Engine amounts are whole-token decimals; on-chain amounts are
// base units.
const tokenDecimals = 18

// EVMExecutor executes transfer intents as ERC-20 transfers on an
// EVM-compatible chain. It waits for the transaction receipt, so the caller
// knows whether the transfer happened before committing its operation.
type EVMExecutor struct {
	client         *ethclient.Client
	chainID        *big.Int
	key            *ecdsa.PrivateKey
	from           common.Address
	tokenContracts map[types.AssetID]common.Address
	gasLimit       uint64
	erc20          abi.ABI
}

// EVMExecutorConfig holds configuration for creating an EVMExecutor
type EVMExecutorConfig struct {
	// RPCEndpoint is the chain RPC URL. Required.
	RPCEndpoint string

	// PrivateKeyHex signs outgoing transactions. Required.
	PrivateKeyHex string

	// TokenContracts maps engine asset ids to ERC-20 contract addresses.
	TokenContracts map[string]string

	// GasLimit for transfer transactions.
	GasLimit uint64
}

// NewEVMExecutor creates a transfer executor backed by an EVM chain
func NewEVMExecutor(ctx context.Context, cfg *EVMExecutorConfig) (*EVMExecutor, error) {
	if cfg.RPCEndpoint == "" {
		return nil, fmt.Errorf("rpc endpoint cannot be empty")
	}

	client, err := ethclient.Dial(cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}

	contracts := make(map[types.AssetID]common.Address, len(cfg.TokenContracts))
	for assetID, addr := range cfg.TokenContracts {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid contract address for asset %s: %s", assetID, addr)
		}
		contracts[types.AssetID(assetID)] = common.HexToAddress(addr)
	}

	return &EVMExecutor{
		client:         client,
		chainID:        chainID,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		tokenContracts: contracts,
		gasLimit:       cfg.GasLimit,
		erc20:          parsed,
	}, nil
}

// ExecuteTransfer sends an ERC-20 transfer for the intent and waits for its
// receipt. Returns an error unless the transaction was mined successfully.
func (e *EVMExecutor) ExecuteTransfer(ctx context.Context, intent *types.TransferIntent) error {
	contract, ok := e.tokenContracts[intent.AssetID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, intent.AssetID)
	}
	if !common.IsHexAddress(intent.To) {
		return fmt.Errorf("invalid destination address: %s", intent.To)
	}

	data, err := e.erc20.Pack("transfer", common.HexToAddress(intent.To), toBaseUnits(intent.Amount))
	if err != nil {
		return fmt.Errorf("failed to pack transfer call: %w", err)
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return fmt.Errorf("failed to fetch nonce: %w", err)
	}

	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch gas price: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, contract, big.NewInt(0), e.gasLimit, gasPrice, data)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		return fmt.Errorf("failed to send transaction: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, e.client, signedTx)
	if err != nil {
		return fmt.Errorf("failed to wait for receipt: %w", err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ErrTransferReverted, signedTx.Hash().Hex())
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"intentId": intent.IntentID,
		"assetId":  string(intent.AssetID),
		"amount":   intent.Amount.String(),
		"txHash":   signedTx.Hash().Hex(),
	}).Info("Transfer confirmed")

	return nil
}

// toBaseUnits converts a whole-token decimal amount to base units
func toBaseUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(tokenDecimals).Truncate(0).BigInt()
}
