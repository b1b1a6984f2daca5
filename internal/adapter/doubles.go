package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/portfolio-engine/internal/logging"
	"github.com/portfolio-engine/internal/types"
	"github.com/shopspring/decimal"
)

// LoggingExecutor confirms every intent without moving value. Used in
// development environments where no chain RPC is configured.
type LoggingExecutor struct{}

// NewLoggingExecutor creates a transfer executor that logs and confirms
func NewLoggingExecutor() *LoggingExecutor {
	return &LoggingExecutor{}
}

// ExecuteTransfer logs the intent and reports success
func (e *LoggingExecutor) ExecuteTransfer(ctx context.Context, intent *types.TransferIntent) error {
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"intentId":  intent.IntentID,
		"assetId":   string(intent.AssetID),
		"amount":    intent.Amount.String(),
		"direction": string(intent.Direction),
	}).Info("Transfer intent confirmed (logging executor)")
	return nil
}

// StaticOracle serves unit values from a fixed in-memory table. Used in
// development environments and tests.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[types.AssetID]decimal.Decimal
}

// NewStaticOracle creates an oracle with a fixed price table
func NewStaticOracle(prices map[types.AssetID]decimal.Decimal) *StaticOracle {
	if prices == nil {
		prices = make(map[types.AssetID]decimal.Decimal)
	}
	return &StaticOracle{prices: prices}
}

// SetValue updates the table entry for an asset
func (o *StaticOracle) SetValue(assetID types.AssetID, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[assetID] = price
}

// GetValue returns the table entry for an asset
func (o *StaticOracle) GetValue(_ context.Context, assetID types.AssetID) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	price, ok := o.prices[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price configured for asset %s", assetID)
	}
	return price, nil
}
