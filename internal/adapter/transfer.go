// Package adapter implements the engine's external collaborators: the token
// transfer executor and the price oracle. The engine only ever talks to the
// interfaces defined here; production wiring plugs in the EVM and HTTP
// implementations, tests plug in recording doubles.
package adapter

import (
	"context"
	"fmt"

	"github.com/portfolio-engine/internal/types"
)

// TransferExecutor executes transfer intents emitted by the engine. The
// result must be known synchronously: an engine operation only commits once
// every intent it issued has been confirmed, and any failure aborts the whole
// operation.
type TransferExecutor interface {
	// ExecuteTransfer performs the value movement described by the intent.
	// A nil return confirms the transfer happened; any error means it did
	// not, and the issuing operation must roll back.
	ExecuteTransfer(ctx context.Context, intent *types.TransferIntent) error
}

// Common transfer executor errors

var (
	// ErrUnknownToken indicates no contract is configured for the asset
	ErrUnknownToken = fmt.Errorf("no token contract configured for asset")

	// ErrTransferReverted indicates the on-chain transfer did not succeed
	ErrTransferReverted = fmt.Errorf("transfer transaction reverted")
)
