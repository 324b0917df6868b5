// Package ledger is the daemon's only view of the blockchain: contract calls,
// node-signed transactions, event subscriptions and account enumeration.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
)

var (
	ErrUnknownMethod = errors.New("unknown contract method")
	ErrUnknownEvent  = errors.New("unknown contract event")
	ErrReverted      = errors.New("transaction reverted")
)

// Gateway is bound to a single contract.
type Gateway interface {
	// Call executes a read-only method as from and returns its decoded outputs.
	Call(ctx context.Context, method string, from common.Address, args ...interface{}) ([]interface{}, error)
	// Send submits a transaction signed by the node for opts.From and waits for its receipt.
	Send(ctx context.Context, method string, opts SendOpts, args ...interface{}) (*ethtypes.Receipt, error)
	// Subscribe delivers every matching event from fromBlock onwards into sink.
	Subscribe(ctx context.Context, eventName string, fromBlock uint64, sink chan<- Event) (event.Subscription, error)
	// Accounts lists the accounts the node manages, in node order.
	Accounts(ctx context.Context) ([]common.Address, error)
}

type SendOpts struct {
	From     common.Address
	Value    *big.Int
	GasLimit uint64
}

// Event is a decoded contract log. Err is set when the log could not be decoded;
// Fields then holds whatever was recovered.
type Event struct {
	Name   string
	Fields map[string]interface{}
	Log    ethtypes.Log
	Err    error
}
