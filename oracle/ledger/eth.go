package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
)

const (
	defaultCallTimeout    = 30 * time.Second
	defaultReceiptTimeout = 60 * time.Second
	defaultPollInterval   = time.Second
	logBufferSize         = 128
)

// EthGateway implements Gateway over an Ethereum JSON-RPC node that holds
// the sending accounts unlocked (ganache, geth --dev).
type EthGateway struct {
	rpc     *rpc.Client
	client  *ethclient.Client
	address common.Address
	abi     abi.ABI

	callTimeout    time.Duration
	receiptTimeout time.Duration
	pollInterval   time.Duration
}

type Option func(*EthGateway)

func WithCallTimeout(d time.Duration) Option {
	return func(g *EthGateway) { g.callTimeout = d }
}

func WithReceiptTimeout(d time.Duration) Option {
	return func(g *EthGateway) { g.receiptTimeout = d }
}

// WithPollInterval sets how often receipts and, on transports without
// notifications, new logs are polled.
func WithPollInterval(d time.Duration) Option {
	return func(g *EthGateway) { g.pollInterval = d }
}

// NewEthGateway binds a gateway to the contract at address.
func NewEthGateway(client *rpc.Client, address common.Address, contractABI abi.ABI, opts ...Option) *EthGateway {
	g := &EthGateway{
		rpc:            client,
		client:         ethclient.NewClient(client),
		address:        address,
		abi:            contractABI,
		callTimeout:    defaultCallTimeout,
		receiptTimeout: defaultReceiptTimeout,
		pollInterval:   defaultPollInterval,
	}
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// BlockNumber is used by the health checks.
func (g *EthGateway) BlockNumber(ctx context.Context) (uint64, error) {
	return g.client.BlockNumber(ctx)
}

func (g *EthGateway) Call(ctx context.Context, method string, from common.Address, args ...interface{}) ([]interface{}, error) {
	if _, ok := g.abi.Methods[method]; !ok {
		return nil, errors.Wrap(ErrUnknownMethod, method)
	}

	data, err := g.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}

	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	out, err := g.client.CallContract(ctx, ethereum.CallMsg{From: from, To: &g.address, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call %s", method)
	}

	values, err := g.abi.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s", method)
	}

	return values, nil
}

func (g *EthGateway) Send(ctx context.Context, method string, opts SendOpts, args ...interface{}) (*ethtypes.Receipt, error) {
	if _, ok := g.abi.Methods[method]; !ok {
		return nil, errors.Wrap(ErrUnknownMethod, method)
	}

	data, err := g.abi.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}

	tx := map[string]interface{}{
		"from": opts.From,
		"to":   g.address,
		"data": hexutil.Bytes(data),
	}
	if opts.GasLimit > 0 {
		tx["gas"] = hexutil.Uint64(opts.GasLimit)
	}
	if opts.Value != nil {
		tx["value"] = (*hexutil.Big)(opts.Value)
	}

	sendCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	var hash common.Hash
	if err := g.rpc.CallContext(sendCtx, &hash, "eth_sendTransaction", tx); err != nil {
		return nil, errors.Wrapf(err, "failed to send %s from %s", method, opts.From.Hex())
	}

	receipt, err := g.waitReceipt(ctx, hash)
	if err != nil {
		return nil, errors.Wrapf(err, "%s from %s", method, opts.From.Hex())
	}

	return receipt, nil
}

func (g *EthGateway) waitReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, g.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status == ethtypes.ReceiptStatusFailed {
				return receipt, errors.Wrapf(ErrReverted, "tx %s", hash.Hex())
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrapf(err, "failed to fetch receipt %s", hash.Hex())
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "waiting for receipt %s", hash.Hex())
		case <-ticker.C:
		}
	}
}

func (g *EthGateway) Accounts(ctx context.Context) ([]common.Address, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	var accounts []common.Address
	if err := g.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, errors.Wrap(err, "failed to list accounts")
	}

	return accounts, nil
}

// Subscribe replays the logs between fromBlock and the current head, then
// streams new ones. The live subscription is opened before the head is read,
// so a log mined in between is delivered once. Transports without
// notifications (plain HTTP) fall back to polling.
func (g *EthGateway) Subscribe(ctx context.Context, eventName string, fromBlock uint64, sink chan<- Event) (event.Subscription, error) {
	ev, ok := g.abi.Events[eventName]
	if !ok {
		return nil, errors.Wrap(ErrUnknownEvent, eventName)
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{g.address},
		Topics:    [][]common.Hash{{ev.ID}},
	}

	logs := make(chan ethtypes.Log, logBufferSize)
	sub, err := g.client.SubscribeFilterLogs(ctx, query, logs)
	polling := errors.Is(err, rpc.ErrNotificationsUnsupported)
	if err != nil && !polling {
		return nil, errors.Wrapf(err, "failed to subscribe to %s", eventName)
	}
	if polling {
		log.Debugf("%s: notifications unsupported, polling every %v", eventName, g.pollInterval)
	}

	fail := func(err error) (event.Subscription, error) {
		if sub != nil {
			sub.Unsubscribe()
		}
		return nil, err
	}

	head, err := g.client.BlockNumber(ctx)
	if err != nil {
		return fail(errors.Wrap(err, "failed to read head block"))
	}

	var backlog []ethtypes.Log
	next := fromBlock
	if fromBlock <= head {
		q := query
		q.FromBlock = new(big.Int).SetUint64(fromBlock)
		q.ToBlock = new(big.Int).SetUint64(head)
		if backlog, err = g.client.FilterLogs(ctx, q); err != nil {
			return fail(errors.Wrapf(err, "failed to filter %s logs", eventName))
		}
		next = head + 1
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		for _, l := range backlog {
			if !g.deliver(ev, l, sink, quit) {
				return nil
			}
		}

		if polling {
			live := query
			live.FromBlock = new(big.Int).SetUint64(next)
			return g.poll(ctx, live, ev, sink, quit)
		}

		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				// already replayed, or older than requested
				if l.BlockNumber < next {
					continue
				}
				if !g.deliver(ev, l, sink, quit) {
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (g *EthGateway) poll(ctx context.Context, query ethereum.FilterQuery, ev abi.Event, sink chan<- Event, quit <-chan struct{}) error {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	next := query.FromBlock.Uint64()
	for {
		select {
		case <-quit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		head, err := g.client.BlockNumber(ctx)
		if err != nil {
			log.Warnf("%s: failed to read head block: %v", ev.Name, err)
			continue
		}
		if head < next {
			continue
		}

		q := query
		q.FromBlock = new(big.Int).SetUint64(next)
		q.ToBlock = new(big.Int).SetUint64(head)
		logs, err := g.client.FilterLogs(ctx, q)
		if err != nil {
			log.Warnf("%s: failed to filter logs %d-%d: %v", ev.Name, next, head, err)
			continue
		}

		for _, l := range logs {
			if !g.deliver(ev, l, sink, quit) {
				return nil
			}
		}
		next = head + 1
	}
}

func (g *EthGateway) deliver(ev abi.Event, l ethtypes.Log, sink chan<- Event, quit <-chan struct{}) bool {
	if l.Removed {
		log.Debugf("%s: skipping removed log in tx %s", ev.Name, l.TxHash.Hex())
		return true
	}

	select {
	case sink <- g.decode(ev, l):
		return true
	case <-quit:
		return false
	}
}

func (g *EthGateway) decode(ev abi.Event, l ethtypes.Log) Event {
	out := Event{Name: ev.Name, Fields: make(map[string]interface{}), Log: l}

	if len(l.Data) > 0 {
		if err := g.abi.UnpackIntoMap(out.Fields, ev.Name, l.Data); err != nil {
			out.Err = errors.Wrapf(err, "failed to unpack %s data", ev.Name)
			return out
		}
	}

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) > 0 && len(l.Topics) > 1 {
		if err := abi.ParseTopicsIntoMap(out.Fields, indexed, l.Topics[1:]); err != nil {
			out.Err = errors.Wrapf(err, "failed to parse %s topics", ev.Name)
		}
	}

	return out
}
