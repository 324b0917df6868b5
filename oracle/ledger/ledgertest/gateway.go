// Package ledgertest provides an in-memory ledger.Gateway whose call outcomes
// and event timing are fully controlled by the test.
package ledgertest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"

	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

// Tx is a transaction the fake accepted or rejected.
type Tx struct {
	Method string
	Opts   ledger.SendOpts
	Args   []interface{}
	Err    error
}

type subscription struct {
	name string
	sink chan<- ledger.Event
	quit <-chan struct{}
}

// Gateway fakes the FlightSuretyApp contract. Zero values mean success.
type Gateway struct {
	mu sync.Mutex

	accounts   []common.Address
	fee        *big.Int
	feeErr     error
	indexes    map[common.Address][]uint8
	registered map[common.Address]bool

	registerErr map[common.Address]error
	indexErr    map[common.Address]error
	submitErr   map[common.Address]error
	sendHook    func(Tx)

	txs  []Tx
	subs []*subscription
}

func New(accounts []common.Address) *Gateway {
	return &Gateway{
		accounts:    accounts,
		fee:         big.NewInt(1e18),
		indexes:     make(map[common.Address][]uint8),
		registered:  make(map[common.Address]bool),
		registerErr: make(map[common.Address]error),
		indexErr:    make(map[common.Address]error),
		submitErr:   make(map[common.Address]error),
	}
}

// Addresses returns n deterministic distinct addresses.
func Addresses(n int) []common.Address {
	out := make([]common.Address, n)
	for i := range out {
		out[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
	}
	return out
}

func (g *Gateway) SetFee(fee *big.Int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fee, g.feeErr = fee, err
}

// SetIndexes fixes what getMyIndexes returns for addr once it is registered.
func (g *Gateway) SetIndexes(addr common.Address, indexes ...uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.indexes[addr] = indexes
}

func (g *Gateway) FailRegistration(addr common.Address, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registerErr[addr] = err
}

func (g *Gateway) FailIndexQuery(addr common.Address, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.indexErr[addr] = err
}

func (g *Gateway) FailSubmission(addr common.Address, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitErr[addr] = err
}

// OnSend is called, outside the lock, for every transaction before it is answered.
func (g *Gateway) OnSend(hook func(Tx)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sendHook = hook
}

func (g *Gateway) Accounts(context.Context) ([]common.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]common.Address(nil), g.accounts...), nil
}

func (g *Gateway) Call(_ context.Context, method string, from common.Address, _ ...interface{}) ([]interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch method {
	case types.MethodRegistrationFee:
		if g.feeErr != nil {
			return nil, g.feeErr
		}
		return []interface{}{new(big.Int).Set(g.fee)}, nil

	case types.MethodGetMyIndexes:
		if err := g.indexErr[from]; err != nil {
			return nil, err
		}
		if !g.registered[from] {
			return nil, errors.New("VM Exception: Not registered as an oracle")
		}
		idx := g.indexes[from]
		if len(idx) != 0 && len(idx) != types.IndexCount {
			// a slice of the wrong length exercises the cardinality check
			return []interface{}{append([]uint8(nil), idx...)}, nil
		}
		var out [types.IndexCount]uint8
		copy(out[:], idx)
		return []interface{}{out}, nil

	default:
		return nil, errors.Wrap(ledger.ErrUnknownMethod, method)
	}
}

func (g *Gateway) Send(_ context.Context, method string, opts ledger.SendOpts, args ...interface{}) (*ethtypes.Receipt, error) {
	g.mu.Lock()
	hook := g.sendHook
	g.mu.Unlock()

	tx := Tx{Method: method, Opts: opts, Args: args}
	if hook != nil {
		hook(tx)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch method {
	case types.MethodRegisterOracle:
		tx.Err = g.registerErr[opts.From]
		if tx.Err == nil && (opts.Value == nil || opts.Value.Cmp(g.fee) < 0) {
			tx.Err = errors.New("VM Exception: Registration fee is required")
		}
		if tx.Err == nil {
			g.registered[opts.From] = true
		}
	case types.MethodSubmitOracleResponse:
		tx.Err = g.submitErr[opts.From]
	case types.MethodAuthoriseCaller:
	default:
		tx.Err = errors.Wrap(ledger.ErrUnknownMethod, method)
	}

	g.txs = append(g.txs, tx)
	if tx.Err != nil {
		return nil, tx.Err
	}

	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful}, nil
}

func (g *Gateway) Subscribe(_ context.Context, eventName string, _ uint64, sink chan<- ledger.Event) (event.Subscription, error) {
	if eventName != types.EventOracleRequest && eventName != types.EventFlightStatusInfo {
		return nil, errors.Wrap(ledger.ErrUnknownEvent, eventName)
	}

	registered := make(chan struct{})
	sub := event.NewSubscription(func(quit <-chan struct{}) error {
		g.mu.Lock()
		g.subs = append(g.subs, &subscription{name: eventName, sink: sink, quit: quit})
		g.mu.Unlock()
		close(registered)

		<-quit
		return nil
	})
	<-registered

	return sub, nil
}

// Emit delivers an event to every live subscriber of name and blocks until
// each has accepted it.
func (g *Gateway) Emit(name string, fields map[string]interface{}) {
	g.mu.Lock()
	subs := append([]*subscription(nil), g.subs...)
	g.mu.Unlock()

	for _, s := range subs {
		if s.name != name {
			continue
		}
		select {
		case s.sink <- ledger.Event{Name: name, Fields: fields}:
		case <-s.quit:
		}
	}
}

// EmitRequest emits an OracleRequest event.
func (g *Gateway) EmitRequest(req types.StatusRequest) {
	g.Emit(types.EventOracleRequest, RequestFields(req))
}

func RequestFields(req types.StatusRequest) map[string]interface{} {
	return map[string]interface{}{
		"index":     req.Index,
		"airline":   req.Airline,
		"flight":    req.Flight,
		"timestamp": req.Timestamp,
	}
}

// Txs returns every transaction for method, or all of them when method is empty.
func (g *Gateway) Txs(method string) []Tx {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []Tx
	for _, tx := range g.txs {
		if method == "" || tx.Method == method {
			out = append(out, tx)
		}
	}
	return out
}

// Responses decodes the successful submitOracleResponse transactions.
func (g *Gateway) Responses() []types.StatusResponse {
	var out []types.StatusResponse
	for _, tx := range g.Txs(types.MethodSubmitOracleResponse) {
		if tx.Err != nil || len(tx.Args) != 5 {
			continue
		}
		out = append(out, types.StatusResponse{
			Oracle:     tx.Opts.From,
			Index:      tx.Args[0].(uint8),
			Airline:    tx.Args[1].(common.Address),
			Flight:     tx.Args[2].(string),
			Timestamp:  tx.Args[3].(*big.Int),
			StatusCode: types.StatusCode(tx.Args[4].(uint8)),
		})
	}
	return out
}

var _ ledger.Gateway = (*Gateway)(nil)
