package registry

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/metrics"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

const defaultConcurrency = 8

// Registry owns the oracle pool. It is written only by RegisterAll; every
// read returns a copy.
type Registry struct {
	gateway     ledger.Gateway
	gasLimit    uint64
	poolSize    int
	concurrency int

	mu    sync.RWMutex
	owner common.Address
	order []common.Address
	pool  map[common.Address][]uint8
}

// Outcome is the result of registering one account. Err is nil on success.
type Outcome struct {
	Account common.Address
	Indexes []uint8
	Err     error
}

type Option func(*Registry)

// WithConcurrency bounds how many registrations are in flight at once.
func WithConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func New(gateway ledger.Gateway, gasLimit uint64, poolSize int, opts ...Option) *Registry {
	r := &Registry{
		gateway:     gateway,
		gasLimit:    gasLimit,
		poolSize:    poolSize,
		concurrency: defaultConcurrency,
		pool:        make(map[common.Address][]uint8),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RegisterAll registers up to poolSize oracles from accounts, skipping
// accounts[0] which is the contract owner. The fee is read once up front; if
// that fails nothing is registered and an ErrFeeQuery error is returned.
// Individual failures are reported in the outcomes and leave the account out
// of the pool.
func (r *Registry) RegisterAll(ctx context.Context, accounts []common.Address) ([]Outcome, error) {
	if len(accounts) == 0 {
		return nil, errors.New("no accounts available")
	}

	owner := accounts[0]
	r.mu.Lock()
	r.owner = owner
	r.mu.Unlock()

	end := 1 + r.poolSize
	if end > len(accounts) {
		log.Warnf("only %d accounts available for a pool of %d oracles", len(accounts)-1, r.poolSize)
		end = len(accounts)
	}
	candidates := accounts[1:end]

	fee, err := r.registrationFee(ctx, owner)
	if err != nil {
		log.Errorf("Cannot read registration fee, no oracle will be registered: %v", err)
		return nil, err
	}
	log.Infof("registering %d oracles, fee %s wei, gas limit %d", len(candidates), fee, r.gasLimit)

	outcomes := make([]Outcome, len(candidates))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, account := range candidates {
		i, account := i, account
		g.Go(func() error {
			outcomes[i] = r.register(ctx, account, fee)
			return nil
		})
	}
	_ = g.Wait()

	log.Infof("registration finished: %d of %d oracles registered", r.Len(), len(candidates))
	return outcomes, nil
}

func (r *Registry) registrationFee(ctx context.Context, owner common.Address) (*big.Int, error) {
	values, err := r.gateway.Call(ctx, types.MethodRegistrationFee, owner)
	if err != nil {
		return nil, errors.Wrapf(types.ErrFeeQuery, "%v", err)
	}
	if len(values) != 1 {
		return nil, errors.Wrapf(types.ErrFeeQuery, "expected 1 value, got %d", len(values))
	}

	fee, ok := values[0].(*big.Int)
	if !ok || fee == nil {
		return nil, errors.Wrapf(types.ErrFeeQuery, "unexpected fee type %T", values[0])
	}

	return fee, nil
}

// register runs one oracle's registration; the index query only happens
// after the registration transaction is confirmed.
func (r *Registry) register(ctx context.Context, account common.Address, fee *big.Int) Outcome {
	outcome := Outcome{Account: account}

	fail := func(stage string, err error) Outcome {
		outcome.Err = errors.Wrapf(types.ErrRegistrationFailure, "%s %s: %v", stage, account.Hex(), err)
		log.Warnf("Cannot register Oracle %s: %v", account.Hex(), err)
		metrics.Incr(metrics.RegistrationFailure)
		return outcome
	}

	_, err := r.gateway.Send(ctx, types.MethodRegisterOracle, ledger.SendOpts{
		From:     account,
		Value:    fee,
		GasLimit: r.gasLimit,
	})
	if err != nil {
		return fail("register", err)
	}

	values, err := r.gateway.Call(ctx, types.MethodGetMyIndexes, account)
	if err != nil {
		return fail("query indexes", err)
	}

	indexes, err := toIndexes(values)
	if err != nil {
		return fail("query indexes", err)
	}

	r.insert(account, indexes)
	outcome.Indexes = indexes
	log.Infof("Oracle registered %s with indexes %v", account.Hex(), indexes)
	metrics.Incr(metrics.RegistrationSuccess)

	return outcome
}

func toIndexes(values []interface{}) ([]uint8, error) {
	if len(values) != 1 {
		return nil, errors.Errorf("expected 1 value, got %d", len(values))
	}

	var indexes []uint8
	switch v := values[0].(type) {
	case [types.IndexCount]uint8:
		indexes = append(indexes, v[:]...)
	case []uint8:
		indexes = append(indexes, v...)
	default:
		return nil, errors.Errorf("unexpected indexes type %T", values[0])
	}

	if len(indexes) != types.IndexCount {
		return nil, errors.Errorf("expected %d indexes, got %d", types.IndexCount, len(indexes))
	}

	return indexes, nil
}

func (r *Registry) insert(account common.Address, indexes []uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pool[account]; !ok {
		r.order = append(r.order, account)
	}
	r.pool[account] = indexes
}

// IndexesOf returns the indexes assigned to account, if it is registered.
func (r *Registry) IndexesOf(account common.Address) ([]uint8, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	indexes, ok := r.pool[account]
	if !ok {
		return nil, false
	}
	return append([]uint8(nil), indexes...), true
}

// All returns a snapshot of the pool in registration order.
func (r *Registry) All() []types.Oracle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	oracles := make([]types.Oracle, 0, len(r.order))
	for _, account := range r.order {
		oracles = append(oracles, types.Oracle{
			Address: account,
			Indexes: append([]uint8(nil), r.pool[account]...),
		})
	}
	return oracles
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Owner is the account excluded from the pool by the last RegisterAll.
func (r *Registry) Owner() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}
