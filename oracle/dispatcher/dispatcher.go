// Package dispatcher turns OracleRequest events into status responses, one
// per registered oracle that holds the requested index.
package dispatcher

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"

	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/metrics"
	"github.com/GPTx-global/flightsurety-oracle/oracle/status"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

// OracleSource yields a snapshot of the registered oracles.
type OracleSource interface {
	All() []types.Oracle
}

type Dispatcher struct {
	gateway   ledger.Gateway
	oracles   OracleSource
	generator *status.Generator
	gasLimit  uint64
	pool      *WorkerPool

	submitted cmap.ConcurrentMap[string, int]
}

func New(gateway ledger.Gateway, oracles OracleSource, generator *status.Generator, gasLimit uint64, pool *WorkerPool) *Dispatcher {
	if generator == nil {
		generator = status.NewGenerator(nil)
	}

	return &Dispatcher{
		gateway:   gateway,
		oracles:   oracles,
		generator: generator,
		gasLimit:  gasLimit,
		pool:      pool,
		submitted: cmap.New[int](),
	}
}

// Start launches the submission workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx, d.submit)
}

// Stop shuts the workers down. Responses still queued are discarded.
func (d *Dispatcher) Stop() {
	d.pool.Stop()
}

// Wait blocks until every enqueued response has been handled.
func (d *Dispatcher) Wait() {
	d.pool.Wait()
}

// Run handles request events until ctx is done or events is closed. Every
// event is a new round, even when identical to an earlier one.
func (d *Dispatcher) Run(ctx context.Context, events <-chan ledger.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Err != nil {
				log.Warnf("dropping undecodable %s log in tx %s: %v", types.EventOracleRequest, ev.Log.TxHash.Hex(), ev.Err)
				metrics.Incr(metrics.RequestMalformed)
				continue
			}
			_, _ = d.OnRequest(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// OnRequest enqueues one response for each oracle holding the requested
// index and returns how many were enqueued. It blocks while the submission
// queue is full, which holds back the event stream behind it.
func (d *Dispatcher) OnRequest(ctx context.Context, ev ledger.Event) (int, error) {
	req, err := types.ParseStatusRequest(ev.Fields)
	if err != nil {
		log.Warnf("dropping %s event: %v", types.EventOracleRequest, err)
		metrics.Incr(metrics.RequestMalformed)
		return 0, err
	}
	metrics.Incr(metrics.RequestReceived)

	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	enqueued := 0
	for _, oracle := range d.oracles.All() {
		if !oracle.Holds(req.Index) {
			continue
		}

		resp := types.StatusResponse{
			Oracle:     oracle.Address,
			Index:      req.Index,
			Airline:    req.Airline,
			Flight:     req.Flight,
			Timestamp:  new(big.Int).Set(req.Timestamp),
			StatusCode: d.generator.NextCode(),
		}
		if d.pool.Submit(ctx, resp) {
			enqueued++
		}
	}

	log.Infof("%s: %d responses enqueued", req, enqueued)
	return enqueued, nil
}

func (d *Dispatcher) submit(ctx context.Context, resp types.StatusResponse) {
	_, err := d.gateway.Send(ctx, types.MethodSubmitOracleResponse,
		ledger.SendOpts{From: resp.Oracle, GasLimit: d.gasLimit},
		resp.Index, resp.Airline, resp.Flight, resp.Timestamp, uint8(resp.StatusCode),
	)
	if err != nil {
		err = errors.Wrapf(types.ErrSubmissionFailure, "oracle %s flight %s: %v", resp.Oracle.Hex(), resp.Flight, err)
		log.Warnf("%v", err)
		metrics.Incr(metrics.ResponseFailed)
		return
	}

	d.submitted.Upsert(resp.Oracle.Hex(), 1, func(exist bool, current int, n int) int {
		if exist {
			return current + n
		}
		return n
	})
	metrics.Incr(metrics.ResponseSubmitted)
	log.Debugf("oracle %s reported %s for %s", resp.Oracle.Hex(), resp.StatusCode, resp.Flight)
}

// Submitted returns how many responses each oracle has had accepted.
func (d *Dispatcher) Submitted() map[common.Address]int {
	out := make(map[common.Address]int, d.submitted.Count())
	for key, n := range d.submitted.Items() {
		out[common.HexToAddress(key)] = n
	}
	return out
}
