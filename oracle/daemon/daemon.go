package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/GPTx-global/flightsurety-oracle/oracle/config"
	"github.com/GPTx-global/flightsurety-oracle/oracle/dispatcher"
	"github.com/GPTx-global/flightsurety-oracle/oracle/health"
	"github.com/GPTx-global/flightsurety-oracle/oracle/infolog"
	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/metrics"
	"github.com/GPTx-global/flightsurety-oracle/oracle/registry"
	"github.com/GPTx-global/flightsurety-oracle/oracle/retry"
	"github.com/GPTx-global/flightsurety-oracle/oracle/status"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

const (
	serviceName         = "oracled"
	eventBufferSize     = 64
	healthCheckInterval = 15 * time.Second
)

// Components are the ledger-facing dependencies of a Daemon.
type Components struct {
	App        ledger.Gateway
	Data       ledger.Gateway
	Accounts   ledger.AccountLister
	AppAddress common.Address
	// Ping reports whether the ledger node is reachable.
	Ping func(ctx context.Context) error
}

type Daemon struct {
	ctx    context.Context
	cancel context.CancelFunc

	rpc        *rpc.Client
	components Components

	registry   *registry.Registry
	dispatcher *dispatcher.Dispatcher
	forwarder  *infolog.Forwarder
	checker    *health.Checker
	server     *health.Server

	subs     []event.Subscription
	failures chan error
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New dials the ledger configured in config and builds a daemon on top of it.
func New(ctx context.Context) (*Daemon, error) {
	client, err := dialLedger(ctx)
	if err != nil {
		return nil, err
	}

	appABI, err := ledger.AppABI(config.AppArtifact())
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to load FlightSuretyApp ABI")
	}
	dataABI, err := ledger.DataABI(config.DataArtifact())
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to load FlightSuretyData ABI")
	}

	opts := []ledger.Option{
		ledger.WithCallTimeout(config.CallTimeout()),
		ledger.WithReceiptTimeout(config.ReceiptTimeout()),
	}
	app := ledger.NewEthGateway(client, config.AppAddress(), appABI, opts...)
	data := ledger.NewEthGateway(client, config.DataAddress(), dataABI, opts...)

	var accounts ledger.AccountLister = app
	if mnemonic := config.Mnemonic(); mnemonic != "" {
		accounts = ledger.MnemonicAccounts(mnemonic, config.AccountCount())
	}

	d, err := NewWithComponents(ctx, Components{
		App:        app,
		Data:       data,
		Accounts:   accounts,
		AppAddress: config.AppAddress(),
		Ping: func(ctx context.Context) error {
			_, err := app.BlockNumber(ctx)
			return err
		},
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	d.rpc = client

	return d, nil
}

// NewWithComponents builds a daemon on already constructed gateways.
func NewWithComponents(ctx context.Context, c Components) (*Daemon, error) {
	if c.App == nil {
		return nil, errors.New("app gateway is required")
	}
	if c.Accounts == nil {
		c.Accounts = c.App
	}

	d := new(Daemon)
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.components = c
	d.failures = make(chan error, 2)

	sink, err := metrics.Init(serviceName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init metrics")
	}

	d.registry = registry.New(c.App, config.GasLimit(), config.PoolSize(),
		registry.WithConcurrency(config.RegistrationConcurrency()))
	d.dispatcher = dispatcher.New(c.App, d.registry, status.NewGenerator(nil), config.GasLimit(),
		dispatcher.NewWorkerPool(config.Workers(), config.QueueSize()))
	d.forwarder = infolog.NewForwarder(infolog.LogSink{})

	d.checker = health.NewChecker(healthCheckInterval)
	if c.Ping != nil {
		d.checker.AddCheck(health.NewFuncCheck("ledger", c.Ping))
	}
	d.checker.AddCheck(health.NewFuncCheck("oracle_pool", func(context.Context) error {
		if d.registry.Len() == 0 {
			return errors.New("no oracle registered")
		}
		return nil
	}))

	if config.HTTPEnabled() {
		d.server = health.NewServer(config.HTTPListen(), d.checker, d.registry, d.dispatcher, sink)
	}

	return d, nil
}

func dialLedger(ctx context.Context) (*rpc.Client, error) {
	client, err := dial(ctx, config.LedgerWSURL())
	if err == nil {
		return client, nil
	}
	if config.LedgerWSURL() == config.LedgerURL() {
		return nil, err
	}

	log.Warnf("cannot reach %s (%v), falling back to %s", config.LedgerWSURL(), err, config.LedgerURL())
	return dial(ctx, config.LedgerURL())
}

// dial connects to url and confirms the node answers, retrying while it is
// unreachable.
func dial(ctx context.Context, url string) (*rpc.Client, error) {
	var client *rpc.Client
	breaker := retry.NewCircuitBreaker(3, 10*time.Second)

	err := retry.Do(ctx, retry.DialConfig(), func() error {
		return breaker.Execute(func() error {
			c, err := rpc.DialContext(ctx, url)
			if err != nil {
				return err
			}

			callCtx, cancel := context.WithTimeout(ctx, config.CallTimeout())
			defer cancel()
			chainID, err := ethclient.NewClient(c).ChainID(callCtx)
			if err != nil {
				c.Close()
				return err
			}

			log.Infof("connected to %s, chain id %s", url, chainID)
			client = c
			return nil
		})
	}, func(err error) bool {
		return errors.Is(err, retry.ErrCircuitOpen) || retry.IsTransient(err)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to ledger at %s", url)
	}

	return client, nil
}

// Start registers the oracle pool, then begins listening for requests and
// status broadcasts. A failed fee query leaves the pool empty but the
// daemon keeps listening.
func (d *Daemon) Start() error {
	accounts, err := d.components.Accounts.Accounts(d.ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list accounts")
	}
	if len(accounts) == 0 {
		return errors.New("ledger returned no accounts")
	}
	log.Infof("%d accounts available, owner %s", len(accounts), accounts[0].Hex())

	d.authoriseCaller(accounts[0])

	if _, err := d.registry.RegisterAll(d.ctx, accounts); err != nil {
		log.Errorf("oracle registration skipped: %v", err)
	}

	d.dispatcher.Start(d.ctx)

	requests := make(chan ledger.Event, eventBufferSize)
	if err := d.subscribe(types.EventOracleRequest, requests); err != nil {
		return err
	}
	infos := make(chan ledger.Event, eventBufferSize)
	if err := d.subscribe(types.EventFlightStatusInfo, infos); err != nil {
		return err
	}

	d.wg.Add(3)
	go func() {
		defer d.wg.Done()
		d.dispatcher.Run(d.ctx, requests)
	}()
	go func() {
		defer d.wg.Done()
		d.forwarder.Run(d.ctx, infos)
	}()
	go func() {
		defer d.wg.Done()
		d.checker.Start(d.ctx)
	}()

	if d.server != nil {
		go func() {
			if err := d.server.ListenAndServe(); err != nil {
				log.Errorf("HTTP API stopped: %v", err)
			}
		}()
	}

	log.Infof("listening for %s events with %d oracles", types.EventOracleRequest, d.registry.Len())
	return nil
}

// authoriseCaller lets the app contract write to the data contract. It is
// not fatal: the contracts may have been wired at deploy time.
func (d *Daemon) authoriseCaller(owner common.Address) {
	if !config.AuthoriseCaller() || d.components.Data == nil {
		return
	}

	_, err := d.components.Data.Send(d.ctx, types.MethodAuthoriseCaller,
		ledger.SendOpts{From: owner, GasLimit: config.GasLimit()},
		d.components.AppAddress,
	)
	if err != nil {
		log.Warnf("authoriseCaller(%s) failed: %v", d.components.AppAddress.Hex(), err)
		return
	}
	log.Infof("authorised %s on the data contract", d.components.AppAddress.Hex())
}

func (d *Daemon) subscribe(name string, sink chan ledger.Event) error {
	sub, err := d.components.App.Subscribe(d.ctx, name, config.FromBlock(), sink)
	if err != nil {
		return errors.Wrapf(err, "failed to subscribe to %s", name)
	}
	d.subs = append(d.subs, sub)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case err, ok := <-sub.Err():
			if ok && err != nil {
				d.failures <- errors.Wrapf(err, "%s subscription failed", name)
			}
		case <-d.ctx.Done():
		}
	}()

	return nil
}

// Monitor blocks until the daemon is stopped or a subscription fails.
func (d *Daemon) Monitor() error {
	select {
	case err := <-d.failures:
		log.Errorf("%v", err)
		return err
	case <-d.ctx.Done():
		return nil
	}
}

// Registry exposes the oracle pool.
func (d *Daemon) Registry() *registry.Registry {
	return d.registry
}

func (d *Daemon) Dispatcher() *dispatcher.Dispatcher {
	return d.dispatcher
}

// Stop shuts every component down and waits for in-flight submissions.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.cancel()
		for _, sub := range d.subs {
			sub.Unsubscribe()
		}

		if d.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := d.server.Shutdown(ctx); err != nil {
				log.Warnf("HTTP API shutdown: %v", err)
			}
			cancel()
		}

		d.wg.Wait()
		d.dispatcher.Stop()
		d.dispatcher.Wait()

		if d.rpc != nil {
			d.rpc.Close()
		}
		log.Infof("daemon stopped")
	})
}
