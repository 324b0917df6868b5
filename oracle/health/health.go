package health

import (
	"context"
	"sync"
	"time"

	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
)

type Check interface {
	Check(ctx context.Context) error
	Name() string
}

// Status is the last result of one check.
type Status struct {
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Checker runs its checks periodically and keeps the last result of each.
type Checker struct {
	mu       sync.RWMutex
	checks   map[string]Check
	status   map[string]Status
	interval time.Duration
}

func NewChecker(interval time.Duration) *Checker {
	return &Checker{
		checks:   make(map[string]Check),
		status:   make(map[string]Status),
		interval: interval,
	}
}

// AddCheck registers check. It counts as unhealthy until it has run once.
func (c *Checker) AddCheck(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := check.Name()
	c.checks[name] = check
	c.status[name] = Status{Healthy: false, LastError: "not checked yet"}
	log.Debugf("health check added: %s", name)
}

// Start runs every check immediately and then on each tick until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.RunChecks(ctx)
	for {
		select {
		case <-ticker.C:
			c.RunChecks(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunChecks runs all checks concurrently and waits for them.
func (c *Checker) RunChecks(ctx context.Context) {
	c.mu.RLock()
	checks := make([]Check, 0, len(c.checks))
	for _, check := range c.checks {
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for _, check := range checks {
		wg.Add(1)
		go func(check Check) {
			defer wg.Done()

			err := check.Check(ctx)
			st := Status{Healthy: err == nil, LastCheck: time.Now()}
			if err != nil {
				st.LastError = err.Error()
				log.Warnf("health check failed - %s: %v", check.Name(), err)
			}

			c.mu.Lock()
			c.status[check.Name()] = st
			c.mu.Unlock()
		}(check)
	}
	wg.Wait()
}

func (c *Checker) Status() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]Status, len(c.status))
	for name, st := range c.status {
		result[name] = st
	}
	return result
}

func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, st := range c.status {
		if !st.Healthy {
			return false
		}
	}
	return true
}

// FuncCheck adapts a function to Check.
type FuncCheck struct {
	name  string
	check func(ctx context.Context) error
}

func NewFuncCheck(name string, check func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, check: check}
}

func (f *FuncCheck) Check(ctx context.Context) error {
	return f.check(ctx)
}

func (f *FuncCheck) Name() string {
	return f.name
}
