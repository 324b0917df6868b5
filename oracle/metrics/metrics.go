package metrics

import (
	"sync"
	"time"

	gometrics "github.com/armon/go-metrics"
)

var (
	RegistrationSuccess = []string{"oracle", "registration", "success"}
	RegistrationFailure = []string{"oracle", "registration", "failure"}
	RequestReceived     = []string{"oracle", "request", "received"}
	RequestMalformed    = []string{"oracle", "request", "malformed"}
	ResponseSubmitted   = []string{"oracle", "response", "submitted"}
	ResponseFailed      = []string{"oracle", "response", "failed"}
	ResponseDropped     = []string{"oracle", "response", "dropped"}
	StatusInfoReceived  = []string{"oracle", "status_info", "received"}
)

var mu sync.Mutex

// Init installs a global in-memory sink. Counters recorded before Init are discarded.
func Init(serviceName string) (*gometrics.InmemSink, error) {
	mu.Lock()
	defer mu.Unlock()

	s := gometrics.NewInmemSink(10*time.Second, time.Minute)
	cfg := gometrics.DefaultConfig(serviceName)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false

	if _, err := gometrics.NewGlobal(cfg, s); err != nil {
		return nil, err
	}
	return s, nil
}

func Incr(key []string) {
	gometrics.IncrCounter(key, 1)
}
