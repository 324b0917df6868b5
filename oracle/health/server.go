package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	gometrics "github.com/armon/go-metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"

	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

const apiMessage = "An API for use with your Dapp!"

// Pool is the read side of the oracle registry.
type Pool interface {
	All() []types.Oracle
}

// Counter reports accepted responses per oracle.
type Counter interface {
	Submitted() map[common.Address]int
}

type OracleView struct {
	Address   string  `json:"address"`
	Indexes   []uint8 `json:"indexes"`
	Submitted int     `json:"submitted"`
}

type Server struct {
	checker *Checker
	pool    Pool
	counter Counter
	sink    *gometrics.InmemSink
	srv     *http.Server
}

func NewServer(listen string, checker *Checker, pool Pool, counter Counter, sink *gometrics.InmemSink) *Server {
	s := &Server{
		checker: checker,
		pool:    pool,
		counter: counter,
		sink:    sink,
	}
	s.srv = &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}
	return s
}

// Handler returns the router wrapped in a permissive CORS policy, so a dapp
// served from another origin can reach it.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/api", s.api).Methods(http.MethodGet)
	router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	router.HandleFunc("/oracles", s.oracles).Methods(http.MethodGet)
	router.HandleFunc("/oracles/{address}", s.oracle).Methods(http.MethodGet)
	router.HandleFunc("/metrics", s.metrics).Methods(http.MethodGet)

	return cors.AllowAll().Handler(router)
}

// ListenAndServe blocks until the server fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	log.Infof("HTTP API listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) api(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": apiMessage})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	code := http.StatusOK
	healthy := s.checker.IsHealthy()
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"healthy": healthy,
		"checks":  s.checker.Status(),
	})
}

func (s *Server) views() []OracleView {
	var counts map[common.Address]int
	if s.counter != nil {
		counts = s.counter.Submitted()
	}

	oracles := s.pool.All()
	views := make([]OracleView, 0, len(oracles))
	for _, o := range oracles {
		views = append(views, OracleView{
			Address:   o.Address.Hex(),
			Indexes:   o.Indexes,
			Submitted: counts[o.Address],
		})
	}
	return views
}

func (s *Server) oracles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.views())
}

func (s *Server) oracle(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !common.IsHexAddress(address) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid address"})
		return
	}

	want := common.HexToAddress(address).Hex()
	for _, v := range s.views() {
		if v.Address == want {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "oracle not registered"})
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "metrics disabled"})
		return
	}

	summary, err := s.sink.DisplayMetrics(w, r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("failed to write response: %v", err)
	}
}
