package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gometrics "github.com/armon/go-metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

type fakePool []types.Oracle

func (p fakePool) All() []types.Oracle { return p }

type fakeCounter map[common.Address]int

func (c fakeCounter) Submitted() map[common.Address]int { return c }

type HealthTestSuite struct {
	suite.Suite
	ledgerErr error
	checker   *Checker
	pool      fakePool
	server    *httptest.Server
}

func TestHealthTestSuite(t *testing.T) {
	suite.Run(t, new(HealthTestSuite))
}

func (s *HealthTestSuite) SetupTest() {
	s.ledgerErr = nil
	s.pool = fakePool{
		{Address: common.HexToAddress("0x1001"), Indexes: []uint8{1, 2, 3}},
		{Address: common.HexToAddress("0x1002"), Indexes: []uint8{4, 5, 6}},
	}

	s.checker = NewChecker(time.Hour)
	s.checker.AddCheck(NewFuncCheck("ledger", func(context.Context) error { return s.ledgerErr }))

	counter := fakeCounter{common.HexToAddress("0x1002"): 7}
	sink := gometrics.NewInmemSink(time.Minute, 5*time.Minute)
	sink.IncrCounter([]string{"oracle", "response", "submitted"}, 1)

	s.server = httptest.NewServer(NewServer(":0", s.checker, s.pool, counter, sink).Handler())
}

func (s *HealthTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *HealthTestSuite) get(path string, into interface{}) int {
	res, err := http.Get(s.server.URL + path)
	s.Require().NoError(err)
	defer res.Body.Close()

	if into != nil {
		s.Require().NoError(json.NewDecoder(res.Body).Decode(into))
	}
	return res.StatusCode
}

func (s *HealthTestSuite) TestChecker_UnhealthyUntilChecked() {
	s.False(s.checker.IsHealthy())

	s.checker.RunChecks(context.Background())
	s.True(s.checker.IsHealthy())

	s.ledgerErr = errors.New("connection refused")
	s.checker.RunChecks(context.Background())
	s.False(s.checker.IsHealthy())
	s.Equal("connection refused", s.checker.Status()["ledger"].LastError)
}

func (s *HealthTestSuite) TestAPI() {
	var body map[string]string
	s.Equal(http.StatusOK, s.get("/api", &body))
	s.Equal("An API for use with your Dapp!", body["message"])
}

func (s *HealthTestSuite) TestHealth() {
	// Given
	s.checker.RunChecks(context.Background())

	// Then
	var body struct {
		Healthy bool              `json:"healthy"`
		Checks  map[string]Status `json:"checks"`
	}
	s.Equal(http.StatusOK, s.get("/health", &body))
	s.True(body.Healthy)
	s.Contains(body.Checks, "ledger")

	// When the ledger goes away
	s.ledgerErr = errors.New("i/o timeout")
	s.checker.RunChecks(context.Background())

	// Then
	s.Equal(http.StatusServiceUnavailable, s.get("/health", &body))
	s.False(body.Healthy)
}

func (s *HealthTestSuite) TestOracles() {
	var views []OracleView
	s.Equal(http.StatusOK, s.get("/oracles", &views))
	s.Require().Len(views, 2)
	s.Equal(common.HexToAddress("0x1001").Hex(), views[0].Address)
	s.Equal([]uint8{1, 2, 3}, views[0].Indexes)
	s.Equal(0, views[0].Submitted)
	s.Equal(7, views[1].Submitted)
}

func (s *HealthTestSuite) TestOracleByAddress() {
	var view OracleView
	s.Equal(http.StatusOK, s.get("/oracles/"+common.HexToAddress("0x1002").Hex(), &view))
	s.Equal(7, view.Submitted)

	s.Equal(http.StatusNotFound, s.get("/oracles/"+common.HexToAddress("0x9999").Hex(), nil))
	s.Equal(http.StatusBadRequest, s.get("/oracles/not-an-address", nil))
}

func (s *HealthTestSuite) TestMetrics() {
	var summary gometrics.MetricsSummary
	s.Equal(http.StatusOK, s.get("/metrics", &summary))
	s.NotEmpty(summary.Counters)
}

func (s *HealthTestSuite) TestCORS() {
	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/api", nil)
	s.Require().NoError(err)
	req.Header.Set("Origin", "http://localhost:8000")

	res, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer res.Body.Close()

	s.Equal("*", res.Header.Get("Access-Control-Allow-Origin"))
}
