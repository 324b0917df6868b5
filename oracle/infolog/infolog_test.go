package infolog

import (
	"bytes"
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Record(info types.StatusInfo) error {
	args := m.Called(info)
	if fn, ok := args.Get(0).(func()); ok {
		fn()
		return nil
	}
	return args.Error(0)
}

type InfoLogTestSuite struct {
	suite.Suite
	airline common.Address
}

func TestInfoLogTestSuite(t *testing.T) {
	suite.Run(t, new(InfoLogTestSuite))
}

func (s *InfoLogTestSuite) SetupTest() {
	log.InitLogger()
	s.airline = common.HexToAddress("0xf17f52151EbEF6C7334FAD080c5704D77216b732")
}

func (s *InfoLogTestSuite) fields(status uint8) map[string]interface{} {
	return map[string]interface{}{
		"airline":   s.airline,
		"flight":    "ND1309",
		"timestamp": big.NewInt(1553367808),
		"status":    status,
	}
}

func (s *InfoLogTestSuite) TestLogSink_WritesLine() {
	// Given
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.InitLogger()

	// When
	err := NewForwarder(nil).Forward(ledger.Event{Name: types.EventFlightStatusInfo, Fields: s.fields(20)})

	// Then
	s.Require().NoError(err)
	out := buf.String()
	s.Contains(out, types.EventFlightStatusInfo)
	s.Contains(out, s.airline.Hex())
	s.Contains(out, "ND1309")
	s.Contains(out, "1553367808")
	s.Contains(out, types.StatusLateAirline.String())
}

func (s *InfoLogTestSuite) TestForward_Errors() {
	testCases := []struct {
		name  string
		ev    ledger.Event
		setup func(*mockSink)
	}{
		{
			name: "decode error",
			ev:   ledger.Event{Err: errors.New("abi: short data")},
		},
		{
			name: "missing field",
			ev:   ledger.Event{Fields: map[string]interface{}{"flight": "ND1309"}},
		},
		{
			name: "sink error",
			ev:   ledger.Event{Fields: s.fields(10)},
			setup: func(m *mockSink) {
				m.On("Record", mock.Anything).Return(errors.New("disk full"))
			},
		},
		{
			name: "sink panic",
			ev:   ledger.Event{Fields: s.fields(10)},
			setup: func(m *mockSink) {
				m.On("Record", mock.Anything).Return(func() { panic("boom") })
			},
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			sink := new(mockSink)
			if tc.setup != nil {
				tc.setup(sink)
			}

			s.Require().NotPanics(func() {
				s.Error(NewForwarder(sink).Forward(tc.ev))
			})
			sink.AssertExpectations(s.T())
		})
	}
}

func (s *InfoLogTestSuite) TestRun_SwallowsFailures() {
	// Given
	sink := new(mockSink)
	sink.On("Record", mock.MatchedBy(func(i types.StatusInfo) bool { return i.Status == types.StatusUnknown })).
		Return(func() { panic("boom") }).Once()
	sink.On("Record", mock.MatchedBy(func(i types.StatusInfo) bool { return i.Status == types.StatusOnTime })).
		Return(nil).Once()

	events := make(chan ledger.Event, 3)
	events <- ledger.Event{Fields: s.fields(0)}
	events <- ledger.Event{Fields: map[string]interface{}{}}
	events <- ledger.Event{Fields: s.fields(10)}
	close(events)

	// When
	done := make(chan struct{})
	go func() {
		NewForwarder(sink).Run(context.Background(), events)
		close(done)
	}()

	// Then
	select {
	case <-done:
	case <-time.After(time.Second):
		s.T().Fatal("Run did not return")
	}
	sink.AssertExpectations(s.T())
}
