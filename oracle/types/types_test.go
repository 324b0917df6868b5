package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type TypesTestSuite struct {
	suite.Suite
	airline common.Address
}

func TestTypesSuite(t *testing.T) {
	suite.Run(t, new(TypesTestSuite))
}

func (suite *TypesTestSuite) SetupTest() {
	suite.airline = common.HexToAddress("0xf17f52151EbEF6C7334FAD080c5704D77216b732")
}

func (suite *TypesTestSuite) TestStatusCodes() {
	suite.Len(StatusCodes, 6)
	for _, code := range StatusCodes {
		suite.True(code.IsValid(), code.String())
	}
	suite.False(StatusCode(11).IsValid())
	suite.Equal("STATUS_CODE_LATE_WEATHER", StatusLateWeather.String())
	suite.Equal("STATUS_CODE(7)", StatusCode(7).String())
}

func (suite *TypesTestSuite) TestOracleHolds() {
	oracle := Oracle{Address: suite.airline, Indexes: []uint8{7, 1, 3}}

	suite.True(oracle.Holds(3))
	suite.True(oracle.Holds(7))
	suite.False(oracle.Holds(2))
}

func (suite *TypesTestSuite) TestParseStatusRequest() {
	// Given: fields decoded from an OracleRequest log
	fields := map[string]interface{}{
		"index":     uint8(3),
		"airline":   suite.airline,
		"flight":    "ND1309",
		"timestamp": big.NewInt(1700000000),
	}

	// When
	req, err := ParseStatusRequest(fields)

	// Then
	suite.Require().NoError(err)
	suite.Equal(uint8(3), req.Index)
	suite.Equal(suite.airline, req.Airline)
	suite.Equal("ND1309", req.Flight)
	suite.Equal(int64(1700000000), req.Timestamp.Int64())
}

func (suite *TypesTestSuite) TestParseStatusRequest_BigIndex() {
	fields := map[string]interface{}{
		"index":     big.NewInt(9),
		"airline":   suite.airline,
		"flight":    "ND1309",
		"timestamp": big.NewInt(1),
	}

	req, err := ParseStatusRequest(fields)
	suite.Require().NoError(err)
	suite.Equal(uint8(9), req.Index)

	fields["index"] = big.NewInt(256)
	_, err = ParseStatusRequest(fields)
	suite.True(errors.Is(err, ErrMalformedEvent))
}

func (suite *TypesTestSuite) TestParseStatusRequest_Malformed() {
	cases := map[string]map[string]interface{}{
		"missing index": {
			"airline":   suite.airline,
			"flight":    "ND1309",
			"timestamp": big.NewInt(1),
		},
		"wrong airline type": {
			"index":     uint8(1),
			"airline":   "not-an-address",
			"flight":    "ND1309",
			"timestamp": big.NewInt(1),
		},
		"nil timestamp": {
			"index":     uint8(1),
			"airline":   suite.airline,
			"flight":    "ND1309",
			"timestamp": nil,
		},
	}

	for name, fields := range cases {
		_, err := ParseStatusRequest(fields)
		suite.Error(err, name)
		suite.True(errors.Is(err, ErrMalformedEvent), name)
	}
}

func (suite *TypesTestSuite) TestParseStatusInfo() {
	fields := map[string]interface{}{
		"airline":   suite.airline,
		"flight":    "ND1309",
		"timestamp": big.NewInt(42),
		"status":    uint8(20),
	}

	info, err := ParseStatusInfo(fields)
	suite.Require().NoError(err)
	suite.Equal(StatusLateAirline, info.Status)
	suite.Equal("ND1309", info.Flight)

	delete(fields, "flight")
	_, err = ParseStatusInfo(fields)
	suite.True(errors.Is(err, ErrMalformedEvent))
}

func (suite *TypesTestSuite) TestTimestampIsCopied() {
	ts := big.NewInt(100)
	fields := map[string]interface{}{
		"index":     uint8(1),
		"airline":   suite.airline,
		"flight":    "ND1309",
		"timestamp": ts,
	}

	req, err := ParseStatusRequest(fields)
	suite.Require().NoError(err)

	ts.SetInt64(200)
	suite.Equal(int64(100), req.Timestamp.Int64())
}
