package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// IndexCount is the number of indexes the contract assigns to every oracle.
const IndexCount = 3

// Contract methods and events used by the daemon.
const (
	MethodRegistrationFee      = "REGISTRATION_FEE"
	MethodRegisterOracle       = "registerOracle"
	MethodGetMyIndexes         = "getMyIndexes"
	MethodSubmitOracleResponse = "submitOracleResponse"
	MethodAuthoriseCaller      = "authoriseCaller"

	EventOracleRequest    = "OracleRequest"
	EventFlightStatusInfo = "FlightStatusInfo"
)

var (
	ErrRegistrationFailure = errors.New("oracle registration failed")
	ErrFeeQuery            = errors.New("registration fee query failed")
	ErrSubmissionFailure   = errors.New("oracle response submission failed")
	ErrMalformedEvent      = errors.New("malformed event")
)

type StatusCode uint8

const (
	StatusUnknown       StatusCode = 0
	StatusOnTime        StatusCode = 10
	StatusLateAirline   StatusCode = 20
	StatusLateWeather   StatusCode = 30
	StatusLateTechnical StatusCode = 40
	StatusLateOther     StatusCode = 50
)

// StatusCodes lists every code the contract accepts, in ascending order.
var StatusCodes = []StatusCode{
	StatusUnknown,
	StatusOnTime,
	StatusLateAirline,
	StatusLateWeather,
	StatusLateTechnical,
	StatusLateOther,
}

func (c StatusCode) IsValid() bool {
	for _, code := range StatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

func (c StatusCode) String() string {
	switch c {
	case StatusUnknown:
		return "STATUS_CODE_UNKNOWN"
	case StatusOnTime:
		return "STATUS_CODE_ON_TIME"
	case StatusLateAirline:
		return "STATUS_CODE_LATE_AIRLINE"
	case StatusLateWeather:
		return "STATUS_CODE_LATE_WEATHER"
	case StatusLateTechnical:
		return "STATUS_CODE_LATE_TECHNICAL"
	case StatusLateOther:
		return "STATUS_CODE_LATE_OTHER"
	default:
		return fmt.Sprintf("STATUS_CODE(%d)", uint8(c))
	}
}

// Oracle is a registered oracle account and the indexes assigned to it.
type Oracle struct {
	Address common.Address
	Indexes []uint8
}

// Holds reports whether index is one of the oracle's assigned indexes.
func (o Oracle) Holds(index uint8) bool {
	for _, i := range o.Indexes {
		if i == index {
			return true
		}
	}
	return false
}

// StatusRequest is the payload of an OracleRequest event.
type StatusRequest struct {
	Index     uint8
	Airline   common.Address
	Flight    string
	Timestamp *big.Int
}

func (r StatusRequest) String() string {
	return fmt.Sprintf("airline %s, flight: %s, time: %s, index: %d", r.Airline.Hex(), r.Flight, r.Timestamp, r.Index)
}

// StatusResponse is what a single oracle submits for a StatusRequest.
type StatusResponse struct {
	Oracle     common.Address
	Index      uint8
	Airline    common.Address
	Flight     string
	Timestamp  *big.Int
	StatusCode StatusCode
}

// StatusInfo is the payload of a FlightStatusInfo broadcast.
type StatusInfo struct {
	Airline   common.Address
	Flight    string
	Timestamp *big.Int
	Status    StatusCode
}
