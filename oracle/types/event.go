package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ParseStatusRequest builds a StatusRequest from decoded OracleRequest fields.
func ParseStatusRequest(fields map[string]interface{}) (StatusRequest, error) {
	var req StatusRequest
	var err error

	if req.Index, err = uint8Field(fields, "index"); err != nil {
		return StatusRequest{}, err
	}
	if req.Airline, err = addressField(fields, "airline"); err != nil {
		return StatusRequest{}, err
	}
	if req.Flight, err = stringField(fields, "flight"); err != nil {
		return StatusRequest{}, err
	}
	if req.Timestamp, err = bigField(fields, "timestamp"); err != nil {
		return StatusRequest{}, err
	}

	return req, nil
}

// ParseStatusInfo builds a StatusInfo from decoded FlightStatusInfo fields.
func ParseStatusInfo(fields map[string]interface{}) (StatusInfo, error) {
	var info StatusInfo
	var err error

	if info.Airline, err = addressField(fields, "airline"); err != nil {
		return StatusInfo{}, err
	}
	if info.Flight, err = stringField(fields, "flight"); err != nil {
		return StatusInfo{}, err
	}
	if info.Timestamp, err = bigField(fields, "timestamp"); err != nil {
		return StatusInfo{}, err
	}
	status, err := uint8Field(fields, "status")
	if err != nil {
		return StatusInfo{}, err
	}
	info.Status = StatusCode(status)

	return info, nil
}

func field(fields map[string]interface{}, name string) (interface{}, error) {
	v, ok := fields[name]
	if !ok || v == nil {
		return nil, errors.Wrapf(ErrMalformedEvent, "missing field %q", name)
	}
	return v, nil
}

func uint8Field(fields map[string]interface{}, name string) (uint8, error) {
	v, err := field(fields, name)
	if err != nil {
		return 0, err
	}

	switch n := v.(type) {
	case uint8:
		return n, nil
	case *big.Int:
		if n.Sign() < 0 || n.BitLen() > 8 {
			return 0, errors.Wrapf(ErrMalformedEvent, "field %q out of range: %s", name, n)
		}
		return uint8(n.Uint64()), nil
	default:
		return 0, errors.Wrapf(ErrMalformedEvent, "field %q has type %T", name, v)
	}
}

func addressField(fields map[string]interface{}, name string) (common.Address, error) {
	v, err := field(fields, name)
	if err != nil {
		return common.Address{}, err
	}

	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, errors.Wrapf(ErrMalformedEvent, "field %q has type %T", name, v)
	}
	return addr, nil
}

func stringField(fields map[string]interface{}, name string) (string, error) {
	v, err := field(fields, name)
	if err != nil {
		return "", err
	}

	s, ok := v.(string)
	if !ok {
		return "", errors.Wrapf(ErrMalformedEvent, "field %q has type %T", name, v)
	}
	return s, nil
}

func bigField(fields map[string]interface{}, name string) (*big.Int, error) {
	v, err := field(fields, name)
	if err != nil {
		return nil, err
	}

	n, ok := v.(*big.Int)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedEvent, "field %q has type %T", name, v)
	}
	return new(big.Int).Set(n), nil
}
