package ledger

import (
	"bytes"
	_ "embed"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var (
	//go:embed abi/FlightSuretyApp.json
	appABI []byte

	//go:embed abi/FlightSuretyData.json
	dataABI []byte
)

// AppABI returns the FlightSuretyApp ABI, read from a truffle build artifact
// when artifact is set and from the embedded copy otherwise.
func AppABI(artifact string) (abi.ABI, error) {
	return loadABI(artifact, appABI)
}

// DataABI is AppABI for FlightSuretyData.
func DataABI(artifact string) (abi.ABI, error) {
	return loadABI(artifact, dataABI)
}

func loadABI(artifact string, embedded []byte) (abi.ABI, error) {
	if artifact == "" {
		return abi.JSON(bytes.NewReader(embedded))
	}

	data, err := os.ReadFile(artifact)
	if err != nil {
		return abi.ABI{}, errors.Wrapf(err, "failed to read artifact %s", artifact)
	}

	return ParseArtifact(data)
}

// ParseArtifact extracts the "abi" array of a truffle build artifact.
func ParseArtifact(data []byte) (abi.ABI, error) {
	if !gjson.ValidBytes(data) {
		return abi.ABI{}, errors.New("artifact is not valid JSON")
	}

	field := gjson.GetBytes(data, "abi")
	if !field.Exists() || !field.IsArray() {
		return abi.ABI{}, errors.New("artifact has no abi array")
	}

	parsed, err := abi.JSON(bytes.NewReader([]byte(field.Raw)))
	if err != nil {
		return abi.ABI{}, errors.Wrap(err, "failed to parse artifact abi")
	}

	return parsed, nil
}
