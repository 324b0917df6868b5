// Package status draws the flight status an oracle reports. There is no real
// telemetry behind it: every code is equally likely.
package status

import (
	"math/rand"

	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

type Generator struct {
	intn func(n int) int
}

// NewGenerator uses intn as the random source; nil selects math/rand's
// goroutine-safe global source.
func NewGenerator(intn func(n int) int) *Generator {
	if intn == nil {
		intn = rand.Intn
	}
	return &Generator{intn: intn}
}

// NextCode returns one of types.StatusCodes uniformly at random.
func (g *Generator) NextCode() types.StatusCode {
	return types.StatusCodes[g.intn(len(types.StatusCodes))]
}
