package registry

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/flightsurety-oracle/oracle/ledger/ledgertest"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

type RegistryTestSuite struct {
	suite.Suite
	accounts []common.Address
	gateway  *ledgertest.Gateway
	registry *Registry
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (s *RegistryTestSuite) SetupTest() {
	s.accounts = ledgertest.Addresses(30)
	s.gateway = ledgertest.New(s.accounts)
	for i, a := range s.accounts {
		s.gateway.SetIndexes(a, uint8(i%10), uint8((i+1)%10), uint8((i+2)%10))
	}
	s.registry = New(s.gateway, 4500000, 25, WithConcurrency(4))
}

func (s *RegistryTestSuite) TestRegisterAll_Success() {
	// When
	outcomes, err := s.registry.RegisterAll(context.Background(), s.accounts)

	// Then
	s.Require().NoError(err)
	s.Require().Len(outcomes, 25)
	s.Equal(25, s.registry.Len())
	s.Equal(s.accounts[0], s.registry.Owner())

	_, ok := s.registry.IndexesOf(s.accounts[0])
	s.False(ok, "owner must not be an oracle")
	_, ok = s.registry.IndexesOf(s.accounts[26])
	s.False(ok, "accounts past the pool size must not be oracles")

	for i, o := range outcomes {
		s.NoError(o.Err)
		s.Equal(s.accounts[i+1], o.Account)
		s.Len(o.Indexes, types.IndexCount)

		got, ok := s.registry.IndexesOf(o.Account)
		s.True(ok)
		s.Equal(o.Indexes, got)
	}

	regs := s.gateway.Txs(types.MethodRegisterOracle)
	s.Len(regs, 25)
	for _, tx := range regs {
		s.Equal(0, tx.Opts.Value.Cmp(big.NewInt(1e18)))
		s.Equal(uint64(4500000), tx.Opts.GasLimit)
	}
}

func (s *RegistryTestSuite) TestRegisterAll_FeeQueryFailure() {
	// Given
	s.gateway.SetFee(nil, errors.New("connection refused"))

	// When
	outcomes, err := s.registry.RegisterAll(context.Background(), s.accounts)

	// Then
	s.Require().Error(err)
	s.True(errors.Is(err, types.ErrFeeQuery))
	s.Nil(outcomes)
	s.Equal(0, s.registry.Len())
	s.Empty(s.gateway.Txs(types.MethodRegisterOracle))
}

func (s *RegistryTestSuite) TestRegisterAll_PartialFailure() {
	// Given
	s.gateway.FailRegistration(s.accounts[3], errors.New("out of gas"))
	s.gateway.FailIndexQuery(s.accounts[7], errors.New("timeout"))

	// When
	outcomes, err := s.registry.RegisterAll(context.Background(), s.accounts)

	// Then
	s.Require().NoError(err)
	s.Equal(23, s.registry.Len())

	failed := map[common.Address]error{}
	for _, o := range outcomes {
		if o.Err != nil {
			failed[o.Account] = o.Err
		}
	}
	s.Len(failed, 2)
	s.True(errors.Is(failed[s.accounts[3]], types.ErrRegistrationFailure))
	s.True(errors.Is(failed[s.accounts[7]], types.ErrRegistrationFailure))

	_, ok := s.registry.IndexesOf(s.accounts[3])
	s.False(ok)
	_, ok = s.registry.IndexesOf(s.accounts[7])
	s.False(ok)
}

func (s *RegistryTestSuite) TestRegisterAll_WrongIndexCount() {
	// Given
	s.gateway.SetIndexes(s.accounts[1], 4, 5)

	// When
	outcomes, err := s.registry.RegisterAll(context.Background(), s.accounts)

	// Then
	s.Require().NoError(err)
	s.Error(outcomes[0].Err)
	s.True(errors.Is(outcomes[0].Err, types.ErrRegistrationFailure))
	s.Equal(24, s.registry.Len())
}

func (s *RegistryTestSuite) TestRegisterAll_FewerAccountsThanPool() {
	// When
	outcomes, err := s.registry.RegisterAll(context.Background(), s.accounts[:6])

	// Then
	s.Require().NoError(err)
	s.Len(outcomes, 5)
	s.Equal(5, s.registry.Len())
}

func (s *RegistryTestSuite) TestRegisterAll_NoAccounts() {
	_, err := s.registry.RegisterAll(context.Background(), nil)
	s.Error(err)
}

func (s *RegistryTestSuite) TestPoolEmptyUntilRegistered() {
	// Given
	var mu sync.Mutex
	var sizes []int
	s.gateway.OnSend(func(ledgertest.Tx) {
		mu.Lock()
		sizes = append(sizes, s.registry.Len())
		mu.Unlock()
	})
	reg := New(s.gateway, 4500000, 1)
	s.registry = reg

	// Then
	s.Equal(0, reg.Len())
	s.Empty(reg.All())

	// When
	_, err := reg.RegisterAll(context.Background(), s.accounts)

	// Then
	s.Require().NoError(err)
	s.Equal([]int{0}, sizes, "oracle must not be in the pool while its registration is pending")
	s.Equal(1, reg.Len())
}

func (s *RegistryTestSuite) TestAll_ReturnsCopy() {
	// Given
	_, err := s.registry.RegisterAll(context.Background(), s.accounts[:3])
	s.Require().NoError(err)

	// When
	all := s.registry.All()
	s.Require().Len(all, 2)
	all[0].Indexes[0] = 99

	// Then
	got, ok := s.registry.IndexesOf(all[0].Address)
	s.True(ok)
	s.NotEqual(uint8(99), got[0])
}
