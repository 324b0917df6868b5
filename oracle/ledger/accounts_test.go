package ledger

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// Well-known truffle development mnemonic and its first accounts.
const devMnemonic = "candy maple cake sugar pudding cream honey rich smooth crumble sweet treat"

func TestDeriveAccounts(t *testing.T) {
	accounts, err := DeriveAccounts(devMnemonic, 3)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	require.Equal(t, common.HexToAddress("0x627306090abaB3A6e1400e9345bC60c78a8BEf57"), accounts[0])
	require.Equal(t, common.HexToAddress("0xf17f52151EbEF6C7334FAD080c5704D77216b732"), accounts[1])
	require.NotEqual(t, accounts[1], accounts[2])
}

func TestDeriveAccounts_InvalidMnemonic(t *testing.T) {
	_, err := DeriveAccounts("not a real mnemonic", 1)
	require.ErrorContains(t, err, "invalid mnemonic")
}

func TestMnemonicAccounts(t *testing.T) {
	lister := MnemonicAccounts(devMnemonic, 2)

	accounts, err := lister.Accounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
}
