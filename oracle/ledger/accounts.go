package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
)

// DerivationPathFormat is the BIP-44 Ethereum path used by truffle's HDWalletProvider.
const DerivationPathFormat = "m/44'/60'/0'/0/%d"

// DeriveAccounts returns the first count addresses of the HD wallet for mnemonic.
// Only addresses are derived; keys never leave the node that signs for them.
func DeriveAccounts(mnemonic string, count int) ([]common.Address, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic")
	}

	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open hd wallet")
	}

	accounts := make([]common.Address, 0, count)
	for i := 0; i < count; i++ {
		path, err := hdwallet.ParseDerivationPath(fmt.Sprintf(DerivationPathFormat, i))
		if err != nil {
			return nil, errors.Wrapf(err, "bad derivation path for account %d", i)
		}

		account, err := wallet.Derive(path, false)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to derive account %d", i)
		}
		accounts = append(accounts, account.Address)
	}

	return accounts, nil
}

// AccountLister is the part of Gateway needed to enumerate accounts.
type AccountLister interface {
	Accounts(ctx context.Context) ([]common.Address, error)
}

type mnemonicAccounts struct {
	mnemonic string
	count    int
}

// MnemonicAccounts lists accounts derived from mnemonic instead of asking the node.
func MnemonicAccounts(mnemonic string, count int) AccountLister {
	return &mnemonicAccounts{mnemonic: mnemonic, count: count}
}

func (m *mnemonicAccounts) Accounts(context.Context) ([]common.Address, error) {
	return DeriveAccounts(m.mnemonic, m.count)
}
