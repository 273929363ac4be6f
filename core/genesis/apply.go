package genesis

import (
	"fmt"
	"math/big"

	"cdpchain/crypto"
)

// AssetRegistry registers assets and issues collateral balances.
type AssetRegistry interface {
	RegisterAsset(symbol, name string, decimals uint8) error
	HasAsset(symbol string) (bool, error)
	Credit(asset string, to crypto.Address, amount *big.Int) error
}

// DebtIssuer issues the stable unit so its supply stays tracked.
type DebtIssuer interface {
	Asset() string
	Mint(to crypto.Address, amount *big.Int) error
}

// Apply registers every asset that is not yet known and credits the
// allocations in address order. Balances of the debt asset are minted through
// the issuer. Callers run Apply inside one atomic unit.
func Apply(spec *GenesisSpec, assets AssetRegistry, debt DebtIssuer) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if assets == nil || debt == nil {
		return fmt.Errorf("genesis: ledgers must not be nil")
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	for _, asset := range spec.Assets {
		known, err := assets.HasAsset(asset.Symbol)
		if err != nil {
			return err
		}
		if known {
			continue
		}
		if err := assets.RegisterAsset(asset.Symbol, asset.Name, asset.Decimals); err != nil {
			return fmt.Errorf("register asset %q: %w", asset.Symbol, err)
		}
	}
	debtSymbol := normalizeSymbol(debt.Asset())
	for _, account := range sortedKeys(spec.Alloc) {
		addr, err := crypto.DecodeAddress(account)
		if err != nil {
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
		balances := spec.Alloc[account]
		for _, symbol := range sortedKeys(balances) {
			amount, err := parseAmountString(balances[symbol])
			if err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
			}
			if normalizeSymbol(symbol) == debtSymbol {
				err = debt.Mint(addr, amount)
			} else {
				err = assets.Credit(symbol, addr, amount)
			}
			if err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", account, symbol, err)
			}
		}
	}
	return nil
}
