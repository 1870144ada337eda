package bank

import (
	"errors"
	"math/big"
	"strings"

	"pledgechain/core/types"
)

// NativeAsset is the sentinel symbol denoting the native ledger asset. Terms
// that leave the asset identifier empty resolve to it.
const NativeAsset = "PLG"

var (
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrZeroAddress         = errors.New("bank: zero address")
	ErrNilStore            = errors.New("bank: account store not configured")
)

// AccountStore is the narrow persistence surface the bank needs. The state
// manager and in-memory test fakes both satisfy it.
type AccountStore interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// AssetHandle moves value of one asset between accounts with a uniform
// contract. Callers never branch on whether the asset is the native coin or a
// fungible token; both resolve to the same balance-map mechanics.
type AssetHandle interface {
	Asset() string
	Transfer(store AccountStore, from, to [20]byte, amount *big.Int) error
}

type handle struct {
	asset string
}

// Handle resolves the asset handle for an identifier. An empty or whitespace
// identifier denotes the native asset.
func Handle(asset string) AssetHandle {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		trimmed = NativeAsset
	}
	return handle{asset: trimmed}
}

func (h handle) Asset() string { return h.asset }

// Transfer debits from and credits to atomically within the store. The debit
// side is validated before any mutation is persisted.
func (h handle) Transfer(store AccountStore, from, to [20]byte, amount *big.Int) error {
	if store == nil {
		return ErrNilStore
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	fromAcc, err := loadAccount(store, from)
	if err != nil {
		return err
	}
	if fromAcc.Balance(h.asset).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc, err := loadAccount(store, to)
	if err != nil {
		return err
	}
	fromAcc.SetBalance(h.asset, new(big.Int).Sub(fromAcc.Balance(h.asset), amount))
	toAcc.SetBalance(h.asset, new(big.Int).Add(toAcc.Balance(h.asset), amount))
	if err := store.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return store.PutAccount(to, toAcc)
}

// BalanceOf reports the balance an address holds for the supplied asset.
func BalanceOf(store AccountStore, addr [20]byte, asset string) (*big.Int, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	acc, err := loadAccount(store, addr)
	if err != nil {
		return nil, err
	}
	return acc.Balance(Handle(asset).Asset()), nil
}

// Credit mints balance into an account outside of a transfer. It exists for
// genesis allocation and test setup; engines move funds with Transfer only.
func Credit(store AccountStore, addr [20]byte, asset string, amount *big.Int) error {
	if store == nil {
		return ErrNilStore
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	acc, err := loadAccount(store, addr)
	if err != nil {
		return err
	}
	resolved := Handle(asset).Asset()
	acc.SetBalance(resolved, new(big.Int).Add(acc.Balance(resolved), amount))
	return store.PutAccount(addr, acc)
}

func loadAccount(store AccountStore, addr [20]byte) (*types.Account, error) {
	acc, err := store.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = types.NewAccount()
	}
	return acc, nil
}
