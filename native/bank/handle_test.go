package bank

import (
	"errors"
	"math/big"
	"testing"

	"pledgechain/core/types"
)

type mockStore struct {
	accounts map[[20]byte]*types.Account
}

func newMockStore() *mockStore {
	return &mockStore{accounts: make(map[[20]byte]*types.Account)}
}

func (m *mockStore) GetAccount(addr [20]byte) (*types.Account, error) {
	return m.accounts[addr], nil
}

func (m *mockStore) PutAccount(addr [20]byte, account *types.Account) error {
	m.accounts[addr] = account
	return nil
}

func TestHandleResolvesNativeSentinel(t *testing.T) {
	if got := Handle("").Asset(); got != NativeAsset {
		t.Fatalf("empty asset = %q, want %q", got, NativeAsset)
	}
	if got := Handle("  ").Asset(); got != NativeAsset {
		t.Fatalf("blank asset = %q, want %q", got, NativeAsset)
	}
	if got := Handle("USDT").Asset(); got != "USDT" {
		t.Fatalf("asset = %q, want USDT", got)
	}
}

func TestTransferMovesBalanceAtomically(t *testing.T) {
	store := newMockStore()
	from := [20]byte{0x01}
	to := [20]byte{0x02}

	if err := Credit(store, from, "USDT", big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if err := Handle("USDT").Transfer(store, from, to, big.NewInt(150)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overdraw: %v, want ErrInsufficientBalance", err)
	}
	if err := Handle("USDT").Transfer(store, from, to, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero transfer: %v, want ErrInvalidAmount", err)
	}
	if err := Handle("USDT").Transfer(store, from, [20]byte{}, big.NewInt(10)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("zero recipient: %v, want ErrZeroAddress", err)
	}

	if err := Handle("USDT").Transfer(store, from, to, big.NewInt(60)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	fromBal, err := BalanceOf(store, from, "USDT")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	toBal, err := BalanceOf(store, to, "USDT")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if fromBal.Cmp(big.NewInt(40)) != 0 || toBal.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("balances = %s/%s, want 40/60", fromBal, toBal)
	}
}

func TestBalancesAreIsolatedPerAsset(t *testing.T) {
	store := newMockStore()
	addr := [20]byte{0x01}

	if err := Credit(store, addr, "USDT", big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := Credit(store, addr, "", big.NewInt(50)); err != nil {
		t.Fatalf("credit native: %v", err)
	}

	native, err := BalanceOf(store, addr, NativeAsset)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if native.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("native balance = %s, want 50", native)
	}
	missing, err := BalanceOf(store, addr, "WBTC")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if missing.Sign() != 0 {
		t.Fatalf("unheld asset balance = %s, want 0", missing)
	}
}
