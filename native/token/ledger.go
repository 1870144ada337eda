package token

import (
	"errors"
	"math/big"
	"strings"
)

var (
	errNilState          = errors.New("token ledger: state not configured")
	ErrUnknownToken      = errors.New("token ledger: unknown token")
	ErrTokenExists       = errors.New("token ledger: token already registered")
	ErrInvalidTokenID    = errors.New("token ledger: token identifier required")
	ErrInvalidAmount     = errors.New("token ledger: amount must be positive")
	ErrNotMinter         = errors.New("token ledger: caller is not the registered minter")
	ErrInsufficientFunds = errors.New("token ledger: insufficient token balance")
)

// Token records the registry entry for one claim-token kind. Minted is the
// cumulative amount ever issued; Supply is the live circulating amount after
// burns. Withdrawal proportionality is computed against the pool-fixed issue
// size, so Minted never decreases.
type Token struct {
	ID     string
	Minted *big.Int
	Supply *big.Int
}

// Clone returns a deep copy of the token entry.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := &Token{ID: t.ID, Minted: big.NewInt(0), Supply: big.NewInt(0)}
	if t.Minted != nil {
		clone.Minted = new(big.Int).Set(t.Minted)
	}
	if t.Supply != nil {
		clone.Supply = new(big.Int).Set(t.Supply)
	}
	return clone
}

type ledgerState interface {
	TokenGet(id string) (*Token, error)
	TokenPut(t *Token) error
	TokenBalance(id string, addr [20]byte) (*big.Int, error)
	TokenSetBalance(id string, addr [20]byte, amount *big.Int) error
}

// Ledger maintains mintable, burnable, transferable claim-token balances.
// Mint and burn are restricted to the single registered minter; the pool
// lifecycle engine is wired in as that minter at construction time.
type Ledger struct {
	state  ledgerState
	minter [20]byte
}

// NewLedger constructs a ledger whose mint/burn entry points accept only the
// supplied minter address.
func NewLedger(minter [20]byte) *Ledger {
	return &Ledger{minter: minter}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// Register creates a new token kind with zero supply.
func (l *Ledger) Register(id string) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ErrInvalidTokenID
	}
	existing, err := l.state.TokenGet(trimmed)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrTokenExists
	}
	return l.state.TokenPut(&Token{ID: trimmed, Minted: big.NewInt(0), Supply: big.NewInt(0)})
}

// Exists reports whether a token kind has been registered.
func (l *Ledger) Exists(id string) (bool, error) {
	if l == nil || l.state == nil {
		return false, errNilState
	}
	tok, err := l.state.TokenGet(strings.TrimSpace(id))
	if err != nil {
		return false, err
	}
	return tok != nil, nil
}

// Mint issues amount of the token to the recipient. Only the registered
// minter may call it.
func (l *Ledger) Mint(caller [20]byte, id string, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if caller != l.minter {
		return ErrNotMinter
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	tok, err := l.requireToken(id)
	if err != nil {
		return err
	}
	bal, err := l.state.TokenBalance(tok.ID, to)
	if err != nil {
		return err
	}
	if err := l.state.TokenSetBalance(tok.ID, to, new(big.Int).Add(bal, amount)); err != nil {
		return err
	}
	tok.Minted = new(big.Int).Add(tok.Minted, amount)
	tok.Supply = new(big.Int).Add(tok.Supply, amount)
	return l.state.TokenPut(tok)
}

// Burn destroys amount of the token held by from. Only the registered minter
// may call it; holders authorise burns by invoking engine withdrawals.
func (l *Ledger) Burn(caller [20]byte, id string, from [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if caller != l.minter {
		return ErrNotMinter
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	tok, err := l.requireToken(id)
	if err != nil {
		return err
	}
	bal, err := l.state.TokenBalance(tok.ID, from)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	if err := l.state.TokenSetBalance(tok.ID, from, new(big.Int).Sub(bal, amount)); err != nil {
		return err
	}
	tok.Supply = new(big.Int).Sub(tok.Supply, amount)
	return l.state.TokenPut(tok)
}

// Transfer moves token balance between holders with standard fungible
// semantics.
func (l *Ledger) Transfer(id string, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	tok, err := l.requireToken(id)
	if err != nil {
		return err
	}
	fromBal, err := l.state.TokenBalance(tok.ID, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	toBal, err := l.state.TokenBalance(tok.ID, to)
	if err != nil {
		return err
	}
	if err := l.state.TokenSetBalance(tok.ID, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.state.TokenSetBalance(tok.ID, to, new(big.Int).Add(toBal, amount))
}

// BalanceOf reports the live balance a holder has for the token.
func (l *Ledger) BalanceOf(id string, addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	tok, err := l.requireToken(id)
	if err != nil {
		return nil, err
	}
	return l.state.TokenBalance(tok.ID, addr)
}

// Minted reports the cumulative issued amount for the token.
func (l *Ledger) Minted(id string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	tok, err := l.requireToken(id)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(tok.Minted), nil
}

// Supply reports the live circulating amount for the token.
func (l *Ledger) Supply(id string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	tok, err := l.requireToken(id)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(tok.Supply), nil
}

func (l *Ledger) requireToken(id string) (*Token, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, ErrInvalidTokenID
	}
	tok, err := l.state.TokenGet(trimmed)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, ErrUnknownToken
	}
	if tok.Minted == nil {
		tok.Minted = big.NewInt(0)
	}
	if tok.Supply == nil {
		tok.Supply = big.NewInt(0)
	}
	return tok, nil
}
