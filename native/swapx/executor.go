package swapx

import (
	"errors"
	"math/big"
	"time"

	"pledgechain/native/bank"
)

var (
	ErrDeadlineLapsed    = errors.New("swap executor: execution deadline lapsed")
	ErrBelowMinimum      = errors.New("swap executor: received amount below required minimum")
	ErrAboveBudget       = errors.New("swap executor: required input exceeds spend budget")
	ErrNoLiquidity       = errors.New("swap executor: insufficient venue liquidity for target")
	ErrInvalidTarget     = errors.New("swap executor: target output must be positive")
	ErrSameAsset         = errors.New("swap executor: from and to assets must differ")
	errNilStore          = errors.New("swap executor: account store not configured")
	errTraderUnderfunded = errors.New("swap executor: trader cannot cover required input")
)

// Executor performs a value-conserving exchange through an external liquidity
// venue. Implementations must either complete the full swap or leave all
// balances untouched; partial execution is never observable. minOut and maxIn
// are the caller's slippage constraints; nil disables the respective bound.
type Executor interface {
	SellToTarget(trader [20]byte, fromAsset, toAsset string, target, minOut, maxIn *big.Int, deadline int64) (spent, received *big.Int, err error)
}

// Venue is a constant-product liquidity venue holding its reserves as ordinary
// ledger balances. It backs resolution swaps in tests and in the daemon.
type Venue struct {
	store   bank.AccountStore
	account [20]byte
	feeBps  uint64
	nowFn   func() time.Time
}

// NewVenue constructs a venue trading out of the supplied reserve account.
func NewVenue(store bank.AccountStore, account [20]byte, feeBps uint64) *Venue {
	if feeBps >= 10_000 {
		feeBps = 30
	}
	return &Venue{
		store:   store,
		account: account,
		feeBps:  feeBps,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used for deadline checks.
func (v *Venue) SetNowFunc(now func() time.Time) {
	if now == nil {
		v.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	v.nowFn = now
}

// SellToTarget sells just enough of fromAsset to obtain target units of
// toAsset. All checks run before any balance moves so a failed swap has no
// side effects.
func (v *Venue) SellToTarget(trader [20]byte, fromAsset, toAsset string, target, minOut, maxIn *big.Int, deadline int64) (*big.Int, *big.Int, error) {
	if v == nil || v.store == nil {
		return nil, nil, errNilStore
	}
	if target == nil || target.Sign() <= 0 {
		return nil, nil, ErrInvalidTarget
	}
	from := bank.Handle(fromAsset)
	to := bank.Handle(toAsset)
	if from.Asset() == to.Asset() {
		return nil, nil, ErrSameAsset
	}
	if deadline > 0 && v.nowFn().Unix() > deadline {
		return nil, nil, ErrDeadlineLapsed
	}

	reserveIn, err := bank.BalanceOf(v.store, v.account, from.Asset())
	if err != nil {
		return nil, nil, err
	}
	reserveOut, err := bank.BalanceOf(v.store, v.account, to.Asset())
	if err != nil {
		return nil, nil, err
	}

	// The venue can hand out at most its reserve minus one unit.
	received := new(big.Int).Set(target)
	if reserveOut.Cmp(received) <= 0 {
		received = new(big.Int).Sub(reserveOut, big.NewInt(1))
	}
	if received.Sign() <= 0 {
		return nil, nil, ErrNoLiquidity
	}
	if minOut != nil && received.Cmp(minOut) < 0 {
		return nil, nil, ErrBelowMinimum
	}

	spent, err := amountIn(reserveIn, reserveOut, received, v.feeBps)
	if err != nil {
		return nil, nil, err
	}
	if maxIn != nil && spent.Cmp(maxIn) > 0 {
		return nil, nil, ErrAboveBudget
	}

	traderBal, err := bank.BalanceOf(v.store, trader, from.Asset())
	if err != nil {
		return nil, nil, err
	}
	if traderBal.Cmp(spent) < 0 {
		return nil, nil, errTraderUnderfunded
	}

	if err := from.Transfer(v.store, trader, v.account, spent); err != nil {
		return nil, nil, err
	}
	if err := to.Transfer(v.store, v.account, trader, received); err != nil {
		return nil, nil, err
	}
	return spent, received, nil
}

// amountIn computes the constant-product input for an exact output, rounding
// the input up so the invariant never decreases.
func amountIn(reserveIn, reserveOut, out *big.Int, feeBps uint64) (*big.Int, error) {
	if reserveIn.Sign() <= 0 || reserveOut.Cmp(out) <= 0 {
		return nil, ErrNoLiquidity
	}
	feeFactor := new(big.Int).SetUint64(10_000 - feeBps)
	num := new(big.Int).Mul(reserveIn, out)
	num.Mul(num, big.NewInt(10_000))
	den := new(big.Int).Sub(reserveOut, out)
	den.Mul(den, feeFactor)
	in := new(big.Int).Quo(num, den)
	in.Add(in, big.NewInt(1))
	return in, nil
}
