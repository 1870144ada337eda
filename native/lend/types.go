package lend

import (
	"fmt"
	"math/big"
	"strings"

	"pledgechain/native/bank"
)

// PoolState enumerates the lifecycle states of a lending pool. The numeric
// values are part of the external contract; indexers persist them verbatim.
type PoolState uint8

const (
	PoolOpen PoolState = iota
	PoolActive
	PoolMatured
	PoolLiquidated
	PoolVoid
)

// String renders the state for logs and events.
func (s PoolState) String() string {
	switch s {
	case PoolOpen:
		return "open"
	case PoolActive:
		return "active"
	case PoolMatured:
		return "matured"
	case PoolLiquidated:
		return "liquidated"
	case PoolVoid:
		return "void"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Terminal reports whether no further state transition is possible.
func (s PoolState) Terminal() bool {
	switch s {
	case PoolMatured, PoolLiquidated, PoolVoid:
		return true
	default:
		return false
	}
}

// PoolTerms fixes the immutable parameters of one lending product instance.
// Rates and ratios are fixed-point values at RateScale (1e8).
type PoolTerms struct {
	// MatchDeadline is the unix time when the matching window closes.
	MatchDeadline int64
	// Maturity is the unix time when the loan term ends. Must exceed
	// MatchDeadline.
	Maturity int64
	// InterestRate is the fixed annualized rate applied over the full term.
	InterestRate *big.Int
	// CollateralRatio is the required overcollateralization factor
	// (2e8 = 200%).
	CollateralRatio *big.Int
	// MaxLendCap bounds the total lend-side commitment.
	MaxLendCap *big.Int
	// AutoLiquidateMargin is the fractional buffer above principal below
	// which forced liquidation is warranted.
	AutoLiquidateMargin *big.Int
	// LoanAsset and CollateralAsset identify the two assets. An empty
	// identifier denotes the native ledger asset.
	LoanAsset       string
	CollateralAsset string
	// LendShareToken and BorrowDebtToken are the claim-token identifiers
	// bound at creation, immutable thereafter.
	LendShareToken  string
	BorrowDebtToken string
}

// Pool is one lending product instance plus its running totals.
type Pool struct {
	ID    uint64
	Terms PoolTerms
	State PoolState
	// TotalLendCommitted and TotalCollateralCommitted grow monotonically
	// until settlement and are frozen afterwards.
	TotalLendCommitted       *big.Int
	TotalCollateralCommitted *big.Int
}

// PoolResolution collects the amounts fixed at settlement and at final
// resolution. At most one of the maturity/liquidation payout pairs is ever
// populated, depending on which path closed the pool.
type PoolResolution struct {
	SettledLend                 *big.Int
	SettledCollateral           *big.Int
	MaturityPayoutLend          *big.Int
	MaturityPayoutCollateral    *big.Int
	LiquidationPayoutLend       *big.Int
	LiquidationPayoutCollateral *big.Int
}

// Position tracks one account's contribution to one side of a pool. The
// boolean flags are write-once: they transition false to true exactly once
// and a second attempt is rejected without side effects.
type Position struct {
	Address            [20]byte
	Committed          *big.Int
	Refunded           bool
	Claimed            bool
	EmergencyWithdrawn bool
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := &Pool{ID: p.ID, Terms: p.Terms.Clone(), State: p.State}
	clone.TotalLendCommitted = cloneAmount(p.TotalLendCommitted)
	clone.TotalCollateralCommitted = cloneAmount(p.TotalCollateralCommitted)
	return clone
}

// Clone returns a deep copy of the terms.
func (t PoolTerms) Clone() PoolTerms {
	clone := t
	clone.InterestRate = cloneAmount(t.InterestRate)
	clone.CollateralRatio = cloneAmount(t.CollateralRatio)
	clone.MaxLendCap = cloneAmount(t.MaxLendCap)
	clone.AutoLiquidateMargin = cloneAmount(t.AutoLiquidateMargin)
	return clone
}

// Clone returns a deep copy of the resolution record.
func (r *PoolResolution) Clone() *PoolResolution {
	if r == nil {
		return nil
	}
	return &PoolResolution{
		SettledLend:                 cloneAmount(r.SettledLend),
		SettledCollateral:           cloneAmount(r.SettledCollateral),
		MaturityPayoutLend:          cloneAmount(r.MaturityPayoutLend),
		MaturityPayoutCollateral:    cloneAmount(r.MaturityPayoutCollateral),
		LiquidationPayoutLend:       cloneAmount(r.LiquidationPayoutLend),
		LiquidationPayoutCollateral: cloneAmount(r.LiquidationPayoutCollateral),
	}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Committed = cloneAmount(p.Committed)
	return &clone
}

// sanitizeTerms validates and canonicalizes pool terms. Asset identifiers are
// resolved through the bank so the native sentinel collapses to its canonical
// symbol.
func sanitizeTerms(t PoolTerms) (PoolTerms, error) {
	clone := t.Clone()
	if clone.Maturity <= clone.MatchDeadline {
		return clone, fmt.Errorf("lend: maturity %d must exceed match deadline %d", clone.Maturity, clone.MatchDeadline)
	}
	if clone.MatchDeadline <= 0 {
		return clone, fmt.Errorf("lend: match deadline required")
	}
	if clone.InterestRate == nil || clone.InterestRate.Sign() < 0 {
		return clone, fmt.Errorf("lend: interest rate must be non-negative")
	}
	if clone.CollateralRatio == nil || clone.CollateralRatio.Sign() <= 0 {
		return clone, fmt.Errorf("lend: collateral ratio must be positive")
	}
	if clone.MaxLendCap == nil || clone.MaxLendCap.Sign() <= 0 {
		return clone, fmt.Errorf("lend: max lend cap must be positive")
	}
	if clone.AutoLiquidateMargin == nil || clone.AutoLiquidateMargin.Sign() < 0 {
		return clone, fmt.Errorf("lend: auto-liquidate margin must be non-negative")
	}
	clone.LoanAsset = bank.Handle(clone.LoanAsset).Asset()
	clone.CollateralAsset = bank.Handle(clone.CollateralAsset).Asset()
	if clone.LoanAsset == clone.CollateralAsset {
		return clone, fmt.Errorf("lend: loan and collateral assets must differ")
	}
	clone.LendShareToken = strings.TrimSpace(clone.LendShareToken)
	clone.BorrowDebtToken = strings.TrimSpace(clone.BorrowDebtToken)
	if clone.LendShareToken == "" || clone.BorrowDebtToken == "" {
		return clone, fmt.Errorf("lend: claim token identifiers required")
	}
	if clone.LendShareToken == clone.BorrowDebtToken {
		return clone, fmt.Errorf("lend: claim token identifiers must differ")
	}
	return clone, nil
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
