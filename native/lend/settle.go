package lend

import (
	"errors"
	"math/big"

	"pledgechain/native/bank"
	nativecommon "pledgechain/native/common"
	"pledgechain/native/swapx"
)

// Settle closes the matching window and fixes how much of each side's
// commitment is actually usable at the announced collateral ratio. Callable by
// anyone once the deadline has passed; the transition runs at most once.
func (e *Engine) Settle(poolID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	unlock := e.lockPool(poolID)
	defer unlock()

	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if pool.State != PoolOpen {
		return ErrWrongState
	}
	if e.now() <= pool.Terms.MatchDeadline {
		return ErrMatchingOpen
	}

	// Under-subscription on either side voids the pool; contributors recover
	// their full commitment through emergency withdrawal.
	if pool.TotalLendCommitted.Sign() == 0 || pool.TotalCollateralCommitted.Sign() == 0 {
		return e.transitionVoid(pool)
	}

	if e.oracle == nil {
		return errNilOracle
	}
	priceLoan, err := e.oracle.Price(pool.Terms.LoanAsset)
	if err != nil {
		return err
	}
	priceCollateral, err := e.oracle.Price(pool.Terms.CollateralAsset)
	if err != nil {
		return err
	}

	settledLend, settledCollateral := settleAmounts(
		pool.TotalLendCommitted, pool.TotalCollateralCommitted,
		priceLoan, priceCollateral, pool.Terms.CollateralRatio,
	)
	if settledLend.Sign() == 0 {
		// Collateral too small to support any lending at the announced
		// ratio; treat as an unmatched pool.
		return e.transitionVoid(pool)
	}

	res, err := e.loadResolution(pool.ID)
	if err != nil {
		return err
	}
	res.SettledLend = settledLend
	res.SettledCollateral = settledCollateral
	if err := e.state.PutResolution(pool.ID, res); err != nil {
		return err
	}

	before := pool.State
	pool.State = PoolActive
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emit(newSettledEvent(pool, res))
	e.emit(newStateChangeEvent(pool, before, pool.State))
	return nil
}

// settleAmounts clears the market at the announced collateral ratio. The side
// with binding scarcity is fully retained and the other side is trimmed to
// match; no auction is required.
func settleAmounts(lendTotal, collateralTotal, priceLoan, priceCollateral, ratio *big.Int) (*big.Int, *big.Int) {
	// Collateral value expressed in loan-asset units.
	collateralValue := mulDiv(collateralTotal, priceCollateral, priceLoan)
	maxLoanSupported := mulDiv(collateralValue, RateScale, ratio)

	if lendTotal.Cmp(maxLoanSupported) > 0 {
		// Collateral is the binding constraint: retain all of it.
		return maxLoanSupported, new(big.Int).Set(collateralTotal)
	}
	// Lend supply binds: retain only the collateral needed to back it.
	needed := new(big.Int).Mul(lendTotal, ratio)
	needed.Mul(needed, priceLoan)
	den := new(big.Int).Mul(RateScale, priceCollateral)
	needed.Quo(needed, den)
	if needed.Cmp(collateralTotal) > 0 {
		needed = new(big.Int).Set(collateralTotal)
	}
	return new(big.Int).Set(lendTotal), needed
}

func (e *Engine) transitionVoid(pool *Pool) error {
	before := pool.State
	pool.State = PoolVoid
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emit(newStateChangeEvent(pool, before, pool.State))
	return nil
}

// ResolveMaturity closes an active pool after the loan term ends, converting
// collateral into the loan asset and fixing both payout pools.
func (e *Engine) ResolveMaturity(poolID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	unlock := e.lockPool(poolID)
	defer unlock()

	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if pool.State != PoolActive {
		return ErrWrongState
	}
	if e.now() <= pool.Terms.Maturity {
		return ErrTermNotEnded
	}
	return e.resolve(pool, PoolMatured)
}

// ResolveLiquidation forces early resolution while the liquidation trigger
// holds: the live collateral value has fallen below principal plus the
// configured safety margin.
func (e *Engine) ResolveLiquidation(poolID uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	unlock := e.lockPool(poolID)
	defer unlock()

	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	if pool.State != PoolActive {
		return ErrWrongState
	}
	if e.now() <= pool.Terms.MatchDeadline {
		return ErrMatchingOpen
	}
	warranted, err := e.liquidationWarranted(pool)
	if err != nil {
		return err
	}
	if !warranted {
		return ErrNotLiquidatable
	}
	return e.resolve(pool, PoolLiquidated)
}

// LiquidationWarranted evaluates the liquidation trigger against live prices
// without mutating state.
func (e *Engine) LiquidationWarranted(poolID uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return false, err
	}
	if pool.State != PoolActive {
		return false, ErrWrongState
	}
	return e.liquidationWarranted(pool)
}

func (e *Engine) liquidationWarranted(pool *Pool) (bool, error) {
	if e.oracle == nil {
		return false, errNilOracle
	}
	res, err := e.loadResolution(pool.ID)
	if err != nil {
		return false, err
	}
	priceLoan, err := e.oracle.Price(pool.Terms.LoanAsset)
	if err != nil {
		return false, err
	}
	priceCollateral, err := e.oracle.Price(pool.Terms.CollateralAsset)
	if err != nil {
		return false, err
	}
	liveValue := mulDiv(res.SettledCollateral, priceCollateral, priceLoan)
	floor := addRate(res.SettledLend, pool.Terms.AutoLiquidateMargin)
	return liveValue.Cmp(floor) < 0, nil
}

// resolve runs the shared resolution algorithm for both the maturity and
// liquidation paths. Both apply the full contracted term's interest; forced
// resolution does not pro-rate down.
func (e *Engine) resolve(pool *Pool, next PoolState) error {
	if e.executor == nil {
		return ErrNoExecutor
	}
	res, err := e.loadResolution(pool.ID)
	if err != nil {
		return err
	}

	principal := res.SettledLend
	interest := termInterest(principal, pool.Terms.InterestRate, pool.Terms.MatchDeadline, pool.Terms.Maturity)
	due := new(big.Int).Add(principal, interest)
	target := addRate(due, e.lendFeeRate)

	feesConfigured := e.lendFeeRate.Sign() > 0 || e.borrowFeeRate.Sign() > 0
	if feesConfigured && e.feeRecipient == ([20]byte{}) {
		return ErrZeroAddress
	}

	deadline := e.now() + int64(e.swapDeadline.Seconds())
	spent, received, err := e.executor.SellToTarget(
		e.moduleAddress,
		pool.Terms.CollateralAsset, pool.Terms.LoanAsset,
		target, due, res.SettledCollateral, deadline,
	)
	if err != nil {
		if liquidityFailure(err) {
			return errors.Join(ErrInsufficientRecovery, err)
		}
		return err
	}
	if received.Cmp(due) < 0 {
		return ErrInsufficientRecovery
	}

	// Fee skim on the loan side: anything recovered above principal plus
	// interest goes to the protocol. Without a configured recipient the
	// surplus stays in the lender payout pool.
	lendPayout := new(big.Int).Set(received)
	lendFee := big.NewInt(0)
	if received.Cmp(due) > 0 && e.feeRecipient != ([20]byte{}) {
		lendFee = new(big.Int).Sub(received, due)
		lendPayout = new(big.Int).Set(due)
	}

	remaining := new(big.Int).Sub(res.SettledCollateral, spent)
	if remaining.Sign() < 0 {
		remaining = big.NewInt(0)
	}
	borrowFee := big.NewInt(0)
	if e.borrowFeeRate.Sign() > 0 && e.feeRecipient != ([20]byte{}) {
		borrowFee = mulRate(remaining, e.borrowFeeRate)
	}
	borrowPayout := new(big.Int).Sub(remaining, borrowFee)

	if next == PoolLiquidated {
		res.LiquidationPayoutLend = lendPayout
		res.LiquidationPayoutCollateral = borrowPayout
	} else {
		res.MaturityPayoutLend = lendPayout
		res.MaturityPayoutCollateral = borrowPayout
	}
	if err := e.state.PutResolution(pool.ID, res); err != nil {
		return err
	}

	before := pool.State
	pool.State = next
	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	// State is final; fee transfers are the only outbound moves left.
	if lendFee.Sign() > 0 {
		if err := bank.Handle(pool.Terms.LoanAsset).Transfer(e.state, e.moduleAddress, e.feeRecipient, lendFee); err != nil {
			return err
		}
	}
	if borrowFee.Sign() > 0 {
		if err := bank.Handle(pool.Terms.CollateralAsset).Transfer(e.state, e.moduleAddress, e.feeRecipient, borrowFee); err != nil {
			return err
		}
	}

	e.emit(newResolvedEvent(pool, res, spent, received))
	e.emit(newStateChangeEvent(pool, before, pool.State))
	return nil
}

// liquidityFailure classifies executor errors that mean the venue could not
// produce the contractually required recovery. Those resolutions abort and
// may be retried once conditions improve.
func liquidityFailure(err error) bool {
	return errors.Is(err, swapx.ErrBelowMinimum) ||
		errors.Is(err, swapx.ErrNoLiquidity) ||
		errors.Is(err, swapx.ErrAboveBudget)
}
