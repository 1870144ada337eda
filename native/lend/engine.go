package lend

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"pledgechain/core/events"
	"pledgechain/core/types"
	"pledgechain/native/bank"
	nativecommon "pledgechain/native/common"
	"pledgechain/native/multisig"
)

var (
	errNilState    = errors.New("lend engine: state not configured")
	errNilGate     = errors.New("lend engine: approval gate not configured")
	errNilTokens   = errors.New("lend engine: share ledger not configured")
	errNilOracle   = errors.New("lend engine: price oracle not configured")
	ErrNoExecutor  = errors.New("lend engine: swap executor not configured")
	ErrPoolUnknown = errors.New("lend engine: pool index out of range")

	// Precondition violations.
	ErrWrongState        = errors.New("lend engine: operation not permitted in current pool state")
	ErrMatchingClosed    = errors.New("lend engine: matching window has closed")
	ErrMatchingOpen      = errors.New("lend engine: matching window still open")
	ErrTermNotEnded      = errors.New("lend engine: loan term has not ended")
	ErrNotLiquidatable   = errors.New("lend engine: collateral value above liquidation margin")
	ErrInvalidAmount     = errors.New("lend engine: amount must be positive")
	ErrBelowMinimum      = errors.New("lend engine: amount below minimum contribution")
	ErrAboveLendCap      = errors.New("lend engine: deposit exceeds pool lend cap")
	ErrNothingCommitted  = errors.New("lend engine: account has no commitment in pool")
	ErrNothingToRefund   = errors.New("lend engine: no refundable excess for account")
	ErrZeroAddress       = errors.New("lend engine: zero-value address")
	ErrUnknownClaimToken = errors.New("lend engine: claim token not registered")
	ErrInvalidFeeRate    = errors.New("lend engine: fee rate out of range")

	// Authorization denials.
	ErrNotAuthorized = errors.New("lend engine: approval threshold not met for operation")

	// Double-action violations (write-once flags).
	ErrAlreadyRefunded  = errors.New("lend engine: refund already taken for account")
	ErrAlreadyClaimed   = errors.New("lend engine: claim already taken for account")
	ErrAlreadyWithdrawn = errors.New("lend engine: emergency withdrawal already taken for account")

	// Resolution failure.
	ErrInsufficientRecovery = errors.New("lend engine: swap recovery below principal plus interest")
)

const moduleName = "lend"

// engineState is the persistence surface the engine requires. The state
// manager and the in-memory test fake both satisfy it.
type engineState interface {
	bank.AccountStore

	PoolCount() (uint64, error)
	SetPoolCount(count uint64) error
	GetPool(id uint64) (*Pool, error)
	PutPool(pool *Pool) error
	GetResolution(id uint64) (*PoolResolution, error)
	PutResolution(id uint64, res *PoolResolution) error
	GetLenderPosition(id uint64, addr [20]byte) (*Position, error)
	PutLenderPosition(id uint64, pos *Position) error
	GetBorrowerPosition(id uint64, addr [20]byte) (*Position, error)
	PutBorrowerPosition(id uint64, pos *Position) error
}

// ShareLedger is the claim-token surface consumed by the engine. The token
// ledger satisfies it with the engine module address as registered minter.
type ShareLedger interface {
	Exists(id string) (bool, error)
	Mint(caller [20]byte, id string, to [20]byte, amount *big.Int) error
	Burn(caller [20]byte, id string, from [20]byte, amount *big.Int) error
}

// PriceSource resolves normalized prices at settlement and liquidation commit
// points.
type PriceSource interface {
	Price(asset string) (*big.Int, error)
}

// SwapExecutor converts collateral into the loan asset during resolution.
type SwapExecutor interface {
	SellToTarget(trader [20]byte, fromAsset, toAsset string, target, minOut, maxIn *big.Int, deadline int64) (spent, received *big.Int, err error)
}

// Authorizer answers whether a gated administrative target has gathered the
// required approvals. The multisig gate satisfies it.
type Authorizer interface {
	Authorized(initiator [20]byte, target []byte) (bool, error)
}

// Engine owns the per-pool state machine, the matching and settlement
// algorithm, deposit/claim/refund/withdraw bookkeeping and the resolution
// paths. Pooled funds live in the engine module account and move exclusively
// through bank asset handles.
type Engine struct {
	state         engineState
	emitter       events.Emitter
	nowFn         func() time.Time
	moduleAddress [20]byte

	tokens   ShareLedger
	oracle   PriceSource
	executor SwapExecutor
	gate     Authorizer
	pauses   *nativecommon.PauseRegistry

	feeRecipient    [20]byte
	lendFeeRate     *big.Int
	borrowFeeRate   *big.Int
	minContribution *big.Int
	swapDeadline    time.Duration

	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

// NewEngine constructs an engine whose pooled funds are vaulted at the module
// address.
func NewEngine(moduleAddr [20]byte) *Engine {
	return &Engine{
		emitter:         events.NoopEmitter{},
		nowFn:           func() time.Time { return time.Now().UTC() },
		moduleAddress:   moduleAddr,
		pauses:          nativecommon.NewPauseRegistry(),
		lendFeeRate:     big.NewInt(0),
		borrowFeeRate:   big.NewInt(0),
		minContribution: big.NewInt(0),
		swapDeadline:    5 * time.Minute,
		locks:           make(map[uint64]*sync.Mutex),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Nil resets to a no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Nil restores the default UTC clock.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	e.nowFn = now
}

// SetShareLedger wires the claim-token ledger.
func (e *Engine) SetShareLedger(tokens ShareLedger) { e.tokens = tokens }

// SetExecutor wires the swap executor at startup. Later replacements go
// through the gated SetSwapExecutor.
func (e *Engine) SetExecutor(executor SwapExecutor) { e.executor = executor }

// SetOracle wires the price source consulted at settlement and liquidation.
func (e *Engine) SetOracle(oracle PriceSource) { e.oracle = oracle }

// SetGate wires the threshold approval gate protecting administrative
// mutations.
func (e *Engine) SetGate(gate Authorizer) { e.gate = gate }

// SetInitialParams seeds fee rates, the per-deposit floor and the fee
// recipient at wiring time. Later changes go through the gated setters.
func (e *Engine) SetInitialParams(lendFee, borrowFee, minContribution *big.Int, feeRecipient [20]byte) error {
	lendFee = cloneAmount(lendFee)
	borrowFee = cloneAmount(borrowFee)
	if !validFeeRate(lendFee) || !validFeeRate(borrowFee) {
		return ErrInvalidFeeRate
	}
	if minContribution != nil && minContribution.Sign() < 0 {
		return ErrInvalidAmount
	}
	e.lendFeeRate = cloneAmount(lendFee)
	e.borrowFeeRate = cloneAmount(borrowFee)
	e.minContribution = cloneAmount(minContribution)
	e.feeRecipient = feeRecipient
	return nil
}

// SetSwapDeadline bounds how long a resolution swap may remain pending.
// Non-positive durations restore the default.
func (e *Engine) SetSwapDeadline(d time.Duration) {
	if d <= 0 {
		d = 5 * time.Minute
	}
	e.swapDeadline = d
}

// ModuleAddress returns the vault address holding pooled funds.
func (e *Engine) ModuleAddress() [20]byte { return e.moduleAddress }

// Pauses exposes the pause registry, primarily for node wiring.
func (e *Engine) Pauses() *nativecommon.PauseRegistry { return e.pauses }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(poolEvent{evt: evt})
}

func (e *Engine) now() int64 { return e.nowFn().Unix() }

// lockPool serializes operations against one pool for the duration of the
// call. Cross-pool operations proceed independently.
func (e *Engine) lockPool(id uint64) func() {
	e.mu.Lock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	e.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (e *Engine) requireAuthorized(caller [20]byte, target []byte) error {
	if e.gate == nil {
		return errNilGate
	}
	ok, err := e.gate.Authorized(caller, target)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

// CreatePool registers a new pool after gate authorization. The claim tokens
// must already exist in the share ledger; they are bound to the pool here and
// are immutable afterwards.
func (e *Engine) CreatePool(caller [20]byte, terms PoolTerms) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if err := e.requireAuthorized(caller, multisig.CreatePoolTarget()); err != nil {
		return 0, err
	}
	sanitized, err := sanitizeTerms(terms)
	if err != nil {
		return 0, err
	}
	if e.tokens == nil {
		return 0, errNilTokens
	}
	for _, tokenID := range []string{sanitized.LendShareToken, sanitized.BorrowDebtToken} {
		exists, err := e.tokens.Exists(tokenID)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, ErrUnknownClaimToken
		}
	}
	count, err := e.state.PoolCount()
	if err != nil {
		return 0, err
	}
	pool := &Pool{
		ID:                       count,
		Terms:                    sanitized,
		State:                    PoolOpen,
		TotalLendCommitted:       big.NewInt(0),
		TotalCollateralCommitted: big.NewInt(0),
	}
	if err := e.state.PutPool(pool); err != nil {
		return 0, err
	}
	if err := e.state.SetPoolCount(count + 1); err != nil {
		return 0, err
	}
	e.emit(newPoolCreatedEvent(pool))
	return pool.ID, nil
}

// PoolLength reports the number of pools ever created.
func (e *Engine) PoolLength() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.PoolCount()
}

// GetPool returns a copy of the pool record.
func (e *Engine) GetPool(id uint64) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.loadPool(id)
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// GetResolution returns a copy of the pool's resolution record.
func (e *Engine) GetResolution(id uint64) (*PoolResolution, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.loadPool(id); err != nil {
		return nil, err
	}
	res, err := e.loadResolution(id)
	if err != nil {
		return nil, err
	}
	return res.Clone(), nil
}

// GetLenderPosition returns a copy of the account's lend-side position.
func (e *Engine) GetLenderPosition(id uint64, addr [20]byte) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetLenderPosition(id, addr)
	if err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

// GetBorrowerPosition returns a copy of the account's borrow-side position.
func (e *Engine) GetBorrowerPosition(id uint64, addr [20]byte) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.GetBorrowerPosition(id, addr)
	if err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

// DepositLend commits loan-asset funds to the pool during the open matching
// window.
func (e *Engine) DepositLend(caller [20]byte, poolID uint64, amount *big.Int) error {
	return e.deposit(caller, poolID, amount, true)
}

// DepositBorrow commits collateral to the pool during the open matching
// window.
func (e *Engine) DepositBorrow(caller [20]byte, poolID uint64, amount *big.Int) error {
	return e.deposit(caller, poolID, amount, false)
}

func (e *Engine) deposit(caller [20]byte, poolID uint64, amount *big.Int, lendSide bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller == ([20]byte{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
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
	if e.now() >= pool.Terms.MatchDeadline {
		return ErrMatchingClosed
	}
	if e.minContribution != nil && amount.Cmp(e.minContribution) < 0 {
		return ErrBelowMinimum
	}

	asset := pool.Terms.CollateralAsset
	if lendSide {
		asset = pool.Terms.LoanAsset
		projected := new(big.Int).Add(pool.TotalLendCommitted, amount)
		if projected.Cmp(pool.Terms.MaxLendCap) > 0 {
			return ErrAboveLendCap
		}
	}

	if err := bank.Handle(asset).Transfer(e.state, caller, e.moduleAddress, amount); err != nil {
		return err
	}

	pos, err := e.loadPosition(poolID, caller, lendSide)
	if err != nil {
		return err
	}
	pos.Committed = new(big.Int).Add(pos.Committed, amount)
	if err := e.putPosition(poolID, pos, lendSide); err != nil {
		return err
	}

	side := sideBorrow
	if lendSide {
		pool.TotalLendCommitted = new(big.Int).Add(pool.TotalLendCommitted, amount)
		side = sideLend
	} else {
		pool.TotalCollateralCommitted = new(big.Int).Add(pool.TotalCollateralCommitted, amount)
	}
	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	e.emit(newTransferEvent(EventTypeDeposit, pool, side, caller, asset, amount))
	return nil
}

// RefundLend pays out the lender's pro-rata share of the lend-side excess
// trimmed at settlement. Write-once per account.
func (e *Engine) RefundLend(caller [20]byte, poolID uint64) (*big.Int, error) {
	return e.refund(caller, poolID, true)
}

// RefundBorrow pays out the borrower's pro-rata share of the collateral
// excess trimmed at settlement. Write-once per account.
func (e *Engine) RefundBorrow(caller [20]byte, poolID uint64) (*big.Int, error) {
	return e.refund(caller, poolID, false)
}

func (e *Engine) refund(caller [20]byte, poolID uint64, lendSide bool) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	unlock := e.lockPool(poolID)
	defer unlock()

	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if pool.State != PoolActive && pool.State != PoolMatured && pool.State != PoolLiquidated {
		return nil, ErrWrongState
	}
	res, err := e.loadResolution(poolID)
	if err != nil {
		return nil, err
	}

	pos, err := e.loadPosition(poolID, caller, lendSide)
	if err != nil {
		return nil, err
	}
	if pos.Committed.Sign() == 0 {
		return nil, ErrNothingCommitted
	}
	if pos.Refunded {
		return nil, ErrAlreadyRefunded
	}

	total := pool.TotalLendCommitted
	settled := res.SettledLend
	asset := pool.Terms.LoanAsset
	side := sideLend
	if !lendSide {
		total = pool.TotalCollateralCommitted
		settled = res.SettledCollateral
		asset = pool.Terms.CollateralAsset
		side = sideBorrow
	}
	excess := new(big.Int).Sub(total, settled)
	if excess.Sign() <= 0 {
		return nil, ErrNothingToRefund
	}
	refund := mulDiv(excess, pos.Committed, total)
	if refund.Sign() == 0 {
		return nil, ErrNothingToRefund
	}

	pos.Refunded = true
	if err := e.putPosition(poolID, pos, lendSide); err != nil {
		return nil, err
	}
	if err := bank.Handle(asset).Transfer(e.state, e.moduleAddress, caller, refund); err != nil {
		return nil, err
	}
	e.emit(newTransferEvent(EventTypeRefund, pool, side, caller, asset, refund))
	return refund, nil
}

// ClaimLend mints the lender's pro-rata share of the lender-share token,
// sized to the settled lend amount. Write-once per account.
func (e *Engine) ClaimLend(caller [20]byte, poolID uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.tokens == nil {
		return nil, errNilTokens
	}
	unlock := e.lockPool(poolID)
	defer unlock()

	pool, res, pos, err := e.claimable(poolID, caller, true)
	if err != nil {
		return nil, err
	}
	minted := mulDiv(res.SettledLend, pos.Committed, pool.TotalLendCommitted)

	pos.Claimed = true
	if err := e.state.PutLenderPosition(poolID, pos); err != nil {
		return nil, err
	}
	if minted.Sign() > 0 {
		if err := e.tokens.Mint(e.moduleAddress, pool.Terms.LendShareToken, caller, minted); err != nil {
			return nil, err
		}
	}
	e.emit(newTransferEvent(EventTypeClaim, pool, sideLend, caller, pool.Terms.LendShareToken, minted))
	return minted, nil
}

// ClaimBorrow mints the borrower's pro-rata share of the borrower-debt token
// and releases their pro-rata share of the settled lend amount, which is the
// actual loan proceeds. Write-once per account.
func (e *Engine) ClaimBorrow(caller [20]byte, poolID uint64) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if e.tokens == nil {
		return nil, nil, errNilTokens
	}
	unlock := e.lockPool(poolID)
	defer unlock()

	pool, res, pos, err := e.claimable(poolID, caller, false)
	if err != nil {
		return nil, nil, err
	}
	debtIssue := mulRate(res.SettledLend, pool.Terms.CollateralRatio)
	minted := mulDiv(debtIssue, pos.Committed, pool.TotalCollateralCommitted)
	proceeds := mulDiv(res.SettledLend, pos.Committed, pool.TotalCollateralCommitted)

	pos.Claimed = true
	if err := e.state.PutBorrowerPosition(poolID, pos); err != nil {
		return nil, nil, err
	}
	if minted.Sign() > 0 {
		if err := e.tokens.Mint(e.moduleAddress, pool.Terms.BorrowDebtToken, caller, minted); err != nil {
			return nil, nil, err
		}
	}
	if proceeds.Sign() > 0 {
		if err := bank.Handle(pool.Terms.LoanAsset).Transfer(e.state, e.moduleAddress, caller, proceeds); err != nil {
			return nil, nil, err
		}
	}
	e.emit(newTransferEvent(EventTypeClaim, pool, sideBorrow, caller, pool.Terms.BorrowDebtToken, minted))
	return minted, proceeds, nil
}

func (e *Engine) claimable(poolID uint64, caller [20]byte, lendSide bool) (*Pool, *PoolResolution, *Position, error) {
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, nil, nil, err
	}
	if pool.State != PoolActive && pool.State != PoolMatured && pool.State != PoolLiquidated {
		return nil, nil, nil, ErrWrongState
	}
	res, err := e.loadResolution(poolID)
	if err != nil {
		return nil, nil, nil, err
	}
	pos, err := e.loadPosition(poolID, caller, lendSide)
	if err != nil {
		return nil, nil, nil, err
	}
	if pos.Committed.Sign() == 0 {
		return nil, nil, nil, ErrNothingCommitted
	}
	if pos.Claimed {
		return nil, nil, nil, ErrAlreadyClaimed
	}
	return pool, res, pos, nil
}

// WithdrawLend burns lender-share tokens and pays the corresponding share of
// the lend payout pool fixed at resolution.
func (e *Engine) WithdrawLend(caller [20]byte, poolID uint64, burn *big.Int) (*big.Int, error) {
	return e.withdraw(caller, poolID, burn, true)
}

// WithdrawBorrow burns borrower-debt tokens and pays the corresponding share
// of the collateral payout pool fixed at resolution.
func (e *Engine) WithdrawBorrow(caller [20]byte, poolID uint64, burn *big.Int) (*big.Int, error) {
	return e.withdraw(caller, poolID, burn, false)
}

func (e *Engine) withdraw(caller [20]byte, poolID uint64, burn *big.Int, lendSide bool) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.tokens == nil {
		return nil, errNilTokens
	}
	if burn == nil || burn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	unlock := e.lockPool(poolID)
	defer unlock()

	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if pool.State != PoolMatured && pool.State != PoolLiquidated {
		return nil, ErrWrongState
	}
	res, err := e.loadResolution(poolID)
	if err != nil {
		return nil, err
	}

	var payoutPool, issued *big.Int
	var asset, tokenID, side string
	if lendSide {
		payoutPool = res.MaturityPayoutLend
		if pool.State == PoolLiquidated {
			payoutPool = res.LiquidationPayoutLend
		}
		issued = res.SettledLend
		asset = pool.Terms.LoanAsset
		tokenID = pool.Terms.LendShareToken
		side = sideLend
	} else {
		payoutPool = res.MaturityPayoutCollateral
		if pool.State == PoolLiquidated {
			payoutPool = res.LiquidationPayoutCollateral
		}
		issued = mulRate(res.SettledLend, pool.Terms.CollateralRatio)
		asset = pool.Terms.CollateralAsset
		tokenID = pool.Terms.BorrowDebtToken
		side = sideBorrow
	}
	if issued.Sign() == 0 {
		return nil, ErrNothingCommitted
	}
	payout := mulDiv(payoutPool, burn, issued)

	if err := e.tokens.Burn(e.moduleAddress, tokenID, caller, burn); err != nil {
		return nil, err
	}
	if payout.Sign() > 0 {
		if err := bank.Handle(asset).Transfer(e.state, e.moduleAddress, caller, payout); err != nil {
			return nil, err
		}
	}
	e.emit(newTransferEvent(EventTypeWithdraw, pool, side, caller, asset, payout))
	return payout, nil
}

// EmergencyWithdrawLend returns the lender's full original commitment from a
// void pool. Write-once per account.
func (e *Engine) EmergencyWithdrawLend(caller [20]byte, poolID uint64) (*big.Int, error) {
	return e.emergencyWithdraw(caller, poolID, true)
}

// EmergencyWithdrawBorrow returns the borrower's full original commitment
// from a void pool. Write-once per account.
func (e *Engine) EmergencyWithdrawBorrow(caller [20]byte, poolID uint64) (*big.Int, error) {
	return e.emergencyWithdraw(caller, poolID, false)
}

func (e *Engine) emergencyWithdraw(caller [20]byte, poolID uint64, lendSide bool) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	unlock := e.lockPool(poolID)
	defer unlock()

	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if pool.State != PoolVoid {
		return nil, ErrWrongState
	}
	pos, err := e.loadPosition(poolID, caller, lendSide)
	if err != nil {
		return nil, err
	}
	if pos.Committed.Sign() == 0 {
		return nil, ErrNothingCommitted
	}
	if pos.EmergencyWithdrawn {
		return nil, ErrAlreadyWithdrawn
	}

	asset := pool.Terms.LoanAsset
	side := sideLend
	if !lendSide {
		asset = pool.Terms.CollateralAsset
		side = sideBorrow
	}
	amount := new(big.Int).Set(pos.Committed)

	pos.EmergencyWithdrawn = true
	if err := e.putPosition(poolID, pos, lendSide); err != nil {
		return nil, err
	}
	if err := bank.Handle(asset).Transfer(e.state, e.moduleAddress, caller, amount); err != nil {
		return nil, err
	}
	e.emit(newTransferEvent(EventTypeEmergencyWithdraw, pool, side, caller, asset, amount))
	return amount, nil
}

// SetFees updates the global fee rates after gate authorization.
func (e *Engine) SetFees(caller [20]byte, lendFee, borrowFee *big.Int) error {
	if e == nil {
		return errNilState
	}
	if !validFeeRate(lendFee) || !validFeeRate(borrowFee) {
		return ErrInvalidFeeRate
	}
	if err := e.requireAuthorized(caller, multisig.SetFeesTarget(lendFee, borrowFee)); err != nil {
		return err
	}
	e.lendFeeRate = new(big.Int).Set(lendFee)
	e.borrowFeeRate = new(big.Int).Set(borrowFee)
	e.emit(newParamsUpdatedEvent("fees", e.lendFeeRate.String()+"/"+e.borrowFeeRate.String()))
	return nil
}

// SetFeeRecipient updates the protocol fee account after gate authorization.
func (e *Engine) SetFeeRecipient(caller, recipient [20]byte) error {
	if e == nil {
		return errNilState
	}
	if recipient == ([20]byte{}) {
		return ErrZeroAddress
	}
	if err := e.requireAuthorized(caller, multisig.SetFeeRecipientTarget(recipient)); err != nil {
		return err
	}
	e.feeRecipient = recipient
	e.emit(newParamsUpdatedEvent("feeRecipient", addrHex(recipient)))
	return nil
}

// SetMinContribution updates the contribution floor after gate authorization.
func (e *Engine) SetMinContribution(caller [20]byte, amount *big.Int) error {
	if e == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := e.requireAuthorized(caller, multisig.SetMinContributionTarget(amount)); err != nil {
		return err
	}
	e.minContribution = new(big.Int).Set(amount)
	e.emit(newParamsUpdatedEvent("minContribution", e.minContribution.String()))
	return nil
}

// SetSwapExecutor swaps the liquidity venue adapter after gate authorization.
func (e *Engine) SetSwapExecutor(caller [20]byte, executor SwapExecutor) error {
	if e == nil {
		return errNilState
	}
	if executor == nil {
		return ErrNoExecutor
	}
	if err := e.requireAuthorized(caller, multisig.SetSwapExecutorTarget()); err != nil {
		return err
	}
	e.executor = executor
	e.emit(newParamsUpdatedEvent("swapExecutor", "updated"))
	return nil
}

// PauseAll halts all engine mutations after gate authorization.
func (e *Engine) PauseAll(caller [20]byte) error {
	if e == nil {
		return errNilState
	}
	if err := e.requireAuthorized(caller, multisig.PauseTarget()); err != nil {
		return err
	}
	e.pauses.SetPaused(moduleName, true)
	e.emit(newParamsUpdatedEvent("paused", "true"))
	return nil
}

// UnpauseAll re-enables engine mutations after gate authorization.
func (e *Engine) UnpauseAll(caller [20]byte) error {
	if e == nil {
		return errNilState
	}
	if err := e.requireAuthorized(caller, multisig.UnpauseTarget()); err != nil {
		return err
	}
	e.pauses.SetPaused(moduleName, false)
	e.emit(newParamsUpdatedEvent("paused", "false"))
	return nil
}

func (e *Engine) loadPool(id uint64) (*Pool, error) {
	pool, err := e.state.GetPool(id)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolUnknown
	}
	if pool.TotalLendCommitted == nil {
		pool.TotalLendCommitted = big.NewInt(0)
	}
	if pool.TotalCollateralCommitted == nil {
		pool.TotalCollateralCommitted = big.NewInt(0)
	}
	return pool, nil
}

func (e *Engine) loadResolution(id uint64) (*PoolResolution, error) {
	res, err := e.state.GetResolution(id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &PoolResolution{}
	}
	for _, field := range []**big.Int{
		&res.SettledLend, &res.SettledCollateral,
		&res.MaturityPayoutLend, &res.MaturityPayoutCollateral,
		&res.LiquidationPayoutLend, &res.LiquidationPayoutCollateral,
	} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	return res, nil
}

func (e *Engine) loadPosition(poolID uint64, addr [20]byte, lendSide bool) (*Position, error) {
	var pos *Position
	var err error
	if lendSide {
		pos, err = e.state.GetLenderPosition(poolID, addr)
	} else {
		pos, err = e.state.GetBorrowerPosition(poolID, addr)
	}
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Address: addr}
	}
	if pos.Committed == nil {
		pos.Committed = big.NewInt(0)
	}
	return pos, nil
}

func (e *Engine) putPosition(poolID uint64, pos *Position, lendSide bool) error {
	if lendSide {
		return e.state.PutLenderPosition(poolID, pos)
	}
	return e.state.PutBorrowerPosition(poolID, pos)
}

func validFeeRate(rate *big.Int) bool {
	return rate != nil && rate.Sign() >= 0 && rate.Cmp(RateScale) < 0
}
