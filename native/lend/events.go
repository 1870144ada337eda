package lend

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"pledgechain/core/types"
)

const (
	EventTypePoolCreated       = "lend.pool_created"
	EventTypeDeposit           = "lend.deposit"
	EventTypeRefund            = "lend.refund"
	EventTypeClaim             = "lend.claim"
	EventTypeWithdraw          = "lend.withdraw"
	EventTypeEmergencyWithdraw = "lend.emergency_withdraw"
	EventTypeSettled           = "lend.settled"
	EventTypeResolved          = "lend.resolved"
	EventTypeStateChange       = "lend.state_change"
	EventTypeParamsUpdated     = "lend.params_updated"

	sideLend   = "lend"
	sideBorrow = "borrow"
)

// poolEvent adapts a wire-level event to the engine emitter interface.
type poolEvent struct {
	evt *types.Event
}

func (e poolEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

// Event exposes the underlying wire event for subscribers.
func (e poolEvent) Event() *types.Event { return e.evt }

func newPoolCreatedEvent(pool *Pool) *types.Event {
	attrs := poolAttrs(pool)
	attrs["loanAsset"] = pool.Terms.LoanAsset
	attrs["collateralAsset"] = pool.Terms.CollateralAsset
	attrs["lendShareToken"] = pool.Terms.LendShareToken
	attrs["borrowDebtToken"] = pool.Terms.BorrowDebtToken
	attrs["matchDeadline"] = strconv.FormatInt(pool.Terms.MatchDeadline, 10)
	attrs["maturity"] = strconv.FormatInt(pool.Terms.Maturity, 10)
	attrs["interestRate"] = pool.Terms.InterestRate.String()
	attrs["collateralRatio"] = pool.Terms.CollateralRatio.String()
	attrs["maxLendCap"] = pool.Terms.MaxLendCap.String()
	attrs["autoLiquidateMargin"] = pool.Terms.AutoLiquidateMargin.String()
	return &types.Event{Type: EventTypePoolCreated, Attributes: attrs}
}

func newTransferEvent(eventType string, pool *Pool, side string, account [20]byte, asset string, amount *big.Int) *types.Event {
	attrs := poolAttrs(pool)
	attrs["side"] = side
	attrs["account"] = hex.EncodeToString(account[:])
	attrs["asset"] = asset
	attrs["amount"] = amountString(amount)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newSettledEvent(pool *Pool, res *PoolResolution) *types.Event {
	attrs := poolAttrs(pool)
	attrs["settledLend"] = amountString(res.SettledLend)
	attrs["settledCollateral"] = amountString(res.SettledCollateral)
	return &types.Event{Type: EventTypeSettled, Attributes: attrs}
}

func newResolvedEvent(pool *Pool, res *PoolResolution, spent, received *big.Int) *types.Event {
	attrs := poolAttrs(pool)
	attrs["collateralSpent"] = amountString(spent)
	attrs["loanReceived"] = amountString(received)
	if pool.State == PoolLiquidated {
		attrs["payoutLend"] = amountString(res.LiquidationPayoutLend)
		attrs["payoutCollateral"] = amountString(res.LiquidationPayoutCollateral)
	} else {
		attrs["payoutLend"] = amountString(res.MaturityPayoutLend)
		attrs["payoutCollateral"] = amountString(res.MaturityPayoutCollateral)
	}
	return &types.Event{Type: EventTypeResolved, Attributes: attrs}
}

func newStateChangeEvent(pool *Pool, before, after PoolState) *types.Event {
	attrs := poolAttrs(pool)
	attrs["before"] = before.String()
	attrs["after"] = after.String()
	return &types.Event{Type: EventTypeStateChange, Attributes: attrs}
}

func newParamsUpdatedEvent(param, value string) *types.Event {
	return &types.Event{Type: EventTypeParamsUpdated, Attributes: map[string]string{
		"param": param,
		"value": value,
	}}
}

func poolAttrs(pool *Pool) map[string]string {
	attrs := make(map[string]string)
	if pool == nil {
		return attrs
	}
	attrs["poolId"] = strconv.FormatUint(pool.ID, 10)
	attrs["state"] = pool.State.String()
	return attrs
}

func addrHex(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
