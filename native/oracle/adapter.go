package oracle

import (
	"errors"
	"math/big"
	"sort"
	"strings"
	"time"
)

var (
	errNilState        = errors.New("price oracle: state not configured")
	ErrUnknownAsset    = errors.New("price oracle: asset identifier required")
	ErrNotFeeder       = errors.New("price oracle: submitter is not a registered feeder")
	ErrInvalidPrice    = errors.New("price oracle: price must be positive")
	ErrNoFreshQuote    = errors.New("price oracle: no fresh quote available")
	ErrNotAuthorized   = errors.New("price oracle: feeder rotation not authorized")
	ErrFeederExists    = errors.New("price oracle: feeder already registered")
	ErrFeederUnknown   = errors.New("price oracle: feeder not registered")
	ErrNilAuthorizer   = errors.New("price oracle: authorizer not configured")
	ErrZeroFeeder      = errors.New("price oracle: feeder address required")
	errInvalidQuoteAge = errors.New("price oracle: freshness window must be positive")
)

// PriceScale is the fixed-point scale for normalized prices.
var PriceScale = big.NewInt(100_000_000)

// Quote is one feeder observation for an asset. Price is normalized to
// PriceScale units of the common quote currency.
type Quote struct {
	Feeder    [20]byte
	Price     *big.Int
	Timestamp int64
}

// Clone returns a deep copy of the quote.
func (q Quote) Clone() Quote {
	clone := Quote{Feeder: q.Feeder, Timestamp: q.Timestamp}
	if q.Price != nil {
		clone.Price = new(big.Int).Set(q.Price)
	}
	return clone
}

// PriceOracle resolves the current normalized price for an asset identifier.
// Implementations must return a positive value or an error.
type PriceOracle interface {
	Price(asset string) (*big.Int, error)
}

// Authorizer answers whether an administrative target has been approved. The
// multisig gate satisfies it.
type Authorizer interface {
	Authorized(initiator [20]byte, target []byte) (bool, error)
}

// FeederTargets builds the gate targets for feeder rotation. Wired to the
// multisig target constructors at node assembly.
type FeederTargets interface {
	AddFeeder(feeder [20]byte) []byte
	RemoveFeeder(feeder [20]byte) []byte
}

type adapterState interface {
	OracleQuotes(asset string) ([]Quote, error)
	OraclePutQuotes(asset string, quotes []Quote) error
	OracleFeeders() ([][20]byte, error)
	OraclePutFeeders(feeders [][20]byte) error
}

// Adapter aggregates feeder-posted quotes into a single normalized price per
// asset. Stale quotes are dropped at read time; the returned price is the
// median of the fresh set.
type Adapter struct {
	state          adapterState
	auth           Authorizer
	targets        FeederTargets
	maxAge         time.Duration
	nowFn          func() time.Time
	initialFeeders [][20]byte
}

// NewAdapter constructs an adapter with the supplied freshness window and
// bootstrap feeder set.
func NewAdapter(maxAge time.Duration, feeders [][20]byte) *Adapter {
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &Adapter{
		maxAge:         maxAge,
		nowFn:          func() time.Time { return time.Now().UTC() },
		initialFeeders: append([][20]byte(nil), feeders...),
	}
}

// SetState wires the adapter to the external persistence layer.
func (a *Adapter) SetState(state adapterState) { a.state = state }

// SetAuthorizer wires the approval gate used for feeder rotation.
func (a *Adapter) SetAuthorizer(auth Authorizer, targets FeederTargets) {
	a.auth = auth
	a.targets = targets
}

// SetNowFunc overrides the clock. Nil restores the default UTC clock.
func (a *Adapter) SetNowFunc(now func() time.Time) {
	if now == nil {
		a.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	a.nowFn = now
}

// SetMaxAge updates the freshness window used when filtering quotes.
func (a *Adapter) SetMaxAge(maxAge time.Duration) error {
	if maxAge <= 0 {
		return errInvalidQuoteAge
	}
	a.maxAge = maxAge
	return nil
}

// SubmitQuote records a feeder observation, replacing the feeder's previous
// quote for the asset.
func (a *Adapter) SubmitQuote(feeder [20]byte, asset string, price *big.Int) error {
	if a == nil || a.state == nil {
		return errNilState
	}
	normalized, err := normalizeAsset(asset)
	if err != nil {
		return err
	}
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	registered, err := a.isFeeder(feeder)
	if err != nil {
		return err
	}
	if !registered {
		return ErrNotFeeder
	}
	quotes, err := a.state.OracleQuotes(normalized)
	if err != nil {
		return err
	}
	next := make([]Quote, 0, len(quotes)+1)
	for _, q := range quotes {
		if q.Feeder != feeder {
			next = append(next, q)
		}
	}
	next = append(next, Quote{
		Feeder:    feeder,
		Price:     new(big.Int).Set(price),
		Timestamp: a.nowFn().Unix(),
	})
	return a.state.OraclePutQuotes(normalized, next)
}

// Price implements PriceOracle. It returns the median of quotes observed
// within the freshness window and fails when none are available.
func (a *Adapter) Price(asset string) (*big.Int, error) {
	if a == nil || a.state == nil {
		return nil, errNilState
	}
	normalized, err := normalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	quotes, err := a.state.OracleQuotes(normalized)
	if err != nil {
		return nil, err
	}
	cutoff := a.nowFn().Add(-a.maxAge).Unix()
	fresh := make([]*big.Int, 0, len(quotes))
	for _, q := range quotes {
		if q.Timestamp < cutoff || q.Price == nil || q.Price.Sign() <= 0 {
			continue
		}
		fresh = append(fresh, q.Price)
	}
	if len(fresh) == 0 {
		return nil, ErrNoFreshQuote
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Cmp(fresh[j]) < 0 })
	mid := len(fresh) / 2
	if len(fresh)%2 == 1 {
		return new(big.Int).Set(fresh[mid]), nil
	}
	sum := new(big.Int).Add(fresh[mid-1], fresh[mid])
	return sum.Quo(sum, big.NewInt(2)), nil
}

// AddFeeder registers a price feeder after the rotation has passed the gate.
func (a *Adapter) AddFeeder(initiator, feeder [20]byte) error {
	if a == nil || a.state == nil {
		return errNilState
	}
	if feeder == ([20]byte{}) {
		return ErrZeroFeeder
	}
	if err := a.requireAuthorized(initiator, true, feeder); err != nil {
		return err
	}
	feeders, err := a.feeders()
	if err != nil {
		return err
	}
	for _, f := range feeders {
		if f == feeder {
			return ErrFeederExists
		}
	}
	return a.state.OraclePutFeeders(append(feeders, feeder))
}

// RemoveFeeder drops a feeder after the rotation has passed the gate.
func (a *Adapter) RemoveFeeder(initiator, feeder [20]byte) error {
	if a == nil || a.state == nil {
		return errNilState
	}
	if err := a.requireAuthorized(initiator, false, feeder); err != nil {
		return err
	}
	feeders, err := a.feeders()
	if err != nil {
		return err
	}
	remaining := make([][20]byte, 0, len(feeders))
	found := false
	for _, f := range feeders {
		if f == feeder {
			found = true
			continue
		}
		remaining = append(remaining, f)
	}
	if !found {
		return ErrFeederUnknown
	}
	return a.state.OraclePutFeeders(remaining)
}

// Feeders returns the registered feeder set.
func (a *Adapter) Feeders() ([][20]byte, error) {
	if a == nil || a.state == nil {
		return nil, errNilState
	}
	return a.feeders()
}

func (a *Adapter) requireAuthorized(initiator [20]byte, add bool, feeder [20]byte) error {
	if a.auth == nil || a.targets == nil {
		return ErrNilAuthorizer
	}
	target := a.targets.RemoveFeeder(feeder)
	if add {
		target = a.targets.AddFeeder(feeder)
	}
	ok, err := a.auth.Authorized(initiator, target)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

func (a *Adapter) isFeeder(addr [20]byte) (bool, error) {
	feeders, err := a.feeders()
	if err != nil {
		return false, err
	}
	for _, f := range feeders {
		if f == addr {
			return true, nil
		}
	}
	return false, nil
}

func (a *Adapter) feeders() ([][20]byte, error) {
	stored, err := a.state.OracleFeeders()
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored, nil
	}
	seeded := append([][20]byte(nil), a.initialFeeders...)
	if err := a.state.OraclePutFeeders(seeded); err != nil {
		return nil, err
	}
	return seeded, nil
}

func normalizeAsset(asset string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(asset))
	if trimmed == "" {
		return "", ErrUnknownAsset
	}
	return trimmed, nil
}
