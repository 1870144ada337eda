package oracle

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mockAdapterState struct {
	quotes  map[string][]Quote
	feeders [][20]byte
	written bool
}

func newMockAdapterState() *mockAdapterState {
	return &mockAdapterState{quotes: make(map[string][]Quote)}
}

func (m *mockAdapterState) OracleQuotes(asset string) ([]Quote, error) {
	return m.quotes[asset], nil
}

func (m *mockAdapterState) OraclePutQuotes(asset string, quotes []Quote) error {
	m.quotes[asset] = quotes
	return nil
}

func (m *mockAdapterState) OracleFeeders() ([][20]byte, error) {
	if !m.written {
		return nil, nil
	}
	return m.feeders, nil
}

func (m *mockAdapterState) OraclePutFeeders(feeders [][20]byte) error {
	m.feeders = feeders
	m.written = true
	return nil
}

type allowAll struct{ allow bool }

func (a allowAll) Authorized([20]byte, []byte) (bool, error) { return a.allow, nil }

type plainTargets struct{}

func (plainTargets) AddFeeder(feeder [20]byte) []byte    { return append([]byte("add/"), feeder[:]...) }
func (plainTargets) RemoveFeeder(feeder [20]byte) []byte { return append([]byte("rm/"), feeder[:]...) }

var (
	feederA = [20]byte{0x01}
	feederB = [20]byte{0x02}
	feederC = [20]byte{0x03}
	admin   = [20]byte{0x10}
)

func newTestAdapter(t *testing.T) (*Adapter, *mockAdapterState, *int64) {
	t.Helper()
	state := newMockAdapterState()
	now := int64(10_000)
	adapter := NewAdapter(5*time.Minute, [][20]byte{feederA, feederB, feederC})
	adapter.SetState(state)
	adapter.SetAuthorizer(allowAll{allow: true}, plainTargets{})
	adapter.SetNowFunc(func() time.Time { return time.Unix(now, 0) })
	return adapter, state, &now
}

func TestSubmitQuoteValidation(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)

	require.ErrorIs(t, adapter.SubmitQuote(feederA, "  ", big.NewInt(1)), ErrUnknownAsset)
	require.ErrorIs(t, adapter.SubmitQuote(feederA, "plg", big.NewInt(0)), ErrInvalidPrice)
	require.ErrorIs(t, adapter.SubmitQuote([20]byte{0x99}, "plg", big.NewInt(1)), ErrNotFeeder)
}

func TestSubmitQuoteReplacesFeederObservation(t *testing.T) {
	adapter, state, _ := newTestAdapter(t)

	require.NoError(t, adapter.SubmitQuote(feederA, "plg", big.NewInt(100)))
	require.NoError(t, adapter.SubmitQuote(feederA, "PLG", big.NewInt(120)))

	require.Len(t, state.quotes["PLG"], 1)
	require.Equal(t, big.NewInt(120), state.quotes["PLG"][0].Price)
}

func TestPriceIsMedianOfFreshQuotes(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)

	require.NoError(t, adapter.SubmitQuote(feederA, "PLG", big.NewInt(90)))
	require.NoError(t, adapter.SubmitQuote(feederB, "PLG", big.NewInt(100)))
	require.NoError(t, adapter.SubmitQuote(feederC, "PLG", big.NewInt(130)))

	price, err := adapter.Price("plg")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), price)
}

func TestPriceAveragesMiddlePairForEvenSets(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)

	require.NoError(t, adapter.SubmitQuote(feederA, "PLG", big.NewInt(90)))
	require.NoError(t, adapter.SubmitQuote(feederB, "PLG", big.NewInt(110)))

	price, err := adapter.Price("PLG")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), price)
}

func TestPriceDropsStaleQuotes(t *testing.T) {
	adapter, _, now := newTestAdapter(t)

	require.NoError(t, adapter.SubmitQuote(feederA, "PLG", big.NewInt(90)))
	*now += 600
	require.NoError(t, adapter.SubmitQuote(feederB, "PLG", big.NewInt(110)))

	// feederA's quote is beyond the five minute window.
	price, err := adapter.Price("PLG")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(110), price)

	*now += 600
	_, err = adapter.Price("PLG")
	require.ErrorIs(t, err, ErrNoFreshQuote)
}

func TestFeederRotationRequiresAuthorization(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	newFeeder := [20]byte{0x04}

	adapter.SetAuthorizer(allowAll{allow: false}, plainTargets{})
	require.ErrorIs(t, adapter.AddFeeder(admin, newFeeder), ErrNotAuthorized)

	adapter.SetAuthorizer(allowAll{allow: true}, plainTargets{})
	require.NoError(t, adapter.AddFeeder(admin, newFeeder))
	require.ErrorIs(t, adapter.AddFeeder(admin, newFeeder), ErrFeederExists)

	require.NoError(t, adapter.RemoveFeeder(admin, newFeeder))
	require.ErrorIs(t, adapter.RemoveFeeder(admin, newFeeder), ErrFeederUnknown)

	require.ErrorIs(t, adapter.AddFeeder(admin, [20]byte{}), ErrZeroFeeder)
}

func TestRemovedFeederCannotSubmit(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)

	require.NoError(t, adapter.RemoveFeeder(admin, feederC))
	require.ErrorIs(t, adapter.SubmitQuote(feederC, "PLG", big.NewInt(100)), ErrNotFeeder)
}
