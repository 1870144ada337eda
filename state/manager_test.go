package state

import (
	"math/big"
	"testing"

	"pledgechain/native/lend"
	"pledgechain/native/multisig"
	"pledgechain/native/oracle"
	"pledgechain/native/token"
	"pledgechain/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func TestMissingRecordsReadAsAbsent(t *testing.T) {
	m := newTestManager(t)

	acc, err := m.GetAccount([20]byte{0x01})
	if err != nil || acc != nil {
		t.Fatalf("missing account = %v, %v, want nil, nil", acc, err)
	}
	pool, err := m.GetPool(7)
	if err != nil || pool != nil {
		t.Fatalf("missing pool = %v, %v, want nil, nil", pool, err)
	}
	count, err := m.PoolCount()
	if err != nil || count != 0 {
		t.Fatalf("initial count = %d, %v, want 0", count, err)
	}
	bal, err := m.TokenBalance("sp-0", [20]byte{0x01})
	if err != nil || bal.Sign() != 0 {
		t.Fatalf("missing balance = %v, %v, want 0", bal, err)
	}
	signers, err := m.MultisigSigners()
	if err != nil || signers != nil {
		t.Fatalf("unwritten signers = %v, %v, want nil", signers, err)
	}
	feeders, err := m.OracleFeeders()
	if err != nil || feeders != nil {
		t.Fatalf("unwritten feeders = %v, %v, want nil", feeders, err)
	}
}

func TestPoolRoundTrip(t *testing.T) {
	m := newTestManager(t)

	pool := &lend.Pool{
		ID: 3,
		Terms: lend.PoolTerms{
			MatchDeadline:       1_000,
			Maturity:            2_000,
			InterestRate:        big.NewInt(10_000_000),
			CollateralRatio:     big.NewInt(200_000_000),
			MaxLendCap:          big.NewInt(500_000),
			AutoLiquidateMargin: big.NewInt(20_000_000),
			LoanAsset:           "USDT",
			CollateralAsset:     "PLG",
			LendShareToken:      "sp-3",
			BorrowDebtToken:     "jp-3",
		},
		State:                    lend.PoolActive,
		TotalLendCommitted:       big.NewInt(123),
		TotalCollateralCommitted: big.NewInt(456),
	}
	if err := m.PutPool(pool); err != nil {
		t.Fatalf("put pool: %v", err)
	}
	if err := m.SetPoolCount(4); err != nil {
		t.Fatalf("set count: %v", err)
	}

	loaded, err := m.GetPool(3)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if loaded.State != lend.PoolActive || loaded.Terms.LendShareToken != "sp-3" {
		t.Fatalf("pool round trip lost fields: %+v", loaded)
	}
	if loaded.TotalLendCommitted.Cmp(big.NewInt(123)) != 0 {
		t.Fatalf("total lend = %s, want 123", loaded.TotalLendCommitted)
	}
	count, err := m.PoolCount()
	if err != nil || count != 4 {
		t.Fatalf("count = %d, %v, want 4", count, err)
	}
}

func TestResolutionAndPositionRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := [20]byte{0x42}

	res := &lend.PoolResolution{
		SettledLend:        big.NewInt(100_000),
		SettledCollateral:  big.NewInt(200_000),
		MaturityPayoutLend: big.NewInt(110_000),
	}
	if err := m.PutResolution(1, res); err != nil {
		t.Fatalf("put resolution: %v", err)
	}
	loaded, err := m.GetResolution(1)
	if err != nil {
		t.Fatalf("get resolution: %v", err)
	}
	if loaded.SettledLend.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("settled lend = %s, want 100000", loaded.SettledLend)
	}

	pos := &lend.Position{Address: addr, Committed: big.NewInt(55), Refunded: true}
	if err := m.PutLenderPosition(1, pos); err != nil {
		t.Fatalf("put lender position: %v", err)
	}
	got, err := m.GetLenderPosition(1, addr)
	if err != nil {
		t.Fatalf("get lender position: %v", err)
	}
	if got.Committed.Cmp(big.NewInt(55)) != 0 || !got.Refunded {
		t.Fatalf("position round trip lost fields: %+v", got)
	}
	// Sides are stored independently.
	borrow, err := m.GetBorrowerPosition(1, addr)
	if err != nil || borrow != nil {
		t.Fatalf("borrower position = %v, %v, want nil", borrow, err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := [20]byte{0x05}

	if err := m.TokenPut(&token.Token{ID: "sp-0", Minted: big.NewInt(100), Supply: big.NewInt(60)}); err != nil {
		t.Fatalf("put token: %v", err)
	}
	tok, err := m.TokenGet("sp-0")
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if tok.Minted.Cmp(big.NewInt(100)) != 0 || tok.Supply.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("token round trip lost fields: %+v", tok)
	}

	if err := m.TokenSetBalance("sp-0", addr, big.NewInt(42)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	bal, err := m.TokenBalance("sp-0", addr)
	if err != nil || bal.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("balance = %s, %v, want 42", bal, err)
	}
}

func TestMultisigRoundTrip(t *testing.T) {
	m := newTestManager(t)

	app := &multisig.Application{
		Key:        [32]byte{0x01},
		Initiator:  [20]byte{0x02},
		Target:     []byte("lend/pauseAll"),
		Signatures: [][20]byte{{0x03}},
		CreatedAt:  1_000,
	}
	if err := m.MultisigPutApplication(app); err != nil {
		t.Fatalf("put application: %v", err)
	}
	loaded, err := m.MultisigGetApplication(app.Key)
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	if string(loaded.Target) != "lend/pauseAll" || len(loaded.Signatures) != 1 {
		t.Fatalf("application round trip lost fields: %+v", loaded)
	}

	if err := m.MultisigPutSigners([][20]byte{{0x03}, {0x04}}); err != nil {
		t.Fatalf("put signers: %v", err)
	}
	signers, err := m.MultisigSigners()
	if err != nil || len(signers) != 2 {
		t.Fatalf("signers = %v, %v, want 2 entries", signers, err)
	}

	// An explicitly empty set reads back empty rather than unwritten.
	if err := m.MultisigPutSigners(nil); err != nil {
		t.Fatalf("put empty signers: %v", err)
	}
	signers, err = m.MultisigSigners()
	if err != nil || signers == nil || len(signers) != 0 {
		t.Fatalf("empty signers = %v, %v, want empty non-nil", signers, err)
	}
}

func TestOracleRoundTrip(t *testing.T) {
	m := newTestManager(t)

	quotes := []oracle.Quote{{Feeder: [20]byte{0x01}, Price: big.NewInt(100_000_000), Timestamp: 1_000}}
	if err := m.OraclePutQuotes("plg", quotes); err != nil {
		t.Fatalf("put quotes: %v", err)
	}
	// Asset identifiers are canonicalized on both paths.
	loaded, err := m.OracleQuotes("PLG")
	if err != nil || len(loaded) != 1 {
		t.Fatalf("quotes = %v, %v, want 1 entry", loaded, err)
	}
	if loaded[0].Price.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Fatalf("quote price = %s, want 100000000", loaded[0].Price)
	}

	if err := m.OraclePutFeeders([][20]byte{{0x01}}); err != nil {
		t.Fatalf("put feeders: %v", err)
	}
	feeders, err := m.OracleFeeders()
	if err != nil || len(feeders) != 1 {
		t.Fatalf("feeders = %v, %v, want 1 entry", feeders, err)
	}
}
