package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pledgechain/config"
	"pledgechain/core"
	"pledgechain/native/bank"
	"pledgechain/native/multisig"
	"pledgechain/observability/logging"
	"pledgechain/storage"
)

const (
	hexModule   = "0x00000000000000000000000000000000000000ee"
	hexAdmin    = "0x0000000000000000000000000000000000000001"
	hexLender   = "0x0000000000000000000000000000000000000002"
	hexBorrower = "0x0000000000000000000000000000000000000003"
	hexFeeder   = "0x0000000000000000000000000000000000000004"
)

type fakeClock struct {
	unix int64
}

func (c *fakeClock) Now() time.Time { return time.Unix(atomic.LoadInt64(&c.unix), 0).UTC() }

func (c *fakeClock) Set(unix int64) { atomic.StoreInt64(&c.unix, unix) }

func newTestServer(t *testing.T) (*Server, *core.Node, *fakeClock) {
	t.Helper()
	cfg := &config.Config{
		ListenAddress:       ":0",
		Environment:         "test",
		ModuleAddress:       hexModule,
		Signers:             []string{hexAdmin},
		SignerThreshold:     1,
		OracleFeeders:       []string{hexFeeder},
		OracleMaxAgeSeconds: 300,
		SwapDeadlineSeconds: 300,
		MinContribution:     "0",
	}
	node, err := core.NewNode(storage.NewMemDB(), cfg, logging.Setup("pledged-test", "test"))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clock := &fakeClock{unix: 100}
	node.Lend().SetNowFunc(clock.Now)
	return NewServer(node, nil), node, clock
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

// authorizeCreatePool walks one approval through the gate so hexAdmin may
// create a pool.
func authorizeCreatePool(t *testing.T, s *Server) {
	t.Helper()
	target := hex.EncodeToString(multisig.CreatePoolTarget())
	rec := do(t, s, http.MethodPost, "/v1/gate/propose", map[string]string{
		"initiator": hexAdmin,
		"target":    target,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("propose status = %d body = %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, http.MethodPost, "/v1/gate/endorse", map[string]string{
		"signer":    hexAdmin,
		"initiator": hexAdmin,
		"target":    target,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("endorse status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func registerToken(t *testing.T, s *Server, id string) {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/v1/tokens", map[string]string{"id": id})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register token %q status = %d body = %s", id, rec.Code, rec.Body.String())
	}
}

func createPool(t *testing.T, s *Server) uint64 {
	t.Helper()
	registerToken(t, s, "sp-0")
	registerToken(t, s, "jp-0")
	authorizeCreatePool(t, s)
	rec := do(t, s, http.MethodPost, "/v1/pools", map[string]interface{}{
		"caller":              hexAdmin,
		"matchDeadline":       1000,
		"maturity":            32_000_000,
		"interestRate":        "10000000",
		"collateralRatio":     "200000000",
		"maxLendCap":          "500000",
		"autoLiquidateMargin": "20000000",
		"loanAsset":           "USDT",
		"collateralAsset":     "PLG",
		"lendShareToken":      "sp-0",
		"borrowDebtToken":     "jp-0",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create pool status = %d body = %s", rec.Code, rec.Body.String())
	}
	return uint64(decodeBody(t, rec)["id"].(float64))
}

func submitQuote(t *testing.T, s *Server, asset, price string) {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/v1/oracle/quotes", map[string]string{
		"feeder": hexFeeder,
		"asset":  asset,
		"price":  price,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("quote %s status = %d body = %s", asset, rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPoolLifecycleOverHTTP(t *testing.T) {
	s, node, clock := newTestServer(t)
	id := createPool(t, s)
	if id != 0 {
		t.Fatalf("first pool id = %d", id)
	}

	lender, _ := config.ParseAddress(hexLender)
	borrower, _ := config.ParseAddress(hexBorrower)
	if err := bank.Credit(node.State(), lender, "USDT", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("credit lender: %v", err)
	}
	if err := bank.Credit(node.State(), borrower, "PLG", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("credit borrower: %v", err)
	}

	rec := do(t, s, http.MethodPost, fmt.Sprintf("/v1/pools/%d/deposit", id), sideRequest{
		Caller: hexLender, Side: "lend", Amount: "100000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("lend deposit status = %d body = %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, http.MethodPost, fmt.Sprintf("/v1/pools/%d/deposit", id), sideRequest{
		Caller: hexBorrower, Side: "borrow", Amount: "400000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("borrow deposit status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, fmt.Sprintf("/v1/pools/%d/lender/%s", id, hexLender), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("position status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/v1/pools", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["length"].(float64); got != 1 {
		t.Fatalf("pool count = %v", got)
	}

	// Matching closes, both assets priced at par, the pool settles active.
	submitQuote(t, s, "USDT", "100000000")
	submitQuote(t, s, "PLG", "100000000")
	clock.Set(2000)
	rec = do(t, s, http.MethodPost, fmt.Sprintf("/v1/pools/%d/settle", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("settle status = %d body = %s", rec.Code, rec.Body.String())
	}
	if state := decodeBody(t, rec)["state"].(string); state != "active" {
		t.Fatalf("settled state = %q", state)
	}

	rec = do(t, s, http.MethodGet, "/v1/events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d", rec.Code)
	}
	entries := decodeBody(t, rec)["events"].([]interface{})
	if len(entries) == 0 {
		t.Fatal("expected journal entries after lifecycle")
	}
	last := entries[len(entries)-1].(map[string]interface{})
	cursor := last["sequence"].(float64)
	rec = do(t, s, http.MethodGet, fmt.Sprintf("/v1/events?after=%d", int(cursor)), nil)
	if got := decodeBody(t, rec)["events"].([]interface{}); len(got) != 0 {
		t.Fatalf("events after cursor = %d, want 0", len(got))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	s, _, _ := newTestServer(t)
	id := createPool(t, s)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unauthorized pool creation", http.MethodPost, "/v1/pools", map[string]interface{}{
			"caller":              hexLender,
			"matchDeadline":       1000,
			"maturity":            32_000_000,
			"interestRate":        "10000000",
			"collateralRatio":     "200000000",
			"maxLendCap":          "500000",
			"autoLiquidateMargin": "20000000",
			"loanAsset":           "USDT",
			"collateralAsset":     "PLG",
			"lendShareToken":      "sp-0",
			"borrowDebtToken":     "jp-0",
		}, http.StatusForbidden},
		{"unknown pool", http.MethodPost, "/v1/pools/99/deposit",
			sideRequest{Caller: hexLender, Side: "lend", Amount: "100"}, http.StatusNotFound},
		{"malformed pool id", http.MethodGet, "/v1/pools/abc", nil, http.StatusBadRequest},
		{"malformed amount", http.MethodPost, fmt.Sprintf("/v1/pools/%d/deposit", id),
			sideRequest{Caller: hexLender, Side: "lend", Amount: "ten"}, http.StatusBadRequest},
		{"unknown side", http.MethodPost, fmt.Sprintf("/v1/pools/%d/deposit", id),
			sideRequest{Caller: hexLender, Side: "middle", Amount: "100"}, http.StatusBadRequest},
		{"unknown json field", http.MethodPost, fmt.Sprintf("/v1/pools/%d/deposit", id),
			map[string]string{"caller": hexLender, "side": "lend", "amount": "100", "memo": "x"}, http.StatusBadRequest},
		{"settle before deadline", http.MethodPost, fmt.Sprintf("/v1/pools/%d/settle", id), nil, http.StatusConflict},
		{"quote from outsider", http.MethodPost, "/v1/oracle/quotes",
			map[string]string{"feeder": hexLender, "asset": "PLG", "price": "1"}, http.StatusForbidden},
		{"price without quotes", http.MethodGet, "/v1/oracle/price/WBTC", nil, http.StatusConflict},
		{"duplicate token", http.MethodPost, "/v1/tokens", map[string]string{"id": "sp-0"}, http.StatusConflict},
		{"unknown token balance", http.MethodGet, "/v1/tokens/nope/balance/" + hexLender, nil, http.StatusNotFound},
		{"endorse unknown application", http.MethodPost, "/v1/gate/endorse",
			map[string]string{"signer": hexAdmin, "initiator": hexBorrower, "target": "ff"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestSignersEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/v1/gate/signers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if got := body["threshold"].(float64); got != 1 {
		t.Fatalf("threshold = %v", got)
	}
	if got := body["signers"].([]interface{}); len(got) != 1 {
		t.Fatalf("signer count = %d", len(got))
	}
}

func TestTokenBalanceEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	registerToken(t, s, "sp-0")
	rec := do(t, s, http.MethodGet, "/v1/tokens/sp-0/balance/"+hexLender, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["balance"].(string); got != "0" {
		t.Fatalf("balance = %q", got)
	}
}
