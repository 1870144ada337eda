package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pledgechain/config"
	"pledgechain/core"
	"pledgechain/native/bank"
	nativecommon "pledgechain/native/common"
	"pledgechain/native/lend"
	"pledgechain/native/multisig"
	"pledgechain/native/oracle"
	"pledgechain/native/swapx"
	"pledgechain/native/token"
	"pledgechain/observability/metrics"
)

const (
	sideLend   = "lend"
	sideBorrow = "borrow"
)

// Server exposes the node over HTTP.
type Server struct {
	node    *core.Node
	log     *slog.Logger
	metrics *metrics.LendMetrics
	router  chi.Router
}

// NewServer builds the HTTP surface for a node.
func NewServer(node *core.Node, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{node: node, log: log, metrics: metrics.Lend()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pools", s.handleListPools)
		r.Post("/pools", s.handleCreatePool)
		r.Route("/pools/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetPool)
			r.Get("/resolution", s.handleGetResolution)
			r.Get("/liquidatable", s.handleLiquidatable)
			r.Get("/lender/{addr}", s.handlePosition(true))
			r.Get("/borrower/{addr}", s.handlePosition(false))
			r.Post("/deposit", s.handleDeposit)
			r.Post("/refund", s.handleRefund)
			r.Post("/claim", s.handleClaim)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/emergency-withdraw", s.handleEmergencyWithdraw)
			r.Post("/settle", s.handleSettle)
			r.Post("/resolve", s.handleResolve)
		})

		r.Post("/tokens", s.handleRegisterToken)
		r.Get("/tokens/{id}/balance/{addr}", s.handleTokenBalance)

		r.Post("/oracle/quotes", s.handleSubmitQuote)
		r.Get("/oracle/price/{asset}", s.handlePrice)

		r.Post("/gate/propose", s.handlePropose)
		r.Post("/gate/endorse", s.handleEndorse)
		r.Get("/gate/signers", s.handleSigners)

		r.Post("/admin/signers", s.handleRotateSigner)
		r.Post("/admin/feeders", s.handleRotateFeeder)
		r.Post("/admin/fees", s.handleSetFees)
		r.Post("/admin/fee-recipient", s.handleSetFeeRecipient)
		r.Post("/admin/min-contribution", s.handleSetMinContribution)
		r.Post("/admin/pause", s.handlePause(true))
		r.Post("/admin/unpause", s.handlePause(false))

		r.Get("/events", s.handleEvents)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type poolView struct {
	ID                       uint64         `json:"id"`
	State                    string         `json:"state"`
	Terms                    lend.PoolTerms `json:"terms"`
	TotalLendCommitted       *big.Int       `json:"totalLendCommitted"`
	TotalCollateralCommitted *big.Int       `json:"totalCollateralCommitted"`
}

func viewPool(pool *lend.Pool) poolView {
	return poolView{
		ID:                       pool.ID,
		State:                    pool.State.String(),
		Terms:                    pool.Terms,
		TotalLendCommitted:       pool.TotalLendCommitted,
		TotalCollateralCommitted: pool.TotalCollateralCommitted,
	}
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	length, err := s.node.Lend().PoolLength()
	if err != nil {
		s.writeError(w, err)
		return
	}
	pools := make([]poolView, 0, length)
	for id := uint64(0); id < length; id++ {
		pool, err := s.node.Lend().GetPool(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		pools = append(pools, viewPool(pool))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"length": length, "pools": pools})
}

type createPoolRequest struct {
	Caller string `json:"caller"`

	MatchDeadline       int64  `json:"matchDeadline"`
	Maturity            int64  `json:"maturity"`
	InterestRate        string `json:"interestRate"`
	CollateralRatio     string `json:"collateralRatio"`
	MaxLendCap          string `json:"maxLendCap"`
	AutoLiquidateMargin string `json:"autoLiquidateMargin"`
	LoanAsset           string `json:"loanAsset"`
	CollateralAsset     string `json:"collateralAsset"`
	LendShareToken      string `json:"lendShareToken"`
	BorrowDebtToken     string `json:"borrowDebtToken"`
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	terms := lend.PoolTerms{
		MatchDeadline:   req.MatchDeadline,
		Maturity:        req.Maturity,
		LoanAsset:       req.LoanAsset,
		CollateralAsset: req.CollateralAsset,
		LendShareToken:  req.LendShareToken,
		BorrowDebtToken: req.BorrowDebtToken,
	}
	for _, field := range []struct {
		raw  string
		dest **big.Int
	}{
		{req.InterestRate, &terms.InterestRate},
		{req.CollateralRatio, &terms.CollateralRatio},
		{req.MaxLendCap, &terms.MaxLendCap},
		{req.AutoLiquidateMargin, &terms.AutoLiquidateMargin},
	} {
		amount, ok := s.amount(w, field.raw)
		if !ok {
			return
		}
		*field.dest = amount
	}

	var id uint64
	err := s.node.WithWriteLock(func() error {
		var err error
		id, err = s.node.Lend().CreatePool(caller, terms)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObservePoolCreated()
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	pool, err := s.node.Lend().GetPool(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPool(pool))
}

func (s *Server) handleGetResolution(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	res, err := s.node.Lend().GetResolution(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLiquidatable(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	warranted, err := s.node.Lend().LiquidationWarranted(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"liquidatable": warranted})
}

func (s *Server) handlePosition(lendSide bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.poolID(w, r)
		if !ok {
			return
		}
		addr, ok := s.address(w, chi.URLParam(r, "addr"))
		if !ok {
			return
		}
		var pos *lend.Position
		var err error
		if lendSide {
			pos, err = s.node.Lend().GetLenderPosition(id, addr)
		} else {
			pos, err = s.node.Lend().GetBorrowerPosition(id, addr)
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pos)
	}
}

type sideRequest struct {
	Caller string `json:"caller"`
	Side   string `json:"side"`
	Amount string `json:"amount,omitempty"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	var req sideRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	amount, ok := s.amount(w, req.Amount)
	if !ok {
		return
	}
	lendSide, ok := s.side(w, req.Side)
	if !ok {
		return
	}
	err := s.node.WithWriteLock(func() error {
		if lendSide {
			return s.node.Lend().DepositLend(caller, id, amount)
		}
		return s.node.Lend().DepositBorrow(caller, id, amount)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveDeposit(req.Side)
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	var req sideRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	lendSide, ok := s.side(w, req.Side)
	if !ok {
		return
	}
	var refunded *big.Int
	err := s.node.WithWriteLock(func() error {
		var err error
		if lendSide {
			refunded, err = s.node.Lend().RefundLend(caller, id)
		} else {
			refunded, err = s.node.Lend().RefundBorrow(caller, id)
		}
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"refunded": refunded.String()})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	var req sideRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	lendSide, ok := s.side(w, req.Side)
	if !ok {
		return
	}
	response := map[string]string{}
	err := s.node.WithWriteLock(func() error {
		if lendSide {
			minted, err := s.node.Lend().ClaimLend(caller, id)
			if err != nil {
				return err
			}
			response["minted"] = minted.String()
			return nil
		}
		minted, proceeds, err := s.node.Lend().ClaimBorrow(caller, id)
		if err != nil {
			return err
		}
		response["minted"] = minted.String()
		response["proceeds"] = proceeds.String()
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveClaim(req.Side)
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	var req sideRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	burn, ok := s.amount(w, req.Amount)
	if !ok {
		return
	}
	lendSide, ok := s.side(w, req.Side)
	if !ok {
		return
	}
	var payout *big.Int
	err := s.node.WithWriteLock(func() error {
		var err error
		if lendSide {
			payout, err = s.node.Lend().WithdrawLend(caller, id, burn)
		} else {
			payout, err = s.node.Lend().WithdrawBorrow(caller, id, burn)
		}
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveWithdrawal(req.Side, "final")
	writeJSON(w, http.StatusOK, map[string]string{"payout": payout.String()})
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	var req sideRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	lendSide, ok := s.side(w, req.Side)
	if !ok {
		return
	}
	var returned *big.Int
	err := s.node.WithWriteLock(func() error {
		var err error
		if lendSide {
			returned, err = s.node.Lend().EmergencyWithdrawLend(caller, id)
		} else {
			returned, err = s.node.Lend().EmergencyWithdrawBorrow(caller, id)
		}
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveWithdrawal(req.Side, "emergency")
	writeJSON(w, http.StatusOK, map[string]string{"returned": returned.String()})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	err := s.node.WithWriteLock(func() error {
		return s.node.Lend().Settle(id)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	pool, err := s.node.Lend().GetPool(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveSettlement(pool.State.String())
	writeJSON(w, http.StatusOK, viewPool(pool))
}

type resolveRequest struct {
	Kind string `json:"kind"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := s.poolID(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.node.WithWriteLock(func() error {
		switch strings.ToLower(strings.TrimSpace(req.Kind)) {
		case "maturity":
			return s.node.Lend().ResolveMaturity(id)
		case "liquidation":
			return s.node.Lend().ResolveLiquidation(id)
		default:
			return errBadRequest
		}
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	pool, err := s.node.Lend().GetPool(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.metrics.ObserveResolution(pool.State.String())
	writeJSON(w, http.StatusOK, viewPool(pool))
}

type registerTokenRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	var req registerTokenRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.node.WithWriteLock(func() error {
		return s.node.Tokens().Register(req.ID)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.address(w, chi.URLParam(r, "addr"))
	if !ok {
		return
	}
	balance, err := s.node.Tokens().BalanceOf(chi.URLParam(r, "id"), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

type quoteRequest struct {
	Feeder string `json:"feeder"`
	Asset  string `json:"asset"`
	Price  string `json:"price"`
}

func (s *Server) handleSubmitQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	feeder, ok := s.address(w, req.Feeder)
	if !ok {
		return
	}
	price, ok := s.amount(w, req.Price)
	if !ok {
		return
	}
	err := s.node.WithWriteLock(func() error {
		return s.node.Oracle().SubmitQuote(feeder, req.Asset, price)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	price, err := s.node.Oracle().Price(chi.URLParam(r, "asset"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"price": price.String()})
}

type gateRequest struct {
	Signer    string `json:"signer,omitempty"`
	Initiator string `json:"initiator"`
	Target    string `json:"target"`
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if !s.decode(w, r, &req) {
		return
	}
	initiator, ok := s.address(w, req.Initiator)
	if !ok {
		return
	}
	target, err := hex.DecodeString(strings.TrimPrefix(req.Target, "0x"))
	if err != nil {
		s.writeError(w, errBadRequest)
		return
	}
	var key [32]byte
	err = s.node.WithWriteLock(func() error {
		var err error
		key, err = s.node.Gate().Propose(initiator, target)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": hex.EncodeToString(key[:])})
}

func (s *Server) handleEndorse(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if !s.decode(w, r, &req) {
		return
	}
	signer, ok := s.address(w, req.Signer)
	if !ok {
		return
	}
	initiator, ok := s.address(w, req.Initiator)
	if !ok {
		return
	}
	target, err := hex.DecodeString(strings.TrimPrefix(req.Target, "0x"))
	if err != nil {
		s.writeError(w, errBadRequest)
		return
	}
	err = s.node.WithWriteLock(func() error {
		return s.node.Gate().Endorse(signer, initiator, target)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "endorsed"})
}

func (s *Server) handleSigners(w http.ResponseWriter, r *http.Request) {
	signers, err := s.node.Gate().Signers()
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]string, 0, len(signers))
	for _, signer := range signers {
		out = append(out, hex.EncodeToString(signer[:]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"threshold": s.node.Gate().Threshold(),
		"signers":   out,
	})
}

type rotateRequest struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
	Action  string `json:"action"`
}

func (s *Server) handleRotateSigner(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	subject, ok := s.address(w, req.Address)
	if !ok {
		return
	}
	err := s.node.WithWriteLock(func() error {
		switch strings.ToLower(strings.TrimSpace(req.Action)) {
		case "add":
			return s.node.Gate().AddSigner(caller, subject)
		case "remove":
			return s.node.Gate().RemoveSigner(caller, subject)
		default:
			return errBadRequest
		}
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleRotateFeeder(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	subject, ok := s.address(w, req.Address)
	if !ok {
		return
	}
	err := s.node.WithWriteLock(func() error {
		switch strings.ToLower(strings.TrimSpace(req.Action)) {
		case "add":
			return s.node.Oracle().AddFeeder(caller, subject)
		case "remove":
			return s.node.Oracle().RemoveFeeder(caller, subject)
		default:
			return errBadRequest
		}
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type feesRequest struct {
	Caller    string `json:"caller"`
	LendFee   string `json:"lendFee"`
	BorrowFee string `json:"borrowFee"`
}

func (s *Server) handleSetFees(w http.ResponseWriter, r *http.Request) {
	var req feesRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	lendFee, ok := s.amount(w, req.LendFee)
	if !ok {
		return
	}
	borrowFee, ok := s.amount(w, req.BorrowFee)
	if !ok {
		return
	}
	err := s.node.WithWriteLock(func() error {
		return s.node.Lend().SetFees(caller, lendFee, borrowFee)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type recipientRequest struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
}

func (s *Server) handleSetFeeRecipient(w http.ResponseWriter, r *http.Request) {
	var req recipientRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	recipient, ok := s.address(w, req.Recipient)
	if !ok {
		return
	}
	err := s.node.WithWriteLock(func() error {
		return s.node.Lend().SetFeeRecipient(caller, recipient)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type minContributionRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func (s *Server) handleSetMinContribution(w http.ResponseWriter, r *http.Request) {
	var req minContributionRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, ok := s.address(w, req.Caller)
	if !ok {
		return
	}
	amount, ok := s.amount(w, req.Amount)
	if !ok {
		return
	}
	err := s.node.WithWriteLock(func() error {
		return s.node.Lend().SetMinContribution(caller, amount)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type pauseRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handlePause(pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pauseRequest
		if !s.decode(w, r, &req) {
			return
		}
		caller, ok := s.address(w, req.Caller)
		if !ok {
			return
		}
		err := s.node.WithWriteLock(func() error {
			if pause {
				return s.node.Lend().PauseAll(caller)
			}
			return s.node.Lend().UnpauseAll(caller)
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"paused": pause})
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	after := uint64(0)
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, errBadRequest)
			return
		}
		after = parsed
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": s.node.EventsSince(after)})
}

var errBadRequest = errors.New("rpc: malformed request")

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		s.writeError(w, errBadRequest)
		return false
	}
	return true
}

func (s *Server) poolID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, errBadRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) address(w http.ResponseWriter, raw string) ([20]byte, bool) {
	addr, err := config.ParseAddress(raw)
	if err != nil {
		s.writeError(w, errBadRequest)
		return addr, false
	}
	return addr, true
}

func (s *Server) amount(w http.ResponseWriter, raw string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		s.writeError(w, errBadRequest)
		return nil, false
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		s.writeError(w, errBadRequest)
		return nil, false
	}
	return amount, true
}

func (s *Server) side(w http.ResponseWriter, raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case sideLend:
		return true, true
	case sideBorrow:
		return false, true
	default:
		s.writeError(w, errBadRequest)
		return false, false
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusForbidden || status == http.StatusConflict {
		s.metrics.ObserveRefusedRequest(reasonFor(status))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func reasonFor(status int) string {
	switch status {
	case http.StatusForbidden:
		return "authorization"
	case http.StatusConflict:
		return "state"
	default:
		return "other"
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, lend.ErrInvalidAmount),
		errors.Is(err, lend.ErrBelowMinimum),
		errors.Is(err, lend.ErrAboveLendCap),
		errors.Is(err, lend.ErrZeroAddress),
		errors.Is(err, lend.ErrUnknownClaimToken),
		errors.Is(err, lend.ErrInvalidFeeRate),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, bank.ErrZeroAddress),
		errors.Is(err, token.ErrInvalidTokenID),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, oracle.ErrUnknownAsset),
		errors.Is(err, oracle.ErrInvalidPrice),
		errors.Is(err, oracle.ErrZeroFeeder),
		errors.Is(err, multisig.ErrEmptyTarget),
		errors.Is(err, multisig.ErrZeroInitiator):
		return http.StatusBadRequest
	case errors.Is(err, lend.ErrPoolUnknown),
		errors.Is(err, token.ErrUnknownToken),
		errors.Is(err, multisig.ErrUnknownApplication):
		return http.StatusNotFound
	case errors.Is(err, lend.ErrNotAuthorized),
		errors.Is(err, token.ErrNotMinter),
		errors.Is(err, oracle.ErrNotFeeder),
		errors.Is(err, oracle.ErrNotAuthorized),
		errors.Is(err, multisig.ErrNotSigner),
		errors.Is(err, multisig.ErrThresholdNotMet):
		return http.StatusForbidden
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, lend.ErrWrongState),
		errors.Is(err, lend.ErrMatchingClosed),
		errors.Is(err, lend.ErrMatchingOpen),
		errors.Is(err, lend.ErrTermNotEnded),
		errors.Is(err, lend.ErrNotLiquidatable),
		errors.Is(err, lend.ErrNothingCommitted),
		errors.Is(err, lend.ErrNothingToRefund),
		errors.Is(err, lend.ErrAlreadyRefunded),
		errors.Is(err, lend.ErrAlreadyClaimed),
		errors.Is(err, lend.ErrAlreadyWithdrawn),
		errors.Is(err, lend.ErrInsufficientRecovery),
		errors.Is(err, multisig.ErrSignerExists),
		errors.Is(err, multisig.ErrSignerUnknown),
		errors.Is(err, multisig.ErrSignerFloor),
		errors.Is(err, oracle.ErrFeederExists),
		errors.Is(err, oracle.ErrFeederUnknown),
		errors.Is(err, token.ErrTokenExists),
		errors.Is(err, oracle.ErrNoFreshQuote),
		errors.Is(err, swapx.ErrBelowMinimum),
		errors.Is(err, swapx.ErrNoLiquidity),
		errors.Is(err, swapx.ErrAboveBudget),
		errors.Is(err, bank.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientFunds):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("write response", "error", err)
	}
}
