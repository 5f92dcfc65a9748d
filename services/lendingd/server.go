package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nftlend/crypto"
	nativecommon "nftlend/native/common"
	"nftlend/native/lending"
	"nftlend/native/params"
	"nftlend/observability"
	"nftlend/storage"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// Server exposes the loan engine over HTTP. Callers are identified by the
// bech32 address carried in each request body; upstream infrastructure is
// expected to have authenticated the binding before the request reaches the
// daemon.
type Server struct {
	engine  *lending.Engine
	quotes  *storage.QuoteBook
	roles   *storage.RoleSet
	params  *params.Store
	metrics *observability.LendingMetrics
	log     *slog.Logger
}

// NewServer wires the HTTP surface to an engine and its storage facades.
func NewServer(engine *lending.Engine, quotes *storage.QuoteBook, roles *storage.RoleSet, paramStore *params.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  engine,
		quotes:  quotes,
		roles:   roles,
		params:  paramStore,
		metrics: observability.Lending(),
		log:     logger,
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/loans", func(r chi.Router) {
			r.Post("/request", s.requestLoan)
			r.Get("/{id}", s.getLoan)
			r.Post("/{id}/cancel", s.cancelLoan)
			r.Post("/{id}/accept", s.acceptLoan)
			r.Post("/{id}/repay", s.repayLoan)
			r.Post("/{id}/claim", s.claimCollateral)
			r.Post("/{id}/liquidate", s.liquidateLoan)
		})
		r.Get("/params", s.getParams)
		r.Get("/stuck/{token}/{address}", s.getStuckFunds)
		r.Post("/stuck/withdraw", s.withdrawStuck)
		r.Post("/quotes", s.postQuote)
		r.Route("/admin", func(r chi.Router) {
			r.Post("/treasury", s.setTreasury)
			r.Post("/protocol-fee", s.setProtocolFee)
			r.Post("/repay-grace", s.setRepayGrace)
			r.Post("/liquidation-fee", s.setLiquidationFee)
			r.Post("/origination-fee", s.setOriginationFee)
			r.Post("/origination-brackets", s.setOriginationBrackets)
			r.Post("/fee-reduction-factor", s.setFeeReductionFactor)
			r.Post("/lender-exclusive-window", s.setLenderExclusiveWindow)
			r.Post("/duration-apr", s.setDurationApr)
			r.Post("/tokens", s.setTokenAllowed)
			r.Post("/collateral-block", s.setCollateralBlocked)
		})
	})
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		s.metrics.ObserveRequest(route, recorder.status, time.Since(start))
	})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, requestBodyLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount is required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func parseLoanID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid loan id %q", raw)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

// engineStatus maps an engine rejection to an HTTP status. Unclassified
// rejections are treated as bad requests: the engine validates before it
// moves anything, so unknown failures are caller mistakes, not server faults.
func engineStatus(err error) int {
	switch {
	case errors.Is(err, lending.ErrLoanNotFound):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrLoanAlreadyPaid):
		return http.StatusConflict
	case errors.Is(err, lending.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, storage.ErrQuoteUnknown):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, operation string, err error) {
	s.metrics.RecordRejection(operation)
	writeError(w, engineStatus(err), err)
}

type callerRequest struct {
	Caller string `json:"caller"`
}

func (c callerRequest) address() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.Caller))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid caller address: %w", err)
	}
	if addr.IsZero() {
		return crypto.Address{}, errors.New("caller address is required")
	}
	return addr, nil
}

type loanResponse struct {
	Loan *lending.Loan `json:"loan"`
}

type settlementResponse struct {
	Loan       uint64              `json:"loan"`
	Settlement *lending.Settlement `json:"settlement"`
}

type requestLoanRequest struct {
	callerRequest
	Token      string `json:"token"`
	Amount     string `json:"amount"`
	Collection string `json:"collection"`
	TokenID    uint64 `json:"tokenId"`
	Duration   uint64 `json:"duration"`
	Deadline   int64  `json:"deadline"`
}

func (s *Server) requestLoan(w http.ResponseWriter, r *http.Request) {
	var req requestLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	collection, err := crypto.DecodeAddress(strings.TrimSpace(req.Collection))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid collection address: %w", err))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	collateral := lending.CollateralID{Collection: collection, TokenID: req.TokenID}
	loan, err := s.engine.RequestLoan(caller, req.Token, amount, collateral, req.Duration, req.Deadline)
	if err != nil {
		s.writeEngineError(w, "request", err)
		return
	}
	s.metrics.RecordTransition("requested")
	s.log.Info("loan requested", "id", loan.ID, "borrower", loan.Borrower.String(), "token", loan.Token)
	writeJSON(w, http.StatusCreated, loanResponse{Loan: loan})
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	loan, err := s.engine.GetLoan(id)
	if err != nil {
		writeError(w, engineStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, loanResponse{Loan: loan})
}

func (s *Server) cancelLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req callerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.CancelLoan(caller, id); err != nil {
		s.writeEngineError(w, "cancel", err)
		return
	}
	s.metrics.RecordTransition("cancelled")
	s.log.Info("loan cancelled", "id", id)
	writeJSON(w, http.StatusOK, map[string]uint64{"loan": id})
}

func (s *Server) acceptLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req callerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	loan, err := s.engine.AcceptLoan(caller, id)
	if err != nil {
		s.writeEngineError(w, "accept", err)
		return
	}
	s.metrics.RecordTransition("accepted")
	s.log.Info("loan accepted", "id", loan.ID, "lender", loan.Lender.String())
	writeJSON(w, http.StatusOK, loanResponse{Loan: loan})
}

func (s *Server) repayLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req callerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	settlement, err := s.engine.RepayLoan(caller, id)
	if err != nil {
		s.writeEngineError(w, "repay", err)
		return
	}
	s.metrics.RecordTransition("repaid")
	if settlement.LenderPayoutDeferred {
		s.metrics.RecordStuckCredit()
		s.log.Warn("lender payout deferred to stuck funds", "id", id)
	}
	s.log.Info("loan repaid", "id", id, "total", settlement.Total().String())
	writeJSON(w, http.StatusOK, settlementResponse{Loan: id, Settlement: settlement})
}

func (s *Server) claimCollateral(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req callerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.ClaimNFT(caller, id); err != nil {
		s.writeEngineError(w, "claim", err)
		return
	}
	s.metrics.RecordTransition("claimed")
	s.log.Info("collateral claimed", "id", id)
	writeJSON(w, http.StatusOK, map[string]uint64{"loan": id})
}

func (s *Server) liquidateLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req callerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	settlement, err := s.engine.LiquidateLoan(caller, id)
	if err != nil {
		s.writeEngineError(w, "liquidate", err)
		return
	}
	s.metrics.RecordTransition("liquidated")
	s.log.Info("loan liquidated", "id", id, "total", settlement.Total().String())
	writeJSON(w, http.StatusOK, settlementResponse{Loan: id, Settlement: settlement})
}

func (s *Server) getParams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Params())
}

func (s *Server) getStuckFunds(w http.ResponseWriter, r *http.Request) {
	recipient, err := crypto.DecodeAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid recipient address: %w", err))
		return
	}
	token := chi.URLParam(r, "token")
	balance, err := s.engine.StuckFunds(token, recipient)
	if err != nil {
		writeError(w, engineStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":     strings.ToUpper(strings.TrimSpace(token)),
		"recipient": recipient.String(),
		"amount":    balance.String(),
	})
}

type withdrawStuckRequest struct {
	Recipient string `json:"recipient"`
	Token     string `json:"token"`
}

func (s *Server) withdrawStuck(w http.ResponseWriter, r *http.Request) {
	var req withdrawStuckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recipient, err := crypto.DecodeAddress(strings.TrimSpace(req.Recipient))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid recipient address: %w", err))
		return
	}
	amount, err := s.engine.WithdrawStuckToken(recipient, req.Token)
	if err != nil {
		s.writeEngineError(w, "stuck_withdraw", err)
		return
	}
	s.metrics.RecordStuckWithdrawal()
	s.log.Info("stuck funds withdrawn", "recipient", recipient.String(), "amount", amount.String())
	writeJSON(w, http.StatusOK, map[string]string{
		"recipient": recipient.String(),
		"amount":    amount.String(),
	})
}

type postQuoteRequest struct {
	callerRequest
	Collection string `json:"collection"`
	TokenID    uint64 `json:"tokenId"`
	Price      string `json:"price"`
	LTV        uint64 `json:"ltv"`
	Timestamp  int64  `json:"timestamp"`
}

func (s *Server) postQuote(w http.ResponseWriter, r *http.Request) {
	var req postQuoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.roles.HasRole(lending.RoleOracle, caller.Bytes()) {
		writeError(w, http.StatusForbidden, errors.New("caller lacks the oracle role"))
		return
	}
	collection, err := crypto.DecodeAddress(strings.TrimSpace(req.Collection))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid collection address: %w", err))
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	quote := lending.Quote{Timestamp: req.Timestamp, Price: price, LTV: req.LTV}
	if quote.Timestamp == 0 {
		quote.Timestamp = time.Now().Unix()
	}
	id := lending.CollateralID{Collection: collection, TokenID: req.TokenID}
	if err := s.quotes.SetQuote(id, quote); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("quote posted", "collection", collection.String(), "tokenId", req.TokenID, "price", price.String())
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// persistParams snapshots the engine's live parameter set after a successful
// admin mutation so restarts pick up governance changes.
func (s *Server) persistParams(w http.ResponseWriter) bool {
	if err := s.params.SetLending(s.engine.Params()); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("persist params: %w", err))
		return false
	}
	return true
}

type setTreasuryRequest struct {
	callerRequest
	Treasury string `json:"treasury"`
}

func (s *Server) setTreasury(w http.ResponseWriter, r *http.Request) {
	var req setTreasuryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	treasury, err := crypto.DecodeAddress(strings.TrimSpace(req.Treasury))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid treasury address: %w", err))
		return
	}
	if err := s.engine.SetTreasury(caller, treasury); err != nil {
		s.writeEngineError(w, "set_treasury", err)
		return
	}
	if err := s.params.SetTreasury(treasury); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("persist treasury: %w", err))
		return
	}
	s.log.Info("treasury updated", "treasury", treasury.String())
	writeJSON(w, http.StatusOK, map[string]string{"treasury": treasury.String()})
}

type setBpsRequest struct {
	callerRequest
	Bps uint64 `json:"bps"`
}

func (s *Server) adminBpsHandler(operation string, apply func(crypto.Address, uint64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setBpsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		caller, err := req.address()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := apply(caller, req.Bps); err != nil {
			s.writeEngineError(w, operation, err)
			return
		}
		if !s.persistParams(w) {
			return
		}
		s.log.Info("parameter updated", "operation", operation, "bps", req.Bps)
		writeJSON(w, http.StatusOK, s.engine.Params())
	}
}

func (s *Server) setProtocolFee(w http.ResponseWriter, r *http.Request) {
	s.adminBpsHandler("set_protocol_fee", s.engine.SetProtocolFee)(w, r)
}

func (s *Server) setLiquidationFee(w http.ResponseWriter, r *http.Request) {
	s.adminBpsHandler("set_liquidation_fee", s.engine.SetLiquidationFee)(w, r)
}

func (s *Server) setOriginationFee(w http.ResponseWriter, r *http.Request) {
	s.adminBpsHandler("set_origination_fee", s.engine.SetOriginationFee)(w, r)
}

type setRepayGraceRequest struct {
	callerRequest
	PeriodSeconds uint64 `json:"periodSeconds"`
	FeeBps        uint64 `json:"feeBps"`
}

func (s *Server) setRepayGrace(w http.ResponseWriter, r *http.Request) {
	var req setRepayGraceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetRepayGrace(caller, req.PeriodSeconds, req.FeeBps); err != nil {
		s.writeEngineError(w, "set_repay_grace", err)
		return
	}
	if !s.persistParams(w) {
		return
	}
	s.log.Info("repay grace updated", "periodSeconds", req.PeriodSeconds, "feeBps", req.FeeBps)
	writeJSON(w, http.StatusOK, s.engine.Params())
}

type setBracketsRequest struct {
	callerRequest
	Brackets []string `json:"brackets"`
}

func (s *Server) setOriginationBrackets(w http.ResponseWriter, r *http.Request) {
	var req setBracketsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	brackets := make([]*big.Int, 0, len(req.Brackets))
	for _, raw := range req.Brackets {
		threshold, err := parseAmount(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		brackets = append(brackets, threshold)
	}
	if err := s.engine.SetOriginationBrackets(caller, brackets); err != nil {
		s.writeEngineError(w, "set_origination_brackets", err)
		return
	}
	if !s.persistParams(w) {
		return
	}
	s.log.Info("origination brackets updated", "count", len(brackets))
	writeJSON(w, http.StatusOK, s.engine.Params())
}

type setFactorRequest struct {
	callerRequest
	Factor uint64 `json:"factor"`
}

func (s *Server) setFeeReductionFactor(w http.ResponseWriter, r *http.Request) {
	var req setFactorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetFeeReductionFactor(caller, req.Factor); err != nil {
		s.writeEngineError(w, "set_fee_reduction_factor", err)
		return
	}
	if !s.persistParams(w) {
		return
	}
	s.log.Info("fee reduction factor updated", "factor", req.Factor)
	writeJSON(w, http.StatusOK, s.engine.Params())
}

type setWindowRequest struct {
	callerRequest
	Seconds uint64 `json:"seconds"`
}

func (s *Server) setLenderExclusiveWindow(w http.ResponseWriter, r *http.Request) {
	var req setWindowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetLenderExclusiveWindow(caller, req.Seconds); err != nil {
		s.writeEngineError(w, "set_lender_exclusive_window", err)
		return
	}
	if !s.persistParams(w) {
		return
	}
	s.log.Info("lender exclusive window updated", "seconds", req.Seconds)
	writeJSON(w, http.StatusOK, s.engine.Params())
}

type setDurationAprRequest struct {
	callerRequest
	DurationSeconds uint64 `json:"durationSeconds"`
	AprBps          uint64 `json:"aprBps"`
}

func (s *Server) setDurationApr(w http.ResponseWriter, r *http.Request) {
	var req setDurationAprRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetDurationApr(caller, req.DurationSeconds, req.AprBps); err != nil {
		s.writeEngineError(w, "set_duration_apr", err)
		return
	}
	if !s.persistParams(w) {
		return
	}
	s.log.Info("duration apr updated", "durationSeconds", req.DurationSeconds, "aprBps", req.AprBps)
	writeJSON(w, http.StatusOK, s.engine.Params())
}

type setTokenRequest struct {
	callerRequest
	Symbol  string `json:"symbol"`
	Allowed bool   `json:"allowed"`
}

func (s *Server) setTokenAllowed(w http.ResponseWriter, r *http.Request) {
	var req setTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Allowed {
		err = s.engine.AllowToken(caller, req.Symbol)
	} else {
		err = s.engine.DisallowToken(caller, req.Symbol)
	}
	if err != nil {
		s.writeEngineError(w, "set_token_allowed", err)
		return
	}
	if !s.persistParams(w) {
		return
	}
	s.log.Info("token allow-list updated", "symbol", req.Symbol, "allowed", req.Allowed)
	writeJSON(w, http.StatusOK, s.engine.Params())
}

type setCollateralBlockRequest struct {
	callerRequest
	Collection string `json:"collection"`
	TokenID    uint64 `json:"tokenId"`
	Disallowed bool   `json:"disallowed"`
}

func (s *Server) setCollateralBlocked(w http.ResponseWriter, r *http.Request) {
	var req setCollateralBlockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := req.address()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	collection, err := crypto.DecodeAddress(strings.TrimSpace(req.Collection))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid collection address: %w", err))
		return
	}
	id := lending.CollateralID{Collection: collection, TokenID: req.TokenID}
	if err := s.engine.SetCollateralDisallowed(caller, id, req.Disallowed); err != nil {
		s.writeEngineError(w, "set_collateral_blocked", err)
		return
	}
	if !s.persistParams(w) {
		return
	}
	s.log.Info("collateral block updated", "collection", collection.String(), "tokenId", req.TokenID, "disallowed", req.Disallowed)
	writeJSON(w, http.StatusOK, s.engine.Params())
}
