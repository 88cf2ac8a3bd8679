package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"PerpVamm/internal/engine"
	"PerpVamm/internal/escrow"
	"PerpVamm/internal/feepool"
	fpmath "PerpVamm/internal/math"
	"PerpVamm/internal/pricefeed"
	"PerpVamm/internal/query"
	"PerpVamm/internal/vamm"
)

func (s *Server) registerRoutes(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/markets", s.handleListMarkets},
		{"GET", "/v1/markets/{id}/config", s.handleGetConfig},
		{"GET", "/v1/markets/{id}/state", s.handleGetState},
		{"GET", "/v1/markets/{id}/spot-price", s.handleSpotPrice},
		{"GET", "/v1/markets/{id}/twap-price", s.handleTwapPrice},
		{"GET", "/v1/markets/{id}/input-price", s.handleInputPrice},
		{"GET", "/v1/markets/{id}/output-price", s.handleOutputPrice},
		{"GET", "/v1/markets/{id}/calc-fee", s.handleCalcFee},
		{"GET", "/v1/markets/{id}/over-spread-limit", s.handleOverSpreadLimit},
		{"POST", "/v1/markets/{id}/swap-input", s.handleSwapInput},
		{"POST", "/v1/markets/{id}/swap-output", s.handleSwapOutput},
		{"POST", "/v1/markets/{id}/settle-funding", s.handleSettleFunding},
		{"POST", "/v1/markets/{id}/set-open", s.handleSetOpen},
		{"POST", "/v1/markets/{id}/config", s.handleUpdateConfig},
		{"POST", "/v1/markets/{id}/open-position", s.handleOpenPosition},
		{"GET", "/v1/pricefeed/{key}/price", s.handleFeedPrice},
		{"GET", "/v1/pricefeed/{key}/twap-price", s.handleFeedTwapPrice},
		{"POST", "/v1/pricefeed/{key}/price", s.handleFeedAppendPrice},
		{"GET", "/v1/feepool/tokens", s.handleFeeTokens},
		{"POST", "/v1/feepool/tokens", s.handleAddFeeToken},
		{"DELETE", "/v1/feepool/tokens/{denom}", s.handleRemoveFeeToken},
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("%s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP codes. Every domain rejection left
// the market un-mutated, so 409 is accurate for all of them.
func statusFor(err error) int {
	switch {
	case errors.Is(err, query.ErrMarketNotFound), errors.Is(err, engine.ErrUnknownMarket):
		return http.StatusNotFound
	case errors.Is(err, vamm.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, pricefeed.ErrNoPrice),
		errors.Is(err, feepool.ErrTokenNotFound),
		errors.Is(err, feepool.ErrNoTokens):
		return http.StatusNotFound
	case errors.Is(err, pricefeed.ErrUnauthorized), errors.Is(err, feepool.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, feepool.ErrDuplicateToken), errors.Is(err, feepool.ErrTokenCapacity):
		return http.StatusConflict
	case errors.Is(err, vamm.ErrMarketClosed),
		errors.Is(err, vamm.ErrSettleTooEarly),
		errors.Is(err, vamm.ErrFluctuationLimitExceeded),
		errors.Is(err, escrow.ErrBalanceMismatch),
		errors.Is(err, pricefeed.ErrStaleAppend):
		return http.StatusConflict
	case errors.Is(err, fpmath.ErrOverflow),
		errors.Is(err, fpmath.ErrUnderflow),
		errors.Is(err, fpmath.ErrDivisionByZero):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func queryUint(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("query parameter %q is required", name)
	}
	return strconv.ParseUint(raw, 10, 64)
}

func queryDirection(r *http.Request) (vamm.Direction, error) {
	raw := r.URL.Query().Get("direction")
	dir, ok := vamm.ParseDirection(raw)
	if !ok {
		return 0, fmt.Errorf("invalid direction %q", raw)
	}
	return dir, nil
}

// --- queries ---

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, map[string][]string{"markets": s.deps.Query.MarketIDs()})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	cfg, err := s.deps.Query.Config(pathParams["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	st, err := s.deps.Query.State(pathParams["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSpotPrice(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	price, err := s.deps.Query.SpotPrice(pathParams["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"price": price})
}

func (s *Server) handleTwapPrice(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	interval, err := queryUint(r, "interval")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	price, err := s.deps.Query.TwapPrice(pathParams["id"], s.now(), int64(interval))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"price": price})
}

func (s *Server) handleInputPrice(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	dir, err := queryDirection(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	amount, err := queryUint(r, "amount")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	out, err := s.deps.Query.InputPrice(pathParams["id"], dir, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"base_asset_amount": out})
}

func (s *Server) handleOutputPrice(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	dir, err := queryDirection(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	amount, err := queryUint(r, "amount")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	out, err := s.deps.Query.OutputPrice(pathParams["id"], dir, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"quote_asset_amount": out})
}

func (s *Server) handleCalcFee(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	amount, err := queryUint(r, "amount")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	fees, err := s.deps.Query.CalcFee(pathParams["id"], amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

func (s *Server) handleOverSpreadLimit(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	over, err := s.deps.Query.IsOverSpreadLimit(r.Context(), pathParams["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"over_spread_limit": over})
}

// --- mutating operations ---

func (s *Server) market(id string) (*vamm.Market, error) {
	m, ok := s.deps.Markets.Market(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, query.ErrMarketNotFound)
	}
	return m, nil
}

func (s *Server) handleSwapInput(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req struct {
		Caller                 string `json:"caller"`
		Direction              string `json:"direction"`
		QuoteAssetAmount       uint64 `json:"quote_asset_amount"`
		CanOverrideFluctuation bool   `json:"can_override_fluctuation"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	dir, ok := vamm.ParseDirection(req.Direction)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid direction %q", req.Direction)})
		return
	}

	m, err := s.market(pathParams["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	baseAmount, err := m.SwapInput(req.Caller, s.nextBlock(), dir, req.QuoteAssetAmount, req.CanOverrideFluctuation)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"base_asset_amount": baseAmount})
}

func (s *Server) handleSwapOutput(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req struct {
		Caller          string `json:"caller"`
		Direction       string `json:"direction"`
		BaseAssetAmount uint64 `json:"base_asset_amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	dir, ok := vamm.ParseDirection(req.Direction)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid direction %q", req.Direction)})
		return
	}

	m, err := s.market(pathParams["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	quoteAmount, err := m.SwapOutput(req.Caller, s.nextBlock(), dir, req.BaseAssetAmount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"quote_asset_amount": quoteAmount})
}

func (s *Server) handleSettleFunding(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req struct {
		Caller string `json:"caller"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	m, err := s.market(pathParams["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	premiumFraction, err := m.SettleFunding(r.Context(), req.Caller, s.nextBlock())
	if err != nil {
		writeError(w, err)
		return
	}

	st := m.State()
	writeJSON(w, http.StatusOK, map[string]int64{
		"premium_fraction":  premiumFraction,
		"funding_rate":      st.FundingRate,
		"next_funding_time": st.NextFundingTime,
	})
}

func (s *Server) handleSetOpen(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req struct {
		Caller string `json:"caller"`
		Open   bool   `json:"open"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	m, err := s.market(pathParams["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	if err := m.SetOpen(req.Caller, s.nextBlock(), req.Open); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.State())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req struct {
		Caller string            `json:"caller"`
		Update vamm.ConfigUpdate `json:"update"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	m, err := s.market(pathParams["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	if err := m.UpdateConfig(req.Caller, req.Update); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Config())
}

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req struct {
		Trader           string        `json:"trader"`
		Side             string        `json:"side"`
		QuoteAssetAmount uint64        `json:"quote_asset_amount"`
		Leverage         uint64        `json:"leverage"`
		Payment          []escrow.Coin `json:"payment"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	side, ok := vamm.ParseSide(req.Side)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid side %q", req.Side)})
		return
	}

	marketID := pathParams["id"]
	eng, ok := s.deps.Engines[marketID]
	if !ok {
		writeError(w, fmt.Errorf("%s: %w", marketID, engine.ErrUnknownMarket))
		return
	}

	pos, err := eng.OpenPosition(r.Context(), req.Trader, side, req.QuoteAssetAmount, req.Leverage, req.Payment, s.nextBlock())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// --- price feed ---

func (s *Server) handleFeedPrice(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	price, err := s.deps.Feed.Price(pathParams["key"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"price": price})
}

func (s *Server) handleFeedTwapPrice(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	interval, err := queryUint(r, "interval")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	price, err := s.deps.Feed.TwapPrice(pathParams["key"], s.now(), int64(interval))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"price": price})
}

func (s *Server) handleFeedAppendPrice(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	var req struct {
		Caller    string `json:"caller"`
		Timestamp int64  `json:"timestamp"`
		Price     uint64 `json:"price"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ts := req.Timestamp
	if ts == 0 {
		ts = s.now()
	}
	if err := s.deps.Feed.AppendPrice(req.Caller, pathParams["key"], ts, req.Price); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// --- fee pool ---

func (s *Server) handleFeeTokens(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, map[string][]string{"tokens": s.deps.FeePool.Tokens()})
}

func (s *Server) handleAddFeeToken(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Caller string `json:"caller"`
		Denom  string `json:"denom"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := s.deps.FeePool.AddToken(req.Caller, req.Denom); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tokens": s.deps.FeePool.Tokens()})
}

func (s *Server) handleRemoveFeeToken(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	caller := r.URL.Query().Get("caller")
	if err := s.deps.FeePool.RemoveToken(caller, pathParams["denom"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tokens": s.deps.FeePool.Tokens()})
}
