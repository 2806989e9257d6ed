package router

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Yusufzhafir/go-dex/backend/internal/engine"
	"github.com/Yusufzhafir/go-dex/backend/internal/router/middleware"
	"github.com/Yusufzhafir/go-dex/backend/internal/usecase/liquidity"
	"github.com/Yusufzhafir/go-dex/backend/internal/usecase/trading"
	"github.com/shopspring/decimal"
)

type PoolRouter interface {
	Create(w http.ResponseWriter, r *http.Request)
	Info(w http.ResponseWriter, r *http.Request)
	Add(w http.ResponseWriter, r *http.Request)
	Remove(w http.ResponseWriter, r *http.Request)
	Positions(w http.ResponseWriter, r *http.Request)
	QuoteSwap(w http.ResponseWriter, r *http.Request)
	Swap(w http.ResponseWriter, r *http.Request)
}

type poolRouterImpl struct {
	liquidity liquidity.LiquidityUseCase
	trading   trading.TradingUseCase
	engine    engine.OrderBookEngine
}

func NewPoolRouter(liq liquidity.LiquidityUseCase, trd trading.TradingUseCase, eng engine.OrderBookEngine) PoolRouter {
	return &poolRouterImpl{
		liquidity: liq,
		trading:   trd,
		engine:    eng,
	}
}

func parseDirection(s string) (inIsBase bool, err error) {
	switch strings.ToUpper(s) {
	case "SELL_BASE", "BASE_IN":
		return true, nil
	case "BUY_BASE", "QUOTE_IN":
		return false, nil
	}
	return false, errors.New("direction must be SELL_BASE or BUY_BASE")
}

func (pr *poolRouterImpl) Create(w http.ResponseWriter, r *http.Request) {
	type CreatePoolRequest struct {
		Pair        string          `json:"pair"`
		AmountBase  decimal.Decimal `json:"amountBase"`
		AmountQuote decimal.Decimal `json:"amountQuote"`
	}

	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	req, err := decodeJSON[CreatePoolRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if !req.AmountBase.IsPositive() || !req.AmountQuote.IsPositive() {
		writeJSONError(w, http.StatusBadRequest, errors.New("both deposit amounts must be positive"))
		return
	}

	info, err := pr.liquidity.CreatePool(r.Context(), sess.ID, req.Pair, req.AmountBase, req.AmountQuote)
	if err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (pr *poolRouterImpl) Info(w http.ResponseWriter, r *http.Request) {
	pair := r.PathValue("pair")
	info, err := pr.liquidity.PoolInfo(r.Context(), pair)
	if err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (pr *poolRouterImpl) Add(w http.ResponseWriter, r *http.Request) {
	type AddLiquidityRequest struct {
		Pair        string          `json:"pair"`
		AmountBase  decimal.Decimal `json:"amountBase"`
		AmountQuote decimal.Decimal `json:"amountQuote"`
	}

	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	req, err := decodeJSON[AddLiquidityRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if !req.AmountBase.IsPositive() || !req.AmountQuote.IsPositive() {
		writeJSONError(w, http.StatusBadRequest, errors.New("both deposit amounts must be positive"))
		return
	}

	position, err := pr.liquidity.AddLiquidity(r.Context(), sess.ID, req.Pair, req.AmountBase, req.AmountQuote)
	if err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

func (pr *poolRouterImpl) Remove(w http.ResponseWriter, r *http.Request) {
	type RemoveLiquidityRequest struct {
		Pair   string          `json:"pair"`
		Tokens decimal.Decimal `json:"tokens"`
	}
	type RemoveLiquidityResponse struct {
		AmountBase  decimal.Decimal `json:"amountBase"`
		AmountQuote decimal.Decimal `json:"amountQuote"`
	}

	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	req, err := decodeJSON[RemoveLiquidityRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	base, quote, err := pr.liquidity.RemoveLiquidity(r.Context(), sess.ID, req.Pair, req.Tokens)
	if err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, RemoveLiquidityResponse{AmountBase: base, AmountQuote: quote})
}

func (pr *poolRouterImpl) Positions(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	writeJSON(w, http.StatusOK, pr.liquidity.Positions(r.Context(), sess.ID))
}

func (pr *poolRouterImpl) QuoteSwap(w http.ResponseWriter, r *http.Request) {
	type SwapQuoteResponse struct {
		Pair        string          `json:"pair"`
		AmountIn    decimal.Decimal `json:"amountIn"`
		AmountOut   decimal.Decimal `json:"amountOut"`
		Fee         decimal.Decimal `json:"fee"`
		PriceImpact decimal.Decimal `json:"priceImpact"`
	}

	pair := r.PathValue("pair")
	amountIn, err := decimal.NewFromString(r.URL.Query().Get("amountIn"))
	if err != nil || !amountIn.IsPositive() {
		writeJSONError(w, http.StatusBadRequest, errors.New("amountIn must be a positive number"))
		return
	}
	inIsBase, err := parseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	pool, err := pr.engine.Pool(pair)
	if err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	out, fee, err := pool.Quote(amountIn, inIsBase)
	if err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, SwapQuoteResponse{
		Pair:        pair,
		AmountIn:    amountIn,
		AmountOut:   out,
		Fee:         fee,
		PriceImpact: pool.PriceImpact(amountIn, inIsBase),
	})
}

func (pr *poolRouterImpl) Swap(w http.ResponseWriter, r *http.Request) {
	type SwapRequest struct {
		Pair      string          `json:"pair"`
		AmountIn  decimal.Decimal `json:"amountIn"`
		Direction string          `json:"direction"`
	}

	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	req, err := decodeJSON[SwapRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if !req.AmountIn.IsPositive() {
		writeJSONError(w, http.StatusBadRequest, errors.New("amountIn must be positive"))
		return
	}
	inIsBase, err := parseDirection(req.Direction)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	trade, err := pr.trading.Swap(r.Context(), sess.ID, req.Pair, req.AmountIn, inIsBase)
	if err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}
