package router

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Yusufzhafir/go-dex/backend/internal/router/middleware"
	"github.com/Yusufzhafir/go-dex/backend/internal/usecase/trading"
	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
)

type OrderRouter interface {
	Place(w http.ResponseWriter, r *http.Request)
	Cancel(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
}

type orderRouterImpl struct {
	usecase trading.TradingUseCase
}

func NewOrderRouter(usecase trading.TradingUseCase) OrderRouter {
	return &orderRouterImpl{
		usecase: usecase,
	}
}

func parseSide(s string) (model.Side, error) {
	switch strings.ToUpper(s) {
	case "BID", "BUY":
		return model.BID, nil
	case "ASK", "SELL":
		return model.ASK, nil
	}
	return 0, errors.New("side must be BUY or SELL")
}

func parseOrderType(s string) (model.OrderType, error) {
	switch strings.ToUpper(s) {
	case "LIMIT":
		return model.ORDER_LIMIT, nil
	case "MARKET":
		return model.ORDER_MARKET, nil
	}
	return 0, errors.New("type must be LIMIT or MARKET")
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, model.ErrPairNotFound), errors.Is(err, model.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInvalidOrderParams):
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func (or *orderRouterImpl) Place(w http.ResponseWriter, r *http.Request) {
	type PlaceOrderRequest struct {
		Pair     string         `json:"pair"`
		Side     string         `json:"side"`
		Type     string         `json:"type"`
		Price    model.Price    `json:"price,omitempty"`
		Quantity model.Quantity `json:"quantity"`
	}

	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	req, err := decodeJSON[PlaceOrderRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.Quantity <= 0 {
		writeJSONError(w, http.StatusBadRequest, errors.New("quantity must be > 0"))
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	orderType, err := parseOrderType(req.Type)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if orderType == model.ORDER_LIMIT && req.Price == 0 {
		writeJSONError(w, http.StatusBadRequest, errors.New("limit orders need a price"))
		return
	}

	result, err := or.usecase.PlaceOrder(r.Context(), sess.ID, req.Pair, side, orderType, req.Price, req.Quantity)
	if err != nil && result == nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	// partial market fills come back with both a result and the
	// liquidity error; report what executed
	writeJSON(w, http.StatusOK, result)
}

func (or *orderRouterImpl) Cancel(w http.ResponseWriter, r *http.Request) {
	type CancelOrderRequest struct {
		Pair    string        `json:"pair"`
		OrderID model.OrderId `json:"orderId"`
	}

	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	req, err := decodeJSON[CancelOrderRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.OrderID == 0 {
		writeJSONError(w, http.StatusBadRequest, errors.New("orderId is required"))
		return
	}

	if err := or.usecase.CancelOrder(r.Context(), sess.ID, req.Pair, req.OrderID); err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (or *orderRouterImpl) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	onlyActive := true
	if v := r.URL.Query().Get("all"); v != "" {
		if all, err := strconv.ParseBool(v); err == nil && all {
			onlyActive = false
		}
	}
	orders, err := or.usecase.ListOrders(r.Context(), sess.ID, onlyActive)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}
