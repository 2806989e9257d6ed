package router

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Yusufzhafir/go-dex/backend/internal/usecase/market"
	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
)

type MarketRouter interface {
	Pairs(w http.ResponseWriter, r *http.Request)
	Depth(w http.ResponseWriter, r *http.Request)
	TopOfBook(w http.ResponseWriter, r *http.Request)
	Trades(w http.ResponseWriter, r *http.Request)
	Stats(w http.ResponseWriter, r *http.Request)
	Candles(w http.ResponseWriter, r *http.Request)
	SetPairStatus(w http.ResponseWriter, r *http.Request)
}

type marketRouterImpl struct {
	usecase market.MarketUseCase
}

func NewMarketRouter(usecase market.MarketUseCase) MarketRouter {
	return &marketRouterImpl{
		usecase: usecase,
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (mr *marketRouterImpl) Pairs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mr.usecase.Pairs(r.Context()))
}

func (mr *marketRouterImpl) SetPairStatus(w http.ResponseWriter, r *http.Request) {
	type SetPairStatusRequest struct {
		Pair   string `json:"pair"`
		Status string `json:"status"`
	}

	req, err := decodeJSON[SetPairStatusRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	var status model.PairStatus
	switch strings.ToUpper(req.Status) {
	case "ACTIVE":
		status = model.PAIR_ACTIVE
	case "HALTED":
		status = model.PAIR_HALTED
	default:
		writeJSONError(w, http.StatusBadRequest, errors.New("status must be ACTIVE or HALTED"))
		return
	}

	if err := mr.usecase.SetPairStatus(r.Context(), req.Pair, status); err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pair": req.Pair, "status": status.String()})
}

func (mr *marketRouterImpl) Depth(w http.ResponseWriter, r *http.Request) {
	pair := r.PathValue("pair")
	levels := queryInt(r, "levels", 50)
	depth, err := mr.usecase.Depth(r.Context(), pair, levels)
	if err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, depth)
}

func (mr *marketRouterImpl) TopOfBook(w http.ResponseWriter, r *http.Request) {
	pair := r.PathValue("pair")
	tob, err := mr.usecase.TopOfBook(r.Context(), pair)
	if err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tob)
}

func (mr *marketRouterImpl) Trades(w http.ResponseWriter, r *http.Request) {
	pair := r.PathValue("pair")
	limit := queryInt(r, "limit", 100)
	trades, err := mr.usecase.RecentTrades(r.Context(), pair, limit)
	if err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (mr *marketRouterImpl) Stats(w http.ResponseWriter, r *http.Request) {
	pair := r.PathValue("pair")
	stats, err := mr.usecase.Stats(r.Context(), pair)
	if err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (mr *marketRouterImpl) Candles(w http.ResponseWriter, r *http.Request) {
	pair := r.PathValue("pair")
	limit := queryInt(r, "limit", 100)
	intervalStr := r.URL.Query().Get("interval")
	interval := time.Minute
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, errors.New("interval must be a duration like 1m or 1h"))
			return
		}
		interval = d
	}
	candles, err := mr.usecase.Candles(r.Context(), pair, interval, limit)
	if err != nil {
		writeJSONError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, candles)
}
