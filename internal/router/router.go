package router

import (
	"net/http"
	"time"

	"github.com/Yusufzhafir/go-dex/backend/internal/engine"
	ledgerRepository "github.com/Yusufzhafir/go-dex/backend/internal/repository/ledger"
	"github.com/Yusufzhafir/go-dex/backend/internal/router/middleware"
	"github.com/Yusufzhafir/go-dex/backend/internal/session"
	"github.com/Yusufzhafir/go-dex/backend/internal/usecase/liquidity"
	"github.com/Yusufzhafir/go-dex/backend/internal/usecase/market"
	"github.com/Yusufzhafir/go-dex/backend/internal/usecase/trading"
	"github.com/Yusufzhafir/go-dex/backend/internal/websocket"
	"go.uber.org/zap"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	n      int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.n += n
	return n, err
}

func logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(sw, r)
			logger.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Int("bytes", sw.n),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}

// wrap your mux with Cors(mux) when starting the server
func Cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			reqHdrs := r.Header.Get("Access-Control-Request-Headers")
			if reqHdrs == "" {
				reqHdrs = "Content-Type, Authorization"
			}
			w.Header().Set("Access-Control-Allow-Headers", reqHdrs)

			reqMethod := r.Header.Get("Access-Control-Request-Method")
			if reqMethod == "" {
				reqMethod = "GET, POST, PUT, DELETE, OPTIONS"
			}
			w.Header().Set("Access-Control-Allow-Methods", reqMethod)

			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		// short-circuit preflight so it never hits the route table
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type BindRouterOpts struct {
	ServerRouter *http.ServeMux
	Engine       engine.OrderBookEngine
	Trading      trading.TradingUseCase
	Liquidity    liquidity.LiquidityUseCase
	Market       market.MarketUseCase
	Sessions     session.Registry
	Balances     ledgerRepository.BalanceLedger
	TokenMaker   *middleware.JWTMaker
	Hub          *websocket.Hub
	Logger       *zap.Logger
}

func bindSession(mux *http.ServeMux, sr SessionRouter, auth func(http.Handler) http.Handler, log func(http.Handler) http.Handler) {
	mux.Handle("POST /api/v1/session/connect", log(http.HandlerFunc(sr.Connect)))
	mux.Handle("GET /api/v1/session/me", log(auth(http.HandlerFunc(sr.Me))))
	mux.Handle("POST /api/v1/session/extend", log(auth(http.HandlerFunc(sr.Extend))))
	mux.Handle("DELETE /api/v1/session", log(auth(http.HandlerFunc(sr.Disconnect))))
	mux.Handle("GET /api/v1/session/balance", log(auth(http.HandlerFunc(sr.Balance))))
	mux.Handle("POST /api/v1/session/deposit", log(auth(http.HandlerFunc(sr.Deposit))))
}

func bindOrder(mux *http.ServeMux, or OrderRouter, auth func(http.Handler) http.Handler, log func(http.Handler) http.Handler) {
	mux.Handle("POST /api/v1/order", log(auth(http.HandlerFunc(or.Place))))
	mux.Handle("DELETE /api/v1/order", log(auth(http.HandlerFunc(or.Cancel))))
	mux.Handle("GET /api/v1/order", log(auth(http.HandlerFunc(or.List))))
}

func bindMarket(mux *http.ServeMux, mr MarketRouter, auth func(http.Handler) http.Handler, log func(http.Handler) http.Handler) {
	mux.Handle("GET /api/v1/market/pairs", log(http.HandlerFunc(mr.Pairs)))
	mux.Handle("PUT /api/v1/market/pair-status", log(auth(http.HandlerFunc(mr.SetPairStatus))))
	mux.Handle("GET /api/v1/market/{pair}/depth", log(http.HandlerFunc(mr.Depth)))
	mux.Handle("GET /api/v1/market/{pair}/top", log(http.HandlerFunc(mr.TopOfBook)))
	mux.Handle("GET /api/v1/market/{pair}/trades", log(http.HandlerFunc(mr.Trades)))
	mux.Handle("GET /api/v1/market/{pair}/stats", log(http.HandlerFunc(mr.Stats)))
	mux.Handle("GET /api/v1/market/{pair}/candles", log(http.HandlerFunc(mr.Candles)))
}

func bindPool(mux *http.ServeMux, pr PoolRouter, auth func(http.Handler) http.Handler, log func(http.Handler) http.Handler) {
	mux.Handle("POST /api/v1/pool", log(auth(http.HandlerFunc(pr.Create))))
	mux.Handle("GET /api/v1/pool/{pair}", log(http.HandlerFunc(pr.Info)))
	mux.Handle("POST /api/v1/pool/add", log(auth(http.HandlerFunc(pr.Add))))
	mux.Handle("POST /api/v1/pool/remove", log(auth(http.HandlerFunc(pr.Remove))))
	mux.Handle("GET /api/v1/pool/positions", log(auth(http.HandlerFunc(pr.Positions))))
	mux.Handle("GET /api/v1/swap/{pair}/quote", log(http.HandlerFunc(pr.QuoteSwap)))
	mux.Handle("POST /api/v1/swap", log(auth(http.HandlerFunc(pr.Swap))))
}

func BindRouter(opts BindRouterOpts) {
	auth := middleware.AuthMiddleware(opts.TokenMaker, opts.Sessions)
	log := logging(opts.Logger)

	bindSession(opts.ServerRouter, NewSessionRouter(opts.Sessions, opts.Balances, opts.TokenMaker), auth, log)
	bindOrder(opts.ServerRouter, NewOrderRouter(opts.Trading), auth, log)
	bindMarket(opts.ServerRouter, NewMarketRouter(opts.Market), auth, log)
	bindPool(opts.ServerRouter, NewPoolRouter(opts.Liquidity, opts.Trading, opts.Engine), auth, log)

	opts.ServerRouter.Handle("GET /api/v1/ws", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWS(opts.Hub, w, r)
	}))

	opts.ServerRouter.Handle("GET /healthz", log(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clients, drops := opts.Hub.Stats()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"clients": clients,
			"drops":   drops,
		})
	})))
}
