package router

import (
	"errors"
	"net/http"
	"time"

	ledgerRepository "github.com/Yusufzhafir/go-dex/backend/internal/repository/ledger"
	"github.com/Yusufzhafir/go-dex/backend/internal/router/middleware"
	"github.com/Yusufzhafir/go-dex/backend/internal/session"
	"github.com/shopspring/decimal"
)

type SessionRouter interface {
	Connect(w http.ResponseWriter, r *http.Request)
	Me(w http.ResponseWriter, r *http.Request)
	Extend(w http.ResponseWriter, r *http.Request)
	Disconnect(w http.ResponseWriter, r *http.Request)
	Balance(w http.ResponseWriter, r *http.Request)
	Deposit(w http.ResponseWriter, r *http.Request)
}

type sessionRouterImpl struct {
	sessions   session.Registry
	balances   ledgerRepository.BalanceLedger
	tokenMaker *middleware.JWTMaker
}

func NewSessionRouter(sessions session.Registry, balances ledgerRepository.BalanceLedger, tokenMaker *middleware.JWTMaker) SessionRouter {
	return &sessionRouterImpl{
		sessions:   sessions,
		balances:   balances,
		tokenMaker: tokenMaker,
	}
}

func (sr *sessionRouterImpl) Connect(w http.ResponseWriter, r *http.Request) {
	type ConnectRequest struct {
		Wallet       string `json:"wallet"`
		HideBalances bool   `json:"hideBalances"`
	}
	type ConnectResponse struct {
		SessionID    string    `json:"sessionId"`
		AccessToken  string    `json:"accessToken"`
		ExpiresAt    time.Time `json:"expiresAt"`
		HideBalances bool      `json:"hideBalances"`
	}

	req, err := decodeJSON[ConnectRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.Wallet == "" {
		writeJSONError(w, http.StatusBadRequest, errors.New("wallet is required"))
		return
	}

	sess, err := sr.sessions.Create(req.Wallet, session.DefaultTTL)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	sess.HideBalances = req.HideBalances

	if err := sr.balances.EnsureSessionAccounts(r.Context(), sess.ID); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	accessToken, _, err := sr.tokenMaker.CreateToken(sess.Token, session.DefaultTTL)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, ConnectResponse{
		SessionID:    sess.ID,
		AccessToken:  accessToken,
		ExpiresAt:    sess.ExpiresAt,
		HideBalances: sess.HideBalances,
	})
}

func (sr *sessionRouterImpl) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Extend pushes the session expiry out and reissues the bearer token so
// the two expiries stay aligned.
func (sr *sessionRouterImpl) Extend(w http.ResponseWriter, r *http.Request) {
	type ExtendResponse struct {
		AccessToken string    `json:"accessToken"`
		ExpiresAt   time.Time `json:"expiresAt"`
	}

	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	extended, err := sr.sessions.Extend(sess.Token, session.DefaultTTL)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, err)
		return
	}
	accessToken, _, err := sr.tokenMaker.CreateToken(extended.Token, session.DefaultTTL)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ExtendResponse{
		AccessToken: accessToken,
		ExpiresAt:   extended.ExpiresAt,
	})
}

func (sr *sessionRouterImpl) Disconnect(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	if err := sr.sessions.Revoke(sess.Token); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (sr *sessionRouterImpl) Balance(w http.ResponseWriter, r *http.Request) {
	type BalanceResponse struct {
		Asset     string          `json:"asset"`
		Available decimal.Decimal `json:"available"`
		Redacted  bool            `json:"redacted"`
	}

	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		writeJSONError(w, http.StatusBadRequest, errors.New("asset is required"))
		return
	}
	if sess.HideBalances {
		writeJSON(w, http.StatusOK, BalanceResponse{Asset: asset, Redacted: true})
		return
	}
	available, err := sr.balances.Available(r.Context(), sess.ID, asset)
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Asset: asset, Available: available})
}

func (sr *sessionRouterImpl) Deposit(w http.ResponseWriter, r *http.Request) {
	type DepositRequest struct {
		Asset  string          `json:"asset"`
		Amount decimal.Decimal `json:"amount"`
	}

	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("no session"))
		return
	}
	req, err := decodeJSON[DepositRequest](w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.Asset == "" || !req.Amount.IsPositive() {
		writeJSONError(w, http.StatusBadRequest, errors.New("asset and positive amount required"))
		return
	}
	if err := sr.balances.Deposit(r.Context(), sess.ID, req.Asset, req.Amount); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "credited"})
}
