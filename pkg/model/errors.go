package model

import "errors"

// Engine and settlement error taxonomy. Validation and liquidity errors are
// returned synchronously from submit/cancel/swap; settlement errors surface
// asynchronously through a settlement-status event and never unwind a
// committed match.
var (
	ErrInvalidOrderParams     = errors.New("invalid order parameters")
	ErrPairHalted             = errors.New("trading pair halted")
	ErrPairNotFound           = errors.New("trading pair not found")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrOrderNotFound          = errors.New("order not found")
	ErrNotOwner               = errors.New("order not owned by session")
	ErrInsufficientLiquidity  = errors.New("insufficient liquidity")
	ErrSettlementFailed       = errors.New("settlement failed")
	ErrSessionExpired         = errors.New("session expired")
	ErrSessionNotFound        = errors.New("session not found")
	ErrPoolExists             = errors.New("liquidity pool already exists")
	ErrInsufficientPoolTokens = errors.New("insufficient liquidity tokens")
)
