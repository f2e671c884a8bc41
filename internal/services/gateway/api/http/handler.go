// Package httpapi serves the gateway's JSON API to the browser UI.
//
// The API is meant for a loopback listener: it acts for the single wallet
// session the process owns and carries no authentication of its own.
// State-changing requests must prove they come from the same origin, and
// JSON bodies must be sent as application/json.
package httpapi

import (
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/louisbranch/tileduel/internal/platform/errors"
	"github.com/louisbranch/tileduel/internal/platform/httpx"
	"github.com/louisbranch/tileduel/internal/platform/requestmeta"
	"github.com/louisbranch/tileduel/internal/services/gateway/balance"
	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
	"github.com/louisbranch/tileduel/internal/services/gateway/match"
	"github.com/louisbranch/tileduel/internal/services/gateway/near"
	"github.com/louisbranch/tileduel/internal/services/gateway/session"
)

const (
	codeInvalidRequest  = "INVALID_REQUEST"
	codeMediaType       = "UNSUPPORTED_MEDIA_TYPE"
	codeRPCError        = "RPC_ERROR"
	codeExecutionFailed = "EXECUTION_FAILED"
)

// Handler exposes the session, balance, contract and match operations.
type Handler struct {
	session  *session.Manager
	balance  *balance.Accessor
	contract *contract.Facade
	match    *match.Coordinator
}

// NewHandler builds the API over one session.
func NewHandler(manager *session.Manager, facade *contract.Facade) *Handler {
	return &Handler{
		session:  manager,
		balance:  balance.NewAccessor(manager),
		contract: facade,
		match:    match.NewCoordinator(facade, manager),
	}
}

// Routes returns the API mux wrapped in the standard middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("GET /auth/callback", h.handleCallback)
	mux.HandleFunc("GET /auth/failure", h.handleFailure)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)

	mux.HandleFunc("GET /api/session", h.handleSession)
	mux.HandleFunc("GET /api/balance", h.handleBalance)

	mux.HandleFunc("GET /api/tiles", h.handleTiles)
	mux.HandleFunc("POST /api/game", h.handleNewGame)
	mux.HandleFunc("POST /api/game/moves", h.handleMove)

	mux.HandleFunc("GET /api/players", h.handlePlayers)
	mux.HandleFunc("POST /api/players", h.handleJoin)
	mux.HandleFunc("GET /api/players/me", h.handleIsMember)
	mux.HandleFunc("GET /api/players/{id}/playing", h.handlePlaying)
	mux.HandleFunc("GET /api/opponent", h.handleOpponent)

	mux.HandleFunc("GET /api/match", h.handleMatch)
	mux.HandleFunc("POST /api/match/opponent", h.handleChooseOpponent)
	mux.HandleFunc("POST /api/match/stake", h.handleStake)
	mux.HandleFunc("POST /api/match/cancel", h.handleCancel)

	return httpx.Chain(mux,
		httpx.RequestID(),
		httpx.RecoverPanic(),
		httpx.RequireSameOrigin(requestmeta.SchemePolicy{}),
	)
}

// writeError maps err onto a status code. Ledger rejections keep the node's
// message and answer 502. Domain metadata, such as the wallet_url of a call
// awaiting approval, is passed through.
func writeError(w http.ResponseWriter, err error) {
	var execErr *near.ExecutionError
	var rpcErr *near.RPCError
	var domainErr *apperrors.Error
	switch {
	case errors.As(err, &execErr):
		_ = httpx.WriteJSONError(w, http.StatusBadGateway, codeExecutionFailed, execErr.Error())
	case errors.As(err, &rpcErr):
		_ = httpx.WriteJSONError(w, http.StatusBadGateway, codeRPCError, rpcErr.Error())
	case errors.As(err, &domainErr):
		_ = httpx.WriteJSON(w, domainErr.Code.HTTPStatus(), httpx.ErrorBody{
			Error:    err.Error(),
			Code:     string(domainErr.Code),
			Metadata: domainErr.Metadata,
		})
	default:
		_ = httpx.WriteJSONError(w, apperrors.CodeUnknown.HTTPStatus(), string(apperrors.CodeUnknown), err.Error())
	}
}

// writeBadRequest keeps a domain code raised while decoding the body, such
// as INVALID_TILES.
func writeBadRequest(w http.ResponseWriter, err error) {
	if errors.Is(err, httpx.ErrUnsupportedMediaType) {
		_ = httpx.WriteJSONError(w, http.StatusUnsupportedMediaType, codeMediaType, err.Error())
		return
	}
	if apperrors.CodeOf(err) != apperrors.CodeUnknown {
		writeError(w, err)
		return
	}
	_ = httpx.WriteJSONError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
}

type txResponse struct {
	TxHash string       `json:"tx_hash"`
	Status match.Status `json:"status,omitempty"`
}

func writeOutcome(w http.ResponseWriter, outcome near.Outcome, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, txResponse{TxHash: outcome.TxHash})
}

func writeTransition(w http.ResponseWriter, transition match.Transition, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, txResponse{TxHash: transition.TxHash, Status: transition.Status})
}

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
