package httpapi

import (
	"fmt"
	"net/http"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/tileduel/internal/platform/httpx"
	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
	"github.com/louisbranch/tileduel/internal/services/gateway/wallet"
)

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	location, err := h.session.Login(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if _, err := h.session.CompleteLogin(r.Context(), wallet.ParseCallback(r.URL.Query())); err != nil {
		writeError(w, err)
		return
	}
	h.redirectHome(w, r)
}

func (h *Handler) handleFailure(w http.ResponseWriter, r *http.Request) {
	if err := h.session.CancelLogin(r.Context(), queryValue(r, "state")); err != nil {
		writeError(w, err)
		return
	}
	h.redirectHome(w, r)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	location, err := h.session.Logout(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

func (h *Handler) redirectHome(w http.ResponseWriter, r *http.Request) {
	location, err := h.session.Home()
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

type sessionResponse struct {
	SignedIn   bool   `json:"signed_in"`
	AccountID  string `json:"account_id,omitempty"`
	ContractID string `json:"contract_id"`
	NetworkID  string `json:"network_id"`
	Profile    string `json:"profile"`
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	accountID, signedIn := h.session.AccountID()
	_ = httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		SignedIn:   signedIn,
		AccountID:  accountID,
		ContractID: h.session.ContractID(),
		NetworkID:  h.session.NetworkID(),
		Profile:    h.contract.Profile().String(),
	})
}

type balanceResponse struct {
	Available string      `json:"available"`
	Raw       sdkmath.Int `json:"raw"`
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.balance.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, balanceResponse{Available: snapshot.Available, Raw: snapshot.Raw})
}

type tilesResponse struct {
	AccountID string         `json:"account_id,omitempty"`
	Tiles     contract.Tiles `json:"tiles"`
	Solved    bool           `json:"solved"`
}

func (h *Handler) handleTiles(w http.ResponseWriter, r *http.Request) {
	accountID := queryValue(r, "account_id")
	var (
		tiles contract.Tiles
		err   error
	)
	if accountID == "" {
		tiles, err = h.contract.GetTiles(r.Context())
	} else {
		tiles, err = h.contract.GetTilesOf(r.Context(), accountID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, tilesResponse{AccountID: accountID, Tiles: tiles, Solved: tiles.Solved()})
}

type newGameRequest struct {
	Shuffle bool            `json:"shuffle"`
	Tiles   *contract.Tiles `json:"tiles,omitempty"`
}

func (h *Handler) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Tiles != nil {
		outcome, err := h.contract.NewGameWithTiles(r.Context(), *req.Tiles)
		writeOutcome(w, outcome, err)
		return
	}
	outcome, err := h.contract.NewGame(r.Context(), req.Shuffle)
	writeOutcome(w, outcome, err)
}

type moveRequest struct {
	Tiles *contract.Tiles `json:"tiles"`
}

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Tiles == nil {
		writeBadRequest(w, fmt.Errorf("tiles are required"))
		return
	}
	outcome, err := h.contract.Run(r.Context(), *req.Tiles)
	writeOutcome(w, outcome, err)
}

type playerResponse struct {
	AccountID string      `json:"account_id"`
	Price     sdkmath.Int `json:"price"`
	Opponent  string      `json:"opponent,omitempty"`
	IsPlay    bool        `json:"is_play"`
}

func (h *Handler) handlePlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.contract.GetPlayers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]playerResponse, 0, len(players))
	for _, p := range players {
		out = append(out, playerResponse{AccountID: p.AccountID, Price: p.Price, Opponent: p.Opponent, IsPlay: p.IsPlay})
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"players": out})
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.contract.AddMeToPlayers(r.Context())
	writeOutcome(w, outcome, err)
}

func (h *Handler) handleIsMember(w http.ResponseWriter, r *http.Request) {
	in, err := h.contract.IsIInPlayers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]bool{"in_players": in})
}

func (h *Handler) handlePlaying(w http.ResponseWriter, r *http.Request) {
	playing, err := h.contract.IsPlayPlayer(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]bool{"playing": playing})
}

type opponentResponse struct {
	AccountID string  `json:"account_id"`
	Opponent  *string `json:"opponent"`
}

func (h *Handler) handleOpponent(w http.ResponseWriter, r *http.Request) {
	accountID := queryValue(r, "account_id")
	if accountID == "" {
		self, ok := h.session.AccountID()
		if !ok {
			writeBadRequest(w, fmt.Errorf("account_id is required"))
			return
		}
		accountID = self
	}
	opponent, ok, err := h.contract.GetOpponent(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := opponentResponse{AccountID: accountID}
	if ok {
		resp.Opponent = &opponent
	}
	_ = httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleMatch(w http.ResponseWriter, r *http.Request) {
	state, err := h.match.Observe(r.Context(), queryValue(r, "opponent_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, state)
}

type opponentRequest struct {
	OpponentID string `json:"opponent_id"`
}

func (h *Handler) handleChooseOpponent(w http.ResponseWriter, r *http.Request) {
	var req opponentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	transition, err := h.match.ChooseOpponent(r.Context(), req.OpponentID)
	writeTransition(w, transition, err)
}

type stakeRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	transition, err := h.match.PostStake(r.Context(), req.Amount)
	writeTransition(w, transition, err)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	transition, err := h.match.Cancel(r.Context())
	writeTransition(w, transition, err)
}
