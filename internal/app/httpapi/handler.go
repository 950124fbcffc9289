// Package httpapi exposes the marketplace engine over REST. Handlers are a
// thin dispatch layer: they decode JSON, call the engine, and map the engine's
// error taxonomy onto HTTP statuses.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	app "github.com/openasset/market-engine/internal/app"
	"github.com/openasset/market-engine/internal/app/custodian"
	"github.com/openasset/market-engine/internal/app/domain/market"
	marketsvc "github.com/openasset/market-engine/internal/app/services/market"
	"github.com/openasset/market-engine/internal/app/storage"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the marketplace REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/prices", h.prices).Methods(http.MethodGet)
	r.HandleFunc("/events", h.events).Methods(http.MethodGet)

	r.HandleFunc("/assets", h.mintAsset).Methods(http.MethodPost)
	r.HandleFunc("/assets/{asset}", h.assetState).Methods(http.MethodGet)
	r.HandleFunc("/assets/{asset}/approve", h.approveAsset).Methods(http.MethodPost)
	r.HandleFunc("/assets/{asset}/list", h.listAsset).Methods(http.MethodPost)
	r.HandleFunc("/assets/{asset}/unlist", h.unlistAsset).Methods(http.MethodPost)
	r.HandleFunc("/assets/{asset}/buy", h.buyAsset).Methods(http.MethodPost)
	r.HandleFunc("/assets/{asset}/auction", h.startAuction).Methods(http.MethodPost)
	r.HandleFunc("/assets/{asset}/auction/bid", h.placeBid).Methods(http.MethodPost)
	r.HandleFunc("/assets/{asset}/auction/end", h.endAuction).Methods(http.MethodPost)
	r.HandleFunc("/assets/{asset}/auction/cancel", h.cancelAuction).Methods(http.MethodPost)

	r.HandleFunc("/wallets/{wallet}", h.walletState).Methods(http.MethodGet)
	r.HandleFunc("/wallets/{wallet}/deposit", h.walletDeposit).Methods(http.MethodPost)

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// prices reports every realized sale price, ascending, as index-aligned
// arrays of asset IDs and prices.
func (h *handler) prices(w http.ResponseWriter, r *http.Request) {
	records, err := h.app.Market.SalePrices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	assetIDs := make([]string, 0, len(records))
	prices := make([]uint64, 0, len(records))
	for _, rec := range records {
		assetIDs = append(assetIDs, rec.AssetID)
		prices = append(prices, rec.Price)
	}
	writeJSON(w, http.StatusOK, struct {
		AssetIDs []string `json:"asset_ids"`
		Prices   []uint64 `json:"prices"`
	}{AssetIDs: assetIDs, Prices: prices})
}

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	const defaultLimit = 50
	limit := defaultLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	if assetID := strings.TrimSpace(r.URL.Query().Get("asset_id")); assetID != "" {
		writeJSON(w, http.StatusOK, h.app.Events.RecentByAsset(assetID, limit))
		return
	}
	writeJSON(w, http.StatusOK, h.app.Events.Recent(limit))
}

func (h *handler) mintAsset(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AssetID string `json:"asset_id"`
		Owner   string `json:"owner"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Registry.Mint(payload.AssetID, payload.Owner); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"asset_id": payload.AssetID,
		"owner":    payload.Owner,
	})
}

// assetState reports the full sale state of one asset: its listing and
// auction records (if any), the bid ledger, and the last realized sale.
func (h *handler) assetState(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset"]
	ctx := r.Context()

	owner, err := h.app.Registry.OwnerOf(ctx, assetID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	state := assetStateResponse{AssetID: assetID, Owner: owner}
	if lst, err := h.app.Market.Listing(ctx, assetID); err == nil {
		state.Listing = &lst
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if auc, err := h.app.Market.Auction(ctx, assetID); err == nil {
		state.Auction = &auc
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	bids, err := h.app.Market.Bids(ctx, assetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	state.Bids = bids

	writeJSON(w, http.StatusOK, state)
}

func (h *handler) approveAsset(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset"]
	var payload struct {
		Owner    string `json:"owner"`
		Approved *bool  `json:"approved"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	approved := true
	if payload.Approved != nil {
		approved = *payload.Approved
	}

	if err := h.app.Registry.SetTransferApproval(payload.Owner, h.app.Market.Operator(), assetID, approved); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset_id": assetID,
		"operator": h.app.Market.Operator(),
		"approved": approved,
	})
}

func (h *handler) listAsset(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset"]
	var payload struct {
		Caller string `json:"caller"`
		Price  uint64 `json:"price"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	lst, err := h.app.Market.List(r.Context(), assetID, payload.Caller, payload.Price)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lst)
}

func (h *handler) unlistAsset(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset"]
	var payload struct {
		Caller string `json:"caller"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.app.Market.Unlist(r.Context(), assetID, payload.Caller); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) buyAsset(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset"]
	var payload struct {
		Caller  string `json:"caller"`
		Payment uint64 `json:"payment"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := h.app.Market.Buy(r.Context(), assetID, payload.Caller, payload.Payment)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) startAuction(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset"]
	var payload struct {
		Caller        string `json:"caller"`
		StartingPrice uint64 `json:"starting_price"`
		Duration      string `json:"duration"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	duration, err := time.ParseDuration(payload.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	auc, err := h.app.Market.StartAuction(r.Context(), assetID, payload.Caller, payload.StartingPrice, duration)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, auc)
}

func (h *handler) placeBid(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset"]
	var payload struct {
		Caller string `json:"caller"`
		Amount uint64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	auc, err := h.app.Market.PlaceBid(r.Context(), assetID, payload.Caller, payload.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auc)
}

func (h *handler) endAuction(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset"]
	var payload struct {
		Caller string `json:"caller"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := h.app.Market.EndAuction(r.Context(), assetID, payload.Caller)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) cancelAuction(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["asset"]
	var payload struct {
		Caller string `json:"caller"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.app.Market.CancelAuction(r.Context(), assetID, payload.Caller); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) walletState(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":   wallet,
		"balance":  h.app.Custodian.Balance(wallet),
		"escrowed": h.app.Custodian.EscrowTotalFor(wallet),
	})
}

func (h *handler) walletDeposit(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]
	var payload struct {
		Amount uint64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.app.Custodian.Deposit(wallet, payload.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":  wallet,
		"balance": h.app.Custodian.Balance(wallet),
	})
}

type assetStateResponse struct {
	AssetID string          `json:"asset_id"`
	Owner   string          `json:"owner"`
	Listing *market.Listing `json:"listing,omitempty"`
	Auction *market.Auction `json:"auction,omitempty"`
	Bids    []market.Bid    `json:"bids,omitempty"`
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, marketsvc.ErrAssetNotFound),
		errors.Is(err, marketsvc.ErrNotListed),
		errors.Is(err, marketsvc.ErrAuctionNotActive),
		errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, marketsvc.ErrNotOwner),
		errors.Is(err, marketsvc.ErrNotSeller),
		errors.Is(err, marketsvc.ErrNotAuthorized),
		errors.Is(err, marketsvc.ErrNotApproved),
		errors.Is(err, marketsvc.ErrSellerCannotBuy):
		status = http.StatusForbidden
	case errors.Is(err, marketsvc.ErrAlreadyListed),
		errors.Is(err, marketsvc.ErrAlreadyAuctioning),
		errors.Is(err, marketsvc.ErrRepeatBidder),
		errors.Is(err, marketsvc.ErrAuctionEnded):
		status = http.StatusConflict
	case errors.Is(err, marketsvc.ErrInsufficientPayment),
		errors.Is(err, marketsvc.ErrBidTooLow),
		errors.Is(err, marketsvc.ErrNoBids),
		errors.Is(err, custodian.ErrInsufficientFunds):
		status = http.StatusBadRequest
	case errors.Is(err, marketsvc.ErrPayoutFailed),
		errors.Is(err, marketsvc.ErrTransferDenied):
		status = http.StatusBadGateway
	}
	writeError(w, status, err)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
