package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/causeway-labs/causeway/internal/domain"
)

// TransferService defines the methods the transfer handler requires from the
// service layer.
type TransferService interface {
	Send(ctx context.Context, from, to domain.Address, amount domain.Amount) (domain.Transfer, error)
	Fund(ctx context.Context, addr domain.Address, amount domain.Amount) (domain.Amount, error)
	Balance(ctx context.Context, addr domain.Address) (domain.Amount, error)
	History(ctx context.Context, addr domain.Address, opts domain.ListOpts) ([]domain.Transfer, error)
}

// TransferHandler serves instant transfer and account HTTP endpoints.
type TransferHandler struct {
	transfers TransferService
	logger    *slog.Logger
}

// NewTransferHandler creates a TransferHandler with the given service.
func NewTransferHandler(transfers TransferService, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{
		transfers: transfers,
		logger:    logger,
	}
}

type sendRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Send moves funds from the caller to another account immediately.
// POST /api/transfers
func (h *TransferHandler) Send(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	t, err := h.transfers.Send(r.Context(), caller, req.To, amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

type fundRequest struct {
	Amount string `json:"amount"`
}

// Fund credits an account from the external currency boundary. Operator
// surface; the route sits behind the API key middleware.
// POST /api/accounts/{address}/fund
func (h *TransferHandler) Fund(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "missing account address")
		return
	}

	var req fundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	balance, err := h.transfers.Fund(r.Context(), addr, amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"balance": balance.String(),
	})
}

// Balance returns an account's current balance.
// GET /api/accounts/{address}
func (h *TransferHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "missing account address")
		return
	}

	balance, err := h.transfers.Balance(r.Context(), addr)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"balance": balance.String(),
	})
}

// listTransfersResponse wraps the history endpoint output.
type listTransfersResponse struct {
	Transfers []domain.Transfer `json:"transfers"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
}

// History returns receipts touching an account.
// GET /api/accounts/{address}/transfers
func (h *TransferHandler) History(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "missing account address")
		return
	}
	opts := parseListOpts(r)

	transfers, err := h.transfers.History(r.Context(), addr, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if transfers == nil {
		transfers = []domain.Transfer{}
	}
	writeJSON(w, http.StatusOK, listTransfersResponse{
		Transfers: transfers,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
}
