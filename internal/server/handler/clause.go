package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/causeway-labs/causeway/internal/domain"
)

// EscrowService defines the methods the clause handler requires from the
// service layer.
type EscrowService interface {
	Deposit(ctx context.Context, eventID int64, donor domain.Address, amount domain.Amount, recipientIfTrue, recipientIfFalse domain.Address) (domain.Clause, error)
	MixedDonation(ctx context.Context, donor, instantRecipient domain.Address, instantAmount domain.Amount, eventID int64, recipientIfTrue, recipientIfFalse domain.Address, total domain.Amount) (domain.Clause, error)
	ExecuteOne(ctx context.Context, clauseID int64) (domain.Address, error)
	Refund(ctx context.Context, clauseID int64, caller domain.Address) error
	GetClause(ctx context.Context, clauseID int64) (domain.Clause, error)
	ListByEvent(ctx context.Context, eventID int64, opts domain.ListOpts) ([]domain.Clause, error)
	ListByDonor(ctx context.Context, donor domain.Address, opts domain.ListOpts) ([]domain.Clause, error)
}

// BatchService defines the batch execution entry point used by the clause
// handler.
type BatchService interface {
	ExecuteAllForEvent(ctx context.Context, eventID int64) (int, error)
}

// ClauseHandler serves escrow clause HTTP endpoints.
type ClauseHandler struct {
	escrow EscrowService
	batch  BatchService
	logger *slog.Logger
}

// NewClauseHandler creates a ClauseHandler with the given services.
func NewClauseHandler(escrow EscrowService, batch BatchService, logger *slog.Logger) *ClauseHandler {
	return &ClauseHandler{
		escrow: escrow,
		batch:  batch,
		logger: logger,
	}
}

type depositRequest struct {
	EventID          int64  `json:"event_id"`
	Amount           string `json:"amount"`
	RecipientIfTrue  string `json:"recipient_if_true"`
	RecipientIfFalse string `json:"recipient_if_false"`

	// Optional mixed-donation leg: when instant_amount is set, Amount is the
	// donation total and the remainder above the instant leg goes to escrow.
	InstantAmount    string `json:"instant_amount,omitempty"`
	InstantRecipient string `json:"instant_recipient,omitempty"`
}

// Deposit escrows a conditional donation from the caller, optionally
// splitting off an instant leg first.
// POST /api/clauses
func (h *ClauseHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	var clause domain.Clause
	if req.InstantAmount != "" {
		instant, err := domain.ParseAmount(req.InstantAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid instant amount")
			return
		}
		clause, err = h.escrow.MixedDonation(r.Context(), caller, req.InstantRecipient, instant,
			req.EventID, req.RecipientIfTrue, req.RecipientIfFalse, amount)
		if err != nil {
			writeDomainError(w, r, h.logger, err)
			return
		}
	} else {
		clause, err = h.escrow.Deposit(r.Context(), req.EventID, caller, amount,
			req.RecipientIfTrue, req.RecipientIfFalse)
		if err != nil {
			writeDomainError(w, r, h.logger, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, clause)
}

// GetClause returns a single clause by id.
// GET /api/clauses/{id}
func (h *ClauseHandler) GetClause(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid clause id")
		return
	}

	clause, err := h.escrow.GetClause(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, clause)
}

// listClausesResponse wraps the list endpoint output.
type listClausesResponse struct {
	Clauses []domain.Clause `json:"clauses"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListClauses returns clauses filtered by event or donor.
// GET /api/clauses?event_id=1 or GET /api/clauses?donor=0x...
func (h *ClauseHandler) ListClauses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := parseListOpts(r)

	var clauses []domain.Clause
	var err error
	switch {
	case q.Get("event_id") != "":
		var eventID int64
		if eventID, err = parseInt64(q.Get("event_id")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid event_id")
			return
		}
		clauses, err = h.escrow.ListByEvent(r.Context(), eventID, opts)
	case q.Get("donor") != "":
		clauses, err = h.escrow.ListByDonor(r.Context(), q.Get("donor"), opts)
	default:
		writeError(w, http.StatusBadRequest, "event_id or donor query parameter required")
		return
	}
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if clauses == nil {
		clauses = []domain.Clause{}
	}
	writeJSON(w, http.StatusOK, listClausesResponse{
		Clauses: clauses,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// ExecuteClause pays out a single clause of a resolved event.
// POST /api/clauses/{id}/execute
func (h *ClauseHandler) ExecuteClause(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid clause id")
		return
	}

	recipient, err := h.escrow.ExecuteOne(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clause_id": id,
		"recipient": recipient,
	})
}

// RefundClause returns an unexecuted clause's escrow to the caller, who must
// be its donor. Only legal while the event is unresolved.
// POST /api/clauses/{id}/refund
func (h *ClauseHandler) RefundClause(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid clause id")
		return
	}

	if err := h.escrow.Refund(r.Context(), id, caller); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clause_id": id, "refunded": true})
}

// ExecuteBatch pays out every open clause of a resolved event in one atomic
// unit.
// POST /api/events/{id}/execute
func (h *ClauseHandler) ExecuteBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	executed, err := h.batch.ExecuteAllForEvent(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"event_id": id,
		"executed": executed,
	})
}
