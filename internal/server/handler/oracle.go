package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/causeway-labs/causeway/internal/domain"
	"github.com/causeway-labs/causeway/internal/server/middleware"
)

// OracleService defines the methods the oracle handler requires from the
// service layer.
type OracleService interface {
	Propose(ctx context.Context, eventID int64, outcome bool, proposer domain.Address, stake domain.Amount) (domain.OracleCase, error)
	Dispute(ctx context.Context, eventID int64, outcome bool, disputer domain.Address, stake domain.Amount) (domain.OracleCase, error)
	Vote(ctx context.Context, eventID int64, outcome bool, voter domain.Address, stake domain.Amount) (domain.OracleCase, error)
	Resolve(ctx context.Context, eventID int64) (domain.OracleCase, error)
	ResolveExpedited(ctx context.Context, eventID int64, forced bool, caller domain.Address) (domain.OracleCase, error)
	ClaimRewards(ctx context.Context, eventID int64, caller domain.Address) (domain.Amount, error)
	GetCase(ctx context.Context, eventID int64) (domain.OracleCase, error)
	StakeOf(ctx context.Context, eventID int64, addr domain.Address) (domain.Amount, error)
}

// OracleHandler serves resolution engine HTTP endpoints.
type OracleHandler struct {
	oracle OracleService
	logger *slog.Logger
}

// NewOracleHandler creates an OracleHandler with the given service.
func NewOracleHandler(oracle OracleService, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{
		oracle: oracle,
		logger: logger,
	}
}

// stakedRequest is the shared body shape for propose, dispute, and vote.
type stakedRequest struct {
	Outcome bool   `json:"outcome"`
	Stake   string `json:"stake"`
}

func (h *OracleHandler) staked(w http.ResponseWriter, r *http.Request) (eventID int64, outcome bool, caller domain.Address, stake domain.Amount, ok bool) {
	caller, ok = requireCaller(w, r)
	if !ok {
		return
	}
	eventID, ok = pathID(r, "eventID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var req stakedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		ok = false
		return
	}
	stake, err := domain.ParseAmount(req.Stake)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stake")
		ok = false
		return
	}
	return eventID, req.Outcome, caller, stake, true
}

// Propose opens a resolution case with the caller's asserted outcome.
// POST /api/oracle/{eventID}/propose
func (h *OracleHandler) Propose(w http.ResponseWriter, r *http.Request) {
	eventID, outcome, caller, stake, ok := h.staked(w, r)
	if !ok {
		return
	}

	c, err := h.oracle.Propose(r.Context(), eventID, outcome, caller, stake)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Dispute contests the open proposal with a double bond.
// POST /api/oracle/{eventID}/dispute
func (h *OracleHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	eventID, outcome, caller, stake, ok := h.staked(w, r)
	if !ok {
		return
	}

	c, err := h.oracle.Dispute(r.Context(), eventID, outcome, caller, stake)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Vote adds a stake-weighted vote to a disputed case.
// POST /api/oracle/{eventID}/vote
func (h *OracleHandler) Vote(w http.ResponseWriter, r *http.Request) {
	eventID, outcome, caller, stake, ok := h.staked(w, r)
	if !ok {
		return
	}

	c, err := h.oracle.Vote(r.Context(), eventID, outcome, caller, stake)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Resolve finalizes a case whose governing deadline has passed.
// POST /api/oracle/{eventID}/resolve
func (h *OracleHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r, "eventID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	c, err := h.oracle.Resolve(r.Context(), eventID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type expediteRequest struct {
	Outcome bool `json:"outcome"`
}

// Expedite forces an outcome, bypassing deadlines. Creator only.
// POST /api/oracle/{eventID}/expedite
func (h *OracleHandler) Expedite(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(r, "eventID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var req expediteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	c, err := h.oracle.ResolveExpedited(r.Context(), eventID, req.Outcome, caller)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Claim pays out the caller's winning stake plus reward share.
// POST /api/oracle/{eventID}/claim
func (h *OracleHandler) Claim(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(r, "eventID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	reward, err := h.oracle.ClaimRewards(r.Context(), eventID, caller)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"event_id": eventID,
		"reward":   reward.String(),
	})
}

// Stake returns the locked stake an address holds on a case.
// GET /api/oracle/{eventID}/stake?address=0x...
func (h *OracleHandler) Stake(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r, "eventID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	addr := r.URL.Query().Get("address")
	if addr == "" {
		addr = string(middleware.CallerFrom(r.Context()))
	}
	if addr == "" {
		writeError(w, http.StatusBadRequest, "address required")
		return
	}

	stake, err := h.oracle.StakeOf(r.Context(), eventID, domain.Address(addr))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"event_id": eventID,
		"address":  addr,
		"stake":    stake.String(),
	})
}

// GetCase returns the resolution case for an event, including the caller's
// locked stake when a caller identity is present.
// GET /api/oracle/{eventID}
func (h *OracleHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r, "eventID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	c, err := h.oracle.GetCase(r.Context(), eventID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
