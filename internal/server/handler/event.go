package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/causeway-labs/causeway/internal/domain"
)

// EventService defines the methods the event handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type EventService interface {
	CreateEvent(ctx context.Context, description string, resolver, createdBy domain.Address) (domain.Event, error)
	Resolve(ctx context.Context, eventID int64, outcome bool, caller domain.Address) (domain.Event, error)
	Get(ctx context.Context, eventID int64) (domain.Event, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error)
	ListPending(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error)
}

// EventHandler serves event registry HTTP endpoints.
type EventHandler struct {
	events EventService
	cache  domain.EventCache // may be nil
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler. cache may be nil, in which case
// every read goes to the store.
func NewEventHandler(events EventService, cache domain.EventCache, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		cache:  cache,
		logger: logger,
	}
}

type createEventRequest struct {
	Description string `json:"description"`
	Resolver    string `json:"resolver"`
}

// CreateEvent registers a new event with the caller as its creator.
// POST /api/events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req.Description, req.Resolver, caller)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// GetEvent returns a single event by id, consulting the snapshot cache first.
// GET /api/events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	if h.cache != nil {
		if event, err := h.cache.Get(r.Context(), id); err == nil {
			writeJSON(w, http.StatusOK, event)
			return
		} else if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "handler: event cache read failed",
				slog.Int64("event_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	event, err := h.events.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(r.Context(), event); err != nil {
			h.logger.WarnContext(r.Context(), "handler: event cache fill failed",
				slog.Int64("event_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, event)
}

// listEventsResponse wraps the list endpoint output with paging metadata.
type listEventsResponse struct {
	Events []domain.Event `json:"events"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListEvents returns events with pagination. With status=pending only
// unresolved events are returned.
// GET /api/events?status=pending&limit=50&offset=0
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var events []domain.Event
	var err error
	switch status := r.URL.Query().Get("status"); status {
	case "", "all":
		events, err = h.events.List(r.Context(), opts)
	case string(domain.EventStatusPending):
		events, err = h.events.ListPending(r.Context(), opts)
	default:
		writeError(w, http.StatusBadRequest, "unknown status filter "+status)
		return
	}
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{
		Events: events,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

type resolveEventRequest struct {
	Outcome bool `json:"outcome"`
}

// ResolveEvent performs the trusted-resolver resolution path. The caller
// must be the event's resolver authority.
// POST /api/events/{id}/resolve
func (h *EventHandler) ResolveEvent(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var req resolveEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.Resolve(r.Context(), id, req.Outcome, caller)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context(), id); err != nil {
			h.logger.WarnContext(r.Context(), "handler: event cache invalidate failed",
				slog.Int64("event_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, event)
}
