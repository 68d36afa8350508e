package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/causeway-labs/causeway/internal/domain"
)

// RegistryService owns the event records. Creation is open to any caller;
// resolution is the single irreversible transition and only the event's
// resolver authority may perform it. The oracle engine is just one more
// authority from the registry's point of view.
type RegistryService struct {
	store  domain.Store
	bus    domain.SignalBus
	clock  domain.Clock
	logger *slog.Logger
}

// NewRegistryService creates a RegistryService. bus may be nil.
func NewRegistryService(store domain.Store, bus domain.SignalBus, clock domain.Clock, logger *slog.Logger) *RegistryService {
	return &RegistryService{
		store:  store,
		bus:    bus,
		clock:  orSystemClock(clock),
		logger: logger.With(slog.String("component", "registry")),
	}
}

// CreateEvent registers a new pending event and returns it with its
// assigned id.
func (s *RegistryService) CreateEvent(ctx context.Context, description string, resolver, createdBy domain.Address) (domain.Event, error) {
	if strings.TrimSpace(description) == "" {
		return domain.Event{}, fmt.Errorf("registry: empty description: %w", domain.ErrInvalidInput)
	}
	resolver, err := domain.NormalizeAddress(resolver)
	if err != nil {
		return domain.Event{}, fmt.Errorf("registry: resolver: %w", err)
	}
	createdBy, err = domain.NormalizeAddress(createdBy)
	if err != nil {
		return domain.Event{}, fmt.Errorf("registry: creator: %w", err)
	}

	event := domain.Event{
		Description: description,
		Resolver:    resolver,
		CreatedBy:   createdBy,
		Status:      domain.EventStatusPending,
		CreatedAt:   s.clock.Now(),
	}

	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		id, err := tx.Events().Create(ctx, event)
		if err != nil {
			return err
		}
		event.ID = id
		return tx.Audit().Log(ctx, "event.created", map[string]any{
			"event_id": id,
			"resolver": resolver,
			"creator":  createdBy,
		})
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("registry: create event: %w", err)
	}

	s.logger.InfoContext(ctx, "event created",
		slog.Int64("event_id", event.ID),
		slog.String("resolver", event.Resolver),
	)
	publish(ctx, s.bus, s.logger, ChannelEvents, map[string]any{
		"type":  "event_created",
		"event": event,
	})
	return event, nil
}

// Resolve sets the event's outcome. It fails with ErrNotFound for unknown
// events, ErrUnauthorized when caller is not the resolver authority, and
// ErrAlreadyResolved when the transition already happened.
func (s *RegistryService) Resolve(ctx context.Context, eventID int64, outcome bool, caller domain.Address) (domain.Event, error) {
	var event domain.Event
	now := s.clock.Now()

	err := s.store.Atomic(ctx, func(tx domain.Store) error {
		e, err := tx.Events().Get(ctx, eventID)
		if err != nil {
			return err
		}
		if e.Resolved() {
			return domain.ErrAlreadyResolved
		}
		if !domain.SameAddress(caller, e.Resolver) {
			return domain.ErrUnauthorized
		}
		if err := tx.Events().MarkResolved(ctx, eventID, outcome, now); err != nil {
			return err
		}
		e.Status = domain.EventStatusResolved
		e.Outcome = outcome
		e.ResolvedAt = &now
		event = e
		return tx.Audit().Log(ctx, "event.resolved", map[string]any{
			"event_id": eventID,
			"outcome":  outcome,
			"caller":   caller,
		})
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("registry: resolve event %d: %w", eventID, err)
	}

	s.logger.InfoContext(ctx, "event resolved",
		slog.Int64("event_id", eventID),
		slog.Bool("outcome", outcome),
	)
	publish(ctx, s.bus, s.logger, ChannelEvents, map[string]any{
		"type":  "event_resolved",
		"event": event,
	})
	return event, nil
}

// Get returns a single event.
func (s *RegistryService) Get(ctx context.Context, eventID int64) (domain.Event, error) {
	e, err := s.store.Events().Get(ctx, eventID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("registry: get event %d: %w", eventID, err)
	}
	return e, nil
}

// List returns events ordered by id.
func (s *RegistryService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	return s.store.Events().List(ctx, opts)
}

// ListPending returns only events that still await resolution.
func (s *RegistryService) ListPending(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	return s.store.Events().ListPending(ctx, opts)
}
