package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store is the domain persistence boundary.
//
// The service relies on read-your-writes consistency: a List call issued
// after an upsert on the same Store must reflect that write. This is the
// precondition that makes the post-mutation snapshot authoritative.
type Store interface {
	ListLights(ctx context.Context) ([]Light, error)
	UpsertLight(ctx context.Context, light Light) (Light, error)
	ListPicks(ctx context.Context) ([]Pick, error)
	UpsertPick(ctx context.Context, pick Pick) (Pick, error)
	SetPickVisibility(ctx context.Context, name string, show bool, updatedAt time.Time) (Pick, error)
}

// Publisher fans one full snapshot out to every live subscriber of a topic.
type Publisher interface {
	Publish(topic string, payload any) error
}

// Service applies show-state mutations and broadcasts the refreshed
// authoritative snapshot after every successful write. It holds no state of
// its own between calls; all authority lives in the Store.
type Service struct {
	store     Store
	publisher Publisher
	clock     func() time.Time
}

// NewService constructs the mutation and query handlers. A nil clock defaults
// to time.Now.
func NewService(store Store, publisher Publisher, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:     store,
		publisher: publisher,
		clock:     clock,
	}
}

// SetLightMode upserts one participant light keyed on name and broadcasts the
// full light set. The written record is returned to the caller.
func (s *Service) SetLightMode(ctx context.Context, input SetLightModeInput) (Light, error) {
	if err := s.ready(); err != nil {
		return Light{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Light{}, ErrNameRequired
	}
	mode, err := ParseLightMode(strings.TrimSpace(input.Mode))
	if err != nil {
		return Light{}, err
	}

	now := s.nowUTC()
	written, err := s.store.UpsertLight(ctx, Light{
		Name:      name,
		RealName:  strings.TrimSpace(input.RealName),
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Light{}, fmt.Errorf("upsert light: %w", err)
	}

	if err := s.broadcastLights(ctx); err != nil {
		return Light{}, err
	}
	return written, nil
}

// SubmitPick upserts one participant pick keyed on name and broadcasts the
// full pick set. A first submission creates the record; later submissions
// replace its value and keep the original creation time.
func (s *Service) SubmitPick(ctx context.Context, input SubmitPickInput) (Pick, error) {
	if err := s.ready(); err != nil {
		return Pick{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Pick{}, ErrNameRequired
	}
	pick := strings.TrimSpace(input.Pick)
	if pick == "" {
		return Pick{}, ErrPickRequired
	}

	now := s.nowUTC()
	written, err := s.store.UpsertPick(ctx, Pick{
		Name:      name,
		Pick:      pick,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Pick{}, fmt.Errorf("upsert pick: %w", err)
	}

	if err := s.broadcastPicks(ctx); err != nil {
		return Pick{}, err
	}
	return written, nil
}

// SetPickVisibility toggles the reveal flag on an existing pick and
// broadcasts the full pick set. It never creates a pick: toggling a
// participant that has not submitted yields ErrNotFound and no broadcast.
func (s *Service) SetPickVisibility(ctx context.Context, input SetPickVisibilityInput) (Pick, error) {
	if err := s.ready(); err != nil {
		return Pick{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Pick{}, ErrNameRequired
	}

	written, err := s.store.SetPickVisibility(ctx, name, input.Show, s.nowUTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Pick{}, ErrNotFound
		}
		return Pick{}, fmt.Errorf("set pick visibility: %w", err)
	}

	if err := s.broadcastPicks(ctx); err != nil {
		return Pick{}, err
	}
	return written, nil
}

// ListLights returns the current light snapshot straight from the store.
func (s *Service) ListLights(ctx context.Context) ([]Light, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	lights, err := s.store.ListLights(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lights: %w", err)
	}
	return lights, nil
}

// ListPicks returns the current pick snapshot straight from the store.
func (s *Service) ListPicks(ctx context.Context) ([]Pick, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	picks, err := s.store.ListPicks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list picks: %w", err)
	}
	return picks, nil
}

// broadcastLights re-reads the full light collection and publishes it. The
// write already committed, so a failure here is reported to the caller rather
// than leaving subscribers silently stale.
func (s *Service) broadcastLights(ctx context.Context) error {
	lights, err := s.store.ListLights(ctx)
	if err != nil {
		return fmt.Errorf("read lights after write: %w", err)
	}
	if err := s.publisher.Publish(TopicLightUpdated, lights); err != nil {
		return fmt.Errorf("publish light snapshot: %w", err)
	}
	return nil
}

func (s *Service) broadcastPicks(ctx context.Context) error {
	picks, err := s.store.ListPicks(ctx)
	if err != nil {
		return fmt.Errorf("read picks after write: %w", err)
	}
	if err := s.publisher.Publish(TopicPickUpdated, picks); err != nil {
		return fmt.Errorf("publish pick snapshot: %w", err)
	}
	return nil
}

func (s *Service) ready() error {
	if s == nil || s.store == nil {
		return ErrStoreNotConfigured
	}
	if s.publisher == nil {
		return ErrPublisherNotConfigured
	}
	return nil
}

func (s *Service) nowUTC() time.Time {
	return s.clock().UTC()
}
