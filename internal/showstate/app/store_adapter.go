package server

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/showsync/internal/showstate/domain"
	"github.com/louisbranch/showsync/internal/showstate/storage"
)

// storeAdapter bridges the SQLite record layer to the domain store contract.
// It owns the type translation in both directions and maps storage sentinels
// to their domain counterparts.
type storeAdapter struct {
	lights storage.LightStore
	picks  storage.PickStore
}

func newStoreAdapter(lights storage.LightStore, picks storage.PickStore) *storeAdapter {
	return &storeAdapter{lights: lights, picks: picks}
}

func (a *storeAdapter) ListLights(ctx context.Context) ([]domain.Light, error) {
	records, err := a.lights.ListLights(ctx)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	results := make([]domain.Light, 0, len(records))
	for _, record := range records {
		results = append(results, lightFromRecord(record))
	}
	return results, nil
}

func (a *storeAdapter) UpsertLight(ctx context.Context, light domain.Light) (domain.Light, error) {
	record, err := a.lights.UpsertLight(ctx, lightToRecord(light))
	if err != nil {
		return domain.Light{}, translateStorageErr(err)
	}
	return lightFromRecord(record), nil
}

func (a *storeAdapter) ListPicks(ctx context.Context) ([]domain.Pick, error) {
	records, err := a.picks.ListPicks(ctx)
	if err != nil {
		return nil, translateStorageErr(err)
	}
	results := make([]domain.Pick, 0, len(records))
	for _, record := range records {
		results = append(results, pickFromRecord(record))
	}
	return results, nil
}

func (a *storeAdapter) UpsertPick(ctx context.Context, pick domain.Pick) (domain.Pick, error) {
	record, err := a.picks.UpsertPick(ctx, pickToRecord(pick))
	if err != nil {
		return domain.Pick{}, translateStorageErr(err)
	}
	return pickFromRecord(record), nil
}

func (a *storeAdapter) SetPickVisibility(ctx context.Context, name string, show bool, updatedAt time.Time) (domain.Pick, error) {
	record, err := a.picks.SetPickVisibility(ctx, name, show, updatedAt)
	if err != nil {
		return domain.Pick{}, translateStorageErr(err)
	}
	return pickFromRecord(record), nil
}

func translateStorageErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func lightToRecord(light domain.Light) storage.LightRecord {
	return storage.LightRecord{
		Name:      light.Name,
		RealName:  light.RealName,
		Mode:      storage.LightMode(light.Mode),
		CreatedAt: light.CreatedAt,
		UpdatedAt: light.UpdatedAt,
	}
}

func lightFromRecord(record storage.LightRecord) domain.Light {
	return domain.Light{
		Name:      record.Name,
		RealName:  record.RealName,
		Mode:      domain.LightMode(record.Mode),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func pickToRecord(pick domain.Pick) storage.PickRecord {
	return storage.PickRecord{
		Name:      pick.Name,
		Pick:      pick.Pick,
		Show:      pick.Show,
		CreatedAt: pick.CreatedAt,
		UpdatedAt: pick.UpdatedAt,
	}
}

func pickFromRecord(record storage.PickRecord) domain.Pick {
	return domain.Pick{
		Name:      record.Name,
		Pick:      record.Pick,
		Show:      record.Show,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}
